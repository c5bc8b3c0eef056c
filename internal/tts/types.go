// Package tts provides a client for the Google Cloud Text-to-Speech API.
package tts

import "context"

// Defaults matching the narration voice used when nothing is configured.
const (
	DefaultVoice        = "en-US-Wavenet-D"
	DefaultLanguageCode = "en-US"
	DefaultRate         = 1.0
	DefaultPitch        = 0.0
)

// Encoding is the audio encoding requested from the service.
type Encoding string

// Supported audio encodings.
const (
	EncodingMP3      Encoding = "MP3"
	EncodingLinear16 Encoding = "LINEAR16"
	EncodingOggOpus  Encoding = "OGG_OPUS"
)

// Extension returns the container format name used for files of this encoding.
func (e Encoding) Extension() string {
	switch e {
	case EncodingLinear16:
		return "wav"
	case EncodingOggOpus:
		return "ogg"
	default:
		return "mp3"
	}
}

// Gender is the requested SSML voice gender.
type Gender string

// SSML voice genders.
const (
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
	GenderNeutral Gender = "NEUTRAL"
)

// Request contains the parameters for synthesizing one text chunk.
type Request struct {
	// Text is the plain text to speak.
	Text string `validate:"required"`
	// Voice is the voice name, e.g. "en-US-Wavenet-D".
	Voice string `validate:"required"`
	// LanguageCode is the BCP-47 language code. Default: "en-US".
	LanguageCode string `validate:"required"`
	// Gender is the SSML voice gender. Default: MALE.
	Gender Gender `validate:"oneof=MALE FEMALE NEUTRAL"`
	// Rate is the speaking rate multiplier. Default: 1.0.
	Rate float64 `validate:"gte=0.25,lte=4"`
	// Pitch is the pitch offset in semitones. Default: 0.0.
	Pitch float64 `validate:"gte=-20,lte=20"`
	// Encoding is the output audio encoding. Default: MP3.
	Encoding Encoding `validate:"oneof=MP3 LINEAR16 OGG_OPUS"`
}

// withDefaults fills unset fields. A zero Rate means the service default of 1.0.
func (r Request) withDefaults() Request {
	if r.LanguageCode == "" {
		r.LanguageCode = DefaultLanguageCode
	}
	if r.Gender == "" {
		r.Gender = GenderMale
	}
	if r.Rate == 0 {
		r.Rate = DefaultRate
	}
	if r.Encoding == "" {
		r.Encoding = EncodingMP3
	}
	return r
}

// Synthesizer defines the interface for turning one text chunk into encoded audio.
type Synthesizer interface {
	// Synthesize returns the encoded audio bytes for req.Text.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// synthesizeRequest is the request body for the text:synthesize endpoint.
type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceParams    `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceParams struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	SsmlGender   Gender `json:"ssmlGender,omitempty"`
}

type audioConfig struct {
	AudioEncoding Encoding `json:"audioEncoding"`
	SpeakingRate  float64  `json:"speakingRate"`
	Pitch         float64  `json:"pitch"`
}

// synthesizeResponse is the response body of the text:synthesize endpoint.
type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// errorResponse is the error envelope returned by Google APIs.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
