// Package server provides the HTTP API for pdf2audio narration jobs.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateNarrationRequest is the HTTP request body for creating a narration.
type CreateNarrationRequest struct {
	// PDFBase64 is the base64-encoded source PDF.
	PDFBase64 string `json:"pdf_base64" validate:"required,base64"`
	// Voice is the synthesizer voice name. Empty uses the server default.
	Voice string `json:"voice,omitempty" validate:"omitempty,max=100"`
	// LanguageCode is the BCP-47 language code. Empty uses the server default.
	LanguageCode string `json:"language_code,omitempty" validate:"omitempty,bcp47_language_tag"`
	// Rate is the speaking rate multiplier.
	Rate *float64 `json:"rate,omitempty" validate:"omitempty,gte=0.25,lte=4"`
	// Pitch is the semitone offset.
	Pitch *float64 `json:"pitch,omitempty" validate:"omitempty,gte=-20,lte=20"`
	// Format is the output audio format. Default: mp3.
	Format string `json:"format,omitempty" validate:"omitempty,oneof=mp3 wav ogg"`
	// PushToS3 indicates whether to upload the narration to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateNarrationResponse is the HTTP response after creating a narration job.
type CreateNarrationResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// ChunkResponse describes the synthesis of one text chunk.
type ChunkResponse struct {
	Index      int    `json:"index"`
	Chars      int    `json:"chars"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NarrationResponse is the HTTP response for getting narration details.
type NarrationResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Stage is the pipeline stage while running.
	Stage string `json:"stage,omitempty"`
	// Progress is the percentage of chunks synthesized (0-100).
	Progress int `json:"progress"`
	// Chunks lists per-chunk progress once the text has been chunked.
	Chunks []ChunkResponse `json:"chunks,omitempty"`
	// DurationMs is the total narration length once completed.
	DurationMs int64 `json:"duration_ms,omitempty"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// AudioURL is the S3 URL of the narration (if push_to_s3=true and completed).
	AudioURL string `json:"audio_url,omitempty"`
	// Voice is the voice the narration was requested with.
	Voice     string    `json:"voice"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
