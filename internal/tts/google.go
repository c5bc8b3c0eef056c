package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2/google"
)

// Static errors for Text-to-Speech client operations.
var (
	// ErrInvalidRequest is returned when a request fails validation before being sent.
	ErrInvalidRequest = errors.New("tts: invalid request")
	// ErrCredentials is returned when neither an API key nor application default credentials are available.
	ErrCredentials = errors.New("tts: no credentials available")
	// ErrRequestFailed is returned when the service call fails or returns a non-2xx status code.
	ErrRequestFailed = errors.New("tts: request failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("tts: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("tts: rate limited")
	// ErrEmptyAudio is returned when a successful response carries no audio.
	ErrEmptyAudio = errors.New("tts: response contained no audio")
)

const (
	// DefaultEndpoint is the public Google Cloud Text-to-Speech endpoint.
	DefaultEndpoint = "https://texttospeech.googleapis.com"

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

// Compile-time check that GoogleClient implements Synthesizer.
var _ Synthesizer = (*GoogleClient)(nil)

// GoogleClient is the REST implementation of Synthesizer for Google Cloud Text-to-Speech.
// Each call is a single request; failures are returned to the caller without retry.
type GoogleClient struct {
	apiKey     string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	validate   *validator.Validate
}

// ClientOption is a function that configures a GoogleClient.
type ClientOption func(*GoogleClient)

// WithAPIKey authenticates requests with an API key instead of application default credentials.
func WithAPIKey(key string) ClientOption {
	return func(c *GoogleClient) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client. No credentials are attached to it.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *GoogleClient) {
		c.httpClient = hc
	}
}

// WithEndpoint sets a custom base URL for the API.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *GoogleClient) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *GoogleClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewGoogleClient creates a new Text-to-Speech client.
// When no API key and no HTTP client are supplied, the client authenticates
// with application default credentials.
func NewGoogleClient(ctx context.Context, opts ...ClientOption) (*GoogleClient, error) {
	c := &GoogleClient{
		endpoint: DefaultEndpoint,
		timeout:  60 * time.Second,
		validate: validator.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		if c.apiKey != "" {
			c.httpClient = &http.Client{}
		} else {
			hc, err := google.DefaultClient(ctx, cloudPlatformScope)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
			}
			c.httpClient = hc
		}
	}

	return c, nil
}

// Synthesize sends one text chunk to the service and returns the decoded audio bytes.
func (c *GoogleClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	req = req.withDefaults()
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	body, err := json.Marshal(synthesizeRequest{
		Input: synthesisInput{Text: req.Text},
		Voice: voiceParams{
			LanguageCode: req.LanguageCode,
			Name:         req.Voice,
			SsmlGender:   req.Gender,
		},
		AudioConfig: audioConfig{
			AudioEncoding: req.Encoding,
			SpeakingRate:  req.Rate,
			Pitch:         req.Pitch,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}

	var resp synthesizeResponse
	if err := c.doRequest(ctx, c.synthesizeURL(), body, &resp); err != nil {
		return nil, err
	}

	if resp.AudioContent == "" {
		return nil, ErrEmptyAudio
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("tts: decode audio content: %w", err)
	}

	return audio, nil
}

func (c *GoogleClient) synthesizeURL() string {
	u := c.endpoint + "/v1/text:synthesize"
	if c.apiKey != "" {
		u += "?key=" + url.QueryEscape(c.apiKey)
	}
	return u
}

// doRequest performs a single POST request and decodes the JSON response.
func (c *GoogleClient) doRequest(ctx context.Context, url string, body []byte, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tts: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(respBody)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %w %d: %s", ErrRequestFailed, ErrServerError, resp.StatusCode, msg)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w: %s", ErrRequestFailed, ErrRateLimited, msg)
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, msg)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("tts: unmarshal response: %w", err)
	}

	return nil
}

// errorMessage extracts the message from a Google error envelope, falling back to the raw body.
func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		if e.Error.Status != "" {
			return e.Error.Status + ": " + e.Error.Message
		}
		return e.Error.Message
	}
	return string(body)
}
