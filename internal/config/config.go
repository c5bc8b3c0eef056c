// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port              int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	MaxConcurrentJobs int `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs" validate:"min=1"`

	// Google Text-to-Speech settings. Without an API key, application
	// default credentials are used.
	GoogleAPIKey  string  `env:"GOOGLE_TTS_API_KEY" json:"-"` // Masked in JSON
	TTSEndpoint   string  `env:"GOOGLE_TTS_ENDPOINT, default=https://texttospeech.googleapis.com" json:"tts_endpoint" validate:"url"`
	Voice         string  `env:"TTS_VOICE, default=en-US-Wavenet-D" json:"voice" validate:"required"`
	LanguageCode  string  `env:"TTS_LANGUAGE_CODE, default=en-US" json:"language_code" validate:"required"`
	SpeakingRate  float64 `env:"TTS_SPEAKING_RATE, default=1.0" json:"speaking_rate" validate:"gte=0.25,lte=4"`
	Pitch         float64 `env:"TTS_PITCH, default=0" json:"pitch" validate:"gte=-20,lte=20"`
	TTSTimeoutSec int     `env:"TTS_TIMEOUT_SEC, default=60" json:"tts_timeout_sec" validate:"min=1"`

	// Processing settings
	MaxChars      int    `env:"MAX_CHARS, default=4500" json:"max_chars" validate:"min=1"`
	FFmpegPath    string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	FFprobePath   string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path" validate:"required"`
	PDFFallback   bool   `env:"PDF_FALLBACK_PDFTOTEXT, default=false" json:"pdf_fallback_pdftotext"`
	PdftotextPath string `env:"PDFTOTEXT_PATH, default=pdftotext" json:"pdftotext_path"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/pdf2audio" json:"temp_dir" validate:"required"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty" validate:"required_with=S3Bucket"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text JSON TEXT"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level" validate:"oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// TTSTimeout returns the per-request synthesis timeout.
func (c *Config) TTSTimeout() time.Duration {
	return time.Duration(c.TTSTimeoutSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig.
// The result is not validated; call Validate after applying overrides.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks every value against its allowed range. Field names in the
// returned error are the environment variable names.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("env"), ",")
		return name
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), maskValue(fe)))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// maskValue hides secrets in validation messages.
func maskValue(fe validator.FieldError) interface{} {
	switch fe.StructField() {
	case "GoogleAPIKey", "AWSAccessKeyID", "AWSSecretAccessKey":
		return "***"
	}
	return fe.Value()
}

// NewLogger creates a structured logger writing to w.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, MaxConcurrentJobs: %d, GoogleAPIKey: %s, TTSEndpoint: %s, Voice: %s, LanguageCode: %s, SpeakingRate: %.2f, Pitch: %.2f, TTSTimeoutSec: %d, MaxChars: %d, TempDir: %s, PDFFallback: %t, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.MaxConcurrentJobs,
		mask(c.GoogleAPIKey),
		c.TTSEndpoint,
		c.Voice,
		c.LanguageCode,
		c.SpeakingRate,
		c.Pitch,
		c.TTSTimeoutSec,
		c.MaxChars,
		c.TempDir,
		c.PDFFallback,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "***"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
