// Package bootstrap provides dependency initialization for pdf2audio.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/pdf2audio/internal/audio"
	"github.com/maauso/pdf2audio/internal/config"
	"github.com/maauso/pdf2audio/internal/extract"
	"github.com/maauso/pdf2audio/internal/job"
	"github.com/maauso/pdf2audio/internal/pipeline"
	"github.com/maauso/pdf2audio/internal/storage"
	"github.com/maauso/pdf2audio/internal/tts"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Store    storage.Storage
	Narrator *pipeline.Narrator
	Jobs     *job.Service
	// Defaults are the voice parameters used when a request omits them.
	Defaults job.Params
}

// NewDependencies creates and initializes all dependencies for the server.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	repo := job.NewMemoryRepository()

	narrator, store, err := NewNarrator(ctx, cfg, logger, pipeline.WithRepository(repo))
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		Store:    store,
		Narrator: narrator,
		Jobs:     job.NewService(repo, cfg.MaxConcurrentJobs, logger),
		Defaults: DefaultParams(cfg),
	}, nil
}

// NewNarrator wires the extractor, synthesizer and assembler into a
// Narrator. The returned storage holds scratch files for the run.
func NewNarrator(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...pipeline.Option) (*pipeline.Narrator, storage.Storage, error) {
	store, s3Enabled, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	extractOpts := []extract.PDFOption{extract.WithLogger(logger)}
	if cfg.PDFFallback {
		extractOpts = append(extractOpts, extract.WithPdftotextFallback(cfg.PdftotextPath))
	}
	extractor := extract.NewPDFExtractor(extractOpts...)

	synth, err := tts.NewGoogleClient(ctx,
		tts.WithAPIKey(cfg.GoogleAPIKey),
		tts.WithEndpoint(cfg.TTSEndpoint),
		tts.WithTimeout(cfg.TTSTimeout()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create TTS client: %w", err)
	}
	if cfg.GoogleAPIKey == "" {
		logger.Info("no TTS API key set, using application default credentials")
	}

	assembler := audio.NewFFmpegAssembler(store,
		audio.WithFFmpegPath(cfg.FFmpegPath),
		audio.WithFFprobePath(cfg.FFprobePath),
	)

	narratorOpts := []pipeline.Option{
		pipeline.WithMaxChars(cfg.MaxChars),
		pipeline.WithLogger(logger),
	}
	if s3Enabled {
		narratorOpts = append(narratorOpts, pipeline.WithUploader(store))
	}
	narratorOpts = append(narratorOpts, opts...)

	return pipeline.New(extractor, synth, assembler, narratorOpts...), store, nil
}

// DefaultParams returns the configured voice parameters.
func DefaultParams(cfg *config.Config) job.Params {
	return job.Params{
		Voice:        cfg.Voice,
		LanguageCode: cfg.LanguageCode,
		Rate:         cfg.SpeakingRate,
		Pitch:        cfg.Pitch,
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, bool, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, false, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, true, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, false, fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, false, nil
}
