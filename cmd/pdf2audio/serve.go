package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/pdf2audio/internal/bootstrap"
	"github.com/maauso/pdf2audio/internal/config"
	"github.com/maauso/pdf2audio/internal/server"
)

func newServeCmd(stderr io.Writer) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve narration jobs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, stderr)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP listen port (overrides PORT)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	// Create structured logger
	logger := cfg.NewLogger(logOut)
	slog.SetDefault(logger)

	logger.Info("starting pdf2audio server",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs),
		slog.Int("max_chars", cfg.MaxChars),
		slog.String("voice", cfg.Voice),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	outputDir := filepath.Join(cfg.TempDir, "narrations")
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	opts := []server.HandlerOption{
		server.WithDefaults(deps.Defaults),
		server.WithOutputDir(outputDir),
		server.WithJobContext(jobCtx),
	}
	if cfg.S3Enabled() {
		opts = append(opts, server.WithS3Bucket(cfg.S3Bucket))
	}

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.Jobs, deps.Narrator, deps.Store, logger, opts...)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Allow for large audio downloads
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// Running narrations are cancelled; their partial audio is never exported.
	cancelJobs()
	deps.Jobs.Wait()

	logger.Info("server stopped gracefully")
	return nil
}
