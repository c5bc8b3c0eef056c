package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/pdf2audio/internal/bootstrap"
	"github.com/maauso/pdf2audio/internal/config"
	"github.com/maauso/pdf2audio/internal/job"
	"github.com/maauso/pdf2audio/internal/pipeline"
)

const usageLine = "Usage: pdf2audio <input.pdf> <output.mp3> [<voice-name>]"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// narrateFlags holds the root command's flag values.
type narrateFlags struct {
	rate     float64
	pitch    float64
	language string
	maxChars int
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrUsage):
		fmt.Fprintf(stderr, "error: %v\n", err)
		fmt.Fprintln(stderr, usageLine)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &narrateFlags{}

	root := &cobra.Command{
		Use:   "pdf2audio <input.pdf> <output.mp3> [<voice-name>]",
		Short: "Narrate a PDF into a single audio file",
		Long: "pdf2audio extracts the text of a PDF, splits it into sentence-aligned chunks,\n" +
			"synthesizes each chunk with Google Text-to-Speech and joins the audio into one file.\n" +
			"The output may be a local path or an s3://bucket/key URL.",
		Args:          positionalArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNarrate(cmd, args, flags, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", pipeline.ErrUsage, err)
	})

	root.Flags().Float64Var(&flags.rate, "rate", 1.0, "speaking rate multiplier (0.25-4.0)")
	root.Flags().Float64Var(&flags.pitch, "pitch", 0.0, "pitch offset in semitones (-20 to 20)")
	root.Flags().StringVar(&flags.language, "language", "en-US", "BCP-47 language code of the voice")
	root.Flags().IntVar(&flags.maxChars, "max-chars", 4500, "maximum characters per synthesis request")

	root.AddCommand(newServeCmd(stderr))

	return root
}

// positionalArgs accepts two or three arguments.
func positionalArgs(_ *cobra.Command, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: expected 2 or 3 arguments, got %d", pipeline.ErrUsage, len(args))
	}
	return nil
}

func runNarrate(cmd *cobra.Command, args []string, flags *narrateFlags, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := applyFlags(cmd, flags, cfg); err != nil {
		return err
	}

	logger := cfg.NewLogger(stderr)
	slog.SetDefault(logger)

	narrator, _, err := bootstrap.NewNarrator(cmd.Context(), cfg, logger,
		pipeline.WithProgress(progressPrinter(stdout)),
	)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	voice := cfg.Voice
	if len(args) == 3 {
		voice = args[2]
	}

	_, err = narrator.Run(cmd.Context(), pipeline.Input{
		SourcePath:   args[0],
		OutputPath:   args[1],
		Voice:        voice,
		LanguageCode: cfg.LanguageCode,
		Rate:         cfg.SpeakingRate,
		Pitch:        cfg.Pitch,
	})
	return err
}

// applyFlags overrides cfg with the flags set on the command line.
// The pipeline checks pitch; rate is checked here since the pipeline
// treats a zero rate as unset.
func applyFlags(cmd *cobra.Command, flags *narrateFlags, cfg *config.Config) error {
	fs := cmd.Flags()
	if fs.Changed("rate") {
		if flags.rate < 0.25 || flags.rate > 4 {
			return fmt.Errorf("%w: --rate must be within 0.25-4.0, got %g", pipeline.ErrUsage, flags.rate)
		}
		cfg.SpeakingRate = flags.rate
	}
	if fs.Changed("pitch") {
		cfg.Pitch = flags.pitch
	}
	if fs.Changed("language") {
		if flags.language == "" {
			return fmt.Errorf("%w: --language must not be empty", pipeline.ErrUsage)
		}
		cfg.LanguageCode = flags.language
	}
	if fs.Changed("max-chars") {
		if flags.maxChars < 1 {
			return fmt.Errorf("%w: --max-chars must be at least 1, got %d", pipeline.ErrUsage, flags.maxChars)
		}
		cfg.MaxChars = flags.maxChars
	}
	return nil
}

// progressPrinter writes one human-readable line per pipeline event.
func progressPrinter(w io.Writer) pipeline.ProgressFunc {
	return func(ev pipeline.Event) {
		switch ev.Stage {
		case job.StageExtracting:
			fmt.Fprintln(w, "→ extracting text…")
		case job.StageChunking:
			fmt.Fprintln(w, "→ chunking text…")
		case job.StageSynthesizing:
			if ev.Chunk == 0 {
				fmt.Fprintf(w, "→ synthesizing %d chunk(s) with voice %s…\n", ev.Total, ev.Voice)
				return
			}
			fmt.Fprintf(w, "Chunk %d/%d synthesized (%d ms)\n", ev.Chunk, ev.Total, ev.Duration.Milliseconds())
		case job.StageConcatenating:
			fmt.Fprintln(w, "→ concatenating audio…")
		case job.StageExporting:
			fmt.Fprintf(w, "→ exporting %s…\n", ev.Output)
		case job.StageDone:
			fmt.Fprintln(w, "✅ Done!")
		}
	}
}
