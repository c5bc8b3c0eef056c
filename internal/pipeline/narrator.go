// Package pipeline orchestrates a narration run: extract the text of a PDF,
// split it into synthesizer-sized chunks, synthesize each chunk in order,
// concatenate the audio, and export a single file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/pdf2audio/internal/audio"
	"github.com/maauso/pdf2audio/internal/chunker"
	"github.com/maauso/pdf2audio/internal/extract"
	"github.com/maauso/pdf2audio/internal/job"
	"github.com/maauso/pdf2audio/internal/storage"
	"github.com/maauso/pdf2audio/internal/tts"
)

// Input describes one narration run.
type Input struct {
	// SourcePath is the PDF to narrate.
	SourcePath string
	// OutputPath is a local file path or an s3://bucket/key URL.
	// The extension selects the output format (mp3 if unknown).
	OutputPath string
	// Voice is the synthesizer voice name. Default: tts.DefaultVoice.
	Voice string
	// LanguageCode defaults to tts.DefaultLanguageCode.
	LanguageCode string
	// Rate is the speaking rate multiplier. Zero means 1.0.
	Rate float64
	// Pitch is the semitone offset.
	Pitch float64
}

// Result summarises a completed run.
type Result struct {
	// Chunks is the number of text chunks synthesized.
	Chunks int
	// ChunkDurations holds each segment's duration, in chunk order.
	ChunkDurations []time.Duration
	// Duration is the total narration length.
	Duration time.Duration
	// Output is the local path written, or the object URL for S3 output.
	Output string
}

// Event is a progress notification emitted at each stage and after each chunk.
type Event struct {
	Stage job.Stage
	// Chunk is the 1-based chunk number for per-chunk events, zero otherwise.
	Chunk int
	// Total is the number of chunks, once known.
	Total int
	// Voice is set on the synthesizing stage event.
	Voice string
	// Duration is the synthesized segment's length for per-chunk events.
	Duration time.Duration
	// Output is set on the exporting and done events.
	Output string
}

// ProgressFunc receives progress events. It is called synchronously.
type ProgressFunc func(Event)

// Narrator runs the narration pipeline over its adapters.
type Narrator struct {
	extractor extract.Extractor
	synth     tts.Synthesizer
	assembler audio.Assembler
	uploader  storage.Storage
	repo      job.Repository
	maxChars  int
	encoding  tts.Encoding
	progress  ProgressFunc
	logger    *slog.Logger
}

// Option configures a Narrator.
type Option func(*Narrator)

// WithMaxChars sets the chunk size ceiling. Values below 1 are ignored.
func WithMaxChars(n int) Option {
	return func(nr *Narrator) {
		if n > 0 {
			nr.maxChars = n
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(nr *Narrator) {
		nr.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(nr *Narrator) {
		if logger != nil {
			nr.logger = logger
		}
	}
}

// WithRepository persists job progress during RunJob.
func WithRepository(repo job.Repository) Option {
	return func(nr *Narrator) {
		nr.repo = repo
	}
}

// WithUploader enables s3:// output paths.
func WithUploader(store storage.Storage) Option {
	return func(nr *Narrator) {
		nr.uploader = store
	}
}

// New creates a Narrator.
func New(extractor extract.Extractor, synth tts.Synthesizer, assembler audio.Assembler, opts ...Option) *Narrator {
	n := &Narrator{
		extractor: extractor,
		synth:     synth,
		assembler: assembler,
		maxChars:  chunker.DefaultMaxChars,
		encoding:  tts.EncodingMP3,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run executes the pipeline. Any failure aborts the run without writing the
// output; scratch audio is released on every path.
func (n *Narrator) Run(ctx context.Context, in Input) (*Result, error) {
	return n.run(ctx, in, nil)
}

// RunJob executes the pipeline for j, moving it through RUNNING to a
// terminal state and saving it to the repository as it progresses.
func (n *Narrator) RunJob(ctx context.Context, j *job.Job) (*Result, error) {
	if err := j.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", j.ID, err)
	}
	n.save(ctx, j)

	in := Input{
		SourcePath:   j.SourcePath,
		OutputPath:   j.OutputPath,
		Voice:        j.Params.Voice,
		LanguageCode: j.Params.LanguageCode,
		Rate:         j.Params.Rate,
		Pitch:        j.Params.Pitch,
	}

	res, err := n.run(ctx, in, j)
	switch {
	case err == nil:
		var url string
		if storage.IsS3URL(in.OutputPath) {
			url = res.Output
		}
		_ = j.Complete(url, res.Duration)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		_ = j.Cancel()
	default:
		_ = j.Fail(err.Error())
	}
	n.save(context.WithoutCancel(ctx), j)

	return res, err
}

func (n *Narrator) run(ctx context.Context, in Input, j *job.Job) (*Result, error) {
	in = withDefaults(in)
	outFormat, loc, err := n.checkInput(in)
	if err != nil {
		return nil, err
	}
	segFormat := audio.Format(n.encoding.Extension())

	logger := n.logger.With(slog.String("source", in.SourcePath))
	if j != nil {
		logger = logger.With(slog.String("job_id", j.ID))
	}

	n.stage(ctx, j, Event{Stage: job.StageExtracting})
	text, err := n.extractor.Extract(ctx, in.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: %s: %w", ErrExtraction, in.SourcePath, extract.ErrNoText)
	}
	logger.Info("text extracted", slog.Int("chars", chunker.Len(text)))

	n.stage(ctx, j, Event{Stage: job.StageChunking})
	chunks := chunker.Chunk(text, n.maxChars)
	lengths := make([]int, len(chunks))
	for i, c := range chunks {
		lengths[i] = chunker.Len(c)
		if lengths[i] > n.maxChars {
			logger.Warn("sentence exceeds chunk limit",
				slog.Int("chunk", i+1),
				slog.Int("chars", lengths[i]),
				slog.Int("max_chars", n.maxChars),
			)
		}
	}
	if j != nil {
		j.SetChunks(lengths)
	}
	logger.Info("text chunked", slog.Int("chunks", len(chunks)), slog.Int("max_chars", n.maxChars))

	total := len(chunks)
	n.stage(ctx, j, Event{Stage: job.StageSynthesizing, Total: total, Voice: in.Voice})

	segments := make([]audio.Segment, 0, total)
	defer func() {
		if err := n.assembler.Release(context.WithoutCancel(ctx), segments...); err != nil {
			logger.Warn("failed to release audio segments", slog.String("error", err.Error()))
		}
	}()

	durations := make([]time.Duration, 0, total)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("narration cancelled: %w", err)
		}
		n.markChunk(ctx, j, i, job.ChunkStatusProcessing, 0, nil)

		data, err := n.synth.Synthesize(ctx, tts.Request{
			Text:         chunk,
			Voice:        in.Voice,
			LanguageCode: in.LanguageCode,
			Rate:         in.Rate,
			Pitch:        in.Pitch,
			Encoding:     n.encoding,
		})
		if err != nil {
			n.markChunk(ctx, j, i, job.ChunkStatusFailed, 0, err)
			return nil, &SynthesisError{Index: i, Total: total, Err: err}
		}

		seg, err := n.assembler.Decode(ctx, data, segFormat)
		if err != nil {
			n.markChunk(ctx, j, i, job.ChunkStatusFailed, 0, err)
			return nil, fmt.Errorf("%w: decode chunk %d/%d: %w", ErrAssembly, i+1, total, err)
		}
		segments = append(segments, seg)
		durations = append(durations, seg.Duration)

		n.markChunk(ctx, j, i, job.ChunkStatusCompleted, seg.Duration, nil)
		logger.Info("chunk synthesized",
			slog.Int("chunk", i+1),
			slog.Int("total", total),
			slog.Int64("duration_ms", seg.Duration.Milliseconds()),
		)
		n.report(Event{Stage: job.StageSynthesizing, Chunk: i + 1, Total: total, Duration: seg.Duration})
	}

	n.stage(ctx, j, Event{Stage: job.StageConcatenating, Total: total})
	combined, err := n.assembler.Concatenate(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("%w: concatenate: %w", ErrAssembly, err)
	}
	defer func() {
		if err := n.assembler.Release(context.WithoutCancel(ctx), combined); err != nil {
			logger.Warn("failed to release narration", slog.String("error", err.Error()))
		}
	}()

	n.stage(ctx, j, Event{Stage: job.StageExporting, Total: total, Output: in.OutputPath})
	output, err := n.export(ctx, combined, in.OutputPath, outFormat, loc)
	if err != nil {
		return nil, err
	}

	logger.Info("narration exported",
		slog.String("output", output),
		slog.Int("chunks", total),
		slog.Duration("duration", combined.Duration),
	)
	n.report(Event{Stage: job.StageDone, Total: total, Duration: combined.Duration, Output: output})

	return &Result{
		Chunks:         total,
		ChunkDurations: durations,
		Duration:       combined.Duration,
		Output:         output,
	}, nil
}

// checkInput validates paths before any remote call is made.
func (n *Narrator) checkInput(in Input) (audio.Format, *storage.Location, error) {
	if in.SourcePath == "" {
		return "", nil, fmt.Errorf("%w: source path is required", ErrUsage)
	}
	if in.OutputPath == "" {
		return "", nil, fmt.Errorf("%w: output path is required", ErrUsage)
	}
	if in.Rate < 0.25 || in.Rate > 4 {
		return "", nil, fmt.Errorf("%w: speaking rate %.2f outside 0.25-4.0", ErrUsage, in.Rate)
	}
	if in.Pitch < -20 || in.Pitch > 20 {
		return "", nil, fmt.Errorf("%w: pitch %.2f outside -20-20", ErrUsage, in.Pitch)
	}
	format := audio.FormatFromPath(in.OutputPath)

	if storage.IsS3URL(in.OutputPath) {
		loc, err := storage.ParseLocation(in.OutputPath)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrUsage, err)
		}
		if n.uploader == nil {
			return "", nil, fmt.Errorf("%w: %s: %w", ErrUsage, in.OutputPath, storage.ErrS3NotConfigured)
		}
		return format, &loc, nil
	}

	dir := filepath.Dir(in.OutputPath)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", nil, fmt.Errorf("%w: output directory %s does not exist", ErrUsage, dir)
	}
	return format, nil, nil
}

// export writes the narration to a local path, or to a scratch file that is
// then uploaded when loc is set.
func (n *Narrator) export(ctx context.Context, seg audio.Segment, out string, format audio.Format, loc *storage.Location) (string, error) {
	if loc == nil {
		if err := n.assembler.Export(ctx, seg, out, format); err != nil {
			return "", fmt.Errorf("%w: export %s: %w", ErrAssembly, out, err)
		}
		return out, nil
	}

	tmp, err := n.uploader.CreateTemp(ctx, "export", string(format))
	if err != nil {
		return "", fmt.Errorf("%w: reserve export file: %w", ErrAssembly, err)
	}
	defer func() { _ = n.uploader.Remove(context.WithoutCancel(ctx), tmp) }()

	if err := n.assembler.Export(ctx, seg, tmp, format); err != nil {
		return "", fmt.Errorf("%w: export %s: %w", ErrAssembly, out, err)
	}

	url, err := n.uploader.Upload(ctx, *loc, tmp)
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %w", ErrAssembly, out, err)
	}
	return url, nil
}

func (n *Narrator) stage(ctx context.Context, j *job.Job, ev Event) {
	n.logger.Debug("stage", slog.String("stage", string(ev.Stage)))
	if j != nil {
		j.SetStage(ev.Stage)
		n.save(ctx, j)
	}
	n.report(ev)
}

func (n *Narrator) markChunk(ctx context.Context, j *job.Job, i int, status job.ChunkStatus, d time.Duration, err error) {
	if j == nil {
		return
	}
	var msg string
	if err != nil {
		msg = err.Error()
	}
	j.MarkChunk(i, status, d, msg)
	n.save(ctx, j)
}

func (n *Narrator) report(ev Event) {
	if n.progress != nil {
		n.progress(ev)
	}
}

// save persists j when a repository is configured. Failures are logged only.
func (n *Narrator) save(ctx context.Context, j *job.Job) {
	if n.repo == nil {
		return
	}
	if err := n.repo.Save(ctx, j); err != nil {
		n.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}

func withDefaults(in Input) Input {
	if in.Voice == "" {
		in.Voice = tts.DefaultVoice
	}
	if in.LanguageCode == "" {
		in.LanguageCode = tts.DefaultLanguageCode
	}
	if in.Rate == 0 {
		in.Rate = tts.DefaultRate
	}
	return in
}
