package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/pdf2audio/internal/storage"
)

// Compile-time check that FFmpegAssembler implements Assembler.
var _ Assembler = (*FFmpegAssembler)(nil)

// FFmpegAssembler implements Assembler with the ffmpeg and ffprobe CLIs.
// Segment files live in the scratch area of the given storage.
type FFmpegAssembler struct {
	store       storage.Storage
	ffmpegPath  string
	ffprobePath string
}

// Option configures an FFmpegAssembler.
type Option func(*FFmpegAssembler)

// WithFFmpegPath sets the ffmpeg binary. Empty keeps the default.
func WithFFmpegPath(path string) Option {
	return func(a *FFmpegAssembler) {
		if path != "" {
			a.ffmpegPath = path
		}
	}
}

// WithFFprobePath sets the ffprobe binary. Empty keeps the default.
func WithFFprobePath(path string) Option {
	return func(a *FFmpegAssembler) {
		if path != "" {
			a.ffprobePath = path
		}
	}
}

// NewFFmpegAssembler creates a new FFmpegAssembler.
// The binaries default to "ffmpeg" and "ffprobe" found via PATH.
func NewFFmpegAssembler(store storage.Storage, opts ...Option) *FFmpegAssembler {
	a := &FFmpegAssembler{
		store:       store,
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Decode writes data to a scratch file and probes its duration.
func (a *FFmpegAssembler) Decode(ctx context.Context, data []byte, format Format) (Segment, error) {
	if len(data) == 0 {
		return Segment{}, ErrEmptyAudio
	}
	if !format.Valid() {
		return Segment{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	path, err := a.store.SaveTemp(ctx, "segment", string(format), bytes.NewReader(data))
	if err != nil {
		return Segment{}, fmt.Errorf("save segment: %w", err)
	}

	duration, err := a.probeDuration(ctx, path)
	if err != nil {
		_ = a.store.Remove(ctx, path)
		if ctx.Err() != nil {
			return Segment{}, err
		}
		return Segment{}, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	return Segment{Path: path, Format: format, Duration: duration}, nil
}

// Concatenate joins segments with the concat demuxer. It first attempts a
// stream copy and falls back to re-encoding if the copy fails.
func (a *FFmpegAssembler) Concatenate(ctx context.Context, segments []Segment) (Segment, error) {
	if len(segments) == 0 {
		return Segment{}, ErrNoSegments
	}
	format := segments[0].Format
	for _, s := range segments[1:] {
		if s.Format != format {
			return Segment{}, fmt.Errorf("%w: %s and %s", ErrFormatMismatch, format, s.Format)
		}
	}

	out := Segment{Format: format, Duration: TotalDuration(segments)}

	if len(segments) == 1 {
		path, err := a.copyToScratch(ctx, segments[0].Path, format)
		if err != nil {
			return Segment{}, err
		}
		out.Path = path
		return out, nil
	}

	listFile, err := a.createConcatList(ctx, segments)
	if err != nil {
		return Segment{}, fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = a.store.Remove(context.WithoutCancel(ctx), listFile) }()

	output, err := a.store.CreateTemp(ctx, "narration", string(format))
	if err != nil {
		return Segment{}, fmt.Errorf("create output file: %w", err)
	}

	if err := a.joinWithCopy(ctx, listFile, output); err != nil {
		if ctx.Err() != nil {
			_ = a.store.Remove(context.WithoutCancel(ctx), output)
			return Segment{}, err
		}
		if err := a.joinWithReencode(ctx, listFile, output, format); err != nil {
			_ = a.store.Remove(context.WithoutCancel(ctx), output)
			return Segment{}, err
		}
	}

	out.Path = output
	return out, nil
}

const exportFileMode os.FileMode = 0o644

// Export writes seg to path. A same-format export is a plain copy; otherwise
// the audio is transcoded. Output goes to a hidden file next to path that is
// renamed into place on success.
func (a *FFmpegAssembler) Export(ctx context.Context, seg Segment, path string, format Format) error {
	if !format.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pdf2audio-*."+string(format))
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if format == seg.Format {
		err = copyInto(tmp, seg.Path)
		if closeErr := tmp.Close(); err == nil {
			err = closeErr
		}
	} else {
		_ = tmp.Close()
		err = a.transcode(ctx, seg.Path, tmpName, format)
	}
	if err != nil {
		return fmt.Errorf("write export file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("export cancelled: %w", err)
	}

	// CreateTemp files are 0600; narrations get ordinary file permissions.
	if err := os.Chmod(tmpName, exportFileMode); err != nil {
		return fmt.Errorf("set export file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("move export file into place: %w", err)
	}
	committed = true
	return nil
}

// Release removes segment scratch files.
func (a *FFmpegAssembler) Release(ctx context.Context, segments ...Segment) error {
	paths := make([]string, 0, len(segments))
	for _, s := range segments {
		paths = append(paths, s.Path)
	}
	return a.store.Remove(ctx, paths...)
}

// joinWithCopy concatenates segments using stream copy (no re-encoding).
func (a *FFmpegAssembler) joinWithCopy(ctx context.Context, listFile, output string) error {
	args := []string{
		"-y",           // Overwrite output file
		"-f", "concat", // Use concat demuxer
		"-safe", "0", // Allow absolute paths
		"-i", listFile, // Input file list
		"-c", "copy", // Copy streams without re-encoding
		output,
	}
	return a.runFFmpeg(ctx, args)
}

// joinWithReencode concatenates segments by re-encoding to format.
func (a *FFmpegAssembler) joinWithReencode(ctx context.Context, listFile, output string, format Format) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-vn", // Drop cover art and other video streams
	}
	args = append(args, format.codecArgs()...)
	args = append(args, output)
	return a.runFFmpeg(ctx, args)
}

// transcode re-encodes src into dst in the given format.
func (a *FFmpegAssembler) transcode(ctx context.Context, src, dst string, format Format) error {
	args := []string{"-y", "-i", src, "-vn"}
	args = append(args, format.codecArgs()...)
	args = append(args, "-f", muxerName(format), dst)
	return a.runFFmpeg(ctx, args)
}

// muxerName returns the ffmpeg muxer for f, needed because export temp files
// carry a hidden-file name ffmpeg may not infer from.
func muxerName(f Format) string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatOGG:
		return "ogg"
	default:
		return "mp3"
	}
}

// createConcatList writes the concat demuxer input listing each segment.
func (a *FFmpegAssembler) createConcatList(ctx context.Context, segments []Segment) (string, error) {
	var buf bytes.Buffer
	for _, s := range segments {
		absPath, err := filepath.Abs(s.Path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", s.Path, err)
		}
		// Escape single quotes in path
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		fmt.Fprintf(&buf, "file '%s'\n", escapedPath)
	}
	return a.store.SaveTemp(ctx, "concat", "txt", &buf)
}

// copyToScratch copies src into a new scratch file.
func (a *FFmpegAssembler) copyToScratch(ctx context.Context, src string, format Format) (string, error) {
	r, err := a.store.Open(ctx, src)
	if err != nil {
		return "", fmt.Errorf("open segment: %w", err)
	}
	defer func() { _ = r.Close() }()

	path, err := a.store.SaveTemp(ctx, "narration", string(format), r)
	if err != nil {
		return "", fmt.Errorf("copy segment: %w", err)
	}
	return path, nil
}

func copyInto(dst *os.File, src string) error {
	in, err := os.Open(src) // #nosec G304 - src is a segment file owned by this process
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	defer func() { _ = in.Close() }()

	if _, err := io.Copy(dst, in); err != nil {
		return err
	}
	return dst.Sync()
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (a *FFmpegAssembler) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// probeDuration returns the duration of a media file using ffprobe.
func (a *FFmpegAssembler) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, a.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("ffprobe: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseDuration(stdout.String())
}

// parseDuration converts ffprobe's seconds output to a Duration.
func parseDuration(out string) (time.Duration, error) {
	out = strings.TrimSpace(out)
	if out == "" || out == "N/A" {
		return 0, fmt.Errorf("parse duration: no duration reported")
	}
	secs, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	if secs < 0 {
		return 0, fmt.Errorf("parse duration: negative value %q", out)
	}
	return time.Duration(secs * float64(time.Second)).Round(time.Millisecond), nil
}
