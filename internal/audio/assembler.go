// Package audio turns synthesized audio bytes into segments on disk and
// assembles them into a single narration file.
package audio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Static errors for audio assembly.
var (
	// ErrEmptyAudio is returned when there are no bytes to decode.
	ErrEmptyAudio = errors.New("audio: empty audio data")
	// ErrUndecodable is returned when audio data cannot be probed as the declared format.
	ErrUndecodable = errors.New("audio: cannot decode audio data")
	// ErrNoSegments is returned when concatenation is requested for zero segments.
	ErrNoSegments = errors.New("audio: no segments provided")
	// ErrFormatMismatch is returned when segments of different formats are concatenated.
	ErrFormatMismatch = errors.New("audio: segments have different formats")
	// ErrUnsupportedFormat is returned for formats the assembler cannot encode.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")
)

// Format is an audio container format, named by its file extension.
type Format string

// Supported formats.
const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatOGG Format = "ogg"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	switch f {
	case FormatMP3, FormatWAV, FormatOGG:
		return true
	}
	return false
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatOGG:
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

// codecArgs returns the ffmpeg audio encoder arguments for f.
func (f Format) codecArgs() []string {
	switch f {
	case FormatWAV:
		return []string{"-c:a", "pcm_s16le"}
	case FormatOGG:
		return []string{"-c:a", "libopus", "-b:a", "64k"}
	default:
		return []string{"-c:a", "libmp3lame", "-b:a", "128k"}
	}
}

// Segment is a decoded piece of audio stored in a scratch file.
// Segments are owned by the caller, who must Release them.
type Segment struct {
	Path     string
	Format   Format
	Duration time.Duration
}

// Assembler decodes, concatenates and exports audio segments.
type Assembler interface {
	// Decode stores encoded audio as a new segment and measures its duration.
	Decode(ctx context.Context, data []byte, format Format) (Segment, error)

	// Concatenate joins segments in order into a new segment whose duration
	// is the sum of the inputs. The inputs are left untouched.
	Concatenate(ctx context.Context, segments []Segment) (Segment, error)

	// Export writes seg to path in the given format. The destination is
	// either complete or absent; a partial file is never left behind.
	Export(ctx context.Context, seg Segment, path string, format Format) error

	// Release removes the scratch files backing the segments.
	Release(ctx context.Context, segments ...Segment) error
}

// TotalDuration sums segment durations.
func TotalDuration(segments []Segment) time.Duration {
	var total time.Duration
	for _, s := range segments {
		total += s.Duration
	}
	return total
}

// FormatFromPath infers the format from a file extension, defaulting to mp3.
func FormatFromPath(path string) Format {
	if f := Format(strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))); f.Valid() {
		return f
	}
	return FormatMP3
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
