package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/pdf2audio/internal/storage"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

// createTestAudio returns encoded audio bytes of a sine tone.
func createTestAudio(t *testing.T, duration float64, format Format) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tone."+string(format))
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=440:sample_rate=24000:duration=%.2f", duration),
	}
	args = append(args, format.codecArgs()...)
	args = append(args, path)

	cmd := exec.Command("ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test audio: %v\noutput: %s", err, output)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func newTestAssembler(t *testing.T, opts ...Option) (*FFmpegAssembler, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewFFmpegAssembler(store, opts...), store
}

func scratchEntries(t *testing.T, store *storage.LocalStorage) []string {
	t.Helper()
	entries, err := os.ReadDir(store.TempDir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewFFmpegAssembler(t *testing.T) {
	t.Run("default paths", func(t *testing.T) {
		a, _ := newTestAssembler(t)
		assert.Equal(t, "ffmpeg", a.ffmpegPath)
		assert.Equal(t, "ffprobe", a.ffprobePath)
	})

	t.Run("custom paths", func(t *testing.T) {
		a, _ := newTestAssembler(t, WithFFmpegPath("/opt/ffmpeg"), WithFFprobePath("/opt/ffprobe"))
		assert.Equal(t, "/opt/ffmpeg", a.ffmpegPath)
		assert.Equal(t, "/opt/ffprobe", a.ffprobePath)
	})

	t.Run("empty option keeps default", func(t *testing.T) {
		a, _ := newTestAssembler(t, WithFFmpegPath(""), WithFFprobePath(""))
		assert.Equal(t, "ffmpeg", a.ffmpegPath)
		assert.Equal(t, "ffprobe", a.ffprobePath)
	})
}

func TestFormat(t *testing.T) {
	assert.True(t, FormatMP3.Valid())
	assert.True(t, FormatWAV.Valid())
	assert.True(t, FormatOGG.Valid())
	assert.False(t, Format("flac").Valid())

	assert.Equal(t, FormatMP3, FormatFromPath("/out/book.mp3"))
	assert.Equal(t, FormatWAV, FormatFromPath("book.WAV"))
	assert.Equal(t, FormatOGG, FormatFromPath("s3://bucket/a/book.ogg"))
	assert.Equal(t, FormatMP3, FormatFromPath("book"))
	assert.Equal(t, FormatMP3, FormatFromPath("book.flac"))

	assert.Equal(t, "audio/mpeg", FormatMP3.ContentType())
	assert.Equal(t, "audio/wav", FormatWAV.ContentType())
	assert.Equal(t, "audio/ogg", FormatOGG.ContentType())
}

func TestTotalDuration(t *testing.T) {
	assert.Zero(t, TotalDuration(nil))
	assert.Equal(t, 3500*time.Millisecond, TotalDuration([]Segment{
		{Duration: time.Second},
		{Duration: 2500 * time.Millisecond},
	}))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"1.000000\n", time.Second, false},
		{"2.5045", 2505 * time.Millisecond, false},
		{"0", 0, false},
		{"N/A", 0, true},
		{"", 0, true},
		{"abc", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFFmpegAssembler_Decode(t *testing.T) {
	ctx := context.Background()

	t.Run("empty data", func(t *testing.T) {
		a, store := newTestAssembler(t)
		_, err := a.Decode(ctx, nil, FormatMP3)
		assert.ErrorIs(t, err, ErrEmptyAudio)
		assert.Empty(t, scratchEntries(t, store))
	})

	t.Run("unsupported format", func(t *testing.T) {
		a, _ := newTestAssembler(t)
		_, err := a.Decode(ctx, []byte("x"), Format("flac"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing ffprobe removes scratch file", func(t *testing.T) {
		a, store := newTestAssembler(t, WithFFprobePath("/nonexistent/ffprobe"))
		_, err := a.Decode(ctx, []byte("ID3"), FormatMP3)
		assert.ErrorIs(t, err, ErrUndecodable)
		assert.Empty(t, scratchEntries(t, store))
	})

	t.Run("real audio", func(t *testing.T) {
		skipIfNoFFmpeg(t)
		a, _ := newTestAssembler(t)

		seg, err := a.Decode(ctx, createTestAudio(t, 1.0, FormatMP3), FormatMP3)
		require.NoError(t, err)

		assert.Equal(t, FormatMP3, seg.Format)
		assert.InDelta(t, time.Second, seg.Duration, float64(150*time.Millisecond))
		assert.FileExists(t, seg.Path)
		assert.Equal(t, ".mp3", filepath.Ext(seg.Path))
	})

	t.Run("garbage bytes", func(t *testing.T) {
		skipIfNoFFmpeg(t)
		a, store := newTestAssembler(t)

		_, err := a.Decode(ctx, []byte(strings.Repeat("not audio ", 10)), FormatWAV)
		assert.ErrorIs(t, err, ErrUndecodable)
		assert.Empty(t, scratchEntries(t, store))
	})
}

func TestFFmpegAssembler_Concatenate(t *testing.T) {
	ctx := context.Background()

	t.Run("no segments", func(t *testing.T) {
		a, _ := newTestAssembler(t)
		_, err := a.Concatenate(ctx, nil)
		assert.ErrorIs(t, err, ErrNoSegments)
	})

	t.Run("format mismatch", func(t *testing.T) {
		a, _ := newTestAssembler(t)
		_, err := a.Concatenate(ctx, []Segment{{Format: FormatMP3}, {Format: FormatWAV}})
		assert.ErrorIs(t, err, ErrFormatMismatch)
	})

	t.Run("single segment is copied", func(t *testing.T) {
		a, store := newTestAssembler(t)
		src, err := store.SaveTemp(ctx, "segment", "mp3", strings.NewReader("only"))
		require.NoError(t, err)

		out, err := a.Concatenate(ctx, []Segment{{Path: src, Format: FormatMP3, Duration: time.Second}})
		require.NoError(t, err)

		assert.NotEqual(t, src, out.Path)
		assert.Equal(t, time.Second, out.Duration)
		content, err := os.ReadFile(out.Path)
		require.NoError(t, err)
		assert.Equal(t, "only", string(content))
	})

	t.Run("ffmpeg failure cleans up", func(t *testing.T) {
		a, store := newTestAssembler(t, WithFFmpegPath("/nonexistent/ffmpeg"))
		s1, err := store.SaveTemp(ctx, "segment", "mp3", strings.NewReader("a"))
		require.NoError(t, err)
		s2, err := store.SaveTemp(ctx, "segment", "mp3", strings.NewReader("b"))
		require.NoError(t, err)
		before := scratchEntries(t, store)

		_, err = a.Concatenate(ctx, []Segment{{Path: s1, Format: FormatMP3}, {Path: s2, Format: FormatMP3}})
		require.Error(t, err)

		var ffErr *FFmpegError
		assert.True(t, errors.As(err, &ffErr), "expected FFmpegError, got %T", err)
		assert.Equal(t, before, scratchEntries(t, store))
	})

	t.Run("joins in order", func(t *testing.T) {
		skipIfNoFFmpeg(t)
		a, _ := newTestAssembler(t)

		var segs []Segment
		for _, d := range []float64{1.0, 0.5, 1.0} {
			seg, err := a.Decode(ctx, createTestAudio(t, d, FormatMP3), FormatMP3)
			require.NoError(t, err)
			segs = append(segs, seg)
		}

		out, err := a.Concatenate(ctx, segs)
		require.NoError(t, err)

		assert.Equal(t, TotalDuration(segs), out.Duration)
		probed, err := a.probeDuration(ctx, out.Path)
		require.NoError(t, err)
		assert.InDelta(t, 2500*time.Millisecond, probed, float64(300*time.Millisecond))

		for _, s := range segs {
			assert.FileExists(t, s.Path, "inputs must be left untouched")
		}
	})
}

func TestFFmpegAssembler_Export(t *testing.T) {
	ctx := context.Background()

	t.Run("same format copies atomically", func(t *testing.T) {
		a, store := newTestAssembler(t)
		src, err := store.SaveTemp(ctx, "narration", "mp3", strings.NewReader("final audio"))
		require.NoError(t, err)

		outDir := t.TempDir()
		dest := filepath.Join(outDir, "book.mp3")
		require.NoError(t, a.Export(ctx, Segment{Path: src, Format: FormatMP3}, dest, FormatMP3))

		content, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "final audio", string(content))

		entries, err := os.ReadDir(outDir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no temporary files may remain next to the output")
	})

	t.Run("output is readable by others", func(t *testing.T) {
		a, store := newTestAssembler(t)
		src, err := store.SaveTemp(ctx, "narration", "mp3", strings.NewReader("final audio"))
		require.NoError(t, err)

		dest := filepath.Join(t.TempDir(), "book.mp3")
		require.NoError(t, a.Export(ctx, Segment{Path: src, Format: FormatMP3}, dest, FormatMP3))

		info, err := os.Stat(dest)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		a, store := newTestAssembler(t)
		src, err := store.SaveTemp(ctx, "narration", "mp3", strings.NewReader("new"))
		require.NoError(t, err)

		dest := filepath.Join(t.TempDir(), "book.mp3")
		require.NoError(t, os.WriteFile(dest, []byte("old"), 0600))

		require.NoError(t, a.Export(ctx, Segment{Path: src, Format: FormatMP3}, dest, FormatMP3))
		content, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "new", string(content))
	})

	t.Run("missing destination directory", func(t *testing.T) {
		a, store := newTestAssembler(t)
		src, err := store.SaveTemp(ctx, "narration", "mp3", strings.NewReader("x"))
		require.NoError(t, err)

		dest := filepath.Join(t.TempDir(), "missing", "book.mp3")
		assert.Error(t, a.Export(ctx, Segment{Path: src, Format: FormatMP3}, dest, FormatMP3))
		assert.NoFileExists(t, dest)
	})

	t.Run("missing source leaves no output", func(t *testing.T) {
		a, _ := newTestAssembler(t)
		outDir := t.TempDir()
		dest := filepath.Join(outDir, "book.mp3")

		err := a.Export(ctx, Segment{Path: filepath.Join(outDir, "gone.mp3"), Format: FormatMP3}, dest, FormatMP3)
		require.Error(t, err)

		entries, err := os.ReadDir(outDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("unsupported format", func(t *testing.T) {
		a, _ := newTestAssembler(t)
		err := a.Export(ctx, Segment{Format: FormatMP3}, filepath.Join(t.TempDir(), "x.flac"), Format("flac"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("transcodes to another format", func(t *testing.T) {
		skipIfNoFFmpeg(t)
		a, _ := newTestAssembler(t)

		seg, err := a.Decode(ctx, createTestAudio(t, 1.0, FormatMP3), FormatMP3)
		require.NoError(t, err)

		dest := filepath.Join(t.TempDir(), "book.wav")
		require.NoError(t, a.Export(ctx, seg, dest, FormatWAV))

		probed, err := a.probeDuration(ctx, dest)
		require.NoError(t, err)
		assert.InDelta(t, time.Second, probed, float64(150*time.Millisecond))
	})
}

func TestFFmpegAssembler_Release(t *testing.T) {
	ctx := context.Background()
	a, store := newTestAssembler(t)

	var segs []Segment
	for i := 0; i < 3; i++ {
		path, err := store.SaveTemp(ctx, "segment", "mp3", strings.NewReader("x"))
		require.NoError(t, err)
		segs = append(segs, Segment{Path: path, Format: FormatMP3})
	}

	require.NoError(t, a.Release(ctx, segs...))
	assert.Empty(t, scratchEntries(t, store))

	// Releasing twice is harmless.
	assert.NoError(t, a.Release(ctx, segs...))
}

func TestFFmpegError(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &FFmpegError{Args: []string{"-i", "x"}, Stderr: "boom", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "-i")
}
