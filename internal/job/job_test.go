package job

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	job := New()

	assert.True(t, strings.HasPrefix(job.ID, "narr-"))
	assert.Equal(t, StatusInQueue, job.Status)
	assert.NotNil(t, job.Chunks)
	assert.Empty(t, job.Chunks)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)
}

func TestNewWithID(t *testing.T) {
	job := NewWithID("narr-test")
	assert.Equal(t, "narr-test", job.ID)
	assert.Equal(t, StatusInQueue, job.Status)
}

func TestJob_TransitionTo(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusInQueue, StatusRunning, true},
		{StatusInQueue, StatusCancelled, true},
		{StatusInQueue, StatusCompleted, false},
		{StatusInQueue, StatusFailed, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusInQueue, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCancelled, StatusRunning, false},
		{Status("BOGUS"), StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			job := NewWithID("j")
			job.Status = tt.from

			err := job.TransitionTo(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, job.Status)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, job.Status)
			}
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := New()

	require.NoError(t, job.Start())
	assert.False(t, job.StartedAt.IsZero())
	assert.False(t, job.IsTerminal())

	job.SetStage(StageSynthesizing)
	assert.Equal(t, StageSynthesizing, job.Stage)

	require.NoError(t, job.Complete("https://bucket/x.mp3", 90*time.Second))
	assert.Equal(t, StatusCompleted, job.GetStatus())
	assert.Equal(t, StageDone, job.Stage)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "https://bucket/x.mp3", job.AudioURL)
	assert.Equal(t, 90*time.Second, job.Duration)
	assert.False(t, job.CompletedAt.IsZero())
	assert.True(t, job.IsTerminal())

	assert.ErrorIs(t, job.Fail("late"), ErrInvalidTransition)
	assert.Empty(t, job.Error, "a rejected transition must not record an error")
}

func TestJob_Fail(t *testing.T) {
	job := New()
	require.NoError(t, job.Start())

	require.NoError(t, job.Fail("synthesis failed on chunk 2/3"))
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "synthesis failed on chunk 2/3", job.Error)
	assert.True(t, job.IsTerminal())
}

func TestJob_Cancel(t *testing.T) {
	job := New()
	require.NoError(t, job.Cancel())
	assert.Equal(t, StatusCancelled, job.Status)
	assert.True(t, job.IsTerminal())
}

func TestJob_Chunks(t *testing.T) {
	job := New()
	job.SetChunks([]int{4500, 4200, 120, 33})

	require.Len(t, job.Chunks, 4)
	for i, c := range job.Chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, ChunkStatusPending, c.Status)
	}
	assert.Equal(t, 120, job.Chunks[2].Chars)
	assert.Zero(t, job.Progress)

	job.MarkChunk(0, ChunkStatusProcessing, 0, "")
	assert.Zero(t, job.Progress)

	job.MarkChunk(0, ChunkStatusCompleted, 3*time.Second, "")
	assert.Equal(t, 25, job.Progress)
	assert.Equal(t, 3*time.Second, job.Chunks[0].Duration)

	job.MarkChunk(1, ChunkStatusCompleted, time.Second, "")
	assert.Equal(t, 50, job.Progress)

	job.MarkChunk(2, ChunkStatusFailed, 0, "boom")
	assert.Equal(t, 50, job.Progress)
	assert.Equal(t, "boom", job.Chunks[2].Error)

	// Out-of-range indexes are ignored.
	job.MarkChunk(-1, ChunkStatusCompleted, 0, "")
	job.MarkChunk(4, ChunkStatusCompleted, 0, "")
	assert.Equal(t, 50, job.Progress)
}

func TestJob_Clone(t *testing.T) {
	job := New()
	job.Params = Params{Voice: "en-US-Wavenet-D", LanguageCode: "en-US", Rate: 1.25, Pitch: -1}
	job.SourcePath = "/tmp/in.pdf"
	job.OutputPath = "/tmp/out.mp3"
	job.SetChunks([]int{10, 20})

	clone := job.Clone()
	assert.Equal(t, job.ID, clone.ID)
	assert.Equal(t, job.Params, clone.Params)
	assert.Equal(t, job.SourcePath, clone.SourcePath)
	assert.Equal(t, job.OutputPath, clone.OutputPath)
	assert.Equal(t, job.Chunks, clone.Chunks)

	clone.Chunks[0].Status = ChunkStatusFailed
	assert.Equal(t, ChunkStatusPending, job.Chunks[0].Status, "clone must not share chunk storage")
}

func TestJob_ConcurrentAccess(t *testing.T) {
	job := New()
	job.SetChunks(make([]int, 50))
	require.NoError(t, job.Start())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			job.MarkChunk(i, ChunkStatusCompleted, time.Millisecond, "")
		}(i)
		go func() {
			defer wg.Done()
			_ = job.Clone()
			_ = job.GetStatus()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, job.Progress)
}
