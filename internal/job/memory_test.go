package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New()
	job.Params.Voice = "en-GB-Wavenet-B"

	require.NoError(t, repo.Save(ctx, job))

	saved, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, saved.ID)
	assert.Equal(t, "en-GB-Wavenet-B", saved.Params.Voice)
}

func TestMemoryRepository_Save_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New()
	require.NoError(t, repo.Save(ctx, job))

	require.NoError(t, job.Start())
	job.SetChunks([]int{10, 10})
	job.MarkChunk(0, ChunkStatusCompleted, time.Second, "")
	require.NoError(t, repo.Save(ctx, job))

	saved, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, saved.Status)
	assert.Equal(t, 50, saved.Progress)
	assert.Len(t, saved.Chunks, 2)
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	_, err := NewMemoryRepository().FindByID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryRepository_ReturnsClones(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New()
	job.SetChunks([]int{5})
	require.NoError(t, repo.Save(ctx, job))

	// Mutating the saved source must not leak into the repository.
	job.MarkChunk(0, ChunkStatusCompleted, time.Second, "")

	found, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ChunkStatusPending, found.Chunks[0].Status)

	// Neither may mutating a returned job.
	_ = found.Start()
	listed, err := repo.List(ctx)
	require.NoError(t, err)
	listed[0].Progress = 99

	original, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInQueue, original.Status)
	assert.Zero(t, original.Progress)
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, jobID := range []string{"narr-c", "narr-a", "narr-b"} {
		j := NewWithID(jobID)
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Save(ctx, j))
	}
	tie := NewWithID("narr-0")
	tie.CreatedAt = base
	require.NoError(t, repo.Save(ctx, tie))

	jobs, err = repo.List(ctx)
	require.NoError(t, err)

	var ids []string
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{"narr-0", "narr-c", "narr-a", "narr-b"}, ids)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New()
	require.NoError(t, repo.Save(ctx, job))

	require.NoError(t, repo.Delete(ctx, job.ID))

	_, err := repo.FindByID(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, job.ID), ErrJobNotFound)
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = repo.Save(ctx, New())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _ = repo.List(ctx)
		}
	}()
	wg.Wait()

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(jobs), 100)
}
