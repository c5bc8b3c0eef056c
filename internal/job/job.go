// Package job provides the Job aggregate that records one narration run:
// its state machine, per-chunk progress, and repository interfaces for persistence.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/pdf2audio/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job was accepted but has not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the narration pipeline is executing.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the narration was exported successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates a pipeline stage failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the run was interrupted before completion.
	StatusCancelled Status = "CANCELLED"
)

// Stage is the pipeline stage a running job is in.
type Stage string

// Pipeline stages, in execution order.
const (
	StageExtracting    Stage = "extracting"
	StageChunking      Stage = "chunking"
	StageSynthesizing  Stage = "synthesizing"
	StageConcatenating Stage = "concatenating"
	StageExporting     Stage = "exporting"
	StageDone          Stage = "done"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ChunkStatus represents the synthesis status of a single text chunk.
type ChunkStatus string

const (
	// ChunkStatusPending indicates the chunk is waiting to be synthesized.
	ChunkStatusPending ChunkStatus = "PENDING"
	// ChunkStatusProcessing indicates the chunk is being synthesized.
	ChunkStatusProcessing ChunkStatus = "PROCESSING"
	// ChunkStatusCompleted indicates the chunk's audio segment is ready.
	ChunkStatusCompleted ChunkStatus = "COMPLETED"
	// ChunkStatusFailed indicates synthesis or decoding failed.
	ChunkStatusFailed ChunkStatus = "FAILED"
)

// Chunk records the synthesis of one text chunk.
type Chunk struct {
	// Index is the zero-based position of this chunk in the narration.
	Index int
	// Chars is the chunk length in characters.
	Chars int
	// Status is the current synthesis status.
	Status ChunkStatus
	// Duration is the length of the decoded audio segment.
	Duration time.Duration
	// Error contains the failure message if synthesis failed.
	Error string
}

// Params are the voice parameters a narration was requested with.
type Params struct {
	Voice        string
	LanguageCode string
	Rate         float64
	Pitch        float64
}

// Job represents a narration run.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Stage is the pipeline stage while running.
	Stage Stage
	// Chunks contains one record per text chunk, in order.
	Chunks []Chunk
	// Progress is the percentage of chunks synthesized (0-100).
	Progress int
	// Error contains any error message if the job failed.
	Error string
	// Params are the requested voice parameters.
	Params Params
	// SourcePath is the path to the source PDF.
	SourcePath string
	// OutputPath is the local path or s3:// URL the narration is written to.
	OutputPath string
	// AudioURL is the object URL when the narration was uploaded to S3.
	AudioURL string
	// Duration is the total narration length once completed.
	Duration time.Duration
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Chunks:    make([]Chunk, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED, recording the output and total duration.
func (j *Job) Complete(audioURL string, duration time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Stage = StageDone
	j.Progress = 100
	j.AudioURL = audioURL
	j.Duration = duration
	return nil
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetStage records the pipeline stage.
func (j *Job) SetStage(stage Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = stage
	j.UpdatedAt = time.Now()
}

// SetChunks initialises one pending chunk record per chunk length.
func (j *Job) SetChunks(chars []int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Chunks = make([]Chunk, len(chars))
	for i, n := range chars {
		j.Chunks[i] = Chunk{Index: i, Chars: n, Status: ChunkStatusPending}
	}
	j.Progress = 0
	j.UpdatedAt = time.Now()
}

// MarkChunk updates the status of the chunk at index and recomputes progress.
// Out-of-range indexes are ignored.
func (j *Job) MarkChunk(index int, status ChunkStatus, duration time.Duration, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index < 0 || index >= len(j.Chunks) {
		return
	}
	c := &j.Chunks[index]
	c.Status = status
	c.Duration = duration
	c.Error = errMsg

	done := 0
	for _, c := range j.Chunks {
		if c.Status == ChunkStatusCompleted {
			done++
		}
	}
	j.Progress = done * 100 / len(j.Chunks)
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	chunks := make([]Chunk, len(j.Chunks))
	copy(chunks, j.Chunks)

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Stage:       j.Stage,
		Chunks:      chunks,
		Progress:    j.Progress,
		Error:       j.Error,
		Params:      j.Params,
		SourcePath:  j.SourcePath,
		OutputPath:  j.OutputPath,
		AudioURL:    j.AudioURL,
		Duration:    j.Duration,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
