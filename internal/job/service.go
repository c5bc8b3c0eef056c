package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// CreateInput contains the parameters for a new narration job.
type CreateInput struct {
	// ID overrides the generated job ID when set.
	ID string
	// SourcePath is the PDF to narrate.
	SourcePath string
	// OutputPath is the local path or s3:// URL to write the narration to.
	OutputPath string
	// Params are the voice parameters.
	Params Params
}

// Work runs a job to completion. It is expected to drive the job's
// state machine and persist progress itself.
type Work func(ctx context.Context, j *Job) error

// Service creates narration jobs and runs them in the background with
// a bounded number of concurrent runs.
type Service struct {
	repo   Repository
	logger *slog.Logger
	wg     sync.WaitGroup
	slots  chan struct{}
}

// NewService creates a new Service allowing maxConcurrent simultaneous runs.
// Values below 1 allow a single run at a time.
func NewService(repo Repository, maxConcurrent int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		repo:   repo,
		logger: logger,
		slots:  make(chan struct{}, maxConcurrent),
	}
}

// Create creates a new job in IN_QUEUE status and persists it.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Job, error) {
	job := New()
	if input.ID != "" {
		job = NewWithID(input.ID)
	}
	job.SourcePath = input.SourcePath
	job.OutputPath = input.OutputPath
	job.Params = input.Params

	s.logger.Info("creating narration job",
		slog.String("job_id", job.ID),
		slog.String("voice", input.Params.Voice),
		slog.String("output", input.OutputPath),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// Get retrieves a job by ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all jobs, oldest first.
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Delete removes a finished job's record. Running jobs cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.IsTerminal() {
		return nil, ErrInvalidTransition
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return job, nil
}

// Launch runs work for job in a new goroutine once a run slot is free.
// A job that work leaves non-terminal is failed, or cancelled if ctx ended.
func (s *Service) Launch(ctx context.Context, job *Job, work Work) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		logger := s.logger.With(slog.String("job_id", job.ID))

		var err error
		select {
		case s.slots <- struct{}{}:
			err = work(ctx, job)
			<-s.slots
		case <-ctx.Done():
			err = ctx.Err()
		}

		if err != nil {
			logger.Error("narration job failed", slog.String("error", err.Error()))
		}

		if job.IsTerminal() {
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			_ = job.Cancel()
		} else {
			msg := "job finished without a result"
			if err != nil {
				msg = err.Error()
			}
			if job.GetStatus() == StatusInQueue {
				_ = job.Start()
			}
			_ = job.Fail(msg)
		}
		if saveErr := s.repo.Save(context.WithoutCancel(ctx), job); saveErr != nil {
			logger.Error("failed to save job", slog.String("error", saveErr.Error()))
		}
	}()
}

// Wait blocks until all launched jobs have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}
