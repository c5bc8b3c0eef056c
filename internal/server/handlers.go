package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/pdf2audio/internal/audio"
	"github.com/maauso/pdf2audio/internal/job"
	"github.com/maauso/pdf2audio/internal/job/id"
	"github.com/maauso/pdf2audio/internal/pipeline"
	"github.com/maauso/pdf2audio/internal/storage"
)

// Runner runs a narration job to a terminal state.
type Runner interface {
	RunJob(ctx context.Context, j *job.Job) (*pipeline.Result, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	jobs               *job.Service
	runner             Runner
	store              storage.Storage
	defaults           job.Params
	outputDir          string
	bucket             string
	jobCtx             context.Context
	maxBodyBytes       int64
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// DefaultMaxBodyBytes caps a create request, base64 PDF included.
const DefaultMaxBodyBytes int64 = 64 << 20

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateNarration only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithDefaults sets the voice parameters used when a request omits them.
func WithDefaults(p job.Params) HandlerOption {
	return func(h *Handlers) {
		h.defaults = p
	}
}

// WithOutputDir sets the directory local narrations are written to.
func WithOutputDir(dir string) HandlerOption {
	return func(h *Handlers) {
		if dir != "" {
			h.outputDir = dir
		}
	}
}

// WithS3Bucket enables push_to_s3 requests, uploading into bucket.
func WithS3Bucket(bucket string) HandlerOption {
	return func(h *Handlers) {
		h.bucket = bucket
	}
}

// WithJobContext sets the context background jobs run under. Cancelling it
// cancels every running narration. By default jobs outlive the request
// but are never cancelled.
func WithJobContext(ctx context.Context) HandlerOption {
	return func(h *Handlers) {
		h.jobCtx = ctx
	}
}

// WithMaxBodyBytes caps the size of a create request body.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(jobs *job.Service, runner Runner, store storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		jobs:               jobs,
		runner:             runner,
		store:              store,
		outputDir:          os.TempDir(),
		maxBodyBytes:       DefaultMaxBodyBytes,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateNarration handles POST /narrations requests.
func (h *Handlers) CreateNarration(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req CreateNarrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body is too large", "REQUEST_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if req.PushToS3 && h.bucket == "" {
		writeError(w, http.StatusBadRequest, "S3 storage is not configured", "S3_NOT_CONFIGURED")
		return
	}

	pdf, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "pdf_base64 is not valid base64", "VALIDATION_ERROR")
		return
	}

	sourcePath, err := h.store.SaveTemp(r.Context(), "source", "pdf", bytes.NewReader(pdf))
	if err != nil {
		h.logger.Error("failed to save source PDF",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store source PDF", "JOB_CREATION_FAILED")
		return
	}

	jobID := id.Generate()
	createdJob, err := h.jobs.Create(r.Context(), job.CreateInput{
		ID:         jobID,
		SourcePath: sourcePath,
		OutputPath: h.outputPath(jobID, req),
		Params:     h.params(req),
	})
	if err != nil {
		_ = h.store.Remove(r.Context(), sourcePath)
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// The runner owns createdJob once launched.
	resp := CreateNarrationResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	}
	voice := createdJob.Params.Voice

	// Start processing in background with a detached context
	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		jobCtx := h.jobCtx
		if jobCtx == nil {
			jobCtx = context.WithoutCancel(r.Context())
		}
		h.jobs.Launch(jobCtx, createdJob, func(ctx context.Context, j *job.Job) error {
			defer func() { _ = h.store.Remove(ctx, j.SourcePath) }()
			_, err := h.runner.RunJob(ctx, j)
			return err
		})
	}

	h.logger.Info("narration job created",
		slog.String("job_id", resp.ID),
		slog.String("voice", voice),
		slog.Int("pdf_bytes", len(pdf)),
	)

	writeJSON(w, http.StatusAccepted, resp)
}

// ListNarrations handles GET /narrations requests.
func (h *Handlers) ListNarrations(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list narrations", "JOB_FETCH_FAILED")
		return
	}

	resp := make([]NarrationResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetNarration handles GET /narrations/{id} requests.
func (h *Handlers) GetNarration(w http.ResponseWriter, r *http.Request) {
	found, ok := h.findJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toResponse(found))
}

// GetNarrationAudio handles GET /narrations/{id}/audio requests. Local
// narrations are streamed; S3 narrations redirect to the object URL.
func (h *Handlers) GetNarrationAudio(w http.ResponseWriter, r *http.Request) {
	found, ok := h.findJob(w, r)
	if !ok {
		return
	}

	if found.Status != job.StatusCompleted {
		writeError(w, http.StatusConflict, "narration is not completed", "NARRATION_NOT_READY")
		return
	}

	if found.AudioURL != "" {
		http.Redirect(w, r, found.AudioURL, http.StatusFound)
		return
	}

	f, err := h.store.Open(r.Context(), found.OutputPath)
	if err != nil {
		h.logger.Error("failed to open narration audio",
			slog.String("job_id", found.ID),
			slog.String("path", found.OutputPath),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusGone, "narration audio is no longer available", "AUDIO_UNAVAILABLE")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", audio.FormatFromPath(found.OutputPath).ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(found.OutputPath)+"\"")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("failed to stream narration audio",
			slog.String("job_id", found.ID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteNarration handles DELETE /narrations/{id} requests. It removes a
// finished job and its local audio file.
func (h *Handlers) DeleteNarration(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	deleted, err := h.jobs.Delete(r.Context(), jobID)
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "narration not found", "JOB_NOT_FOUND")
		return
	case errors.Is(err, job.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "narration is still running", "JOB_RUNNING")
		return
	case err != nil:
		h.logger.Error("failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete narration", "JOB_DELETE_FAILED")
		return
	}

	if !storage.IsS3URL(deleted.OutputPath) {
		if err := h.store.Remove(r.Context(), deleted.OutputPath); err != nil {
			h.logger.Warn("failed to remove narration audio",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// findJob loads the job named by the {id} path value, writing an error
// response and returning false when it cannot.
func (h *Handlers) findJob(w http.ResponseWriter, r *http.Request) (*job.Job, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return nil, false
	}

	found, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "narration not found", "JOB_NOT_FOUND")
			return nil, false
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get narration", "JOB_FETCH_FAILED")
		return nil, false
	}
	return found, true
}

func (h *Handlers) params(req CreateNarrationRequest) job.Params {
	p := h.defaults
	if req.Voice != "" {
		p.Voice = req.Voice
	}
	if req.LanguageCode != "" {
		p.LanguageCode = req.LanguageCode
	}
	if req.Rate != nil {
		p.Rate = *req.Rate
	}
	if req.Pitch != nil {
		p.Pitch = *req.Pitch
	}
	return p
}

func (h *Handlers) outputPath(jobID string, req CreateNarrationRequest) string {
	format := audio.FormatMP3
	if req.Format != "" {
		format = audio.Format(req.Format)
	}
	name := jobID + "." + string(format)

	if req.PushToS3 {
		return storage.Location{Bucket: h.bucket, Key: "narrations/" + name}.String()
	}
	return filepath.Join(h.outputDir, name)
}

func toResponse(j *job.Job) NarrationResponse {
	resp := NarrationResponse{
		ID:         j.ID,
		Status:     string(j.Status),
		Stage:      string(j.Stage),
		Progress:   j.Progress,
		DurationMs: j.Duration.Milliseconds(),
		Error:      j.Error,
		AudioURL:   j.AudioURL,
		Voice:      j.Params.Voice,
		CreatedAt:  j.CreatedAt,
	}
	for _, c := range j.Chunks {
		resp.Chunks = append(resp.Chunks, ChunkResponse{
			Index:      c.Index,
			Chars:      c.Chars,
			Status:     string(c.Status),
			DurationMs: c.Duration.Milliseconds(),
			Error:      c.Error,
		})
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
