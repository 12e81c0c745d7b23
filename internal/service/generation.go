package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
	"github.com/timmy/csvgen/internal/merge"
	"github.com/timmy/csvgen/internal/metrics"
	"github.com/timmy/csvgen/internal/planner"
	"github.com/timmy/csvgen/internal/pool"
	"github.com/timmy/csvgen/internal/progress"
	"github.com/timmy/csvgen/internal/storage"
)

// Progress milestones. Percentages are advisory.
const (
	progressStarting     = 0
	progressDistributing = 10
	progressMerging      = 60
	progressMerged       = 95
	progressCompleted    = 100
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrArtifactNotReady = errors.New("artifact not ready")
)

// JobRecorder persists job snapshots. It never mutates the job.
type JobRecorder interface {
	RecordJob(ctx context.Context, job domain.Job) error
}

// SubmitRequest is a request to generate RowCount rows across Columns.
type SubmitRequest struct {
	Columns  []domain.Column
	RowCount int
}

// GenerationConfig holds configuration for the generation service
type GenerationConfig struct {
	MaxChunkSize    int
	MaxRows         int
	DownloadBaseURL string // local download route, e.g. /api/download
	StoragePrefix   string // object key prefix when artifacts are published to storage
}

type jobState struct {
	job  domain.Job
	done chan struct{}
}

// GenerationService coordinates jobs: it plans chunks, runs them on the pool,
// merges the results and publishes progress.
type GenerationService struct {
	pool     *pool.Pool
	merger   *merge.Engine
	events   progress.Publisher
	recorder JobRecorder
	storage  storage.ObjectStorage
	logger   *logger.Logger
	cfg      GenerationConfig
	baseCtx  context.Context
	now      func() time.Time

	mu   sync.RWMutex
	jobs map[string]*jobState
	wg   sync.WaitGroup
}

// NewGenerationService creates a new generation service.
// recorder and objectStorage may be nil.
func NewGenerationService(
	p *pool.Pool,
	merger *merge.Engine,
	events progress.Publisher,
	recorder JobRecorder,
	objectStorage storage.ObjectStorage,
	log *logger.Logger,
	cfg *GenerationConfig,
) *GenerationService {
	if log == nil {
		log = logger.GetDefault()
	}
	c := *cfg
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = planner.DefaultMaxChunkSize
	}
	if c.DownloadBaseURL == "" {
		c.DownloadBaseURL = "/api/download"
	}
	log = log.WithField(logger.FieldComponent, "coordinator")

	return &GenerationService{
		pool:     p,
		merger:   merger,
		events:   events,
		recorder: recorder,
		storage:  objectStorage,
		logger:   log,
		cfg:      c,
		baseCtx:  log.WithContext(context.Background()),
		now:      time.Now,
		jobs:     make(map[string]*jobState),
	}
}

// PoolStatus exposes the pool snapshot for status endpoints.
func (s *GenerationService) PoolStatus() pool.Snapshot {
	return s.pool.Status()
}

// Submit validates req, registers a pending job and starts it in the background.
// Invalid requests return a *ValidationError and never reach the pool.
func (s *GenerationService) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := validate(req, s.cfg.MaxRows); err != nil {
		metrics.ValidationErrorsTotal.Inc()
		logger.CtxWarn(s.logger.WithContext(ctx), "Rejected generation request: %v", err)
		return "", err
	}

	job := domain.Job{
		ID:        uuid.New().String(),
		Columns:   domain.SortColumns(req.Columns),
		RowCount:  req.RowCount,
		Status:    domain.JobStatusPending,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = &jobState{job: job, done: make(chan struct{})}
	s.mu.Unlock()

	metrics.JobsSubmittedTotal.Inc()
	metrics.ActiveJobs.Inc()
	s.record(job)

	logger.CtxInfo(s.logger.WithContext(ctx), "Accepted generation job: job_id=%s, rows=%d, fields=%d", job.ID, job.RowCount, len(job.Columns))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(job.ID)
	}()

	return job.ID, nil
}

func (s *GenerationService) run(jobID string) {
	ctx := logger.SetJobID(s.baseCtx, jobID)
	start := s.now()

	job, ok := s.transition(ctx, jobID, domain.JobStatusStarting, nil)
	if !ok {
		return
	}
	s.emit(job, progressStarting, "Starting CSV generation...", nil)

	tasks, err := planner.Plan(job.ID, job.Columns, job.RowCount, s.cfg.MaxChunkSize)
	if err != nil {
		s.fail(ctx, jobID, progressStarting, fmt.Sprintf("failed to plan chunks: %v", err))
		return
	}

	workers := min(s.pool.Size(), len(tasks))
	job, ok = s.transition(ctx, jobID, domain.JobStatusDistributing, func(j *domain.Job) {
		j.TotalChunks = len(tasks)
		j.WorkersUsed = workers
	})
	if !ok {
		return
	}
	s.emit(job, progressDistributing, fmt.Sprintf("Distributing %d chunks across %d workers", len(tasks), workers), func(ev *domain.ProgressEvent) {
		ev.TotalChunks = len(tasks)
	})

	outcomes, err := s.collect(ctx, job, s.pool.SubmitAll(tasks))
	if err != nil {
		s.fail(ctx, jobID, progressDistributing, err.Error())
		return
	}

	// fail fast: the first failure in chunk order fails the whole job
	results := make([]domain.ChunkResult, 0, len(outcomes))
	var firstFailure *pool.Outcome
	for i := range outcomes {
		if outcomes[i].Failed() {
			if firstFailure == nil {
				firstFailure = &outcomes[i]
			}
			continue
		}
		results = append(results, outcomes[i].Result)
	}
	if firstFailure != nil {
		s.merger.Discard(ctx, results)
		s.fail(ctx, jobID, progressMerging,
			fmt.Sprintf("Chunk %d failed: %s", firstFailure.Task.Index, firstFailure.Diagnostic()))
		return
	}

	job, ok = s.transition(ctx, jobID, domain.JobStatusMerging, nil)
	if !ok {
		s.merger.Discard(ctx, results)
		return
	}
	s.emit(job, progressMerging, "Merging chunks...", func(ev *domain.ProgressEvent) {
		ev.TotalChunks = len(tasks)
	})

	art, err := s.merger.Merge(ctx, job.ID, job.Columns, results, func(merged, total int) {
		pct := progressMerging + (progressMerged-progressMerging)*merged/total
		s.emit(job, pct, fmt.Sprintf("Merged chunk %d of %d", merged, total), func(ev *domain.ProgressEvent) {
			ev.TotalChunks = total
			ev.CompletedChunks = merged
		})
	})
	if err != nil {
		s.fail(ctx, jobID, progressMerging, fmt.Sprintf("failed to merge chunks: %v", err))
		return
	}

	downloadURL, err := s.publish(ctx, art)
	if err != nil {
		s.fail(ctx, jobID, progressMerged, err.Error())
		return
	}

	elapsed := s.now().Sub(start)
	completedAt := s.now()
	job, ok = s.transition(ctx, jobID, domain.JobStatusCompleted, func(j *domain.Job) {
		j.FileName = art.FileName
		j.FileSize = art.Size
		j.FileSizeHuman = art.SizeHuman
		j.ProcessingTime = elapsed
		j.DownloadURL = downloadURL
		j.CompletedAt = &completedAt
	})
	if !ok {
		return
	}

	metrics.RowsGeneratedTotal.Add(float64(art.Rows))
	logger.With(logger.Fields{
		logger.FieldDurationMs: elapsed.Milliseconds(),
		logger.FieldCount:      art.Rows,
		logger.FieldSize:       art.Size,
	}).Info(ctx, "Generation completed: chunks=%d, file=%s", len(tasks), art.FileName)

	s.emit(job, progressCompleted, "CSV generation completed!", func(ev *domain.ProgressEvent) {
		ev.TotalChunks = len(tasks)
		ev.CompletedChunks = len(tasks)
		ev.RowCount = art.Rows
		ev.FileSize = art.SizeHuman
		ev.FileSizeBytes = art.Size
		ev.ProcessingTimeMs = elapsed.Milliseconds()
		ev.DownloadURL = downloadURL
	})
}

// collect waits for every handle, emitting a progress event per finished chunk
// in completion order. Outcomes are returned in chunk order.
func (s *GenerationService) collect(ctx context.Context, job domain.Job, handles []*pool.Handle) ([]pool.Outcome, error) {
	finished := make(chan int, len(handles))
	for i, h := range handles {
		go func(i int, h *pool.Handle) {
			<-h.Done()
			finished <- i
		}(i, h)
	}

	total := len(handles)
	span := progressMerging - progressDistributing
	for k := 1; k <= total; k++ {
		i := <-finished
		out := handles[i].Outcome()
		msg := fmt.Sprintf("Chunk %d of %d generated", out.Task.Index+1, total)
		if out.Failed() {
			msg = fmt.Sprintf("Chunk %d of %d failed", out.Task.Index+1, total)
		}
		s.emit(job, progressDistributing+span*k/total, msg, func(ev *domain.ProgressEvent) {
			ev.TotalChunks = total
			ev.CompletedChunks = k
		})
	}

	return pool.AwaitAll(ctx, handles)
}

// publish uploads the artifact to object storage when configured and returns
// the retrieval reference.
func (s *GenerationService) publish(ctx context.Context, art *merge.Artifact) (string, error) {
	if s.storage == nil {
		return s.cfg.DownloadBaseURL + "/" + art.JobID, nil
	}

	key := path.Join(s.cfg.StoragePrefix, art.FileName)
	f, err := os.Open(art.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	if err := s.storage.Upload(ctx, key, f, art.Size, "text/csv"); err != nil {
		if rmErr := os.Remove(art.Path); rmErr != nil {
			logger.FromContext(ctx).WithError(rmErr).Warn("Failed to remove unpublished artifact")
		}
		return "", fmt.Errorf("failed to publish artifact: %w", err)
	}
	return s.storage.GetURL(key), nil
}

// transition moves a job to next and returns the new snapshot. It returns false
// when the move would break the lifecycle order.
func (s *GenerationService) transition(ctx context.Context, jobID string, next domain.JobStatus, mutate func(*domain.Job)) (domain.Job, bool) {
	s.mu.Lock()
	st, ok := s.jobs[jobID]
	if !ok || !st.job.Status.CanTransition(next) {
		s.mu.Unlock()
		logger.CtxError(ctx, "Illegal job transition to %s", next)
		return domain.Job{}, false
	}
	st.job.Status = next
	if mutate != nil {
		mutate(&st.job)
	}
	snap := st.job.Clone()
	if next.Terminal() {
		close(st.done)
	}
	s.mu.Unlock()

	if next.Terminal() {
		metrics.ActiveJobs.Dec()
		metrics.JobsFinishedTotal.WithLabelValues(string(next)).Inc()
		metrics.JobDurationSeconds.WithLabelValues(string(next)).Observe(s.now().Sub(snap.CreatedAt).Seconds())
	}
	s.record(snap)
	return snap, true
}

// fail moves the job to failed and emits the single terminal failure event.
func (s *GenerationService) fail(ctx context.Context, jobID string, pct int, diagnostic string) {
	completedAt := s.now()
	job, ok := s.transition(ctx, jobID, domain.JobStatusFailed, func(j *domain.Job) {
		j.Error = diagnostic
		j.CompletedAt = &completedAt
		j.ProcessingTime = completedAt.Sub(j.CreatedAt)
	})
	if !ok {
		return
	}
	logger.With(logger.Fields{
		logger.FieldStatus: string(domain.JobStatusFailed),
	}).Error(ctx, "Generation failed: %s", diagnostic)

	s.emit(job, pct, diagnostic, func(ev *domain.ProgressEvent) {
		ev.TotalChunks = job.TotalChunks
		ev.Error = diagnostic
	})
}

func (s *GenerationService) emit(job domain.Job, pct int, msg string, extra func(*domain.ProgressEvent)) {
	if s.events == nil {
		return
	}
	ev := domain.ProgressEvent{
		Type:      domain.EventTypeProgress,
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  pct,
		Message:   msg,
		Timestamp: s.now(),
	}
	if extra != nil {
		extra(&ev)
	}
	s.events.Publish(ev)
}

func (s *GenerationService) record(job domain.Job) {
	if s.recorder == nil {
		return
	}
	ctx := logger.SetJobID(s.baseCtx, job.ID)
	if err := s.recorder.RecordJob(ctx, job); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to record job snapshot")
	}
}

// Get returns a snapshot of the job.
func (s *GenerationService) Get(jobID string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return st.job.Clone(), nil
}

// List returns snapshots of all jobs known to this process, newest first.
func (s *GenerationService) List() []domain.Job {
	s.mu.RLock()
	out := make([]domain.Job, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, st.job.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Wait blocks until the job is completed or failed and returns its final snapshot.
func (s *GenerationService) Wait(ctx context.Context, jobID string) (domain.Job, error) {
	s.mu.RLock()
	st, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	select {
	case <-st.done:
		return s.Get(jobID)
	case <-ctx.Done():
		return domain.Job{}, ctx.Err()
	}
}

// ArtifactPath returns the local artifact of a completed job.
func (s *GenerationService) ArtifactPath(jobID string) (string, error) {
	job, err := s.Get(jobID)
	if err != nil {
		return "", err
	}
	if job.Status != domain.JobStatusCompleted {
		return "", fmt.Errorf("job %s is %s: %w", jobID, job.Status, ErrArtifactNotReady)
	}
	return s.merger.ArtifactPath(jobID), nil
}

// Shutdown waits for running jobs to finish or ctx to end.
func (s *GenerationService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
