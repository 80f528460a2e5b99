package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/company-wiki-api/internal/config"
	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/validation"
)

// maxReportedErrors caps the failures returned with a job's status
const maxReportedErrors = 100

// JobService defines the interface for reindex job management
type JobService interface {
	StartProcessor(ctx context.Context)
	StopProcessor()
	// CreateReindexJob queues a reindex of one entity type or "all". A
	// repeated idempotency key returns the existing job with created=false.
	CreateReindexJob(ctx context.Context, actor models.Actor, resource, idempotencyKey string) (job *models.Job, created bool, err error)
	GetJob(ctx context.Context, id string) (*models.JobResponse, error)
}

// jobService is the concrete implementation of JobService
type jobService struct {
	jobRepo  repository.JobRepository
	reindex  ReindexService
	interval time.Duration
	log      zerolog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
	// sem bounds the number of jobs running at once
	sem chan struct{}
}

func newJobService(jobRepo repository.JobRepository, reindex ReindexService, cfg *config.JobConfig, log zerolog.Logger) *jobService {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	log.Info().Int("max_workers", maxWorkers).Dur("poll_interval", interval).Msg("Initializing reindex job processor")

	return &jobService{
		jobRepo:  jobRepo,
		reindex:  reindex,
		interval: interval,
		log:      log.With().Str("service", "job").Logger(),
		sem:      make(chan struct{}, maxWorkers),
	}
}

func validResource(resource string) bool {
	if resource == models.ReindexAll {
		return true
	}
	for _, e := range models.EntityTypes {
		if string(e) == resource {
			return true
		}
	}
	return false
}

func (s *jobService) CreateReindexJob(ctx context.Context, actor models.Actor, resource, idempotencyKey string) (*models.Job, bool, error) {
	if !actor.IsAdmin() {
		return nil, false, &Error{Kind: KindForbidden, Message: "only admins can start a reindex"}
	}
	if resource == "" {
		resource = models.ReindexAll
	}
	if !validResource(resource) {
		return nil, false, invalid("", []validation.ValidationError{
			{Field: "resource", Message: "resource must be one of: all, article, category, tag", Value: resource},
		})
	}

	if idempotencyKey != "" {
		existing, err := s.jobRepo.GetByIdempotencyKey(ctx, idempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, err
		}
	}

	job := &models.Job{
		ID:             uuid.New().String(),
		Type:           models.JobTypeReindex,
		Resource:       resource,
		Status:         models.JobStatusPending,
		IdempotencyKey: idempotencyKey,
		RequestedBy:    actor.ID,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.jobRepo.Create(ctx, job)
	if errors.Is(err, repository.ErrConflict) && idempotencyKey != "" {
		// A concurrent request with the same key won the insert
		existing, err := s.jobRepo.GetByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create reindex job: %w", err)
	}

	s.log.Info().Str("job_id", job.ID).Str("resource", resource).Int64("actor_id", actor.ID).Msg("Reindex job queued")
	return job, true, nil
}

// StartProcessor launches the poll loop and returns. The processor runs
// until ctx is cancelled or StopProcessor is called.
func (s *jobService) StartProcessor(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)

	// The loop counts in wg, so workers it adds never meet a Wait on an
	// empty group.
	s.wg.Add(1)
	go s.poll(ctx)
	s.log.Info().Msg("Job processor started")
}

func (s *jobService) poll(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Job processor stopping")
			return
		case <-ticker.C:
			s.processPendingJobs(ctx)
		}
	}
}

// StopProcessor stops the processor and waits for the poll loop and
// running jobs
func (s *jobService) StopProcessor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false
	s.log.Info().Msg("Job processor stopped")
}

func (s *jobService) processPendingJobs(ctx context.Context) {
	jobs, err := s.jobRepo.GetPendingJobs(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get pending jobs")
		return
	}

	for _, job := range jobs {
		// Blocks while every worker is busy
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		if ctx.Err() != nil {
			<-s.sem
			return
		}
		marked, err := s.jobRepo.MarkJobAsProcessing(ctx, job.ID)
		if err != nil || !marked {
			<-s.sem
			continue
		}

		s.wg.Add(1)
		go func(j *models.Job) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			defer func() {
				if r := recover(); r != nil {
					s.log.Error().
						Interface("panic", r).
						Str("job_id", j.ID).
						Msg("Job processing panicked - recovered")
					s.finish(ctx, j, time.Now(), fmt.Errorf("panic: %v", r))
				}
			}()
			s.processJob(ctx, j)
		}(job)
	}
}

func (s *jobService) processJob(ctx context.Context, job *models.Job) {
	select {
	case <-ctx.Done():
		s.log.Warn().Str("job_id", job.ID).Msg("Job processing cancelled due to shutdown")
		return
	default:
	}

	start := time.Now()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &start
	s.log.Info().Str("job_id", job.ID).Str("resource", job.Resource).Msg("Processing reindex job")

	report, err := s.reindex.Reindex(ctx, job.Resources())
	if err != nil {
		s.finish(ctx, job, start, err)
		return
	}

	job.TotalRecords = report.Total
	job.ProcessedCount = report.Total
	job.SuccessfulCount = report.Indexed
	job.FailedCount = len(report.Failures)
	if err := s.jobRepo.AddErrors(ctx, job.ID, report.Failures); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job errors")
	}
	s.finish(ctx, job, start, nil)
}

// finish stamps duration and throughput and stores the final status
func (s *jobService) finish(ctx context.Context, job *models.Job, start time.Time, err error) {
	completed := time.Now().UTC()
	job.CompletedAt = &completed
	job.DurationMs = time.Since(start).Milliseconds()
	if secs := time.Since(start).Seconds(); secs > 0 {
		job.RowsPerSec = float64(job.ProcessedCount) / secs
	}

	job.Status = models.JobStatusCompleted
	if err != nil {
		job.Status = models.JobStatusFailed
		job.ErrorMessage = err.Error()
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Reindex job failed")
	}

	// The processor context may already be cancelled; the final status
	// still has to be written.
	if err := s.jobRepo.Update(context.WithoutCancel(ctx), job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to update job")
		return
	}
	s.log.Info().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Int("total", job.TotalRecords).
		Int("failed", job.FailedCount).
		Int64("duration_ms", job.DurationMs).
		Msg("Reindex job finished")
}

// GetJob retrieves a job with its first failures
func (s *jobService) GetJob(ctx context.Context, id string) (*models.JobResponse, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	jobErrors, err := s.jobRepo.GetErrors(ctx, id, maxReportedErrors)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("Failed to get job errors")
	}

	return &models.JobResponse{
		Job:        *job,
		Errors:     jobErrors,
		ErrorCount: job.FailedCount,
	}, nil
}
