package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/company-wiki-api/internal/models"
	"github.com/lib/pq"
)

const jobColumns = `
	SELECT id, type, resource, status, idempotency_key, requested_by, total_records, processed_count,
		successful_count, failed_count, duration_ms, rows_per_sec, error_message,
		created_at, started_at, completed_at
	FROM jobs
`

// jobRepo is the concrete implementation of JobRepository
type jobRepo struct {
	db DBTX
}

// NewJobRepo creates a new job repository
func NewJobRepo(db DBTX) JobRepository {
	return &jobRepo{db: db}
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var idempotencyKey, errorMessage sql.NullString
	var requestedBy sql.NullInt64
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.Type, &job.Resource, &job.Status, &idempotencyKey, &requestedBy,
		&job.TotalRecords, &job.ProcessedCount, &job.SuccessfulCount, &job.FailedCount,
		&job.DurationMs, &job.RowsPerSec, &errorMessage,
		&job.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.IdempotencyKey = idempotencyKey.String
	job.ErrorMessage = errorMessage.String
	job.RequestedBy = requestedBy.Int64
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

// Create inserts a new job
func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, type, resource, status, idempotency_key, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var requestedBy sql.NullInt64
	if job.RequestedBy != 0 {
		requestedBy = sql.NullInt64{Int64: job.RequestedBy, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Type, job.Resource, job.Status, nullString(job.IdempotencyKey), requestedBy, job.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// Update updates job status and counters
func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	query := `
		UPDATE jobs SET
			status = $1, total_records = $2, processed_count = $3, successful_count = $4,
			failed_count = $5, duration_ms = $6, rows_per_sec = $7, error_message = $8,
			started_at = $9, completed_at = $10
		WHERE id = $11
	`
	_, err := r.db.ExecContext(ctx, query,
		job.Status, job.TotalRecords, job.ProcessedCount, job.SuccessfulCount,
		job.FailedCount, job.DurationMs, job.RowsPerSec, nullString(job.ErrorMessage),
		job.StartedAt, job.CompletedAt, job.ID,
	)
	return err
}

// GetByID retrieves a job by ID
func (r *jobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, jobColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// GetByIdempotencyKey retrieves a job by idempotency key
func (r *jobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Job, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, jobColumns+` WHERE idempotency_key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// GetPendingJobs retrieves all pending jobs, oldest first
func (r *jobRepo) GetPendingJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := r.db.QueryContext(ctx, jobColumns+` WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// MarkJobAsProcessing atomically marks a pending job as processing
func (r *jobRepo) MarkJobAsProcessing(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE jobs SET status = 'processing', started_at = $1
		WHERE id = $2 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), jobID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// AddErrors records per-document failures using the COPY protocol. It needs
// its own transaction, so it only works on a pool-backed repository.
func (r *jobRepo) AddErrors(ctx context.Context, jobID string, jobErrors []models.JobError) error {
	if len(jobErrors) == 0 {
		return nil
	}

	beginner, ok := r.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	})
	if !ok {
		return fmt.Errorf("job errors must be written outside a transaction")
	}

	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("job_errors", "job_id", "entity", "document_id", "message"))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range jobErrors {
		if _, err := stmt.ExecContext(ctx, jobID, string(e.Entity), e.DocumentID, e.Message); err != nil {
			return err
		}
	}

	// Flush the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		return err
	}

	return tx.Commit()
}

// GetErrors retrieves failures for a job; limit <= 0 means all
func (r *jobRepo) GetErrors(ctx context.Context, jobID string, limit int) ([]models.JobError, error) {
	query := `SELECT entity, document_id, message FROM job_errors WHERE job_id = $1 ORDER BY id`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", jobID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, jobID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobErrors []models.JobError
	for rows.Next() {
		var e models.JobError
		if err := rows.Scan(&e.Entity, &e.DocumentID, &e.Message); err != nil {
			return nil, err
		}
		jobErrors = append(jobErrors, e)
	}

	return jobErrors, rows.Err()
}
