package models

import (
	"time"
)

// JobStatus represents the status of a background job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobType represents the type of job
type JobType string

const (
	JobTypeReindex JobType = "reindex"
)

// ReindexAll is the job resource that sweeps every entity type
const ReindexAll = "all"

// Job is a background reindex run
type Job struct {
	ID              string     `json:"job_id" db:"id"`
	Type            JobType    `json:"type" db:"type"`
	Resource        string     `json:"resource" db:"resource"`
	Status          JobStatus  `json:"status" db:"status"`
	IdempotencyKey  string     `json:"idempotency_key,omitempty" db:"idempotency_key"`
	RequestedBy     int64      `json:"requested_by,omitempty" db:"requested_by"`
	TotalRecords    int        `json:"total_records" db:"total_records"`
	ProcessedCount  int        `json:"processed" db:"processed_count"`
	SuccessfulCount int        `json:"successful" db:"successful_count"`
	FailedCount     int        `json:"failed" db:"failed_count"`
	DurationMs      int64      `json:"duration_ms,omitempty" db:"duration_ms"`
	RowsPerSec      float64    `json:"rows_per_sec,omitempty" db:"rows_per_sec"`
	ErrorMessage    string     `json:"error,omitempty" db:"error_message"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// JobError is a document that failed to index during a reindex run
type JobError struct {
	Entity     EntityType `json:"entity"`
	DocumentID string     `json:"document_id"`
	Message    string     `json:"message"`
}

// JobResponse is the API response for job status
type JobResponse struct {
	Job
	Errors     []JobError `json:"errors,omitempty"`
	ErrorCount int        `json:"error_count,omitempty"`
}

// Resources returns the entity types a job sweeps
func (j *Job) Resources() []EntityType {
	if j.Resource == "" || j.Resource == ReindexAll {
		return EntityTypes
	}
	return []EntityType{EntityType(j.Resource)}
}
