// Package jobs defines the asynchronous receipt-processing work units
// and the queue abstractions around them. Receipt scanning is bounded
// by OCR engine throughput, so the queue applies backpressure by
// rejecting excess submissions instead of queuing without bound.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/nimbly/receipts/internal/domain"
)

// ErrQueueFull signals that the scan queue is at capacity. Callers are
// expected to surface it as a retry-later outcome; the queue never
// buffers beyond its configured size.
var ErrQueueFull = errors.New("scan queue is full")

// JobType identifies the kind of work a job carries.
type JobType string

const (
	// JobTypeScanReceipt is a job to run one uploaded receipt through
	// the processing pipeline.
	JobTypeScanReceipt JobType = "scan_receipt"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// ScanReceiptJob is a request to process one uploaded receipt.
type ScanReceiptJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// UserID owns the receipt and the history it lands in.
	UserID string `json:"user_id"`

	// GCSURI points at the uploaded document when it lives in object
	// storage; Document carries the bytes when the caller already has
	// them. Exactly one of the two is set.
	GCSURI   string              `json:"gcs_uri,omitempty"`
	Document *domain.RawDocument `json:"-"`

	// MediaKind is the declared kind of the uploaded document.
	MediaKind domain.MediaKind `json:"media_kind"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains failure details for failed jobs.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is the generic interface all job types satisfy.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *ScanReceiptJob) GetID() string        { return j.JobID }
func (j *ScanReceiptJob) GetType() JobType     { return JobTypeScanReceipt }
func (j *ScanReceiptJob) GetStatus() JobStatus { return j.Status }

// Publisher submits jobs for asynchronous processing.
type Publisher interface {
	// PublishScanReceipt enqueues a receipt scan. It fails fast with
	// ErrQueueFull when the queue is at capacity.
	PublishScanReceipt(ctx context.Context, job *ScanReceiptJob) error

	Close() error
}

// Consumer processes published jobs.
type Consumer interface {
	// Start begins consuming jobs; handler runs for each job, on a
	// worker pool sized to available OCR capacity.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming and waits for in-flight jobs to finish.
	Stop(ctx context.Context) error
}

// JobHandler processes a job; a returned error marks the job failed
// and eligible for retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore persists job state so progress survives inspection across
// requests.
type JobStore interface {
	SaveJob(ctx context.Context, job *ScanReceiptJob) error
	GetJob(ctx context.Context, jobID string) (*ScanReceiptJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*ScanReceiptJob, error)
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	UserID string
	Status JobStatus
	Limit  int
}
