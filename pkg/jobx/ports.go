package jobx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

// Store is the authoritative job table.
//
// Claim methods return (nil, nil) when nothing qualifies, the row is locked by
// another transaction, or it was already claimed. Finalize methods are fenced
// on the claimed attempt and return ErrNotOwned when the row has moved on.
type Store interface {
	// Create inserts a queued job. When the idempotency key already exists it
	// returns the existing row and created=false.
	Create(ctx context.Context, job NewJob) (*Job, bool, error)
	Get(ctx context.Context, id kernel.JobID) (*Job, error)
	List(ctx context.Context, filter ListFilter, page kernel.PaginationOptions) (kernel.Paginated[Job], error)

	ClaimByID(ctx context.Context, id kernel.JobID) (*Job, error)
	ClaimNext(ctx context.Context) (*Job, error)

	Complete(ctx context.Context, job *Job, result json.RawMessage) error
	// Retry requeues the job with run_after = now + delay and returns run_after.
	Retry(ctx context.Context, job *Job, message string, delay time.Duration) (time.Time, error)
	Fail(ctx context.Context, job *Job, message string) error

	// RecoverStale moves rows running for longer than olderThan back to queued,
	// or to failed when their attempts are exhausted.
	RecoverStale(ctx context.Context, olderThan time.Duration, message string) ([]Recovered, error)
}

// Queue is the dispatch queue plus its in-flight marker and delayed set.
// Tokens are the raw list entries; only ParseToken turns them into ids.
type Queue interface {
	Push(ctx context.Context, id kernel.JobID) error
	// PushAt schedules a push of id once at has passed.
	PushAt(ctx context.Context, id kernel.JobID, at time.Time) error

	// Reserve moves the next token into the in-flight marker. It returns ""
	// when timeout elapses with nothing to take.
	Reserve(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, token string) error
	InFlight(ctx context.Context) ([]string, error)

	// Restore removes token from the in-flight marker and pushes id, as one
	// step. It reports false when the token was no longer in flight.
	Restore(ctx context.Context, token string, id kernel.JobID) (bool, error)

	// PromoteDue pushes every scheduled id whose time is at or before now.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	Stats(ctx context.Context) (QueueStats, error)
}

type QueueStats struct {
	Ready     int64 `json:"ready"`
	InFlight  int64 `json:"in_flight"`
	Scheduled int64 `json:"scheduled"`
}

// FailureNotifier is told about jobs that failed permanently.
type FailureNotifier interface {
	NotifyFailed(ctx context.Context, job *Job) error
}

// Metrics receives engine events.
type Metrics interface {
	JobSubmitted(jobType string, created bool)
	JobClaimed(jobType string)
	JobSucceeded(jobType string, elapsed time.Duration)
	JobRetryScheduled(jobType string, elapsed time.Duration)
	JobFailed(jobType string, elapsed time.Duration)
	JobsReaped(reason string, n int)
}

type nopMetrics struct{}

func (nopMetrics) JobSubmitted(string, bool)               {}
func (nopMetrics) JobClaimed(string)                       {}
func (nopMetrics) JobSucceeded(string, time.Duration)      {}
func (nopMetrics) JobRetryScheduled(string, time.Duration) {}
func (nopMetrics) JobFailed(string, time.Duration)         {}
func (nopMetrics) JobsReaped(string, int)                  {}

// NopMetrics discards every event.
func NopMetrics() Metrics { return nopMetrics{} }
