package jobx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/Abraxas-365/jobrunner/pkg/kernel"
	"github.com/Abraxas-365/jobrunner/pkg/logx"
)

const (
	MaxTypeLength  = 50
	MinMaxAttempts = 1
	MaxMaxAttempts = 100
)

// Service is the submission and query side of the engine.
type Service struct {
	store Store
	queue Queue
	opts  ServiceOptions
}

func NewService(store Store, queue Queue, options ...ServiceOption) *Service {
	opts := defaultServiceOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Service{store: store, queue: queue, opts: opts}
}

// Submit creates a job, or returns the job already holding the idempotency
// key. Live jobs are signalled on the dispatch queue either way; a failed
// signal is logged and left to a resubmission or a claim-any poll.
func (s *Service) Submit(ctx context.Context, in NewJob) (*Job, bool, error) {
	nj, err := s.normalize(in)
	if err != nil {
		return nil, false, err
	}

	job, created, err := s.store.Create(ctx, nj)
	if err != nil {
		return nil, false, err
	}
	s.opts.Metrics.JobSubmitted(job.Type, created)

	if created || job.IsLive() {
		if err := s.queue.Push(ctx, job.ID); err != nil {
			logx.WithError(err).WithFields(logx.Fields{
				"job_id":   job.ID,
				"job_type": job.Type,
				"created":  created,
			}).Warn("jobx: failed to signal dispatch queue")
		}
	}

	if !created {
		logx.WithFields(logx.Fields{
			"job_id": job.ID,
			"status": job.Status,
		}).Debug("jobx: idempotent resubmission")
	}
	return job, created, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*Job, error) {
	id, err := kernel.ParseJobID(rawID)
	if err != nil {
		return nil, jobxErrors.NewWithCause(ErrInvalidID, err).WithDetail("id", rawID)
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, page kernel.PaginationOptions) (kernel.Paginated[Job], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return kernel.Paginated[Job]{}, jobxErrors.New(ErrInvalidJob).
			WithDetail("field", "status").
			WithDetail("value", filter.Status)
	}
	return s.store.List(ctx, filter, page.Normalize())
}

// QueueStats reports the dispatch queue depths.
func (s *Service) QueueStats(ctx context.Context) (QueueStats, error) {
	return s.queue.Stats(ctx)
}

func (s *Service) normalize(in NewJob) (NewJob, error) {
	out := NewJob{Type: strings.TrimSpace(in.Type)}

	if out.Type == "" {
		return out, invalid("type", "must not be empty")
	}
	if utf8.RuneCountInString(out.Type) > MaxTypeLength {
		return out, invalid("type", "must be at most 50 characters")
	}

	payload := bytes.TrimSpace(in.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	var obj map[string]json.RawMessage
	if payload[0] != '{' || json.Unmarshal(payload, &obj) != nil {
		return out, invalid("payload", "must be a JSON object")
	}
	out.Payload = json.RawMessage(payload)

	if in.IdempotencyKey != nil {
		if key := strings.TrimSpace(*in.IdempotencyKey); key != "" {
			out.IdempotencyKey = &key
		}
	}

	switch {
	case in.MaxAttempts == 0:
		out.MaxAttempts = s.opts.DefaultMaxAttempts
	case in.MaxAttempts < MinMaxAttempts || in.MaxAttempts > MaxMaxAttempts:
		return out, invalid("max_attempts", "must be between 1 and 100")
	default:
		out.MaxAttempts = in.MaxAttempts
	}

	return out, nil
}

func invalid(field, reason string) error {
	return jobxErrors.New(ErrInvalidJob).
		WithDetail("field", field).
		WithDetail("reason", reason)
}
