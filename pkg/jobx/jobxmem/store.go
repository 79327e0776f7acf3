// Package jobxmem is an in-process jobx backend: a mutex-guarded job table and
// a channel-signalled dispatch queue. It is used by tests and by
// JOBX_BACKEND=memory, where everything runs in one process.
package jobxmem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type row struct {
	job *jobx.Job
	seq int64
}

// Store implements jobx.Store in memory.
type Store struct {
	mu    sync.Mutex
	rows  map[kernel.JobID]*row
	byKey map[string]kernel.JobID
	seq   int64
	now   func() time.Time
}

var _ jobx.Store = (*Store)(nil)

func NewStore(opts ...Option) *Store {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &Store{
		rows:  make(map[kernel.JobID]*row),
		byKey: make(map[string]kernel.JobID),
		now:   o.now,
	}
}

func (s *Store) Create(_ context.Context, nj jobx.NewJob) (*jobx.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if nj.IdempotencyKey != nil {
		if id, ok := s.byKey[*nj.IdempotencyKey]; ok {
			return clone(s.rows[id].job), false, nil
		}
	}

	now := s.now()
	id := kernel.NewJobID()
	if _, taken := s.rows[id]; taken {
		return nil, false, jobx.NewError(jobx.ErrDuplicateJob).WithDetail("id", id)
	}

	job := &jobx.Job{
		ID:          id,
		Type:        nj.Type,
		Payload:     cloneRaw(nj.Payload),
		Status:      jobx.StatusQueued,
		MaxAttempts: nj.MaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage("{}")
	}
	if nj.IdempotencyKey != nil {
		key := *nj.IdempotencyKey
		job.IdempotencyKey = &key
		s.byKey[key] = id
	}

	s.seq++
	s.rows[id] = &row{job: job, seq: s.seq}
	return clone(job), true, nil
}

func (s *Store) Get(_ context.Context, id kernel.JobID) (*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return nil, notFound(id)
	}
	return clone(r.job), nil
}

// List returns jobs newest first.
func (s *Store) List(_ context.Context, filter jobx.ListFilter, page kernel.PaginationOptions) (kernel.Paginated[jobx.Job], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page = page.Normalize()
	matched := make([]*row, 0, len(s.rows))
	for _, r := range s.rows {
		if filter.Status != "" && r.job.Status != filter.Status {
			continue
		}
		if filter.Type != "" && r.job.Type != filter.Type {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	items := make([]jobx.Job, 0, page.PageSize)
	for i := page.Offset(); i < len(matched) && len(items) < page.PageSize; i++ {
		items = append(items, *clone(matched[i].job))
	}
	return kernel.NewPaginated(items, page.Page, page.PageSize, len(matched)), nil
}

func (s *Store) ClaimByID(_ context.Context, id kernel.JobID) (*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || !s.claimable(r.job) {
		return nil, nil
	}
	return s.claim(r.job), nil
}

func (s *Store) ClaimNext(_ context.Context) (*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *row
	for _, r := range s.rows {
		if !s.claimable(r.job) {
			continue
		}
		if next == nil || r.seq < next.seq {
			next = r
		}
	}
	if next == nil {
		return nil, nil
	}
	return s.claim(next.job), nil
}

func (s *Store) Complete(_ context.Context, job *jobx.Job, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.owned(job)
	if err != nil {
		return err
	}
	now := s.now()
	cur.Status = jobx.StatusSucceeded
	cur.Result = cloneRaw(result)
	cur.Error = nil
	cur.RunAfter = nil
	cur.SucceededAt = &now
	cur.UpdatedAt = now
	return nil
}

func (s *Store) Retry(_ context.Context, job *jobx.Job, message string, delay time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.owned(job)
	if err != nil {
		return time.Time{}, err
	}
	now := s.now()
	runAfter := now.Add(delay)
	cur.Status = jobx.StatusQueued
	cur.RunAfter = &runAfter
	cur.Error = &message
	cur.LastError = &message
	cur.LastErrorAt = &now
	cur.UpdatedAt = now
	return runAfter, nil
}

func (s *Store) Fail(_ context.Context, job *jobx.Job, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.owned(job)
	if err != nil {
		return err
	}
	now := s.now()
	cur.Status = jobx.StatusFailed
	cur.RunAfter = nil
	cur.Error = &message
	cur.LastError = &message
	cur.LastErrorAt = &now
	cur.FailedAt = &now
	cur.UpdatedAt = now
	return nil
}

func (s *Store) RecoverStale(_ context.Context, olderThan time.Duration, message string) ([]jobx.Recovered, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-olderThan)

	var out []jobx.Recovered
	for _, r := range s.rows {
		j := r.job
		if j.Status != jobx.StatusRunning || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		msg := message
		j.Error = &msg
		j.LastError = &msg
		j.LastErrorAt = &now
		j.RunAfter = nil
		j.UpdatedAt = now
		if j.Exhausted() {
			j.Status = jobx.StatusFailed
			j.FailedAt = &now
		} else {
			j.Status = jobx.StatusQueued
		}
		out = append(out, jobx.Recovered{ID: j.ID, Type: j.Type, Status: j.Status})
	}
	return out, nil
}

// Len is the number of stored jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Touch sets updated_at, for simulating a worker that stopped heartbeating.
func (s *Store) Touch(id kernel.JobID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		r.job.UpdatedAt = at
	}
}

func (s *Store) claimable(j *jobx.Job) bool {
	return j.Eligible(s.now()) && j.Attempts < j.MaxAttempts
}

func (s *Store) claim(j *jobx.Job) *jobx.Job {
	now := s.now()
	j.Status = jobx.StatusRunning
	j.Attempts++
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.UpdatedAt = now
	return clone(j)
}

func (s *Store) owned(job *jobx.Job) (*jobx.Job, error) {
	r, ok := s.rows[job.ID]
	if !ok {
		return nil, notFound(job.ID)
	}
	if r.job.Status != jobx.StatusRunning || r.job.Attempts != job.Attempts {
		return nil, jobx.NewError(jobx.ErrNotOwned).
			WithDetail("job_id", job.ID).
			WithDetail("attempts", job.Attempts)
	}
	return r.job, nil
}

func notFound(id kernel.JobID) error {
	return jobx.NewError(jobx.ErrJobNotFound).WithDetail("job_id", id)
}

func clone(j *jobx.Job) *jobx.Job {
	c := *j
	c.Payload = cloneRaw(j.Payload)
	c.Result = cloneRaw(j.Result)
	return &c
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
