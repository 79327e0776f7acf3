package jobx_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxmem"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock    *fakeClock
	store    *jobxmem.Store
	queue    *jobxmem.Queue
	registry *jobx.Registry
	service  *jobx.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newClock()
	store := jobxmem.NewStore(jobxmem.WithClock(clock.Now))
	queue := jobxmem.NewQueue()
	return &harness{
		clock:    clock,
		store:    store,
		queue:    queue,
		registry: jobx.NewRegistry(),
		service:  jobx.NewService(store, queue),
	}
}

func (h *harness) worker(opts ...jobx.WorkerOption) *jobx.Worker {
	base := []jobx.WorkerOption{
		jobx.WithClock(h.clock.Now),
		jobx.WithReserveTimeout(10 * time.Millisecond),
		jobx.WithBackoff(jobx.Backoff{Base: 2 * time.Second, Cap: 60 * time.Second}),
	}
	return jobx.NewWorker(h.store, h.queue, h.registry, append(base, opts...)...)
}

func (h *harness) reaper(opts ...jobx.ReaperOption) *jobx.Reaper {
	base := []jobx.ReaperOption{jobx.WithReaperClock(h.clock.Now)}
	return jobx.NewReaper(h.store, h.queue, append(base, opts...)...)
}

func (h *harness) submit(t *testing.T, jobType string, maxAttempts int) *jobx.Job {
	t.Helper()
	job, created, err := h.service.Submit(context.Background(), jobx.NewJob{Type: jobType, MaxAttempts: maxAttempts})
	if err != nil || !created {
		t.Fatalf("submit: created=%v err=%v", created, err)
	}
	return job
}

func (h *harness) get(t *testing.T, id kernel.JobID) *jobx.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return job
}

func (h *harness) inFlight(t *testing.T) []string {
	t.Helper()
	tokens, err := h.queue.InFlight(context.Background())
	if err != nil {
		t.Fatalf("in flight: %v", err)
	}
	return tokens
}

// brokenStore fails claims, as a store that is unreachable would.
type brokenStore struct {
	jobx.Store
}

func (brokenStore) ClaimByID(context.Context, kernel.JobID) (*jobx.Job, error) {
	return nil, errors.New("connection refused")
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []*jobx.Job
}

func (n *recordingNotifier) NotifyFailed(_ context.Context, job *jobx.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return nil
}
