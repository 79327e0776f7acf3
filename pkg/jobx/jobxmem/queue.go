package jobxmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

// Queue implements jobx.Queue in memory. Ready tokens are taken from the
// head; Restore puts a token back at the head, like RPUSH onto the right end
// the Redis queue pops from.
type Queue struct {
	mu         sync.Mutex
	ready      []string
	processing []string
	scheduled  map[kernel.JobID]time.Time
	wake       chan struct{}
}

var _ jobx.Queue = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{
		scheduled: make(map[kernel.JobID]time.Time),
		wake:      make(chan struct{}),
	}
}

func (q *Queue) Push(ctx context.Context, id kernel.JobID) error {
	return q.PushRaw(ctx, jobx.EncodeToken(id))
}

// PushRaw enqueues token verbatim.
func (q *Queue) PushRaw(_ context.Context, token string) error {
	q.mu.Lock()
	q.ready = append(q.ready, token)
	q.signalLocked()
	q.mu.Unlock()
	return nil
}

func (q *Queue) PushAt(_ context.Context, id kernel.JobID, at time.Time) error {
	q.mu.Lock()
	q.scheduled[id] = at
	q.mu.Unlock()
	return nil
}

func (q *Queue) Reserve(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			token := q.ready[0]
			q.ready = q.ready[1:]
			q.processing = append(q.processing, token)
			q.mu.Unlock()
			return token, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return "", nil
		case <-wake:
		}
	}
}

func (q *Queue) Ack(_ context.Context, token string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing, _ = remove(q.processing, token)
	return nil
}

func (q *Queue) InFlight(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.processing...), nil
}

func (q *Queue) Restore(_ context.Context, token string, id kernel.JobID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed bool
	q.processing, removed = remove(q.processing, token)
	if !removed {
		return false, nil
	}
	q.ready = append([]string{jobx.EncodeToken(id)}, q.ready...)
	q.signalLocked()
	return true, nil
}

func (q *Queue) PromoteDue(_ context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	type due struct {
		id kernel.JobID
		at time.Time
	}
	var ready []due
	for id, at := range q.scheduled {
		if !at.After(now) {
			ready = append(ready, due{id, at})
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].at.Before(ready[j].at) })

	for _, d := range ready {
		delete(q.scheduled, d.id)
		q.ready = append(q.ready, jobx.EncodeToken(d.id))
	}
	if len(ready) > 0 {
		q.signalLocked()
	}
	return len(ready), nil
}

func (q *Queue) Stats(_ context.Context) (jobx.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return jobx.QueueStats{
		Ready:     int64(len(q.ready)),
		InFlight:  int64(len(q.processing)),
		Scheduled: int64(len(q.scheduled)),
	}, nil
}

// Ready returns a copy of the tokens waiting to be reserved, head first.
func (q *Queue) Ready() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ready...)
}

// signalLocked wakes every blocked Reserve.
func (q *Queue) signalLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}

func remove(list []string, token string) ([]string, bool) {
	for i, t := range list {
		if t == token {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}
