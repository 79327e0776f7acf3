package jobxredis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/jobrunner/pkg/errx"
	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxmem"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

func newQueue(t *testing.T) (*jobxredis.RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return jobxredis.NewRedisQueue(rdb, jobxredis.Keys{}), mr
}

func TestRedisQueue_DefaultKeys(t *testing.T) {
	q, _ := newQueue(t)
	if q.Keys() != jobxredis.DefaultKeys() {
		t.Fatalf("unexpected keys %+v", q.Keys())
	}
}

func TestRedisQueue_PushReserveAck(t *testing.T) {
	q, mr := newQueue(t)
	ctx := context.Background()
	a, b := kernel.NewJobID(), kernel.NewJobID()

	if err := q.Push(ctx, a); err != nil {
		t.Fatalf("push: %v", err)
	}
	_ = q.Push(ctx, b)

	token, err := q.Reserve(ctx, time.Second)
	if err != nil || token != a.String() {
		t.Fatalf("expected first pushed id, got %q err=%v", token, err)
	}

	inflight, _ := q.InFlight(ctx)
	if len(inflight) != 1 || inflight[0] != a.String() {
		t.Fatalf("expected token in processing list, got %v", inflight)
	}
	if list, _ := mr.List("jobrunner:queue"); len(list) != 1 || list[0] != b.String() {
		t.Fatalf("unexpected queue contents %v", list)
	}

	if err := q.Ack(ctx, token); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if inflight, _ := q.InFlight(ctx); len(inflight) != 0 {
		t.Fatalf("ack left %v", inflight)
	}
}

func TestRedisQueue_ReserveTimeout(t *testing.T) {
	q, _ := newQueue(t)
	token, err := q.Reserve(context.Background(), 10*time.Millisecond)
	if err != nil || token != "" {
		t.Fatalf("expected empty reserve, got %q err=%v", token, err)
	}
}

func TestRedisQueue_ReserveKeepsRawToken(t *testing.T) {
	q, mr := newQueue(t)
	raw := ` {"job_id": "ABC"} `
	mr.Lpush("jobrunner:queue", raw)

	token, err := q.Reserve(context.Background(), time.Second)
	if err != nil || token != raw {
		t.Fatalf("token altered: %q err=%v", token, err)
	}
}

func TestRedisQueue_RestoreIsSingleShot(t *testing.T) {
	q, mr := newQueue(t)
	ctx := context.Background()
	id := kernel.NewJobID()
	other := kernel.NewJobID()
	_ = q.Push(ctx, id)
	token, _ := q.Reserve(ctx, time.Second)
	_ = q.Push(ctx, other)

	ok, err := q.Restore(ctx, token, id)
	if err != nil || !ok {
		t.Fatalf("first restore: ok=%v err=%v", ok, err)
	}
	ok, err = q.Restore(ctx, token, id)
	if err != nil || ok {
		t.Fatalf("second restore must be a no-op: ok=%v err=%v", ok, err)
	}

	list, _ := mr.List("jobrunner:queue")
	if len(list) != 2 || list[1] != id.String() {
		t.Fatalf("restored id must be next to pop, got %v", list)
	}
	if next, _ := q.Reserve(ctx, time.Second); next != id.String() {
		t.Fatalf("expected restored id first, got %q", next)
	}
}

func TestRedisQueue_PushAtAndPromote(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	due, later := kernel.NewJobID(), kernel.NewJobID()

	_ = q.PushAt(ctx, due, now.Add(-time.Millisecond))
	_ = q.PushAt(ctx, later, now.Add(time.Minute))

	n, err := q.PromoteDue(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 promoted, got %d err=%v", n, err)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Ready != 1 || stats.Scheduled != 1 || stats.InFlight != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if n, _ := q.PromoteDue(ctx, now.Add(time.Minute)); n != 1 {
		t.Fatalf("expected later id promoted at its due time, got %d", n)
	}
	if n, _ := q.PromoteDue(ctx, now.Add(time.Hour)); n != 0 {
		t.Fatalf("promoted twice: %d", n)
	}
}

func TestRedisQueue_ErrorsAreWrapped(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	q := jobxredis.NewRedisQueue(rdb, jobxredis.Keys{})

	err := q.Push(context.Background(), kernel.NewJobID())
	if !errx.IsCode(err, jobxredis.ErrPush) {
		t.Fatalf("expected push error, got %v", err)
	}
	if _, err := q.Stats(context.Background()); !errx.IsCode(err, jobxredis.ErrStats) {
		t.Fatalf("expected stats error, got %v", err)
	}
}

func TestRedisQueue_WorkerAndReaper(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	store := jobxmem.NewStore()
	registry := jobx.NewRegistry()
	registry.RegisterFunc("noop", func(context.Context, *jobx.Job) jobx.Outcome {
		return jobx.Succeeded(map[string]bool{"ok": true})
	})

	job, _, err := jobx.NewService(store, q).Submit(ctx, jobx.NewJob{Type: "noop"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// A worker that died right after popping.
	if token, _ := q.Reserve(ctx, time.Second); token != job.ID.String() {
		t.Fatalf("unexpected token %q", token)
	}

	report, err := jobx.NewReaper(store, q).Sweep(ctx)
	if err != nil || report.Restored != 1 {
		t.Fatalf("reaper: %+v err=%v", report, err)
	}

	ran, err := jobx.NewWorker(store, q, registry, jobx.WithReserveTimeout(time.Second)).ProcessNext(ctx)
	if err != nil || !ran {
		t.Fatalf("process: ran=%v err=%v", ran, err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Status != jobx.StatusSucceeded {
		t.Fatalf("unexpected status %s", got.Status)
	}
	if stats, _ := q.Stats(ctx); stats.Ready+stats.InFlight+stats.Scheduled != 0 {
		t.Fatalf("queue not drained: %+v", stats)
	}
}

func TestRedisQueue_SubMillisecondDueTimeRoundsUp(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 2, 700_000, time.UTC)
	_ = q.PushAt(ctx, kernel.NewJobID(), at)

	if n, _ := q.PromoteDue(ctx, at.Add(-400*time.Microsecond)); n != 0 {
		t.Fatalf("promoted before due: %d", n)
	}
	if n, _ := q.PromoteDue(ctx, at.Add(time.Millisecond)); n != 1 {
		t.Fatalf("expected promote once due, got %d", n)
	}
}

func TestRedisQueue_EarlyPromotedRetryIsRearmed(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 700_000, time.UTC)
	clock := func() time.Time { return now }
	store := jobxmem.NewStore(jobxmem.WithClock(clock))

	calls := 0
	registry := jobx.NewRegistry()
	registry.RegisterFunc("flaky", func(context.Context, *jobx.Job) jobx.Outcome {
		calls++
		if calls == 1 {
			return jobx.Failed("first try")
		}
		return jobx.Succeeded(nil)
	})
	job, _, err := jobx.NewService(store, q).Submit(ctx, jobx.NewJob{Type: "flaky", MaxAttempts: 3})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	w := jobx.NewWorker(store, q, registry,
		jobx.WithClock(clock),
		jobx.WithReserveTimeout(time.Second),
		jobx.WithBackoff(jobx.Backoff{Base: 2 * time.Second, Cap: time.Minute}))

	if ran, err := w.ProcessNext(ctx); !ran || err != nil {
		t.Fatalf("first attempt: ran=%v err=%v", ran, err)
	}
	got, _ := store.Get(ctx, job.ID)
	runAfter := *got.RunAfter

	// Promoted by a process whose clock is ahead of the store's.
	now = runAfter.Add(-time.Second)
	if n, _ := q.PromoteDue(ctx, now.Add(2*time.Second)); n != 1 {
		t.Fatalf("expected early promote, got %d", n)
	}
	if ran, _ := w.ProcessNext(ctx); ran {
		t.Fatal("claimed before run_after")
	}
	if stats, _ := q.Stats(ctx); stats.Ready != 0 || stats.InFlight != 0 || stats.Scheduled != 1 {
		t.Fatalf("expected the retry scheduled again, got %+v", stats)
	}

	now = runAfter.Add(time.Millisecond)
	if n, _ := q.PromoteDue(ctx, now); n != 1 {
		t.Fatalf("expected re-armed retry promoted, got %d", n)
	}
	if ran, _ := w.ProcessNext(ctx); !ran {
		t.Fatal("re-armed retry not processed")
	}
	if got, _ := store.Get(ctx, job.ID); got.Status != jobx.StatusSucceeded || got.Attempts != 2 {
		t.Fatalf("unexpected state %s attempts=%d", got.Status, got.Attempts)
	}
}
