package jobx_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

// reserveOnly pops a token the way a worker does and then "crashes".
func reserveOnly(t *testing.T, h *harness) string {
	t.Helper()
	token, err := h.queue.Reserve(context.Background(), 10*time.Millisecond)
	if err != nil || token == "" {
		t.Fatalf("reserve: %q err=%v", token, err)
	}
	return token
}

func TestReaper_RestoresOrphanedQueuedJob(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "noop", 3)
	reserveOnly(t, h)

	report, err := h.reaper().Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Scanned != 1 || report.Restored != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(h.inFlight(t)) != 0 {
		t.Fatal("marker not cleared")
	}
	if ready := h.queue.Ready(); len(ready) != 1 || ready[0] != job.ID.String() {
		t.Fatalf("expected job back on the queue, got %v", ready)
	}
}

func TestReaper_LeavesRunningAndDelayedJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	running := h.submit(t, "noop", 3)
	reserveOnly(t, h)
	if c, _ := h.store.ClaimByID(ctx, running.ID); c == nil {
		t.Fatal("claim failed")
	}

	delayed := h.submit(t, "noop", 3)
	reserveOnly(t, h)
	claimed, _ := h.store.ClaimByID(ctx, delayed.ID)
	if _, err := h.store.Retry(ctx, claimed, "later", time.Hour); err != nil {
		t.Fatalf("retry: %v", err)
	}

	report, _ := h.reaper(jobx.WithStaleRunningAfter(0)).Sweep(ctx)
	if report.Left != 2 || report.Restored != 0 || report.Discarded != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(h.inFlight(t)) != 2 {
		t.Fatal("reaper touched markers it should leave alone")
	}
}

func TestReaper_DiscardsUnparseableAndUnknown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.queue.PushRaw(ctx, "garbage")
	_ = h.queue.Push(ctx, kernel.NewJobID())
	reserveOnly(t, h)
	reserveOnly(t, h)

	report, _ := h.reaper().Sweep(ctx)
	if report.Discarded != 2 {
		t.Fatalf("expected 2 discarded, got %+v", report)
	}
	if len(h.inFlight(t)) != 0 || len(h.queue.Ready()) != 0 {
		t.Fatal("discarded tokens must not be re-pushed")
	}
}

func TestReaper_GracePeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "noop", 3)
	reserveOnly(t, h)

	reaper := h.reaper(jobx.WithReapGrace(30 * time.Second))
	if report, _ := reaper.Sweep(ctx); report.Restored != 0 {
		t.Fatal("restored on first sighting despite grace")
	}
	h.clock.Advance(10 * time.Second)
	if report, _ := reaper.Sweep(ctx); report.Restored != 0 {
		t.Fatal("restored before grace elapsed")
	}
	h.clock.Advance(20 * time.Second)
	if report, _ := reaper.Sweep(ctx); report.Restored != 1 {
		t.Fatal("not restored after grace elapsed")
	}
}

func TestReaper_ConcurrentSweepsRestoreOnce(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "noop", 3)
	reserveOnly(t, h)

	const reapers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		restored int
	)
	wg.Add(reapers)
	for range reapers {
		go func() {
			defer wg.Done()
			report, err := h.reaper().Sweep(context.Background())
			if err != nil {
				t.Errorf("sweep: %v", err)
				return
			}
			mu.Lock()
			restored += report.Restored
			mu.Unlock()
		}()
	}
	wg.Wait()

	if restored != 1 {
		t.Fatalf("expected a single restore, got %d", restored)
	}
	if ready := h.queue.Ready(); len(ready) != 1 {
		t.Fatalf("expected one queued token, got %v", ready)
	}
}

func TestReaper_RecoversStaleRunningJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	retryable := h.submit(t, "noop", 3)
	exhausted := h.submit(t, "noop", 1)
	for _, id := range []kernel.JobID{retryable.ID, exhausted.ID} {
		if c, _ := h.store.ClaimByID(ctx, id); c == nil {
			t.Fatal("claim failed")
		}
	}
	// Drop the submission signals so only recovery can re-push.
	for range 2 {
		_ = h.queue.Ack(ctx, reserveOnly(t, h))
	}
	h.clock.Advance(20 * time.Minute)

	report, err := h.reaper(jobx.WithStaleRunningAfter(15 * time.Minute)).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.StaleQueued != 1 || report.StaleFailed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := h.get(t, retryable.ID); got.Status != jobx.StatusQueued || got.LastError == nil {
		t.Fatalf("retryable job not requeued: %s", got.Status)
	}
	if got := h.get(t, exhausted.ID); got.Status != jobx.StatusFailed || got.RunAfter != nil {
		t.Fatalf("exhausted job not failed: %s", got.Status)
	}
	if ready := h.queue.Ready(); len(ready) != 1 || ready[0] != retryable.ID.String() {
		t.Fatalf("expected recovered job signalled, got %v", ready)
	}
}

func TestReaper_StaleFailureIsNotified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	retryable := h.submit(t, "noop", 3)
	exhausted := h.submit(t, "noop", 1)
	for _, id := range []kernel.JobID{retryable.ID, exhausted.ID} {
		if c, _ := h.store.ClaimByID(ctx, id); c == nil {
			t.Fatal("claim failed")
		}
	}
	h.clock.Advance(20 * time.Minute)

	notifier := &recordingNotifier{}
	reaper := h.reaper(jobx.WithStaleRunningAfter(15*time.Minute), jobx.WithReaperNotifier(notifier))
	if _, err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(notifier.jobs) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.jobs))
	}
	got := notifier.jobs[0]
	if got.ID != exhausted.ID || got.Status != jobx.StatusFailed || got.Error == nil {
		t.Fatalf("unexpected notified job %+v", got)
	}
}

func TestReaper_ConvergesAfterCrashedWorkers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registry.RegisterFunc("noop", func(context.Context, *jobx.Job) jobx.Outcome { return jobx.Succeeded(nil) })

	var ids []kernel.JobID
	for range 5 {
		ids = append(ids, h.submit(t, "noop", 3).ID)
	}
	for range 3 {
		reserveOnly(t, h)
	}

	// Signal path only: a claim-any poll could run a job whose token is still
	// held by a dead reserver, and that token then stays for its terminal row.
	reaper := h.reaper()
	w := h.worker(jobx.WithFallbackPoll(false))
	for range 10 {
		_, _ = reaper.Sweep(ctx)
		for {
			ran, _ := w.ProcessNext(ctx)
			if !ran {
				break
			}
		}
	}

	for _, id := range ids {
		if got := h.get(t, id); got.Status != jobx.StatusSucceeded || got.Attempts != 1 {
			t.Fatalf("job %s: status=%s attempts=%d", id, got.Status, got.Attempts)
		}
	}
	if len(h.inFlight(t)) != 0 {
		t.Fatal("in-flight marker did not drain")
	}
}

func TestReaper_EarlyRestoreIsRearmedByWorker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registry.RegisterFunc("always_fail", alwaysFail)
	w := h.worker()
	job := h.submit(t, "always_fail", 3)
	_, _ = w.ProcessNext(ctx)
	runAfter := *h.get(t, job.ID).RunAfter

	// Promoted, then popped by a worker that died before claiming.
	if n, _ := h.queue.PromoteDue(ctx, runAfter); n != 1 {
		t.Fatalf("expected promote, got %d", n)
	}
	reserveOnly(t, h)

	// The reaper's clock runs a second ahead, so it restores before run_after
	// by the store's clock.
	h.clock.Advance(runAfter.Sub(h.clock.Now()) - 500*time.Millisecond)
	ahead := func() time.Time { return h.clock.Now().Add(time.Second) }
	if report, _ := h.reaper(jobx.WithReaperClock(ahead)).Sweep(ctx); report.Restored != 1 {
		t.Fatalf("expected restore, got %+v", report)
	}
	if ran, _ := w.ProcessNext(ctx); ran {
		t.Fatal("claimed before run_after")
	}
	stats, _ := h.queue.Stats(ctx)
	if stats.Ready != 0 || stats.InFlight != 0 || stats.Scheduled != 1 {
		t.Fatalf("expected the retry scheduled again, got %+v", stats)
	}

	h.clock.Advance(time.Second)
	if n, _ := h.queue.PromoteDue(ctx, h.clock.Now()); n != 1 {
		t.Fatalf("expected re-armed retry promoted, got %d", n)
	}
	if ran, _ := w.ProcessNext(ctx); !ran {
		t.Fatal("re-armed retry not processed")
	}
	if got := h.get(t, job.ID); got.Attempts != 2 {
		t.Fatalf("expected second attempt, got %d", got.Attempts)
	}
}
