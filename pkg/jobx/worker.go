package jobx

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/asyncx"
	"github.com/Abraxas-365/jobrunner/pkg/errx"
	"github.com/Abraxas-365/jobrunner/pkg/kernel"
	"github.com/Abraxas-365/jobrunner/pkg/logx"
)

const (
	ackAttempts = 3
	ackDelay    = 100 * time.Millisecond
)

// Worker pops job ids from the dispatch queue, claims them in the store,
// runs their handler and records the outcome.
type Worker struct {
	store    Store
	queue    Queue
	registry *Registry
	opts     WorkerOptions

	mu      sync.Mutex
	running bool
}

func NewWorker(store Store, queue Queue, registry *Registry, options ...WorkerOption) *Worker {
	opts := defaultWorkerOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Worker{
		store:    store,
		queue:    queue,
		registry: registry,
		opts:     opts,
	}
}

// Start runs the worker loops and the retry promoter. It blocks until ctx is
// cancelled and in-progress jobs finish or the shutdown timeout passes.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return jobxErrors.New(ErrAlreadyRunning)
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	logx.Infof("jobx: starting %d workers for types %v", w.opts.Concurrency, w.registry.Types())

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.schedulerLoop(ctx)
	}()

	for i := range w.opts.Concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.workerLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()
	logx.Info("jobx: shutting down workers...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("jobx: all workers stopped")
		return nil
	case <-time.After(w.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out, some jobs may not have completed")
		return jobxErrors.New(ErrShutdownTimeout).WithDetail("timeout", w.opts.ShutdownTimeout.String())
	}
}

func (w *Worker) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.PromoteDue(ctx, w.opts.Now())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logx.WithError(err).Warn("jobx: failed to promote scheduled jobs")
				continue
			}
			if n > 0 {
				logx.Debugf("jobx: promoted %d scheduled jobs", n)
			}
		}
	}
}

func (w *Worker) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := w.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).Warnf("jobx: worker %d reserve error", id)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.opts.PollInterval):
			}
		}
	}
}

// ProcessNext runs one reserve, claim, execute, finalize and acknowledge
// cycle. It reports whether a handler ran. Only dispatch queue errors are
// returned; everything past the reserve is logged and absorbed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	token, err := w.queue.Reserve(ctx, w.opts.ReserveTimeout)
	if err != nil {
		return false, err
	}
	if token == "" {
		if w.opts.FallbackPoll {
			return w.pollStore(ctx), nil
		}
		return false, nil
	}
	return w.handleToken(ctx, token), nil
}

func (w *Worker) handleToken(ctx context.Context, token string) bool {
	id, err := ParseToken(token)
	if err != nil {
		logx.WithError(err).WithField("token", token).Warn("jobx: dropping malformed queue token")
		w.ack(ctx, token)
		return false
	}

	job, err := w.store.ClaimByID(ctx, id)
	if err != nil {
		// The token stays in flight; the reaper re-pushes it once the store is reachable.
		logx.WithError(err).WithField("job_id", id).Error("jobx: claim failed")
		return false
	}
	if job == nil {
		if keep := w.rearmEarly(ctx, id); keep {
			return false
		}
		w.ack(ctx, token)
		return false
	}

	if keep := w.run(ctx, job); keep {
		return true
	}
	w.ack(ctx, token)
	return true
}

// rearmEarly handles a claim that found nothing. A queued row whose signal
// came before run_after by the store's clock is scheduled again; acking alone
// would leave it with no signal anywhere. It reports whether the token must
// stay in flight because the row could not be checked or re-armed.
func (w *Worker) rearmEarly(ctx context.Context, id kernel.JobID) bool {
	job, err := w.store.Get(ctx, id)
	if err != nil {
		if errx.IsCode(err, ErrJobNotFound) {
			return false
		}
		logx.WithError(err).WithField("job_id", id).Warn("jobx: could not check unclaimed job, leaving token for the reaper")
		return true
	}
	if job.Status != StatusQueued || job.RunAfter == nil || job.Exhausted() {
		logx.WithField("job_id", id).Debug("jobx: nothing to claim, signal was stale")
		return false
	}

	at := *job.RunAfter
	if now := w.opts.Now(); !at.After(now) {
		// Due by our clock but not by the store's.
		at = now.Add(w.opts.PollInterval)
	}
	if err := w.queue.PushAt(ctx, id, at); err != nil {
		logx.WithError(err).WithFields(jobFields(job)).Error("jobx: failed to re-arm early signal, leaving token for the reaper")
		return true
	}
	logx.WithFields(jobFields(job)).
		WithField("run_after", at.Format(time.RFC3339Nano)).
		Debug("jobx: signal arrived before run_after, re-armed")
	return false
}

func (w *Worker) pollStore(ctx context.Context) bool {
	job, err := w.store.ClaimNext(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logx.WithError(err).Warn("jobx: claim-next poll failed")
		}
		return false
	}
	if job == nil {
		return false
	}
	logx.WithFields(jobFields(job)).Info("jobx: claimed job without queue signal")
	w.run(ctx, job)
	return true
}

// run executes a claimed job and finalizes it. It reports whether the queue
// token must stay in flight because the retry could not be re-armed.
func (w *Worker) run(ctx context.Context, job *Job) bool {
	w.opts.Metrics.JobClaimed(job.Type)
	logx.WithFields(jobFields(job)).Info("jobx: job claimed")

	start := w.opts.Now()
	out := w.registry.Execute(ctx, job)
	elapsed := w.opts.Now().Sub(start)

	// Finalize even when shutdown cancelled ctx mid-handler.
	return w.finalize(context.WithoutCancel(ctx), job, out, elapsed)
}

func (w *Worker) finalize(ctx context.Context, job *Job, out Outcome, elapsed time.Duration) bool {
	fields := jobFields(job)

	if out.OK() {
		if err := w.store.Complete(ctx, job, out.Result()); err != nil {
			w.logFinalizeError(err, fields, "complete")
			return false
		}
		w.opts.Metrics.JobSucceeded(job.Type, elapsed)
		logx.WithFields(fields).WithField("elapsed", elapsed.String()).Info("jobx: job succeeded")
		return false
	}

	if job.Exhausted() {
		if err := w.store.Fail(ctx, job, out.Message()); err != nil {
			w.logFinalizeError(err, fields, "fail")
			return false
		}
		w.opts.Metrics.JobFailed(job.Type, elapsed)
		logx.WithFields(fields).WithField("error", out.Message()).Warn("jobx: job failed permanently")
		w.notifyFailed(ctx, job, out.Message())
		return false
	}

	delay := w.opts.Backoff.Delay(job.Attempts)
	runAfter, err := w.store.Retry(ctx, job, out.Message(), delay)
	if err != nil {
		w.logFinalizeError(err, fields, "retry")
		return false
	}
	w.opts.Metrics.JobRetryScheduled(job.Type, elapsed)
	logx.WithFields(fields).
		WithField("error", out.Message()).
		WithField("run_after", runAfter.Format(time.RFC3339)).
		Warn("jobx: job failed, retry scheduled")

	if err := w.queue.PushAt(ctx, job.ID, runAfter); err != nil {
		logx.WithError(err).WithFields(fields).Error("jobx: failed to re-arm retry, leaving token for the reaper")
		return true
	}
	return false
}

func (w *Worker) logFinalizeError(err error, fields logx.Fields, op string) {
	if errx.IsCode(err, ErrNotOwned) {
		logx.WithFields(fields).Warnf("jobx: %s skipped, attempt no longer owned", op)
		return
	}
	logx.WithError(err).WithFields(fields).Errorf("jobx: %s failed", op)
}

func (w *Worker) notifyFailed(ctx context.Context, job *Job, message string) {
	if w.opts.Notifier == nil {
		return
	}

	now := w.opts.Now()
	failed := *job
	failed.Status = StatusFailed
	failed.Error = &message
	failed.LastError = &message
	failed.LastErrorAt = &now
	failed.FailedAt = &now
	failed.RunAfter = nil

	if err := w.opts.Notifier.NotifyFailed(ctx, &failed); err != nil {
		logx.WithError(err).WithFields(jobFields(job)).Warn("jobx: failure notification not sent")
	}
}

func (w *Worker) ack(ctx context.Context, token string) {
	_, err := asyncx.RetryWithBackoff(context.WithoutCancel(ctx), ackAttempts, ackDelay,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.queue.Ack(ctx, token)
		})
	if err != nil {
		logx.WithError(err).WithField("token", token).Error("jobx: failed to acknowledge queue token")
	}
}

func jobFields(job *Job) logx.Fields {
	return logx.Fields{
		"job_id":   job.ID,
		"job_type": job.Type,
		"attempts": job.Attempts,
	}
}
