package jobx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/errx"
	"github.com/Abraxas-365/jobrunner/pkg/logx"
)

// Reap reasons reported to Metrics.JobsReaped.
const (
	ReapRestored      = "restored"
	ReapDiscarded     = "discarded"
	ReapStaleRequeued = "stale_requeued"
	ReapStaleFailed   = "stale_failed"
)

// ReapReport summarizes one sweep.
type ReapReport struct {
	Scanned     int
	Restored    int
	Discarded   int
	Left        int
	StaleQueued int
	StaleFailed int
}

// Reaper reconciles the in-flight marker with the store. Tokens whose job is
// gone or unreadable are dropped, tokens whose job is queued and eligible
// are pushed back, and everything else is left for its worker.
type Reaper struct {
	store Store
	queue Queue
	opts  ReaperOptions

	mu        sync.Mutex
	firstSeen map[string]time.Time
}

func NewReaper(store Store, queue Queue, options ...ReaperOption) *Reaper {
	opts := defaultReaperOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Reaper{
		store:     store,
		queue:     queue,
		opts:      opts,
		firstSeen: make(map[string]time.Time),
	}
}

// Run sweeps on every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	logx.Infof("jobx: reaper started (interval=%s, grace=%s, stale_running_after=%s)",
		r.opts.Interval, r.opts.Grace, r.opts.StaleRunningAfter)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logx.Info("jobx: reaper stopped")
			return nil
		case <-ticker.C:
			report, err := r.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logx.WithError(err).Warn("jobx: reaper sweep failed")
			}
			if report.Restored+report.Discarded+report.StaleQueued+report.StaleFailed > 0 {
				logx.WithFields(logx.Fields{
					"scanned":      report.Scanned,
					"restored":     report.Restored,
					"discarded":    report.Discarded,
					"stale_queued": report.StaleQueued,
					"stale_failed": report.StaleFailed,
				}).Info("jobx: reaper sweep")
			}
		}
	}
}

// Sweep makes one pass over the in-flight marker, then recovers stale
// running rows when that is enabled.
func (r *Reaper) Sweep(ctx context.Context) (ReapReport, error) {
	var report ReapReport

	tokens, err := r.queue.InFlight(ctx)
	if err != nil {
		return report, err
	}

	now := r.opts.Now()
	seen := make(map[string]struct{}, len(tokens))

	for _, token := range tokens {
		report.Scanned++
		seen[token] = struct{}{}

		id, err := ParseToken(token)
		if err != nil {
			if r.discard(ctx, token, err) {
				report.Discarded++
			}
			continue
		}

		job, err := r.store.Get(ctx, id)
		if err != nil {
			if errx.IsCode(err, ErrJobNotFound) {
				if r.discard(ctx, token, err) {
					report.Discarded++
				}
				continue
			}
			logx.WithError(err).WithField("job_id", id).Warn("jobx: reaper could not load job")
			report.Left++
			continue
		}

		if !job.Eligible(now) || !r.graceElapsed(token, now) {
			report.Left++
			continue
		}

		restored, err := r.queue.Restore(ctx, token, id)
		if err != nil {
			logx.WithError(err).WithField("job_id", id).Warn("jobx: reaper restore failed")
			report.Left++
			continue
		}
		if restored {
			report.Restored++
			r.forget(token)
			logx.WithFields(jobFields(job)).Info("jobx: restored orphaned job")
		}
	}
	r.prune(seen)

	r.opts.Metrics.JobsReaped(ReapRestored, report.Restored)
	r.opts.Metrics.JobsReaped(ReapDiscarded, report.Discarded)

	if r.opts.StaleRunningAfter > 0 {
		if err := r.recoverStale(ctx, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (r *Reaper) recoverStale(ctx context.Context, report *ReapReport) error {
	message := fmt.Sprintf("abandoned: running for more than %s", r.opts.StaleRunningAfter)
	recovered, err := r.store.RecoverStale(ctx, r.opts.StaleRunningAfter, message)
	if err != nil {
		return err
	}

	for _, rec := range recovered {
		fields := logx.Fields{"job_id": rec.ID, "job_type": rec.Type, "status": rec.Status}
		if rec.Status != StatusQueued {
			report.StaleFailed++
			logx.WithFields(fields).Warn("jobx: stale running job failed, attempts exhausted")
			r.notifyFailed(ctx, rec)
			continue
		}
		report.StaleQueued++
		if err := r.queue.Push(ctx, rec.ID); err != nil {
			logx.WithError(err).WithFields(fields).Error("jobx: failed to signal recovered job")
			continue
		}
		logx.WithFields(fields).Warn("jobx: stale running job requeued")
	}

	r.opts.Metrics.JobsReaped(ReapStaleRequeued, report.StaleQueued)
	r.opts.Metrics.JobsReaped(ReapStaleFailed, report.StaleFailed)
	return nil
}

func (r *Reaper) notifyFailed(ctx context.Context, rec Recovered) {
	if r.opts.Notifier == nil {
		return
	}
	job, err := r.store.Get(ctx, rec.ID)
	if err != nil {
		logx.WithError(err).WithField("job_id", rec.ID).Warn("jobx: failure notification not sent")
		return
	}
	if err := r.opts.Notifier.NotifyFailed(ctx, job); err != nil {
		logx.WithError(err).WithFields(jobFields(job)).Warn("jobx: failure notification not sent")
	}
}

func (r *Reaper) discard(ctx context.Context, token string, cause error) bool {
	if err := r.queue.Ack(ctx, token); err != nil {
		logx.WithError(err).WithField("token", token).Warn("jobx: reaper could not drop token")
		return false
	}
	r.forget(token)
	logx.WithError(cause).WithField("token", token).Info("jobx: reaper dropped token")
	return true
}

func (r *Reaper) graceElapsed(token string, now time.Time) bool {
	if r.opts.Grace <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	first, ok := r.firstSeen[token]
	if !ok {
		r.firstSeen[token] = now
		return false
	}
	return now.Sub(first) >= r.opts.Grace
}

func (r *Reaper) forget(token string) {
	r.mu.Lock()
	delete(r.firstSeen, token)
	r.mu.Unlock()
}

func (r *Reaper) prune(seen map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token := range r.firstSeen {
		if _, ok := seen[token]; !ok {
			delete(r.firstSeen, token)
		}
	}
}
