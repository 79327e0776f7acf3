package jobx

import "time"

// WorkerOptions configures the worker loops.
type WorkerOptions struct {
	Concurrency     int
	ReserveTimeout  time.Duration
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	Backoff         Backoff

	// FallbackPoll makes an idle worker try ClaimNext after a reserve timeout,
	// for rows whose queue signal was lost. On by default.
	FallbackPoll bool

	Metrics  Metrics
	Notifier FailureNotifier
	Now      func() time.Time
}

func defaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		Concurrency:     4,
		ReserveTimeout:  5 * time.Second,
		PollInterval:    time.Second,
		ShutdownTimeout: 30 * time.Second,
		Backoff:         DefaultBackoff(),
		FallbackPoll:    true,
		Metrics:         NopMetrics(),
		Now:             time.Now,
	}
}

// WorkerOption is a functional option for configuring the worker.
type WorkerOption func(*WorkerOptions)

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) WorkerOption {
	return func(o *WorkerOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithReserveTimeout bounds each blocking reserve on the dispatch queue.
func WithReserveTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		if d > 0 {
			o.ReserveTimeout = d
		}
	}
}

// WithPollInterval sets how often delayed retries are promoted, and how long
// a worker sleeps after a queue error.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-progress jobs on shutdown.
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.ShutdownTimeout = d
	}
}

func WithBackoff(b Backoff) WorkerOption {
	return func(o *WorkerOptions) {
		o.Backoff = b
	}
}

func WithFallbackPoll(enabled bool) WorkerOption {
	return func(o *WorkerOptions) {
		o.FallbackPoll = enabled
	}
}

func WithMetrics(m Metrics) WorkerOption {
	return func(o *WorkerOptions) {
		if m != nil {
			o.Metrics = m
		}
	}
}

// WithFailureNotifier registers n to hear about permanently failed jobs.
func WithFailureNotifier(n FailureNotifier) WorkerOption {
	return func(o *WorkerOptions) {
		o.Notifier = n
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) WorkerOption {
	return func(o *WorkerOptions) {
		if now != nil {
			o.Now = now
		}
	}
}

// ReaperOptions configures the reaper.
type ReaperOptions struct {
	Interval time.Duration

	// Grace is how long a token must have been seen in flight before it is
	// restored. Zero restores on first sight.
	Grace time.Duration

	// StaleRunningAfter enables recovery of rows left running by dead
	// workers. Zero disables it. Running rows carry no heartbeat, so a live
	// handler that outlasts this window is recovered and runs again; keep it
	// above the longest expected handler runtime.
	StaleRunningAfter time.Duration

	Metrics  Metrics
	Notifier FailureNotifier
	Now      func() time.Time
}

func defaultReaperOptions() ReaperOptions {
	return ReaperOptions{
		Interval:          5 * time.Second,
		StaleRunningAfter: 15 * time.Minute,
		Metrics:           NopMetrics(),
		Now:               time.Now,
	}
}

// ReaperOption is a functional option for configuring the reaper.
type ReaperOption func(*ReaperOptions)

func WithReapInterval(d time.Duration) ReaperOption {
	return func(o *ReaperOptions) {
		if d > 0 {
			o.Interval = d
		}
	}
}

func WithReapGrace(d time.Duration) ReaperOption {
	return func(o *ReaperOptions) {
		if d >= 0 {
			o.Grace = d
		}
	}
}

func WithStaleRunningAfter(d time.Duration) ReaperOption {
	return func(o *ReaperOptions) {
		if d >= 0 {
			o.StaleRunningAfter = d
		}
	}
}

func WithReaperMetrics(m Metrics) ReaperOption {
	return func(o *ReaperOptions) {
		if m != nil {
			o.Metrics = m
		}
	}
}

// WithReaperNotifier reports stale running rows that recovery fails for good.
func WithReaperNotifier(n FailureNotifier) ReaperOption {
	return func(o *ReaperOptions) {
		o.Notifier = n
	}
}

func WithReaperClock(now func() time.Time) ReaperOption {
	return func(o *ReaperOptions) {
		if now != nil {
			o.Now = now
		}
	}
}

// ServiceOptions configures submission.
type ServiceOptions struct {
	DefaultMaxAttempts int
	Metrics            Metrics
}

func defaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		DefaultMaxAttempts: 5,
		Metrics:            NopMetrics(),
	}
}

type ServiceOption func(*ServiceOptions)

func WithDefaultMaxAttempts(n int) ServiceOption {
	return func(o *ServiceOptions) {
		if n >= MinMaxAttempts && n <= MaxMaxAttempts {
			o.DefaultMaxAttempts = n
		}
	}
}

func WithServiceMetrics(m Metrics) ServiceOption {
	return func(o *ServiceOptions) {
		if m != nil {
			o.Metrics = m
		}
	}
}
