package config

import "time"

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// JobxConfig configures the job engine: workers, reaper, retries and queue keys.
type JobxConfig struct {
	Backend string `env:"JOBX_BACKEND" envDefault:"postgres"`

	Concurrency     int           `env:"JOBX_CONCURRENCY"      envDefault:"4"`
	DequeueTimeout  time.Duration `env:"JOBX_DEQUEUE_TIMEOUT"  envDefault:"5s"`
	PollInterval    time.Duration `env:"JOBX_POLL_INTERVAL"    envDefault:"1s"`
	ShutdownTimeout time.Duration `env:"JOBX_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	FallbackPoll    bool          `env:"JOBX_FALLBACK_POLL"    envDefault:"true"`

	ReapInterval      time.Duration `env:"JOBX_REAP_INTERVAL"       envDefault:"5s"`
	ReapGrace         time.Duration `env:"JOBX_REAP_GRACE"          envDefault:"0s"`
	// Running rows have no heartbeat; keep this above the longest handler
	// runtime or live jobs are recovered and executed again.
	StaleRunningAfter time.Duration `env:"JOBX_STALE_RUNNING_AFTER" envDefault:"15m"`

	MaxAttempts   int           `env:"JOBX_MAX_ATTEMPTS"   envDefault:"5"`
	BackoffBase   time.Duration `env:"JOBX_BACKOFF_BASE"   envDefault:"2s"`
	BackoffCap    time.Duration `env:"JOBX_BACKOFF_CAP"    envDefault:"60s"`
	BackoffJitter float64       `env:"JOBX_BACKOFF_JITTER" envDefault:"0.3"`

	QueueKey      string `env:"JOBX_QUEUE_KEY"      envDefault:"jobrunner:queue"`
	ProcessingKey string `env:"JOBX_PROCESSING_KEY" envDefault:"jobrunner:processing"`
	ScheduledKey  string `env:"JOBX_SCHEDULED_KEY"  envDefault:"jobrunner:scheduled"`
}

func (c JobxConfig) validate() error {
	switch c.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return invalid("JOBX_BACKEND", "must be postgres or memory")
	}
	if c.Concurrency < 1 {
		return invalid("JOBX_CONCURRENCY", "must be at least 1")
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 100 {
		return invalid("JOBX_MAX_ATTEMPTS", "must be between 1 and 100")
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return invalid("JOBX_BACKOFF_CAP", "must be positive and not below JOBX_BACKOFF_BASE")
	}
	if c.BackoffJitter < 0 || c.BackoffJitter > 1 {
		return invalid("JOBX_BACKOFF_JITTER", "must be between 0 and 1")
	}
	if c.QueueKey == c.ProcessingKey || c.QueueKey == c.ScheduledKey || c.ProcessingKey == c.ScheduledKey {
		return invalid("JOBX_QUEUE_KEY", "queue, processing and scheduled keys must differ")
	}
	return nil
}
