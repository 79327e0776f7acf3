// Composition root. Owns infrastructure (DB, Redis, file storage) and wires
// the job engine on top of it. This is the only place that knows about every
// package.
package main

import (
	"context"
	"fmt"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/jobrunner/pkg/auth"
	"github.com/Abraxas-365/jobrunner/pkg/config"
	"github.com/Abraxas-365/jobrunner/pkg/fsx"
	"github.com/Abraxas-365/jobrunner/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/jobrunner/pkg/fsx/fsxs3"
	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxapi"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxmem"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxnotify"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxpg"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxprom"
	"github.com/Abraxas-365/jobrunner/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/jobrunner/pkg/logx"
	"github.com/Abraxas-365/jobrunner/pkg/notifx"
	"github.com/Abraxas-365/jobrunner/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/jobrunner/pkg/notifx/notifxses"
	"github.com/Abraxas-365/jobrunner/pkg/tasks"
)

// Container holds shared infrastructure and the wired job engine.
type Container struct {
	Config *config.Config

	// Infrastructure; DB and Redis stay nil on the memory backend.
	DB         *sqlx.DB
	Redis      *redis.Client
	FileSystem fsx.FileReader
	Prometheus *prometheus.Registry

	// Job engine
	Store    jobx.Store
	Queue    jobx.Queue
	Registry *jobx.Registry
	Metrics  *jobxprom.Metrics
	Notifier jobx.FailureNotifier
	Service  *jobx.Service

	// API
	Tokens *auth.JWTService
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}
	steps := []func(context.Context) error{
		c.initInfrastructure,
		c.initFileStorage,
		c.initMetrics,
		c.initNotifier,
		c.initEngine,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			c.Cleanup()
			return nil, err
		}
	}

	if cfg.Auth.Enabled() {
		c.Tokens = auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.JWTIssuer)
	}

	logx.Info("✅ Application container initialized")
	return c, nil
}

// ---------------------------------------------------------------------------
// Infrastructure: DB, Redis and the job store/queue pair
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure(ctx context.Context) error {
	if c.Config.Jobx.Backend == config.BackendMemory {
		logx.Warn("  ⚠️  Memory backend selected: jobs live in this process only")
		c.Store = jobxmem.NewStore()
		c.Queue = jobxmem.NewQueue()
		return nil
	}

	db, err := openDB(c.Config.Database)
	if err != nil {
		return err
	}
	c.DB = db
	logx.Info("  ✅ Database connected")

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logx.Info("  ✅ Redis connected")

	c.Store = jobxpg.NewPostgresStore(db)
	c.Queue = jobxredis.NewRedisQueue(c.Redis, jobxredis.Keys{
		Queue:      c.Config.Jobx.QueueKey,
		Processing: c.Config.Jobx.ProcessingKey,
		Scheduled:  c.Config.Jobx.ScheduledKey,
	})
	return nil
}

func openDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func (c *Container) initFileStorage(ctx context.Context) error {
	files, err := openFileStorage(ctx, c.Config.Storage)
	if err != nil {
		return err
	}
	c.FileSystem = files
	return nil
}

// openFileStorage builds the reader handlers resolve payload paths against.
func openFileStorage(ctx context.Context, storage config.StorageConfig) (fsx.FileReader, error) {
	switch storage.Mode {
	case config.StorageS3:
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(storage.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
		}
		logx.Infof("  ✅ S3 file system configured (bucket: %s, region: %s)", storage.AWSBucket, storage.AWSRegion)
		return fsxs3.NewS3FileSystem(s3.NewFromConfig(awsCfg), storage.AWSBucket, storage.S3Prefix), nil

	default:
		localFS, err := fsxlocal.NewLocalFileSystem(storage.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local file system: %w", err)
		}
		logx.Infof("  ✅ Local file system configured (path: %s)", localFS.BasePath())
		return localFS, nil
	}
}

func (c *Container) initMetrics(context.Context) error {
	c.Prometheus = prometheus.NewRegistry()
	c.Prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := jobxprom.New(c.Prometheus)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	c.Metrics = m
	return nil
}

func (c *Container) initNotifier(ctx context.Context) error {
	cfg := c.Config.Notifx
	if !cfg.Enabled() {
		logx.Info("  ℹ️  Failure alerts disabled")
		return nil
	}

	var provider notifx.EmailSender
	switch cfg.Provider {
	case config.NotifxSES:
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return fmt.Errorf("unable to load AWS SDK config: %w", err)
		}
		provider = notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), cfg.FromAddress)
	default:
		provider = notifxconsole.NewConsoleProvider()
	}

	notifier, err := jobxnotify.NewEmailNotifier(notifx.NewClient(provider), cfg.FromAddress, cfg.AlertTo,
		notifx.WithConfigurationSet(cfg.ConfigurationSet))
	if err != nil {
		return err
	}
	c.Notifier = notifier
	logx.Infof("  ✅ Failure alerts via %s to %v", cfg.Provider, cfg.AlertTo)
	return nil
}

// ---------------------------------------------------------------------------
// Job engine
// ---------------------------------------------------------------------------

func (c *Container) initEngine(context.Context) error {
	c.Registry = jobx.NewRegistry()
	tasks.Register(c.Registry, c.FileSystem)

	c.Service = jobx.NewService(c.Store, c.Queue,
		jobx.WithDefaultMaxAttempts(c.Config.Jobx.MaxAttempts),
		jobx.WithServiceMetrics(c.Metrics),
	)
	logx.Infof("  ✅ Job engine ready (backend: %s, types: %v)", c.Config.Jobx.Backend, c.Registry.Types())
	return nil
}

// NewWorker builds a worker from the JOBX_* settings.
func (c *Container) NewWorker() *jobx.Worker {
	cfg := c.Config.Jobx
	opts := []jobx.WorkerOption{
		jobx.WithConcurrency(cfg.Concurrency),
		jobx.WithReserveTimeout(cfg.DequeueTimeout),
		jobx.WithPollInterval(cfg.PollInterval),
		jobx.WithShutdownTimeout(cfg.ShutdownTimeout),
		jobx.WithBackoff(jobx.Backoff{
			Base:        cfg.BackoffBase,
			Cap:         cfg.BackoffCap,
			JitterRatio: cfg.BackoffJitter,
		}),
		jobx.WithFallbackPoll(cfg.FallbackPoll),
		jobx.WithMetrics(c.Metrics),
	}
	if c.Notifier != nil {
		opts = append(opts, jobx.WithFailureNotifier(c.Notifier))
	}
	return jobx.NewWorker(c.Store, c.Queue, c.Registry, opts...)
}

// NewReaper builds a reaper from the JOBX_* settings.
func (c *Container) NewReaper() *jobx.Reaper {
	cfg := c.Config.Jobx
	opts := []jobx.ReaperOption{
		jobx.WithReapInterval(cfg.ReapInterval),
		jobx.WithReapGrace(cfg.ReapGrace),
		jobx.WithStaleRunningAfter(cfg.StaleRunningAfter),
		jobx.WithReaperMetrics(c.Metrics),
	}
	if c.Notifier != nil {
		opts = append(opts, jobx.WithReaperNotifier(c.Notifier))
	}
	return jobx.NewReaper(c.Store, c.Queue, opts...)
}

// Guard returns the API auth middleware, or nil when auth is disabled.
func (c *Container) Guard() jobxapi.Guard {
	if c.Tokens == nil {
		return nil
	}
	return auth.NewAuthMiddleware(c.Tokens)
}

// HealthChecks lists the dependencies /health pings.
func (c *Container) HealthChecks() []jobxapi.HealthCheck {
	var checks []jobxapi.HealthCheck
	if c.DB != nil {
		checks = append(checks, jobxapi.HealthCheck{Name: "db", Ping: c.DB.PingContext})
	}
	if c.Redis != nil {
		checks = append(checks, jobxapi.HealthCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
