// Package workerrunner runs the airlock event workers: it wires the request
// store, the transfer mover, the stage directory and the notifier into the
// queue handler and serves the airlock task types.
package workerrunner

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gosom/airlock/config"
	"github.com/gosom/airlock/notifier"
	"github.com/gosom/airlock/postgres"
	"github.com/gosom/airlock/redis"
	redisconfig "github.com/gosom/airlock/redis/config"
	"github.com/gosom/airlock/redis/tasks"
	"github.com/gosom/airlock/runner"
	"github.com/gosom/airlock/s3mover"
	"github.com/gosom/airlock/stages"
)

// WorkerRunner implements runner.Runner for queue-driven task processing.
type WorkerRunner struct {
	cfg      *runner.Config
	redisCfg *redisconfig.RedisConfig
	logger   *zap.Logger

	db     *sql.DB
	server *redis.Server
	client *redis.Client
	notif  *notifier.Notifier
	mux    *asynq.ServeMux
}

// New builds a fully wired worker runner from the process configuration.
func New(cfg *runner.Config) (*WorkerRunner, error) {
	logger := runner.Logger(cfg.Debug)

	db, err := sql.Open("pgx", cfg.Dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := postgres.NewStore(db, logger)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create request store: %w", err)
	}

	flags := config.New(db)

	s3client, err := s3mover.NewClient(cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.AwsRegion, cfg.S3EndpointURL)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	mover := s3mover.New(s3client, logger)

	dir := stages.NewDirectory(stages.DefaultConfig(cfg.BucketPrefix))

	redisCfg, err := redisconfig.NewRedisConfig()
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to load Redis configuration: %w", err)
	}

	client, err := redis.NewClient(redisCfg)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}

	server, err := redis.NewServer(redisCfg)
	if err != nil {
		client.Close()
		db.Close()

		return nil, fmt.Errorf("failed to create Redis server: %w", err)
	}

	notif := notifier.New(goredis.NewClient(&goredis.Options{
		Addr:     redisCfg.GetRedisAddr(),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}), cfg.NotifyChannel, logger)

	handler := tasks.NewHandler(store, mover, dir, flags, notif, logger,
		tasks.WithMaxRetries(redisCfg.MaxRetries),
		tasks.WithEnqueuer(client),
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeSubmission, handler)
	mux.Handle(tasks.TypeScanResult, handler)
	mux.Handle(tasks.TypeReviewDecision, handler)
	mux.Handle(tasks.TypeCleanup, handler)

	return &WorkerRunner{
		cfg:      cfg,
		redisCfg: redisCfg,
		logger:   logger,
		db:       db,
		server:   server,
		client:   client,
		notif:    notif,
		mux:      mux,
	}, nil
}

// Run starts the worker and blocks until the context is cancelled.
func (w *WorkerRunner) Run(ctx context.Context) error {
	if err := w.server.Start(ctx, w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	w.logger.Info("airlock worker started",
		zap.String("redis", w.redisCfg.GetRedisAddr()),
		zap.Int("workers", w.redisCfg.Workers),
	)

	<-ctx.Done()

	return w.server.Shutdown(context.Background())
}

// Close releases all resources held by the runner.
func (w *WorkerRunner) Close(ctx context.Context) error {
	_ = w.server.Shutdown(ctx)

	if err := w.client.Close(); err != nil {
		w.logger.Warn("failed to close Redis client", zap.Error(err))
	}

	if err := w.notif.Close(); err != nil {
		w.logger.Warn("failed to close notifier", zap.Error(err))
	}

	return w.db.Close()
}
