package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/Proton-105/himera-settings/internal/activity"
	"github.com/Proton-105/himera-settings/internal/database"
	apperrors "github.com/Proton-105/himera-settings/internal/errors"
	"github.com/Proton-105/himera-settings/internal/health"
	"github.com/Proton-105/himera-settings/internal/httpapi"
	"github.com/Proton-105/himera-settings/internal/idempotency"
	"github.com/Proton-105/himera-settings/internal/jobs"
	"github.com/Proton-105/himera-settings/internal/jobs/handlers"
	"github.com/Proton-105/himera-settings/internal/lifecycle"
	"github.com/Proton-105/himera-settings/internal/ratelimit"
	"github.com/Proton-105/himera-settings/internal/repository"
	"github.com/Proton-105/himera-settings/internal/session"
	"github.com/Proton-105/himera-settings/internal/settings"
	"github.com/Proton-105/himera-settings/internal/shadow"
	"github.com/Proton-105/himera-settings/migrations"
	"github.com/Proton-105/himera-settings/pkg/config"
	"github.com/Proton-105/himera-settings/pkg/graceful"
	"github.com/Proton-105/himera-settings/pkg/logger"
	"github.com/Proton-105/himera-settings/pkg/metrics"
	appredis "github.com/Proton-105/himera-settings/pkg/redis"
)

const (
	limiterCleanupInterval = time.Minute
	limiterBucketMaxAge    = 10 * time.Minute
	shadowSampleInterval   = 15 * time.Second
	shutdownHooksTimeout   = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "settings server: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.InitSentry(*cfg); err != nil {
		fmt.Fprintf(os.Stderr, "sentry disabled: %v\n", err)
	}
	defer sentry.Flush(2 * time.Second)

	log := logger.New(*cfg)
	slog.SetDefault(log)

	log.Info("starting settings server",
		slog.String("port", cfg.Server.Port),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.String("log_level", cfg.Logger.Level),
	)

	config.Watch(v, func(next *config.Config) {
		logger.SetLevel(next.Logger.Level)
		log.Info("configuration reloaded", slog.String("log_level", next.Logger.Level))
	}, func(err error) {
		log.Warn("configuration reload rejected", slog.Any("error", err))
	})

	shutdown := lifecycle.NewShutdown(log)
	defer func() {
		hookCtx, cancel := context.WithTimeout(context.Background(), shutdownHooksTimeout)
		defer cancel()
		err = errors.Join(err, shutdown.Execute(hookCtx))
		log.Info("settings server stopped")
	}()

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	shutdown.Register(lifecycle.StageStorage, "database", func(context.Context) error { return db.Close() })

	applied, err := database.NewMigrator(db, log).ApplyFS(ctx, migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("database migrations applied", slog.Int("applied", applied))

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.NewDBChecker(db))

	store := settings.NewStore(repository.NewSettingsRepository(db, log), log)
	memLimiter := ratelimit.NewMemoryLimiter(log)

	var (
		backend  shadow.Backend
		limiter  ratelimit.Limiter = memLimiter
		recorder activity.Recorder = activity.NopRecorder{}
		idem     idempotency.Manager
	)

	if cfg.Redis.Enabled {
		rc, err := appredis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		instrumented := appredis.NewMetricsClient(rc)
		shutdown.Register(lifecycle.StageStorage, "redis", func(context.Context) error { return instrumented.Close() })

		backend = shadow.NewRedisBackend(instrumented)
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rc.Client, log), memLimiter, log)
		idem = idempotency.NewManager(idempotency.NewRedisStore(rc.Client, log), log)
		checker.AddCheck("redis", health.NewRedisChecker(rc))

		if cfg.Jobs.Enabled {
			recorder, err = startJobs(cfg, db, shutdown, log)
			if err != nil {
				return err
			}
		}
	} else {
		mem := shadow.NewMemoryBackend()
		mem.Start()
		shutdown.Register(lifecycle.StageStorage, "shadow", func(context.Context) error {
			mem.Stop()
			return nil
		})
		backend = mem
		log.Warn("redis disabled: session shadow, rate limits and activity log are process-local")
	}

	sh := shadow.New(backend, store, log)
	service := settings.NewService(store, sh, recorder, log)
	readiness := lifecycle.NewHealth(checker, log)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Service:     service,
		Sessions:    session.NewJWTProvider(cfg.Session.CookieName, cfg.Session.Secret),
		Errors:      apperrors.NewHandler(log, cfg.Sentry.Enabled),
		Idempotency: idem,
		Limiter:     limiter,
		LimitRules:  ratelimit.NewRules(cfg.RateLimit),
		Health:      readiness,
		Log:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	serverCtx, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()

	g.Go(func() error {
		return graceful.NewServer(log, srv, cfg.Server.ShutdownTimeout).ListenAndServe(serverCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = readiness.Drain(gctx)
		cancelServer()
		return nil
	})
	g.Go(func() error {
		memLimiter.RunCleanup(gctx, limiterCleanupInterval, limiterBucketMaxAge)
		return nil
	})
	g.Go(func() error {
		metrics.NewSessionCollector(sh, shadowSampleInterval).Run(gctx)
		return nil
	})

	return g.Wait()
}

// startJobs wires the activity log queue: client, worker and prune scheduler.
func startJobs(cfg *config.Config, db *sql.DB, shutdown *lifecycle.Shutdown, log *slog.Logger) (activity.Recorder, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	manager := jobs.NewManager(redisOpt, log)
	shutdown.Register(lifecycle.StageClients, "jobs-client", func(context.Context) error { return manager.Close() })

	activityRepo := repository.NewActivityRepository(db, log)

	worker := jobs.NewWorker(redisOpt, jobs.Queues, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeActivityRecord, handlers.NewActivityRecordHandler(activityRepo, log))
	worker.RegisterHandler(jobs.TaskTypeActivityPrune, handlers.NewActivityPruneHandler(activityRepo, log))
	if err := worker.Start(); err != nil {
		return nil, fmt.Errorf("start jobs worker: %w", err)
	}
	shutdown.Register(lifecycle.StageWorkers, "jobs-worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.PruneSchedule, cfg.Jobs.ActivityRetention, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return nil, fmt.Errorf("register scheduled tasks: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start scheduler: %w", err)
	}
	shutdown.Register(lifecycle.StageWorkers, "jobs-scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})

	return activity.NewQueueRecorder(manager, log), nil
}
