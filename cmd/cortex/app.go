package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/cuervolu/cortex-engine/internal/api"
	"github.com/cuervolu/cortex-engine/internal/app/coordinator"
	"github.com/cuervolu/cortex-engine/internal/app/reaper"
	"github.com/cuervolu/cortex-engine/internal/app/worker"
	"github.com/cuervolu/cortex-engine/internal/catalog"
	"github.com/cuervolu/cortex-engine/internal/config"
	"github.com/cuervolu/cortex-engine/internal/infra/kafka"
	"github.com/cuervolu/cortex-engine/internal/infra/postgres"
	redisinfra "github.com/cuervolu/cortex-engine/internal/infra/redis"
	"github.com/cuervolu/cortex-engine/internal/logger"
	"github.com/cuervolu/cortex-engine/internal/metrics"
	"github.com/cuervolu/cortex-engine/internal/ports"
	"github.com/cuervolu/cortex-engine/internal/runtime/docker"
	"github.com/cuervolu/cortex-engine/internal/workspace"
)

const startupTimeout = 30 * time.Second

// newApp assembles the fx graph for the roles enabled in cfg.
func newApp(cfg *config.Config) fx.Option {
	opts := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(
			logger.NewFromConfig,
			metrics.NewRecorder,
			provideDB,
			provideCatalog,
			provideLedger,
			provideEngine,
			provideResultCache,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	}

	if cfg.HasRole(config.RoleAPI) || cfg.HasRole(config.RoleWorker) {
		opts = append(opts, fx.Invoke(registerTopic))
	}
	if cfg.HasRole(config.RoleAPI) {
		opts = append(opts,
			fx.Provide(providePublisher, provideCoordinator),
			fx.Invoke(registerAPI),
		)
	}
	if cfg.HasRole(config.RoleWorker) {
		opts = append(opts,
			fx.Provide(provideWorkspaces, provideWorkerService),
			fx.Invoke(registerWorkers),
		)
	}
	if cfg.HasRole(config.RoleReaper) {
		opts = append(opts, fx.Invoke(registerReaper))
	}
	return fx.Options(opts...)
}

// provideDB opens PostgreSQL when the catalog or the ledger needs it. The
// returned handle is nil otherwise.
func provideDB(lc fx.Lifecycle, cfg *config.Config) (*sql.DB, error) {
	if !cfg.UsesPostgres() {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(db.Close))
	return db, nil
}

func provideCatalog(cfg *config.Config, db *sql.DB) (ports.LanguageCatalog, error) {
	if cfg.Catalog.Source != config.CatalogPostgres {
		return catalog.NewMemory(cfg.LanguageSpecs()...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	pc := postgres.NewCatalog(db)
	if err := pc.EnsureSchema(ctx, cfg.LanguageSpecs()); err != nil {
		return nil, fmt.Errorf("prepare language catalog: %w", err)
	}
	return pc, nil
}

// provideLedger returns a nil ledger when submissions are not recorded.
func provideLedger(cfg *config.Config, db *sql.DB) (ports.SubmissionLedger, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	ledger := postgres.NewLedger(db)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("prepare submission ledger: %w", err)
	}
	return ledger, nil
}

func provideEngine(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*docker.Engine, error) {
	engine, err := docker.New(docker.Config{
		PullImages: cfg.Docker.PullImages,
		CodeMount:  cfg.Docker.CodeMount,
		StdinMount: cfg.Docker.StdinMount,
		Label:      cfg.Docker.Label,
	}, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(engine.Close))
	return engine, nil
}

func provideResultCache(lc fx.Lifecycle, cfg *config.Config) (*redisinfra.ResultCache, error) {
	cache, err := redisinfra.NewResultCache(redisinfra.Config{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		TTL:       cfg.Redis.ResultTTL,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(cache.Close))
	return cache, nil
}

func providePublisher(lc fx.Lifecycle, cfg *config.Config) (*kafka.Publisher, error) {
	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(publisher.Close))
	return publisher, nil
}

// registerTopic creates the task topic before the publisher or the workers
// touch it, so auto-creation does not leave it with a single partition.
func registerTopic(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	if !cfg.Kafka.CreateTopic {
		return
	}
	lc.Append(fx.StartHook(func(ctx context.Context) error {
		partitions, err := kafka.EnsureTopic(ctx, kafka.TopicConfig{
			Brokers:           cfg.Kafka.Brokers,
			Topic:             cfg.Kafka.Topic,
			Partitions:        cfg.Worker.Concurrency,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
		})
		if err != nil {
			return err
		}
		if partitions < cfg.Worker.Concurrency {
			log.Warn("task topic has fewer partitions than workers; some workers will stay idle",
				zap.String("topic", cfg.Kafka.Topic),
				zap.Int("partitions", partitions),
				zap.Int("workers", cfg.Worker.Concurrency),
			)
		}
		return nil
	}))
}

func provideCoordinator(
	cat ports.LanguageCatalog,
	publisher *kafka.Publisher,
	cache *redisinfra.ResultCache,
	rec *metrics.Recorder,
	log *zap.Logger,
) (*coordinator.Service, error) {
	return coordinator.NewService(coordinator.Config{
		Catalog:   cat,
		Publisher: publisher,
		Results:   cache,
		Metrics:   rec,
		Logger:    log,
	})
}

func registerAPI(
	lc fx.Lifecycle,
	cfg *config.Config,
	coord *coordinator.Service,
	engine *docker.Engine,
	cache *redisinfra.ResultCache,
	rec *metrics.Recorder,
	log *zap.Logger,
) error {
	dockerCheck := func(ctx context.Context) error {
		_, err := engine.Info(ctx)
		return err
	}
	router, err := api.NewRouter(api.Config{
		Coordinator: coord,
		Engine:      engine,
		Checks:      map[string]api.HealthCheck{"redis": cache.Ping, "docker": dockerCheck},
		Metrics:     rec.Handler(),
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.HTTP.Addr, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, router, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return server.Start() },
		OnStop:  server.Shutdown,
	})
	return nil
}

func provideWorkspaces(cfg *config.Config, log *zap.Logger) (*workspace.Manager, error) {
	manager, err := workspace.NewManager(cfg.Workspace.BaseDir, log)
	if err != nil {
		return nil, err
	}
	if cfg.Workspace.PurgeAfter > 0 {
		manager.PurgeStale(time.Now(), cfg.Workspace.PurgeAfter)
	}
	return manager, nil
}

func provideWorkerService(
	cfg *config.Config,
	cat ports.LanguageCatalog,
	engine *docker.Engine,
	workspaces *workspace.Manager,
	cache *redisinfra.ResultCache,
	ledger ports.SubmissionLedger,
	rec *metrics.Recorder,
	log *zap.Logger,
) (*worker.Service, error) {
	return worker.NewService(worker.Config{
		Catalog:    cat,
		Runtime:    engine,
		Workspaces: workspaces,
		Results:    cache,
		Ledger:     ledger,
		Metrics:    rec,
		Logger:     log,
		MaxTimeout: cfg.Docker.MaxTimeout,
	})
}

func registerWorkers(lc fx.Lifecycle, cfg *config.Config, svc *worker.Service, log *zap.Logger) error {
	factory := func() (ports.TaskConsumer, error) {
		return kafka.NewConsumer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
	}

	pool, err := worker.NewPool(svc, factory, cfg.Worker.Concurrency, log)
	if err != nil {
		return err
	}
	runInBackground(lc, log, "worker pool", pool.Run)
	return nil
}

func registerReaper(lc fx.Lifecycle, cfg *config.Config, engine *docker.Engine, rec *metrics.Recorder, log *zap.Logger) error {
	r, err := reaper.New(engine, reaper.Config{
		Interval:    cfg.Reaper.Interval,
		MaxAge:      cfg.Reaper.MaxAge,
		OnlyManaged: cfg.Reaper.OnlyManaged,
	}, rec, log)
	if err != nil {
		return err
	}
	runInBackground(lc, log, "reaper", r.Run)
	return nil
}

// runInBackground starts run on app start and cancels it on stop, waiting
// for it to return or for the stop deadline.
func runInBackground(lc fx.Lifecycle, log *zap.Logger, name string, run func(context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := run(ctx); err != nil {
					log.Error(name+" stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return fmt.Errorf("%s did not stop: %w", name, stopCtx.Err())
			}
		},
	})
}
