package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AI-Fresh-Docs/RusTokio/internal/dispatcher"
	"github.com/AI-Fresh-Docs/RusTokio/internal/eventbus"
	jwttoken "github.com/AI-Fresh-Docs/RusTokio/internal/jwt_token"
	"github.com/AI-Fresh-Docs/RusTokio/internal/modules"
	modmemory "github.com/AI-Fresh-Docs/RusTokio/internal/modules/store/memory"
	modpostgres "github.com/AI-Fresh-Docs/RusTokio/internal/modules/store/postgres"
	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox"
	outboxpostgres "github.com/AI-Fresh-Docs/RusTokio/internal/outbox/store/postgres"
	outboxsqlite "github.com/AI-Fresh-Docs/RusTokio/internal/outbox/store/sqlite"
	"github.com/AI-Fresh-Docs/RusTokio/internal/platform/config"
	"github.com/AI-Fresh-Docs/RusTokio/internal/platform/httpserver"
	"github.com/AI-Fresh-Docs/RusTokio/internal/platform/logger"
	"github.com/AI-Fresh-Docs/RusTokio/internal/platform/metrics"
	"github.com/AI-Fresh-Docs/RusTokio/internal/platform/postgres"
	platformredis "github.com/AI-Fresh-Docs/RusTokio/internal/platform/redis"
	"github.com/AI-Fresh-Docs/RusTokio/internal/platform/tracing"
	"github.com/AI-Fresh-Docs/RusTokio/internal/projection"
	processedmemory "github.com/AI-Fresh-Docs/RusTokio/internal/projection/store/memory"
	processedredis "github.com/AI-Fresh-Docs/RusTokio/internal/projection/store/redis"
	httptransport "github.com/AI-Fresh-Docs/RusTokio/internal/transport/http"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/circuit"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/tx"
)

var version = "dev"

// main wires high-level dependencies and keeps the process lifecycle small.
// Business logic lives in the internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// storage is the persistence selected by the storage driver.
type storage struct {
	outbox   outbox.Store
	modules  modules.Store
	modulesT modules.StoreTx
	close    func() error
}

func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err := outboxsqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		// Module state stays in memory; toggles still stage their events in
		// the SQLite transaction.
		mem := modmemory.New()
		log.Warn("sqlite storage: module state is not persisted", "path", cfg.Storage.SQLitePath)
		return &storage{
			outbox:   store,
			modules:  mem,
			modulesT: modmemory.NewTx(mem, modmemory.WithRunner(tx.NewRunner(store.DB()))),
			close:    store.Close,
		}, nil
	default:
		db, err := postgres.Open(ctx, postgres.Config{
			URL:             cfg.Postgres.URL,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &storage{
			outbox:   outboxpostgres.New(db),
			modules:  modpostgres.New(db),
			modulesT: modpostgres.NewTx(db),
			close:    db.Close,
		}, nil
	}
}

func newBreakers(cfg config.Breaker, m *circuit.Metrics, log *slog.Logger) (*circuit.Registry, error) {
	reg := circuit.NewRegistry(cfg.Defaults(), circuit.WithOnStateChange(func(name string, from, to circuit.State) {
		m.Observe(name, from, to)
		log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}))
	overrides, err := cfg.ParsedOverrides()
	if err != nil {
		return nil, err
	}
	for name, c := range overrides {
		reg.Configure(name, c)
	}
	return reg, nil
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New(version)
	reg := m.Registry

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error("failed to flush spans", "error", err)
		}
	}()

	breakers, err := newBreakers(cfg.Breaker, circuit.NewMetrics(reg), log)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.close(); err != nil {
			log.Error("failed to close storage", "error", err)
		}
	}()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := eventbus.New(eventbus.WithLogger(log), eventbus.WithMetrics(eventbus.NewMetrics(reg)))
	defer bus.Close()

	g, ctx := errgroup.WithContext(ctx)

	// The relay publishes either straight to the bus or to Kafka, in which
	// case a consumer feeds the bus from the log.
	var (
		relayTarget outbox.Publisher = bus
		feeders     []runner
	)
	if cfg.Kafka.Enabled {
		producer, consumer, err := startKafka(ctx, cfg.Kafka, bus, reg, log)
		if err != nil {
			return err
		}
		defer producer.Close()
		defer consumer.Close()
		relayTarget = producer
		feeders = append(feeders, consumer)
	}

	relay, err := outbox.NewRelay(store.outbox, relayTarget,
		outbox.WithConfig(outbox.Config{
			PollInterval:  cfg.Relay.PollInterval,
			BatchSize:     cfg.Relay.BatchSize,
			MaxAttempts:   cfg.Relay.MaxAttempts,
			BackoffBase:   cfg.Relay.BackoffBase,
			BackoffMax:    cfg.Relay.BackoffMax,
			BackoffJitter: cfg.Relay.BackoffJitter,
		}),
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics(reg)),
		outbox.WithBreaker(breakers.Get("relay")),
		outbox.WithDeadLetter(func(ctx context.Context, rec outbox.Record, cause error) {
			log.ErrorContext(ctx, "outbox record dead-lettered",
				"event_id", rec.ID.String(),
				"event_type", rec.EventType,
				"tenant_id", rec.TenantID.String(),
				"attempts", rec.AttemptCount,
				"error", cause,
			)
		}),
	)
	if err != nil {
		return err
	}
	writer := outbox.NewWriter(store.outbox, outbox.WithWriterLogger(log), outbox.WithWaker(relay))

	descriptors, err := loadModules(cfg.Modules, redisClient)
	if err != nil {
		return err
	}
	registry, err := modules.NewRegistry(descriptors...)
	if err != nil {
		return fmt.Errorf("build module registry: %w", err)
	}
	moduleSvc := modules.New(registry, store.modules, store.modulesT, writer,
		modules.WithLogger(log),
		modules.WithMetrics(modules.NewMetrics(reg)),
	)

	disp := dispatcher.New(
		dispatcher.WithConfig(dispatcher.Config{
			MaxConcurrent:  cfg.Dispatcher.MaxConcurrent,
			FailFast:       cfg.Dispatcher.FailFast,
			RetryCount:     cfg.Dispatcher.RetryCount,
			RetryDelay:     cfg.Dispatcher.RetryDelay(),
			MaxQueueDepth:  cfg.Dispatcher.MaxQueueDepth,
			HandlerTimeout: cfg.Dispatcher.HandlerTimeout,
			Partitions:     cfg.Dispatcher.Partitions,
		}),
		dispatcher.WithLogger(log),
		dispatcher.WithMetrics(dispatcher.NewMetrics(reg)),
		dispatcher.WithBreakers(breakers),
		dispatcher.WithEnablementChecker(moduleSvc),
	)

	var processed projection.ProcessedStore
	if redisClient != nil {
		processed = processedredis.New(redisClient.Client,
			processedredis.WithTTL(cfg.Projection.IdempotencyTTL),
			processedredis.WithMetrics(processedredis.NewMetrics(reg)),
		)
	} else {
		processed = processedmemory.New(processedmemory.WithTTL(cfg.Projection.IdempotencyTTL))
	}
	catalog := projection.NewCatalog()
	if err := disp.Register("index", dispatcher.All,
		projection.Idempotent("catalog", processed, catalog.Apply),
		dispatcher.WithName("index.catalog"),
	); err != nil {
		return err
	}

	validator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.Admin.JWTSigningKey, cfg.Admin.JWTIssuer, cfg.Admin.JWTAudience),
	)
	handler := httptransport.NewHandler(moduleSvc, relay, breakers, catalog, log)
	router := httptransport.NewRouter(handler, validator, reg, log)
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout)

	startDelivery(ctx, g, bus, disp, append(feeders, relay)...)
	g.Go(func() error { return prune(ctx, relay, cfg.Relay, log) })
	g.Go(func() error { return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, log) })

	log.Info("rustokio started",
		"version", version,
		"storage", cfg.Storage.Driver,
		"kafka", cfg.Kafka.Enabled,
		"modules", registry.Order(),
	)
	return g.Wait()
}

// runner is a long-lived component that publishes to the bus.
type runner interface {
	Run(ctx context.Context) error
}

// startDelivery subscribes the dispatcher to the bus before any feeder starts,
// so every envelope a feeder publishes reaches the dispatcher.
func startDelivery(ctx context.Context, g *errgroup.Group, bus *eventbus.Bus, disp *dispatcher.Dispatcher, feeders ...runner) {
	sub := bus.Subscribe()
	g.Go(func() error {
		defer sub.Unsubscribe()
		err := disp.Run(ctx, sub)
		disp.Wait()
		return ignoreCanceled(err)
	})
	for _, f := range feeders {
		g.Go(func() error { return ignoreCanceled(f.Run(ctx)) })
	}
}

func loadModules(cfg config.Modules, redisClient *platformredis.Client) ([]modules.Descriptor, error) {
	descriptors := modules.Builtin()
	if cfg.ManifestPath != "" {
		loaded, err := modules.LoadManifest(cfg.ManifestPath)
		if err != nil {
			return nil, err
		}
		descriptors = loaded
	}
	if redisClient == nil {
		return descriptors, nil
	}
	// The index module's idempotency ledger lives in Redis.
	return modules.WithProbes(descriptors, map[string]modules.HealthFunc{
		"index": func(ctx context.Context) modules.HealthStatus {
			if err := redisClient.Health(ctx); err != nil {
				return modules.HealthDegraded
			}
			return modules.HealthHealthy
		},
	}), nil
}

// ignoreCanceled treats shutdown as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// prune deletes old Delivered rows on an interval.
func prune(ctx context.Context, relay *outbox.Relay, cfg config.Relay, log *slog.Logger) error {
	if cfg.Retention <= 0 || cfg.PruneInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := relay.Prune(ctx, cfg.Retention); err != nil {
				log.WarnContext(ctx, "outbox prune failed", "error", err)
			}
		}
	}
}
