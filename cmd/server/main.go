package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alessandrobessi/tamagotchi/internal/adapter/breaker"
	"github.com/alessandrobessi/tamagotchi/internal/adapter/edgeconfig"
	"github.com/alessandrobessi/tamagotchi/internal/adapter/httpserver"
	"github.com/alessandrobessi/tamagotchi/internal/adapter/memory"
	"github.com/alessandrobessi/tamagotchi/internal/adapter/metrics"
	"github.com/alessandrobessi/tamagotchi/internal/adapter/postgres"
	"github.com/alessandrobessi/tamagotchi/internal/adapter/redis"
	"github.com/alessandrobessi/tamagotchi/internal/adapter/sqlite"
	"github.com/alessandrobessi/tamagotchi/internal/app"
	"github.com/alessandrobessi/tamagotchi/internal/broadcast"
	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/alessandrobessi/tamagotchi/internal/platform/config"
	"github.com/alessandrobessi/tamagotchi/internal/platform/logging"
	"github.com/alessandrobessi/tamagotchi/internal/platform/version"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// backend is the selected pet store plus what main needs to probe and close it.
type backend struct {
	store  domain.PetStore
	checks []httpserver.HealthCheck
	close  func()
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, metrics.NewRedisMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupPostgres(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, metrics.NewDBMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupSQLite(ctx context.Context, cfg *config.Config) *sql.DB {
	db, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		slog.Error("Failed to open SQLite database", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	return db
}

func setupEdgeConfig(cfg *config.Config, clock clockwork.Clock) *edgeconfig.Store {
	store, err := edgeconfig.New(edgeconfig.Config{
		ConnectionString: cfg.EdgeConfig,
		ConfigID:         cfg.EdgeConfigID,
		APIToken:         cfg.VercelAPIToken,
		Key:              cfg.PetKey,
	}, nil, clock)
	if err != nil {
		slog.Error("Failed to configure Edge Config store", "error", err)
		os.Exit(1)
	}
	if !store.CanRead() {
		slog.Warn("EDGE_CONFIG not set, every request starts from a fresh pet")
	}
	if !store.CanWrite() {
		slog.Warn("EDGE_CONFIG_ID or VERCEL_API_TOKEN not set, pet state will not be saved")
	}
	return store
}

// setupBackend picks the pet store named by STORE_BACKEND. rdb is shared with
// the relay and may already be connected.
func setupBackend(ctx context.Context, cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer, rdb *goredis.Client) backend {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		return backend{
			store:  redis.NewPetStore(rdb, cfg.PetKey),
			checks: []httpserver.HealthCheck{{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }}},
			close:  func() {},
		}

	case config.BackendPostgres:
		pool := setupPostgres(ctx, cfg, reg)
		return backend{
			store:  postgres.NewPetStore(pool, cfg.PetKey),
			checks: []httpserver.HealthCheck{{Name: "postgres", Check: pool.Ping}},
			close:  pool.Close,
		}

	case config.BackendSQLite:
		db := setupSQLite(ctx, cfg)
		return backend{
			store:  sqlite.NewPetStore(db, cfg.PetKey),
			checks: []httpserver.HealthCheck{{Name: "sqlite", Check: db.PingContext}},
			close:  func() { _ = db.Close() },
		}

	case config.BackendEdgeConfig:
		return backend{store: setupEdgeConfig(cfg, clock), close: func() {}}

	default:
		return backend{store: memory.NewPetStore(), close: func() {}}
	}
}

func runGracefulShutdown(srv *httpserver.Server, hub *broadcast.Hub, stopWorkers context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		stopWorkers()

		// The hub is stopped by the server's shutdown hook, which ends open streams.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop() // no-op unless Shutdown failed before running its hooks
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting",
		"service", info.Service, "version", info.Version, "commit", info.Commit,
		"env", cfg.AppEnv, "port", cfg.Port, "store", cfg.StoreBackend)

	reg := metrics.NewRegistry()

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var rdb *goredis.Client
	if cfg.StoreBackend == config.BackendRedis || cfg.RelayEnabled {
		rdb = setupRedis(workersCtx, cfg, reg)
		defer func() { _ = rdb.Close() }()
	}

	be := setupBackend(workersCtx, cfg, clock, reg, rdb)
	defer be.close()

	guarded := breaker.New(be.store, breaker.DefaultSettings, metrics.NewBreakerMetrics(reg), edgeconfig.ErrNotConfigured)
	checks := append(be.checks, httpserver.HealthCheck{
		Name: "store_circuit",
		Check: func(context.Context) error {
			if guarded.State() == circuitbreaker.OpenState {
				return fmt.Errorf("pet store: %w", breaker.ErrOpen)
			}
			return nil
		},
	})

	hub := broadcast.NewHub(clock, cfg.SubscriberBuffer, metrics.NewBroadcastMetrics(reg))

	var publisher domain.SnapshotPublisher = hub
	if cfg.RelayEnabled {
		relay := redis.NewRelay(rdb, hub)
		go relay.Run(workersCtx)
		publisher = relay
		slog.Info("Snapshot relay enabled", "channel", redis.SnapshotChannel)
	}

	svc := app.NewService(guarded, publisher, clock, metrics.NewPetMetrics(reg))

	// Every instance runs its own ticker, so it publishes to the local hub only.
	if cfg.TickInterval > 0 {
		ticker := app.NewSnapshotTicker(svc, hub, hub, clock, cfg.TickInterval)
		go ticker.Run(workersCtx)
	}

	srv := httpserver.NewServer(cfg, svc, hub, clock, reg, checks)
	srv.OnShutdown(hub.Stop)

	done := runGracefulShutdown(srv, hub, stopWorkers)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
