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

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/iliyamo/seat-reservation-engine/internal/catalog"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/config"
	"github.com/iliyamo/seat-reservation-engine/internal/database"
	"github.com/iliyamo/seat-reservation-engine/internal/engine"
	"github.com/iliyamo/seat-reservation-engine/internal/handler"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/lib/logger/sl"
	"github.com/iliyamo/seat-reservation-engine/internal/metrics"
	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
	"github.com/iliyamo/seat-reservation-engine/internal/queue"
	"github.com/iliyamo/seat-reservation-engine/internal/repository"
	"github.com/iliyamo/seat-reservation-engine/internal/router"
	"github.com/iliyamo/seat-reservation-engine/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env-file", "", "path to a .env file (default .env when present)")
	seed := flag.String("seed", "", "YAML catalog file, overrides CATALOG_SEED_FILE")
	backend := flag.String("ledger", "", "ledger backend (memory|redis), overrides LEDGER_BACKEND")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := config.Load()
	if *seed != "" {
		cfg.Engine.CatalogSeedFile = *seed
	}
	if *backend != "" {
		cfg.Engine.LedgerBackend = *backend
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)
	log.Info("starting seat reservation engine",
		slog.String("env", cfg.Env),
		slog.String("ledger", cfg.Engine.LedgerBackend),
		slog.String("catalog", cfg.Engine.CatalogBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case config.EnvLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	clk := clock.Real()
	m := metrics.New()

	var db *sql.DB
	if cfg.DB.Enabled {
		var err error
		if db, err = database.Open(ctx, cfg.DB.Options()); err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	cat, err := openCatalog(ctx, cfg.Engine, db, log)
	if err != nil {
		return err
	}

	// Redis is required by the redis ledger and optional for the rate
	// limiter and the response cache.
	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		if cfg.Engine.LedgerBackend == "redis" {
			return err
		}
		log.Warn("redis unavailable, rate limiting and caching disabled", sl.Err(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	observer := ledger.Observers{m, ledger.NewAuditLogger(log.With(slog.String("component", "ledger")))}
	var led ledger.Ledger
	switch cfg.Engine.LedgerBackend {
	case "redis":
		led = ledger.NewRedis(rdb, clk, observer, cfg.Engine.LedgerPrefix)
	default:
		led = ledger.NewMemory(clk, observer)
	}

	sinks := []engine.SaleSink{m}
	var sold engine.SoldSource
	if db != nil {
		tickets := repository.NewTicketRepo(db)
		sinks = append(sinks, tickets)
		sold = tickets
	}
	if cfg.AMQP.Enabled {
		pub := queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log)
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	eng := engine.New(cfg.Engine.Policy(), led, cat, clk, log, sinks...)
	if _, err := eng.Bootstrap(ctx, sold); err != nil {
		return err
	}

	sweeper := scheduler.NewSweeper(led, clk, cfg.Engine.SweepInterval, cfg.Engine.OpTimeout, log)
	if _, err := sweeper.RunOnce(ctx); err != nil {
		log.Warn("initial sweep failed", sl.Err(err))
	}
	go sweeper.Run(ctx)

	e := newServer(cfg, eng, rdb, m, log)
	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}

func openCatalog(ctx context.Context, cfg config.EngineConfig, db *sql.DB, log *slog.Logger) (catalog.Catalog, error) {
	if cfg.CatalogBackend != "mysql" {
		return catalog.LoadFile(cfg.CatalogSeedFile)
	}
	events := repository.NewEventRepo(db)
	if cfg.CatalogSeedFile != "" {
		seed, err := catalog.LoadFile(cfg.CatalogSeedFile)
		if err != nil {
			return nil, err
		}
		n, err := events.ImportCatalog(ctx, seed)
		if err != nil {
			return nil, err
		}
		log.Info("catalog imported", slog.String("file", cfg.CatalogSeedFile), slog.Int("events", n))
	}
	return events, nil
}

func newServer(cfg config.Config, eng *engine.Engine, rdb *redis.Client, m *metrics.Metrics, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log.With(slog.String("component", "http"))))
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, m.Handler())
	router.RegisterPublic(e, handler.NewEventHandler(eng, log),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log))
	router.RegisterBuyer(e, handler.NewReservationHandler(eng, log), cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	return e
}
