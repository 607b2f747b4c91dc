package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/subseactl/fleetd/internal/api/handlers"
	apimiddleware "github.com/subseactl/fleetd/internal/api/middleware"
	"github.com/subseactl/fleetd/internal/ascent"
	"github.com/subseactl/fleetd/internal/command"
	"github.com/subseactl/fleetd/internal/descent"
	"github.com/subseactl/fleetd/internal/ingest"
	"github.com/subseactl/fleetd/internal/metrics"
	"github.com/subseactl/fleetd/internal/trajectory"
	"github.com/subseactl/fleetd/pkg/config"
	"github.com/subseactl/fleetd/pkg/db/migrate"
	"github.com/subseactl/fleetd/pkg/db/store"
	"github.com/subseactl/fleetd/pkg/logger"
)

func main() {
	l := logger.New("kernel")

	if err := run(l); err != nil {
		l.Error("kernel crashed", "error", err)
		os.Exit(1)
	}
}

func run(l *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	l = logger.NewWithLevel("kernel", logger.ParseLevel(cfg.LogLevel))
	l.Info("config loaded", "port", cfg.Port, "admin_reset_enabled", cfg.AdminResetEnabled)

	migrationsPath := "./pkg/db/migrations"
	if envPath := os.Getenv("MIGRATIONS_PATH"); envPath != "" {
		migrationsPath = envPath
	}
	if err := migrate.Run(cfg.DatabaseURL, migrationsPath, l); err != nil {
		l.Error("failed to run migrations", "error", err)
		return err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	poolCfg.MaxConns = int32(cfg.DBPoolSize)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	l.Info("database connected", "pool_size", cfg.DBPoolSize)

	querier := store.New(pool)

	// Component services, each wired directly against the Querier interface
	// so no service ever depends on the pool or a concrete transaction type,
	// except ingest: its Handle spans three statements that must commit or
	// roll back together, so it also takes the pool to open that transaction.
	ingestSvc := ingest.New(querier, pool, l)
	descentSvc := descent.New(querier, cfg.DescentFreshness())
	ascentSvc := ascent.New(querier)
	commandSvc := command.New(querier)
	trajectoryBuilder := trajectory.New(querier)
	sweeper := command.NewSweeper(querier, l, cfg.CommandTTL(), cfg.ExpireSweepInterval())

	r := chi.NewRouter()
	r.Use(apimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(apimiddleware.InjectDependencies(querier, l))
	r.Use(apimiddleware.Recovery())
	r.Use(apimiddleware.CORS)
	r.Use(metrics.InstrumentHandler)

	vehicleLimiter := apimiddleware.DefaultRateLimiter()

	r.Group(func(vr chi.Router) {
		vr.Use(apimiddleware.Timeout(apimiddleware.VehicleRequestTimeout))
		vr.Use(apimiddleware.RateLimitByKey(vehicleLimiter, apimiddleware.MIDFromJSONBody))
		handlers.NewVehicleHandler(ingestSvc, descentSvc, ascentSvc).Register(vr)
	})

	r.Route("/api/v1", func(ar chi.Router) {
		handlers.NewDeviceHandler().Register(ar)
		handlers.NewCommandHandler(commandSvc).Register(ar)
		handlers.NewTelemetryHandler(trajectoryBuilder).Register(ar)
		handlers.NewDiveHandler().Register(ar)
		handlers.NewEventHandler().Register(ar)
	})

	handlers.NewAdminHandler(cfg.AdminResetEnabled).Register(r)
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		l.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server error", "error", err)
		}
	}()

	sweepCtx, sweepCancel := context.WithCancel(ctx)
	go sweeper.Run(sweepCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down")
	sweepCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
