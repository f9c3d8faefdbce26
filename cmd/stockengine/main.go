package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/sonic-city-git/quincy-project-sub001/internal/config"
	"github.com/sonic-city-git/quincy-project-sub001/internal/domain/booking"
	"github.com/sonic-city-git/quincy-project-sub001/internal/domain/equipment"
	"github.com/sonic-city-git/quincy-project-sub001/internal/domain/provider"
	"github.com/sonic-city-git/quincy-project-sub001/internal/domain/stock"
	"github.com/sonic-city-git/quincy-project-sub001/internal/engine"
	"github.com/sonic-city-git/quincy-project-sub001/internal/infra/db"
	httpx "github.com/sonic-city-git/quincy-project-sub001/internal/infra/http"
	"github.com/sonic-city-git/quincy-project-sub001/internal/infra/logger"
	"github.com/sonic-city-git/quincy-project-sub001/internal/infra/metrics"
	"github.com/sonic-city-git/quincy-project-sub001/internal/infra/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/subosito/gotenv"
)

func runMigrations(dsn string, log *slog.Logger) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN, log); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	var m engine.Metrics = engine.NopMetrics{}
	if cfg.Metrics.Enabled {
		m = metrics.NewEngine(prometheus.DefaultRegisterer)
	}

	bookings := booking.NewRepo(pool)
	ledger := engine.NewLedger(stock.NewRepo(pool), bookings, log)
	gen := engine.NewSuggestionGenerator(provider.NewRepo(pool), nil)
	eng := engine.NewEngine(ledger, gen, cfg.EngineStrategies(), m, log)
	defer eng.Close()

	api := httpx.NewAPI(eng, bookings, equipment.NewRepo(pool), log)
	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, api)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	if cfg.Telegram.Enabled {
		watcher, err := notify.NewWatcher(cfg.Telegram.Token, cfg.Telegram.AdminChatID, eng,
			cfg.Engine.Watch.Interval, cfg.Engine.Watch.HorizonDays, log)
		if err != nil {
			log.Error("conflict watcher disabled", "err", err)
		} else {
			go watcher.Run(ctx)
			log.Info("conflict watcher started", "interval", cfg.Engine.Watch.Interval)
		}
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
