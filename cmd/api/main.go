package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"

	"github.com/gigmarket/backend/internal/config"
	"github.com/gigmarket/backend/internal/db"
	"github.com/gigmarket/backend/internal/ledger"
	"github.com/gigmarket/backend/internal/notify"
	"github.com/gigmarket/backend/internal/release"
	"github.com/gigmarket/backend/internal/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("Migrations failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Schema and River migrations applied")

	// Notifications: RabbitMQ when configured, otherwise events are only logged.
	var publisher notify.Publisher = notify.LogPublisher{Logger: logger}
	if cfg.AMQPURL != "" {
		mq, err := notify.NewMQPublisher(cfg.AMQPURL)
		if err != nil {
			slog.Error("RabbitMQ unavailable", "error", err)
			os.Exit(1)
		}
		defer mq.Close()
		publisher = mq
	}
	var deduper notify.Deduper
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		deduper = notify.NewRedisDeduper(rdb, cfg.Notify.DedupTTL, logger)
	}

	users := repository.NewUserRepo(pool)
	notifications := repository.NewNotificationRepo(pool)
	dispatcher := notify.NewDispatcher(
		cfg.Notify.Workers, cfg.Notify.QueueSize,
		&notify.StoreNotifier{Store: notifications, Publisher: publisher},
		notify.NewMQMailer(publisher, cfg.Notify.EmailsPerSecond, cfg.Notify.EmailBurst),
		users, deduper, logger,
	)
	defer dispatcher.Close()

	// Fund releases: the River insert hook is set once the client exists.
	ledgerSvc := ledger.NewService(users, ledger.NewRepository(pool))
	releaseSvc := release.NewService(pool, release.NewRepository(pool), ledgerSvc, dispatcher, nil, cfg.Release.Delay, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, release.NewReleaseFundsWorker(releaseSvc))
	river.AddWorker(workers, release.NewSweepWorker(releaseSvc))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.Release.Workers},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{release.PeriodicSweep(cfg.Release.SweepInterval)},
		Logger:       logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	releaseSvc.InsertJob = func(ctx context.Context, tx pgx.Tx, args release.ReleaseFundsArgs, dueAt time.Time) error {
		_, err := riverClient.InsertTx(ctx, tx, args, &river.InsertOpts{ScheduledAt: dueAt})
		return err
	}

	handler := buildRouter(cfg, pool, users, notifications, ledgerSvc, releaseSvc, dispatcher, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(handler)

	if err := riverClient.Start(ctx); err != nil {
		slog.Error("River client failed to start", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River client stop failed", "error", err)
	}
}
