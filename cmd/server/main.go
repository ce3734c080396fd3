// Command server runs the linetrace HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"linetrace/internal/audit"
	audithandler "linetrace/internal/audit/handler"
	"linetrace/internal/audit/outbox"
	auditpg "linetrace/internal/audit/store/postgres"
	"linetrace/internal/invalidation"
	linehandler "linetrace/internal/line/handler"
	lineservice "linetrace/internal/line/service"
	linestore "linetrace/internal/line/store"
	"linetrace/internal/platform/config"
	"linetrace/internal/platform/httpserver"
	"linetrace/internal/platform/logger"
	"linetrace/internal/platform/metrics"
	"linetrace/internal/platform/middleware"
	"linetrace/internal/platform/postgres"
	"linetrace/internal/platform/redis"
	processhandler "linetrace/internal/process/handler"
	processservice "linetrace/internal/process/service"
	processstore "linetrace/internal/process/store"
	"linetrace/internal/uow"
	userhandler "linetrace/internal/user/handler"
	userservice "linetrace/internal/user/service"
	userstore "linetrace/internal/user/store"
	"linetrace/migrations"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	m := metrics.New()

	emitters := invalidation.Multi{}
	redisClient, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		emitters = append(emitters, invalidation.NewRedisEmitter(redisClient,
			invalidation.WithLogger(log), invalidation.WithMetrics(m)))
		log.InfoContext(ctx, "cache invalidation enabled", "channel", invalidation.Channel)
	}
	var emitter invalidation.Emitter = invalidation.Noop{}
	if len(emitters) > 0 {
		emitter = emitters
	}

	manager := uow.NewPostgres(db, uow.WithTimeout(cfg.TxTimeout))
	auditStore := auditpg.New(db)
	recorder := audit.NewRecorder(auditStore,
		audit.WithRecorderLogger(log), audit.WithRecorderMetrics(m))
	finder := audit.NewFinder(auditStore)

	lines := linestore.NewPostgres(db)
	processes := processstore.NewPostgres(db)
	users := userstore.NewPostgres(db)

	lineSvc := lineservice.New(lines, processes, manager, recorder,
		lineservice.WithLogger(log), lineservice.WithEmitter(emitter), lineservice.WithMetrics(m))
	processSvc := processservice.New(processes, lines, manager, recorder,
		processservice.WithLogger(log), processservice.WithEmitter(emitter), processservice.WithMetrics(m))
	userSvc := userservice.New(users, manager, recorder,
		userservice.WithLogger(log), userservice.WithEmitter(emitter), userservice.WithMetrics(m))

	router := chi.NewRouter()
	router.Use(middleware.Metadata(log))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireActor(cfg.JWTSigningKey, log))
		linehandler.New(lineSvc, log).Register(r)
		processhandler.New(processSvc, log).Register(r)
		userhandler.New(userSvc, log).Register(r)
		audithandler.New(finder, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := outbox.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer publisher.Close()

		relay := outbox.NewRelay(outbox.NewPostgresStore(db), publisher,
			outbox.WithInterval(cfg.OutboxInterval),
			outbox.WithBatchSize(cfg.OutboxBatch),
			outbox.WithLogger(log),
			outbox.WithMetrics(m))
		group.Go(func() error {
			return relay.Run(groupCtx)
		})
		log.InfoContext(ctx, "audit outbox relay started",
			"topic", cfg.AuditTopic, "interval", cfg.OutboxInterval)
	}

	group.Go(func() error {
		log.InfoContext(ctx, "server listening", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}
