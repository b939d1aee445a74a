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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"fusionledger/internal/fusion/handler"
	"fusionledger/internal/fusion/hotcache"
	fusionmetrics "fusionledger/internal/fusion/metrics"
	"fusionledger/internal/fusion/service"
	"fusionledger/internal/fusion/store"
	"fusionledger/internal/fusion/store/memory"
	"fusionledger/internal/fusion/store/postgres"
	"fusionledger/internal/platform/config"
	"fusionledger/internal/platform/httpserver"
	"fusionledger/internal/platform/logger"
	platformredis "fusionledger/internal/platform/redis"
	"fusionledger/pkg/platform/audit"
	auditkafka "fusionledger/pkg/platform/audit/store/kafka"
	auditmemory "fusionledger/pkg/platform/audit/store/memory"
	"fusionledger/pkg/platform/audit/publisher"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the fusion packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Record store: durable when Postgres is configured, in-memory otherwise.
	var records store.RecordStore
	var closeStore func() error
	if cfg.PostgresURL != "" {
		pg, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		records = pg
		closeStore = pg.Close
		log.Info("using postgres record store")
	} else {
		records = memory.NewInMemoryStore()
		log.Info("using in-memory record store")
	}

	// Hot-timeline cache is optional.
	var cache *hotcache.Cache
	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		cache = hotcache.New(redisClient.Client, config.TimelineCacheTTL, log)
		log.Info("hot-timeline cache enabled")
	}

	// Audit pipeline: Kafka sink when brokers are configured, in-memory
	// store otherwise.
	var auditStore audit.Store
	var closeAuditStore func()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaStore, err := auditkafka.New(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		auditStore = kafkaStore
		closeAuditStore = kafkaStore.Close
		log.Info("kafka audit sink enabled", "topic", cfg.AuditTopic)
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
		publisher.WithCircuitBreaker(publisher.NewCircuitBreaker(5, 30*time.Second)),
	)

	metrics := fusionmetrics.New()

	ledger, err := service.New(records,
		service.WithRetentionWindowDays(cfg.RetentionWindowDays),
		service.WithCache(cache),
		service.WithMetrics(metrics),
		service.WithAuditPublisher(auditPublisher),
		service.WithLogger(log),
	)
	if err != nil {
		log.Error("failed to build ledger", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	handler.New(ledger, log).Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting fusion ledger", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return httpserver.Shutdown(srv, 10*time.Second)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	auditPublisher.Close()
	if closeAuditStore != nil {
		closeAuditStore()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			log.Error("failed to close record store", "error", err)
		}
	}
}
