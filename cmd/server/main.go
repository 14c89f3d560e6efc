package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"receiptanchor/internal/anchoring/cache"
	"receiptanchor/internal/anchoring/handler"
	"receiptanchor/internal/anchoring/ledger"
	"receiptanchor/internal/anchoring/service"
	"receiptanchor/internal/anchoring/store"
	"receiptanchor/internal/audit"
	"receiptanchor/internal/platform/config"
	"receiptanchor/internal/platform/httpserver"
	"receiptanchor/internal/platform/logger"
	"receiptanchor/internal/platform/metrics"
	"receiptanchor/internal/platform/redis"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	receipts, anchors, closeDB := buildStores(cfg, log)
	defer closeDB()

	gateway := buildGateway(cfg, log)
	auditor := buildAuditor(cfg, log)
	defer auditor.Close()

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable, verification cache disabled", "error", err.Error())
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	verifyCache := cache.NewVerificationCache(redisClient, cfg.Anchoring.VerifyCacheTTL)

	svc := service.New(
		receipts,
		anchors,
		gateway,
		verifyCache,
		auditor,
		metrics.New(),
		log,
		service.Config{
			PartySalt:         cfg.Anchoring.PartySalt,
			ProofSigningKey:   cfg.Anchoring.ProofSigningKey,
			VerifyBaseURL:     cfg.Anchoring.VerifyBaseURL,
			MirrorBaseURL:     cfg.Ledger.MirrorURL,
			QueryLimit:        cfg.Anchoring.QueryLimit,
			BulkRatePerSecond: cfg.Anchoring.BulkRatePerSecond,
		},
	)

	// Resolve the topic up front so startup fails loudly when the log is
	// misconfigured; the gateway stays lazy if it is merely unreachable.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.Ledger.RequestTimeout)
	if topicID, err := gateway.EnsureTopic(startupCtx); err != nil {
		log.Warn("topic resolution deferred", "error", err.Error())
	} else {
		log.Info("anchoring to ledger topic", "topic_id", topicID, "network", cfg.Ledger.Network)
	}
	cancelStartup()

	router := chi.NewRouter()
	handler.New(svc, log).Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Server.Addr, router)
	log.Info("starting receiptanchor", "addr", cfg.Server.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
}

// buildStores returns postgres-backed stores when a DSN is configured,
// in-memory stores otherwise.
func buildStores(cfg config.Config, log *slog.Logger) (store.ReceiptStore, store.AnchorStore, func()) {
	if cfg.PostgresDSN == "" {
		log.Info("no postgres DSN configured, using in-memory stores")
		return store.NewInMemoryReceiptStore(), store.NewInMemoryAnchorStore(), func() {}
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Error("open postgres", "error", err.Error())
		os.Exit(1)
	}
	if err := db.Ping(); err != nil {
		log.Error("ping postgres", "error", err.Error())
		os.Exit(1)
	}
	return store.NewPostgresReceiptStore(db), store.NewPostgresAnchorStore(db), func() { _ = db.Close() }
}

// buildGateway picks the in-memory fake for local development when the node
// URL is the literal "memory", the HTTP client otherwise.
func buildGateway(cfg config.Config, log *slog.Logger) ledger.Gateway {
	if cfg.Ledger.NodeURL == "memory" {
		log.Info("using in-memory ledger gateway")
		return ledger.NewFake()
	}
	return ledger.NewClient(cfg.Ledger, log)
}

func buildAuditor(cfg config.Config, log *slog.Logger) audit.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return audit.NewMemoryPublisher()
	}
	publisher, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		log.Error("kafka unavailable, audit events kept in memory", "error", err.Error())
		return audit.NewMemoryPublisher()
	}
	log.Info("audit events streaming to kafka", "topic", cfg.Kafka.Topic)
	return publisher
}
