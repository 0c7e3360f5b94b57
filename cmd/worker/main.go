package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/loan-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/loan-rag-assistant/internal/config"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/loan-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/loan-rag-assistant/internal/observability/metrics"
)

const (
	serviceName    = "worker"
	opIndexLoan    = "worker.index_loan"
	indexTimeout   = 2 * time.Minute
	reindexTimeout = 30 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))
	if !cfg.QueueEnabled {
		log.Fatalf("worker requires QUEUE_ENABLED=true")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()
	if app.Indexer == nil {
		log.Fatalf("worker requires a SEARCH_BACKEND")
	}

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if cfg.ReindexOnStart {
		reindexCtx, cancel := context.WithTimeout(ctx, reindexTimeout)
		n, err := app.Indexer.Reindex(reindexCtx)
		cancel()
		workerMetrics.AddReindexed(serviceName, n)
		if err != nil {
			slog.Warn("startup_reindex_failed", "indexed", n, "error", err)
		}
	}

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeLoanChanged(ctx, func(handlerCtx context.Context, loanID string) error {
		indexCtx, cancel := context.WithTimeout(handlerCtx, indexTimeout)
		defer cancel()

		started := time.Now()
		workerMetrics.StartIndex()
		err := app.Executor.Execute(indexCtx, opIndexLoan, func(callCtx context.Context) error {
			return app.Indexer.IndexLoan(callCtx, loanID)
		}, resilience.ClassifyDomainError)
		workerMetrics.FinishIndex(serviceName, time.Since(started), err)
		return err
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
