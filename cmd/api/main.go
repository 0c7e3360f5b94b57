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

	httpadapter "github.com/kirillkom/loan-rag-assistant/internal/adapters/http"
	"github.com/kirillkom/loan-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/loan-rag-assistant/internal/config"
	"github.com/kirillkom/loan-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/loan-rag-assistant/internal/observability/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	ragMetrics := metrics.NewRAGMetrics("api", httpMetrics.Registerer())

	app, err := bootstrap.New(ctx, cfg, ragMetrics)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if cfg.ReindexOnStart && app.Indexer != nil {
		if n, err := app.Indexer.Reindex(ctx); err != nil {
			slog.Warn("startup_reindex_failed", "indexed", n, "error", err)
		}
	}

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Chat:      app.Chat,
		Parser:    app.Parser,
		Retriever: app.Retriever,
		Loans:     app.Loans,
		Indexer:   app.Indexer,
	}, httpMetrics, app.Checks).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening",
			"port", cfg.APIPort,
			"record_store", cfg.RecordStore,
			"search_backend", cfg.SearchBackend,
			"llm_provider", cfg.LLMProvider,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
