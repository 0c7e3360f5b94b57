package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/kirillkom/loan-rag-assistant/internal/config"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
	"github.com/kirillkom/loan-rag-assistant/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxRequestBytes = 1 << 20
	healthTimeout   = 2 * time.Second
)

// Services are the inbound ports served over HTTP. Indexer may be nil when no
// search backend is configured.
type Services struct {
	Chat      ports.ChatService
	Parser    ports.QueryParser
	Retriever ports.Retriever
	Loans     ports.LoanService
	Indexer   ports.LoanIndexer
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
	checks  map[string]func(context.Context) bool
}

// NewRouter builds the API router. httpMetrics and checks may be nil.
func NewRouter(
	cfg config.Config,
	svc Services,
	httpMetrics *metrics.HTTPServerMetrics,
	checks map[string]func(context.Context) bool,
) *Router {
	return &Router{cfg: cfg, svc: svc, metrics: httpMetrics, checks: checks}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware)
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(serviceName, next)
		})
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}
	r.Get("/healthz", rt.healthz)

	r.Route("/v1", func(r chi.Router) {
		if rt.cfg.APIRateLimitRPS > 0 {
			limiter := rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), max(rt.cfg.APIRateLimitBurst, 1))
			r.Use(func(next http.Handler) http.Handler {
				return rateLimitMiddleware(next, limiter, rt.recordRejected)
			})
		}
		if rt.cfg.APIMaxInFlight > 0 {
			wait := time.Duration(rt.cfg.APIBackpressureWaitMS) * time.Millisecond
			r.Use(func(next http.Handler) http.Handler {
				return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, wait, rt.recordRejected)
			})
		}

		r.Post("/chat", rt.chat)
		r.Get("/chat/history", rt.chatHistory)
		r.Post("/intent", rt.intent)
		r.Post("/search", rt.search)

		r.Post("/loans", rt.createLoan)
		r.Get("/loans", rt.listLoans)
		r.Get("/loans/{id}", rt.getLoan)
		r.Patch("/loans/{id}", rt.updateLoan)

		r.Post("/index/rebuild", rt.rebuildIndex)
	})
	return r
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

// healthz always answers 200; a failing backend only marks the service degraded.
func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := "ok"
	backends := make(map[string]string, len(rt.checks))
	for name, ping := range rt.checks {
		if ping(ctx) {
			backends[name] = "up"
			continue
		}
		backends[name] = "down"
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "backends": backends})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("http_handler_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
		message = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
