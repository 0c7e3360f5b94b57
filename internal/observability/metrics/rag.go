package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const namespace = "loanrag"

// RAGMetrics implements ports.PipelineObserver on a Prometheus registry.
type RAGMetrics struct {
	service string

	retrievalTotal   *prometheus.CounterVec
	retrievedResults *prometheus.HistogramVec
	generationTotal  *prometheus.CounterVec
	chatDuration     *prometheus.HistogramVec
}

var _ ports.PipelineObserver = (*RAGMetrics)(nil)

func NewRAGMetrics(service string, registerer prometheus.Registerer) *RAGMetrics {
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieval_total",
			Help:      "Retrievals by the tier that produced the result set.",
		},
		[]string{"service", "tier"},
	)
	retrievedResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieved_results",
			Help:      "Distribution of result set sizes per retrieval.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 35, 50},
		},
		[]string{"service", "tier"},
	)
	generationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "generation_total",
			Help:      "Generated answers by path and fallback reason.",
		},
		[]string{"service", "path", "reason"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "chat_duration_seconds",
			Help:      "End-to-end chat latency by mode.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"service", "mode"},
	)

	registerer.MustRegister(retrievalTotal, retrievedResults, generationTotal, chatDuration)

	return &RAGMetrics{
		service:          service,
		retrievalTotal:   retrievalTotal,
		retrievedResults: retrievedResults,
		generationTotal:  generationTotal,
		chatDuration:     chatDuration,
	}
}

func (m *RAGMetrics) ObserveRetrieval(tier domain.RetrievalTier, results int) {
	m.retrievalTotal.WithLabelValues(m.service, string(tier)).Inc()
	m.retrievedResults.WithLabelValues(m.service, string(tier)).Observe(float64(results))
}

func (m *RAGMetrics) ObserveGeneration(path domain.GenerationPath, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.generationTotal.WithLabelValues(m.service, string(path), reason).Inc()
}

func (m *RAGMetrics) ObserveChat(mode domain.ChatMode, duration time.Duration) {
	m.chatDuration.WithLabelValues(m.service, string(mode)).Observe(duration.Seconds())
}
