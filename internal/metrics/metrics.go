package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry so
// tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	EvaluationsTotal      *prometheus.CounterVec
	CorpusLoadsTotal      *prometheus.CounterVec
	EmbeddingRetriesTotal prometheus.Counter
	RetrievalDuration     prometheus.Histogram
	ActiveCorpusChunks    prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spendguard_evaluations_total",
			Help: "Purchase request evaluations by verdict status.",
		}, []string{"status"}),
		CorpusLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spendguard_corpus_loads_total",
			Help: "Corpus load attempts by result.",
		}, []string{"result"}),
		EmbeddingRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spendguard_embedding_retries_total",
			Help: "Chunk embedding attempts retried after a transient error.",
		}),
		RetrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spendguard_retrieval_duration_seconds",
			Help:    "Wall time of a retrieval query against the active index.",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveCorpusChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spendguard_active_corpus_chunks",
			Help: "Chunk count of the currently active corpus version.",
		}),
	}
	m.registry.MustRegister(
		m.EvaluationsTotal,
		m.CorpusLoadsTotal,
		m.EmbeddingRetriesTotal,
		m.RetrievalDuration,
		m.ActiveCorpusChunks,
	)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
