package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gmao_assistant_query_duration_seconds",
			Help:    "Query pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_assistant_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	IntentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_assistant_intent_total",
			Help: "Queries by classified intent",
		},
		[]string{"intent", "urgency"},
	)

	RetrievalResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gmao_assistant_retrieval_results",
			Help:    "Merged result count per query",
			Buckets: []float64{0, 1, 3, 5, 10, 15},
		},
		[]string{"source"},
	)

	AliasMatches = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmao_assistant_alias_matches",
			Help:    "Alias matches per query",
			Buckets: []float64{0, 1, 2, 3, 5},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmao_assistant_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmao_assistant_confidence_score",
			Help:    "Analysis confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
)

func Register() {
	prometheus.MustRegister(
		QueryDuration,
		QueryTotal,
		IntentTotal,
		RetrievalResults,
		AliasMatches,
		LLMTokensUsed,
		ConfidenceScore,
	)
}

// Handler exposes the prometheus endpoint through fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
