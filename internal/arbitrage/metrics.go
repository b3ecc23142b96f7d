package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuoteUpdatesTotal counts odds events handled by the detector, by event kind.
	QuoteUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbbot_quote_updates_total",
			Help: "Total number of odds events processed by the detector",
		},
		[]string{"event"},
	)

	// OpportunitiesDetectedTotal tracks arbitrage opportunities published.
	OpportunitiesDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbbot_opportunities_detected_total",
		Help: "Total number of arbitrage opportunities detected",
	})

	// OpportunityMargin tracks the combined market margin of accepted pairings.
	OpportunityMargin = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbbot_opportunity_margin",
		Help:    "Combined implied probability of accepted pairings",
		Buckets: []float64{0.90, 0.93, 0.95, 0.97, 0.98, 0.99, 0.995, 1.0},
	})

	// InvalidQuotesTotal counts cached quotes skipped because they could not be decoded.
	InvalidQuotesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbbot_invalid_cached_quotes_total",
		Help: "Total number of cached quotes skipped as malformed",
	})

	// DetectionDurationSeconds tracks the time from event receipt to publish.
	DetectionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbbot_detection_duration_seconds",
		Help:    "Duration of a single detection pass",
		Buckets: prometheus.DefBuckets,
	})
)
