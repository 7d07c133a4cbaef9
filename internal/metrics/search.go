package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search, index and agent metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homefinder",
			Name:      "search_requests_total",
			Help:      "Listing searches by outcome",
		},
		[]string{"status"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "homefinder",
			Name:      "search_duration_seconds",
			Help:      "End-to-end listing search duration (embed + KNN + normalize)",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	CorruptListingsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "homefinder",
			Name:      "corrupt_listings_total",
			Help:      "Search matches skipped because their stored metadata could not be parsed",
		},
	)

	IndexUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homefinder",
			Name:      "index_upserts_total",
			Help:      "Listings written to the vector index",
		},
		[]string{"status"},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homefinder",
			Name:      "tool_calls_total",
			Help:      "Agent tool invocations by tool and outcome",
		},
		[]string{"tool", "status"},
	)

	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "homefinder",
			Name:      "event_subscribers",
			Help:      "Open websocket event feed connections",
		},
	)
)

var serviceMetricsRegistered bool

// RegisterServiceMetrics registers search, index and agent metrics. Must be called once from main.
func RegisterServiceMetrics() {
	if serviceMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(CorruptListingsTotal)
	prometheus.MustRegister(IndexUpsertsTotal)
	prometheus.MustRegister(ToolCallsTotal)
	prometheus.MustRegister(EventSubscribers)
	serviceMetricsRegistered = true
}
