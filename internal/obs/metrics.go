package obs

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amora_api_requests_total",
		Help: "Total API requests by outcome (ok/error/cancelled/session_expired).",
	}, []string{"outcome"})
	RequestRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amora_api_retries_total",
		Help: "Total API request retry attempts.",
	})
	DedupHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amora_api_dedup_hits_total",
		Help: "Total requests coalesced onto an identical in-flight call.",
	})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amora_api_cache_hits_total",
		Help: "Total GET requests served from the response cache.",
	})
	QueueCancellations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amora_api_queue_cancellations_total",
		Help: "Total queued requests cancelled by priority eviction.",
	})
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amora_api_token_refreshes_total",
		Help: "Total token refresh attempts by outcome (ok/failed).",
	}, []string{"outcome"})

	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amora_realtime_reconnects_total",
		Help: "Total reconnection attempts.",
	})
	HeartbeatRTT = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "amora_realtime_heartbeat_rtt_seconds",
		Help:    "Heartbeat round-trip latency.",
		Buckets: []float64{0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2, 5},
	})
	OutboundDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amora_realtime_outbound_drops_total",
		Help: "Total outbound messages dropped after retry exhaustion or overflow.",
	})
	ChannelEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amora_channels_evictions_total",
		Help: "Total channels evicted by the budget manager.",
	})
	OpenChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amora_channels_open",
		Help: "Currently tracked channels.",
	})

	BatchFlushSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "amora_batch_flush_size",
		Help:    "Signals per flushed batch; a rough trend indicator, not a time-weighted mean.",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})
)

// Register installs every collector into the default registry.
// Call once from the composition root.
func Register() {
	prometheus.MustRegister(
		RequestsTotal, RequestRetries, DedupHits, CacheHits,
		QueueCancellations, TokenRefreshes,
		Reconnects, HeartbeatRTT, OutboundDrops,
		ChannelEvictions, OpenChannels,
		BatchFlushSize,
	)
}
