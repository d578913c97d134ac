package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stream",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stream",
		Name:      "active_sessions",
		Help:      "Number of currently live swarm sessions.",
	})

	OpenStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stream",
		Name:      "open_streams",
		Help:      "Number of currently open consumer streams across all sessions.",
	})

	StreamsOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "streams_opened_total",
		Help:      "Total consumer streams opened.",
	})

	StreamsClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "streams_closed_total",
		Help:      "Total consumer streams closed.",
	})

	TeardownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "teardowns_total",
		Help:      "Total sessions destroyed after the grace period elapsed.",
	})

	MetadataResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "metadata_resolve_total",
		Help:      "Metadata resolve attempts by outcome (found, not_found, error).",
	}, []string{"outcome"})

	SeedsReconciledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "seeds_reconciled_total",
		Help:      "Total seed files re-admitted at startup.",
	})

	SeedReconcileFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stream",
		Name:      "seed_reconcile_failures_total",
		Help:      "Total seed files that failed to re-admit at startup.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stream",
		Name:      "download_speed_bytes",
		Help:      "Current aggregate download speed in bytes per second.",
	})

	UploadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stream",
		Name:      "upload_speed_bytes",
		Help:      "Current aggregate upload speed in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stream",
		Name:      "peers_connected",
		Help:      "Total number of peers connected across all sessions.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		OpenStreams,
		StreamsOpenedTotal,
		StreamsClosedTotal,
		TeardownsTotal,
		MetadataResolveTotal,
		SeedsReconciledTotal,
		SeedReconcileFailuresTotal,
		DownloadSpeedBytes,
		UploadSpeedBytes,
		PeersConnected,
	)
}
