package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treeline",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "treeline",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treeline",
			Subsystem: "overlay",
			Name:      "packets_received_total",
			Help:      "Packets accepted off the wire, by packet type.",
		},
		[]string{"node", "type"},
	)
	packetsRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treeline",
			Subsystem: "overlay",
			Name:      "packets_relayed_total",
			Help:      "Packets queued toward another node, by packet type.",
		},
		[]string{"node", "type"},
	)
	evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treeline",
			Subsystem: "overlay",
			Name:      "evictions_total",
			Help:      "Nodes dropped from the registry, by cause.",
		},
		[]string{"node", "reason"},
	)
	reunionRoundTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treeline",
			Subsystem: "overlay",
			Name:      "reunion_round_trips_total",
			Help:      "Hello Back packets that completed a reunion round trip.",
		},
		[]string{"node"},
	)
	reunionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treeline",
			Subsystem: "overlay",
			Name:      "reunion_failures_total",
			Help:      "Reunion rounds that timed out without a Hello Back.",
		},
		[]string{"node"},
	)
	registeredPeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "treeline",
			Subsystem: "overlay",
			Name:      "registered_peers",
			Help:      "Peers currently registered with this node.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			packetsReceived,
			packetsRelayed,
			evictions,
			reunionRoundTrips,
			reunionFailures,
			registeredPeers,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacketReceived(node, packetType string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(node, packetType).Inc()
}

func RecordPacketRelayed(node, packetType string) {
	RegisterMetrics()
	packetsRelayed.WithLabelValues(node, packetType).Inc()
}

func RecordEviction(node, reason string) {
	RegisterMetrics()
	evictions.WithLabelValues(node, reason).Inc()
}

func RecordReunionRoundTrip(node string) {
	RegisterMetrics()
	reunionRoundTrips.WithLabelValues(node).Inc()
}

func RecordReunionFailure(node string) {
	RegisterMetrics()
	reunionFailures.WithLabelValues(node).Inc()
}

func SetRegisteredPeers(node string, count int) {
	RegisterMetrics()
	registeredPeers.WithLabelValues(node).Set(float64(count))
}
