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
			Namespace: "linkctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linkctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	linkBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "link",
			Name:      "bytes_total",
			Help:      "Bytes moved over the link by direction.",
		},
		[]string{"direction"},
	)
	linkRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "link",
			Name:      "records_total",
			Help:      "Display records emitted by direction.",
		},
		[]string{"direction"},
	)
	linkPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "linkctl",
			Subsystem: "link",
			Name:      "peers",
			Help:      "Currently attached peer connections.",
		},
	)
	linkTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "link",
			Name:      "state_transitions_total",
			Help:      "Session state transitions by target state.",
		},
		[]string{"state"},
	)
	linkWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "linkctl",
			Subsystem: "link",
			Name:      "write_failures_total",
			Help:      "Peer writes that returned an error.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			linkBytes,
			linkRecords,
			linkPeers,
			linkTransitions,
			linkWriteFailures,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrame counts one display record and its payload size.
func RecordFrame(direction string, size int) {
	RegisterMetrics()
	linkRecords.WithLabelValues(direction).Inc()
	linkBytes.WithLabelValues(direction).Add(float64(size))
}

func RecordStateTransition(state string) {
	RegisterMetrics()
	linkTransitions.WithLabelValues(state).Inc()
}

func SetPeers(n int) {
	RegisterMetrics()
	linkPeers.Set(float64(n))
}

func RecordWriteFailure() {
	RegisterMetrics()
	linkWriteFailures.Inc()
}
