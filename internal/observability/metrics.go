package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Directions used as the "direction" label.
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

var (
	registerOnce sync.Once

	bottles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bottle",
			Subsystem: "mux",
			Name:      "bottles_total",
			Help:      "Bottles opened, by direction and bottle type.",
		},
		[]string{"direction", "type"},
	)
	subStreams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bottle",
			Subsystem: "mux",
			Name:      "streams_total",
			Help:      "Sub-streams handed out, by direction and kind (raw or bottle).",
		},
		[]string{"direction", "kind"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bottle",
			Subsystem: "frame",
			Name:      "frames_total",
			Help:      "Data frames encoded or decoded, excluding terminators.",
		},
		[]string{"direction"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bottle",
			Subsystem: "frame",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes carried in frames.",
		},
		[]string{"direction"},
	)
	verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bottle",
			Subsystem: "signed",
			Name:      "verifications_total",
			Help:      "Signed bottle verification outcomes.",
		},
		[]string{"method", "status"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bottle",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served by the metrics endpoint.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bottle",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(bottles, subStreams, frames, frameBytes, verifications, httpRequests, httpDuration)
	})
}

func RecordBottle(direction, bottleType string) {
	RegisterMetrics()
	bottles.WithLabelValues(direction, bottleType).Inc()
}

func RecordStream(direction, kind string) {
	RegisterMetrics()
	subStreams.WithLabelValues(direction, kind).Inc()
}

func RecordFrames(direction string, count, payload int64) {
	RegisterMetrics()
	frames.WithLabelValues(direction).Add(float64(count))
	frameBytes.WithLabelValues(direction).Add(float64(payload))
}

func RecordVerification(method, status string) {
	RegisterMetrics()
	verifications.WithLabelValues(method, status).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
