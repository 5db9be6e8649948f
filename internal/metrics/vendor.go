package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	vendorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ezviz",
		Name:      "requests_total",
		Help:      "Ezviz cloud API requests by operation and result",
	}, []string{"op", "result"})

	vendorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ezviz",
		Name:      "request_duration_seconds",
		Help:      "Ezviz cloud API request latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"op"})

	snapshotDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "snapshot_duration_seconds",
		Help:      "Time spent grabbing one JPEG frame",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 12},
	}, []string{"result"})
)

// ObserveVendorCall records one Ezviz API request.
func ObserveVendorCall(op string, elapsed time.Duration, err error) {
	vendorRequests.WithLabelValues(op, resultLabel(err)).Inc()
	vendorDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveSnapshot records one frame grab.
func ObserveSnapshot(elapsed time.Duration, err error) {
	snapshotDuration.WithLabelValues(resultLabel(err)).Observe(elapsed.Seconds())
}
