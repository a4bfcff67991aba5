package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame sources.
const (
	SourceHTTP   = "http"
	SourceImage  = "image"
	SourceStream = "stream"
	SourceBridge = "bridge"
)

var (
	framesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeview_frames_processed_total",
		Help: "Frames successfully turned into edge maps",
	}, []string{"source"})

	frameErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeview_frame_errors_total",
		Help: "Frames rejected or failed, by reason",
	}, []string{"source", "reason"})

	framesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeview_frames_dropped_total",
		Help: "Frames skipped by the stream rate limiter",
	}, []string{"source"})

	frameProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "edgeview_frame_processing_duration_seconds",
		Help: "Time spent in the edge pipeline per frame",
		// 0.5ms .. ~1s
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"source"})

	frameBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeview_frame_bytes_total",
		Help: "Pixel bytes moved through the filter",
	}, []string{"direction"})

	frameMegapixels = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edgeview_frame_megapixels",
		Help:    "Frame size in megapixels",
		Buckets: []float64{0.1, 0.3, 0.5, 1, 2, 4, 8.3},
	})

	streamSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edgeview_stream_sessions_active",
		Help: "Open websocket frame streams",
	})

	streamSessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edgeview_stream_session_duration_seconds",
		Help:    "Lifetime of websocket frame streams",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~9h
	})
)

// RecordFrameProcessed counts one successful frame.
func RecordFrameProcessed(source string, width, height, inBytes, outBytes int, d time.Duration) {
	framesProcessedTotal.WithLabelValues(source).Inc()
	frameProcessingDuration.WithLabelValues(source).Observe(d.Seconds())
	frameBytesTotal.WithLabelValues("in").Add(float64(inBytes))
	frameBytesTotal.WithLabelValues("out").Add(float64(outBytes))
	frameMegapixels.Observe(float64(width*height) / 1e6)
}

// RecordFrameError counts one failed frame.
func RecordFrameError(source, reason string) {
	frameErrorsTotal.WithLabelValues(source, reason).Inc()
}

// RecordFrameDropped counts one rate-limited frame.
func RecordFrameDropped(source string) {
	framesDroppedTotal.WithLabelValues(source).Inc()
}

// StreamOpened marks a websocket session as active.
func StreamOpened() {
	streamSessionsActive.Inc()
}

// StreamClosed marks a websocket session as finished.
func StreamClosed(lifetime time.Duration) {
	streamSessionsActive.Dec()
	streamSessionDuration.Observe(lifetime.Seconds())
}
