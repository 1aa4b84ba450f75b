// Package metrics exposes Prometheus collectors for the counting pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reptrack_frames_processed_total",
		Help: "Total number of detection results applied to the counter",
	})

	DetectionsAbsentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reptrack_detections_absent_total",
		Help: "Frames without a usable elbow angle, by reason",
	}, []string{"reason"})

	FramesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reptrack_frames_dropped_total",
		Help: "Detection results dropped because the processing queue was full",
	})

	RepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reptrack_reps_total",
		Help: "Total number of completed repetitions since start",
	})

	RepCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reptrack_rep_count",
		Help: "Current repetition count",
	})

	ElbowAngle = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reptrack_elbow_angle_degrees",
		Help:    "Distribution of measured elbow angles",
		Buckets: prometheus.LinearBuckets(0, 20, 10),
	})

	DetectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reptrack_detect_duration_seconds",
		Help:    "Latency of one landmark detection call",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	HookExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reptrack_hook_executions_total",
		Help: "Hook executions, by event and result",
	}, []string{"event", "result"})
)

// Absence reasons.
const (
	ReasonNoSubject = "no_subject"
	ReasonNoAngle   = "no_angle"
)
