// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vodpipe"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 1, 5, 30, 120},
	}, []string{"method", "path"})

	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Upload attempts by outcome.",
	}, []string{"outcome"})

	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_bytes_total",
		Help:      "Bytes persisted from successful uploads.",
	})

	JobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_active",
		Help:      "Pipeline runs currently holding a worker slot.",
	})

	JobsWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_waiting",
		Help:      "Pipeline runs submitted but waiting for a worker slot.",
	})

	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Finished pipeline runs by final status.",
	}, []string{"result"})

	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Wall time of a complete pipeline run.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 900, 1800, 3600},
	})

	RenditionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "renditions_total",
		Help:      "Rendition encodes by label and result.",
	}, []string{"label", "result"})

	EncodeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "encode_duration_seconds",
		Help:      "Duration of FFmpeg rendition encodes in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 900},
	}, []string{"label"})

	ProbeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_failures_total",
		Help:      "FFprobe invocations that produced no usable duration.",
	})

	ThumbnailFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "thumbnail_failures_total",
		Help:      "Thumbnail extractions that failed.",
	})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UploadsTotal,
		UploadBytesTotal,
		JobsActive,
		JobsWaiting,
		JobsTotal,
		JobDuration,
		RenditionsTotal,
		EncodeDuration,
		ProbeFailuresTotal,
		ThumbnailFailuresTotal,
	)
}
