// Package metrics instruments a Pipeline with Prometheus collectors.
// It follows the project's promauto convention for registering
// collectors, generalised with an explicit Registerer so that a host
// embedding several concurrent Pipeline instances (§5 of the pipeline
// contract permits this) can aggregate them under one registry instead
// of the package-global default used by a single-process server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the collectors shared by every Pipeline instance
// registered against it. Pipelines are distinguished by the "pipeline"
// label, set to each Pipeline's instance ID.
type Recorder struct {
	hopsTotal         *prometheus.CounterVec
	passthroughHops   *prometheus.CounterVec
	inferenceFailures *prometheus.CounterVec
	hopSeconds        *prometheus.HistogramVec
	inferenceSeconds  *prometheus.HistogramVec
}

// NewRecorder registers the pipeline metric collectors against reg. A
// nil reg creates collectors that are not registered with any registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		hopsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiopipe_hops_total",
			Help: "Total number of audio hops processed.",
		}, []string{"pipeline"}),
		passthroughHops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiopipe_passthrough_hops_total",
			Help: "Number of hops processed with the denoise stage in passthrough mode.",
		}, []string{"pipeline"}),
		inferenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiopipe_inference_failures_total",
			Help: "Number of hops where denoiser inference returned an error.",
		}, []string{"pipeline"}),
		hopSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audiopipe_hop_seconds",
			Help:    "Wall-clock duration of a full pipeline hop.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline"}),
		inferenceSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audiopipe_inference_seconds",
			Help:    "Wall-clock duration of the denoiser inference step.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline"}),
	}
}

// ObserveHop records one completed hop for pipelineID, attributing its
// duration and whether the denoise stage was in passthrough mode. A nil
// Recorder is a valid no-op, so callers need not branch when metrics
// are disabled.
func (r *Recorder) ObserveHop(pipelineID string, d time.Duration, passthrough bool) {
	if r == nil {
		return
	}
	r.hopsTotal.WithLabelValues(pipelineID).Inc()
	r.hopSeconds.WithLabelValues(pipelineID).Observe(d.Seconds())
	if passthrough {
		r.passthroughHops.WithLabelValues(pipelineID).Inc()
	}
}

// ObserveInferenceDuration records the wall-clock time of one denoiser
// inference step.
func (r *Recorder) ObserveInferenceDuration(pipelineID string, d time.Duration) {
	if r == nil {
		return
	}
	r.inferenceSeconds.WithLabelValues(pipelineID).Observe(d.Seconds())
}

// ObserveInferenceFailure records a hop whose inference step returned
// an error.
func (r *Recorder) ObserveInferenceFailure(pipelineID string) {
	if r == nil {
		return
	}
	r.inferenceFailures.WithLabelValues(pipelineID).Inc()
}
