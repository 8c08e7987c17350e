// Package metrics exposes pipeline counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mamadbah2/cropwatch/internal/camera"
)

const namespace = "cropwatch"

// Cycle outcomes reported by the data logger.
const (
	OutcomePersisted = "persisted"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

// Recorder owns a private registry so tests and multiple instances never collide.
type Recorder struct {
	registry *prometheus.Registry

	framesCaptured  *prometheus.CounterVec
	captureFailures *prometheus.CounterVec
	dataCycles      *prometheus.CounterVec
	persistSeconds  *prometheus.HistogramVec
	greenness       *prometheus.GaugeVec
	imagesArchived  *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		framesCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Frames published to the latest-frame slot.",
		}, []string{"crop"}),
		captureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_failures_total",
			Help:      "Failed reads from the capture device.",
		}, []string{"crop"}),
		dataCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_cycles_total",
			Help:      "Data logger cycles by outcome.",
		}, []string{"crop", "outcome"}),
		persistSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_persist_seconds",
			Help:      "Time spent writing one plant snapshot, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"crop"}),
		greenness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plant_greenness_ratio",
			Help:      "Latest greenness ratio per plant.",
		}, []string{"crop", "plant"}),
		imagesArchived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_archived_total",
			Help:      "Crop images handed to the archive.",
		}, []string{"crop"}),
	}

	r.registry.MustRegister(
		r.framesCaptured,
		r.captureFailures,
		r.dataCycles,
		r.persistSeconds,
		r.greenness,
		r.imagesArchived,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry is exposed for tests and custom collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ForCrop returns a capture observer labelled with the crop id.
func (r *Recorder) ForCrop(cropID string) camera.Observer {
	return cropObserver{
		captured: r.framesCaptured.WithLabelValues(cropID),
		failed:   r.captureFailures.WithLabelValues(cropID),
	}
}

func (r *Recorder) CycleCompleted(cropID, outcome string) {
	r.dataCycles.WithLabelValues(cropID, outcome).Inc()
}

func (r *Recorder) PersistDuration(cropID string, seconds float64) {
	r.persistSeconds.WithLabelValues(cropID).Observe(seconds)
}

func (r *Recorder) PlantGreenness(cropID, plantID string, value float64) {
	r.greenness.WithLabelValues(cropID, plantID).Set(value)
}

// ForgetPlant drops the gauge of a plant removed from its crop.
func (r *Recorder) ForgetPlant(cropID, plantID string) {
	r.greenness.DeleteLabelValues(cropID, plantID)
}

func (r *Recorder) ImageArchived(cropID string) {
	r.imagesArchived.WithLabelValues(cropID).Inc()
}

type cropObserver struct {
	captured prometheus.Counter
	failed   prometheus.Counter
}

func (o cropObserver) FrameCaptured() { o.captured.Inc() }

func (o cropObserver) CaptureFailed() { o.failed.Inc() }
