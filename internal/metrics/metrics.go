// Package metrics exports coordinator activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vigil"

// Observer implements diagnostics.Observer.
type Observer struct {
	tracked   prometheus.Gauge
	started   *prometheus.CounterVec
	applied   *prometheus.CounterVec
	markers   *prometheus.HistogramVec
	discarded *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_documents",
			Help:      "Documents currently tracked for validation.",
		}),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_started_total",
			Help:      "Validation passes started.",
		}, []string{"language"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_applied_total",
			Help:      "Validation results applied to a document.",
		}, []string{"language"}),
		markers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "markers_per_validation",
			Help:      "Markers produced by applied validations.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}, []string{"language"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_discarded_total",
			Help:      "Validation results dropped because the document changed.",
		}, []string{"language"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_failed_total",
			Help:      "Validation passes whose analyzer returned an error.",
		}, []string{"language"}),
	}
	for _, c := range []prometheus.Collector{o.tracked, o.started, o.applied, o.markers, o.discarded, o.failed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) Tracked(count int) {
	o.tracked.Set(float64(count))
}

func (o *Observer) ValidationStarted(languageID string) {
	o.started.WithLabelValues(languageID).Inc()
}

func (o *Observer) ValidationApplied(languageID string, markers int) {
	o.applied.WithLabelValues(languageID).Inc()
	o.markers.WithLabelValues(languageID).Observe(float64(markers))
}

func (o *Observer) ValidationDiscarded(languageID string) {
	o.discarded.WithLabelValues(languageID).Inc()
}

func (o *Observer) ValidationFailed(languageID string) {
	o.failed.WithLabelValues(languageID).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
