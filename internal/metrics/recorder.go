// Package metrics exports clustering lifecycle measurements to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements domain.MetricsRecorder.
type Recorder struct {
	requests     *prometheus.CounterVec
	computations *prometheus.CounterVec
	duration     prometheus.Histogram
	candidates   prometheus.Histogram
}

// Option customizes a Recorder.
type Option func(*recorderConfig)

type recorderConfig struct {
	registerer      prometheus.Registerer
	durationBuckets []float64
}

// WithRegisterer overrides the default Prometheus registerer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(cfg *recorderConfig) {
		cfg.registerer = r
	}
}

// WithDurationBuckets overrides the computation duration buckets (in seconds).
func WithDurationBuckets(buckets []float64) Option {
	return func(cfg *recorderConfig) {
		cfg.durationBuckets = buckets
	}
}

// NewRecorder constructs a Recorder and registers its collectors. Collectors that are
// already registered are reused.
func NewRecorder(opts ...Option) (*Recorder, error) {
	cfg := recorderConfig{
		registerer:      prometheus.DefaultRegisterer,
		durationBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundgraph_cluster_requests_total",
			Help: "Clustering requests by outcome (hit, pending, failed, dispatched).",
		}, []string{"outcome"}),
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundgraph_cluster_computations_total",
			Help: "Finished background clusterings by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soundgraph_cluster_computation_seconds",
			Help:    "Duration of background clusterings.",
			Buckets: cfg.durationBuckets,
		}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soundgraph_cluster_candidates",
			Help:    "Number of candidate sounds per clustering.",
			Buckets: prometheus.ExponentialBuckets(8, 2, 8),
		}),
	}

	var err error
	r.requests, err = register(cfg.registerer, r.requests)
	if err != nil {
		return nil, err
	}
	r.computations, err = register(cfg.registerer, r.computations)
	if err != nil {
		return nil, err
	}
	r.duration, err = register(cfg.registerer, r.duration)
	if err != nil {
		return nil, err
	}
	r.candidates, err = register(cfg.registerer, r.candidates)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// RecordRequest counts a request outcome.
func (r *Recorder) RecordRequest(outcome string) {
	r.requests.WithLabelValues(outcome).Inc()
}

// RecordComputation observes a finished computation.
func (r *Recorder) RecordComputation(outcome string, duration time.Duration, candidates int) {
	r.computations.WithLabelValues(outcome).Inc()
	r.duration.Observe(duration.Seconds())
	r.candidates.Observe(float64(candidates))
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}
