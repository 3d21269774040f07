// Package metrics exports service telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "lhtl"

// Collector implements the store, ingest and analysis observers.
type Collector struct {
	storeDuration    *prometheus.HistogramVec
	storeErrors      *prometheus.CounterVec
	submissions      *prometheus.CounterVec
	submitDuration   prometheus.Histogram
	analysisStages   *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
}

// NewCollector registers every metric on reg. Collectors already registered
// under the same name are reused.
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of content store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_errors_total",
			Help:      "Content store operations that failed.",
		}, []string{"operation"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Work submissions by outcome.",
		}, []string{"outcome"}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "End-to-end latency of the ingestion pipeline.",
			Buckets:   prometheus.DefBuckets,
		}),
		analysisStages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "stage_total",
			Help:      "AI analysis stages by outcome.",
		}, []string{"stage", "outcome"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "stage_duration_seconds",
			Help:      "Latency of AI analysis stages.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"stage"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"method", "route", "status"}),
	}

	var err error
	if c.storeDuration, err = register(reg, c.storeDuration); err != nil {
		return nil, err
	}
	if c.storeErrors, err = register(reg, c.storeErrors); err != nil {
		return nil, err
	}
	if c.submissions, err = register(reg, c.submissions); err != nil {
		return nil, err
	}
	if c.submitDuration, err = register(reg, c.submitDuration); err != nil {
		return nil, err
	}
	if c.analysisStages, err = register(reg, c.analysisStages); err != nil {
		return nil, err
	}
	if c.analysisDuration, err = register(reg, c.analysisDuration); err != nil {
		return nil, err
	}
	if c.httpRequests, err = register(reg, c.httpRequests); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, fmt.Errorf("register metric: %w", err)
	}
	return collector, nil
}

// ObserveStoreOp records one content store operation.
func (c *Collector) ObserveStoreOp(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.storeDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		c.storeErrors.WithLabelValues(op).Inc()
	}
}

// ObserveSubmission records one finished submission.
func (c *Collector) ObserveSubmission(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(outcome).Inc()
	c.submitDuration.Observe(duration.Seconds())
}

// ObserveAnalysis records one analysis stage.
func (c *Collector) ObserveAnalysis(stage, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.analysisStages.WithLabelValues(stage, outcome).Inc()
	if outcome != "cached" {
		c.analysisDuration.WithLabelValues(stage).Observe(duration.Seconds())
	}
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, fmt.Sprintf("%dxx", status/100)).Inc()
}
