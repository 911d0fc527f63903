package collection

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives request lifecycle events.
type MetricsCollector interface {
	// RecordRequest is called once per settled request.
	// err is nil on success, ErrAborted when superseded, ErrTimeout on timeout.
	RecordRequest(method string, duration time.Duration, err error)
}

// NoopMetricsCollector ignores everything.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRequest(string, time.Duration, error) {}

// PrometheusCollector exports request counts and latencies.
type PrometheusCollector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the collection metrics on reg.
// A nil reg uses the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusCollector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collection",
			Name:      "requests_total",
			Help:      "Collection requests by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "collection",
			Name:      "request_duration_seconds",
			Help:      "Time from dispatch to settle of collection requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	var err error
	if p.requests, err = registerOrReuse(reg, p.requests); err != nil {
		return nil, err
	}
	if p.duration, err = registerOrReuse(reg, p.duration); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordRequest implements MetricsCollector.
func (p *PrometheusCollector) RecordRequest(method string, d time.Duration, err error) {
	p.requests.WithLabelValues(method, outcome(err)).Inc()
	p.duration.WithLabelValues(method).Observe(d.Seconds())
}

// registerOrReuse returns the already-registered collector when an identical one exists,
// so several collections can share one registry.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
