package ddbmw

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the wire call metrics. It owns a registry so several
// collectors can coexist in one process.
type Collector struct {
	registry  *prometheus.Registry
	calls     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	calls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wire_calls_total",
			Help:      "Total number of DynamoDB calls",
		},
		[]string{"op", "table", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wire_call_duration_seconds",
			Help:      "DynamoDB call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	throttles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wire_throttles_total",
			Help:      "Total number of throttled DynamoDB calls",
		},
		[]string{"op"},
	)
	registry := prometheus.NewRegistry()
	registry.MustRegister(calls, duration, throttles)
	return &Collector{
		registry:  registry,
		calls:     calls,
		duration:  duration,
		throttles: throttles,
	}
}

// Registry exposes the collector's metrics for scraping.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func Metrics(c *Collector) Middleware {
	return func(next Call) Call {
		return func(ctx context.Context, req *Request) (any, error) {
			start := time.Now()
			out, err := next(ctx, req)
			c.duration.WithLabelValues(req.Op).Observe(time.Since(start).Seconds())
			st := status(err)
			c.calls.WithLabelValues(req.Op, req.Table, st).Inc()
			if st == "throttled" {
				c.throttles.WithLabelValues(req.Op).Inc()
			}
			return out, err
		}
	}
}
