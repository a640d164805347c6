// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authsvc"

// AuthMetrics counts auth service operations by outcome. It satisfies
// auth.Recorder.
type AuthMetrics struct {
	operations *prometheus.CounterVec
}

// RecordAuth increments the counter for one finished operation. outcome is
// "success" or the public error kind.
func (m *AuthMetrics) RecordAuth(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// HTTPMetrics tracks API requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// ObserveRequest records one served request. route is the matched route
// pattern, never the raw path, to keep label cardinality bounded.
func (m *HTTPMetrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(method, route, code).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Metrics contains custom Prometheus metrics for authsvc.
type Metrics struct {
	Auth *AuthMetrics
	HTTP *HTTPMetrics
}

// NewMetrics creates and registers custom authsvc metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Auth: &AuthMetrics{
			operations: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "auth_operations_total",
					Help:      "Total number of auth operations by operation and outcome",
				},
				[]string{"operation", "outcome"},
			),
		},
		HTTP: &HTTPMetrics{
			requests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "http_requests_total",
					Help:      "Total number of HTTP requests by method, route and status",
				},
				[]string{"method", "route", "status"},
			),
			duration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "http_request_duration_seconds",
					Help:      "HTTP request latency by method and route",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"method", "route"},
			),
		},
	}

	reg.MustRegister(m.Auth.operations)
	reg.MustRegister(m.HTTP.requests)
	reg.MustRegister(m.HTTP.duration)

	return m
}
