// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the counters.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics contains the Cooksavvy Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	MailDispatch   *prometheus.CounterVec
	HTTPRequests   *prometheus.HistogramVec
}

// NewMetrics creates and registers the metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cooksavvy_auth_operations_total",
				Help: "Auth operations by operation and outcome (ok or error kind)",
			},
			[]string{"operation", "outcome"},
		),
		MailDispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cooksavvy_mail_dispatch_total",
				Help: "Mail dispatch attempts by template and status",
			},
			[]string{"template", "status"},
		),
		HTTPRequests: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cooksavvy_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern, method and status code",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
	}

	reg.MustRegister(m.AuthOperations, m.MailDispatch, m.HTTPRequests)
	return m
}

// RecordAuth counts one auth operation. outcome is OutcomeOK or an error kind.
func (m *Metrics) RecordAuth(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordMail counts one mail dispatch.
func (m *Metrics) RecordMail(template string, err error) {
	if m == nil {
		return
	}
	status := OutcomeOK
	if err != nil {
		status = OutcomeError
	}
	m.MailDispatch.WithLabelValues(template, status).Inc()
}

// ObserveHTTP records the latency of one request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
