// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/authgate/internal/auth"
)

const outcomeSuccess = "success"

// AuthMetrics counts auth outcomes. It implements auth.Metrics.
type AuthMetrics struct {
	LoginsTotal *prometheus.CounterVec
	ResetsTotal *prometheus.CounterVec
}

var _ auth.Metrics = (*AuthMetrics)(nil)

// NewAuthMetrics creates and registers the auth counters.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	m := &AuthMetrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_logins_total",
				Help: "Login attempts by variant and outcome",
			},
			[]string{"variant", "outcome"},
		),
		ResetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_password_resets_total",
				Help: "Password reset operations by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
	}
	reg.MustRegister(m.LoginsTotal, m.ResetsTotal)
	return m
}

// ObserveLogin records one login.
func (m *AuthMetrics) ObserveLogin(variant string, kind auth.ErrorKind, ok bool) {
	m.LoginsTotal.WithLabelValues(variant, outcome(kind, ok)).Inc()
}

// ObserveReset records one reset request or redemption.
func (m *AuthMetrics) ObserveReset(stage string, kind auth.ErrorKind, ok bool) {
	m.ResetsTotal.WithLabelValues(stage, outcome(kind, ok)).Inc()
}

func outcome(kind auth.ErrorKind, ok bool) string {
	if ok {
		return outcomeSuccess
	}
	return kind.String()
}

// HTTPMetrics counts API responses.
type HTTPMetrics struct {
	RequestsTotal *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers the HTTP counters.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_http_requests_total",
				Help: "API responses by method and status code",
			},
			[]string{"method", "status"},
		),
	}
	reg.MustRegister(m.RequestsTotal)
	return m
}

// Middleware counts every response written by next.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
