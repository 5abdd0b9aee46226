// Package metrics provides Prometheus metrics for session operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login results.
const (
	LoginSuccess  = "success"
	LoginRejected = "rejected"
	LoginError    = "error"
)

// Logout reasons.
const (
	LogoutUser         = "user"
	LogoutUnauthorized = "unauthorized"
	LogoutExpired      = "expired"
)

// Restore outcomes.
const (
	RestorePresent = "present"
	RestoreAbsent  = "absent"
	RestoreInvalid = "invalid"
	RestoreError   = "error"
)

// Metrics holds all Prometheus metrics for session operations.
// A nil or disabled Metrics is a no-op.
type Metrics struct {
	enabled bool

	loginsTotal   *prometheus.CounterVec
	loginDuration prometheus.Histogram
	logoutsTotal  *prometheus.CounterVec

	restoresTotal *prometheus.CounterVec

	// Observer metrics
	authFailuresTotal *prometheus.CounterVec
	sessionPresent    prometheus.Gauge
}

// New creates metrics registered with the default Prometheus registerer.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	if !enabled {
		return &Metrics{}
	}
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates enabled metrics registered with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{enabled: true}

	m.loginsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "changedesk_logins_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	m.loginDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "changedesk_login_duration_seconds",
		Help:    "Login round trip duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.logoutsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "changedesk_logouts_total",
		Help: "Session terminations by reason",
	}, []string{"reason"})

	m.restoresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "changedesk_session_restores_total",
		Help: "Persisted session restores by outcome",
	}, []string{"outcome"})

	m.authFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "changedesk_auth_failures_total",
		Help: "401 responses seen by the session observer",
	}, []string{"action"})

	m.sessionPresent = factory.NewGauge(prometheus.GaugeOpts{
		Name: "changedesk_session_present",
		Help: "Whether a session is established (0=absent, 1=present)",
	})

	return m
}

func (m *Metrics) on() bool { return m != nil && m.enabled }

// RecordLogin records a login attempt and its duration.
func (m *Metrics) RecordLogin(result string, d time.Duration) {
	if !m.on() {
		return
	}
	m.loginsTotal.WithLabelValues(result).Inc()
	m.loginDuration.Observe(d.Seconds())
}

// RecordLogout records a session termination.
func (m *Metrics) RecordLogout(reason string) {
	if !m.on() {
		return
	}
	m.logoutsTotal.WithLabelValues(reason).Inc()
}

// RecordRestore records the outcome of restoring a persisted session.
func (m *Metrics) RecordRestore(outcome string) {
	if !m.on() {
		return
	}
	m.restoresTotal.WithLabelValues(outcome).Inc()
}

// RecordAuthFailure records a 401 seen by the observer. redirected is false
// when the user was already on the login page.
func (m *Metrics) RecordAuthFailure(redirected bool) {
	if !m.on() {
		return
	}
	action := "ignored"
	if redirected {
		action = "redirected"
	}
	m.authFailuresTotal.WithLabelValues(action).Inc()
}

// SetSessionPresent sets the session gauge.
func (m *Metrics) SetSessionPresent(present bool) {
	if !m.on() {
		return
	}
	v := 0.0
	if present {
		v = 1.0
	}
	m.sessionPresent.Set(v)
}
