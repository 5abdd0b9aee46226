package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDisabled(t *testing.T) {
	metrics := New(false)

	if metrics == nil {
		t.Fatal("metrics should not be nil (noop)")
	}

	// These should not panic even though they're noop
	metrics.RecordLogin(LoginSuccess, time.Millisecond)
	metrics.RecordLogout(LogoutUser)
	metrics.RecordRestore(RestoreAbsent)
	metrics.RecordAuthFailure(true)
	metrics.SetSessionPresent(true)
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics
	m.RecordLogin(LoginError, 0)
	m.SetSessionPresent(false)
}

func TestRecordLogin(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.RecordLogin(LoginSuccess, 20*time.Millisecond)
	m.RecordLogin(LoginRejected, 5*time.Millisecond)
	m.RecordLogin(LoginRejected, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.loginsTotal.WithLabelValues(LoginSuccess)); got != 1 {
		t.Errorf("success logins = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.loginsTotal.WithLabelValues(LoginRejected)); got != 2 {
		t.Errorf("rejected logins = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.loginDuration); got != 1 {
		t.Errorf("duration collectors = %d", got)
	}
}

func TestRecordLogoutAndRestore(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.RecordLogout(LogoutUser)
	m.RecordLogout(LogoutUnauthorized)
	m.RecordRestore(RestoreInvalid)

	if got := testutil.ToFloat64(m.logoutsTotal.WithLabelValues(LogoutUnauthorized)); got != 1 {
		t.Errorf("unauthorized logouts = %v", got)
	}
	if got := testutil.ToFloat64(m.restoresTotal.WithLabelValues(RestoreInvalid)); got != 1 {
		t.Errorf("invalid restores = %v", got)
	}
}

func TestAuthFailureAndGauge(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.RecordAuthFailure(true)
	m.RecordAuthFailure(false)
	m.RecordAuthFailure(false)
	m.SetSessionPresent(true)

	if got := testutil.ToFloat64(m.authFailuresTotal.WithLabelValues("ignored")); got != 2 {
		t.Errorf("ignored = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sessionPresent); got != 1 {
		t.Errorf("session gauge = %v, want 1", got)
	}
	m.SetSessionPresent(false)
	if got := testutil.ToFloat64(m.sessionPresent); got != 0 {
		t.Errorf("session gauge = %v, want 0", got)
	}
}

func TestDefaultRegisterer(t *testing.T) {
	m := New(true)
	m.RecordLogin(LoginSuccess, time.Millisecond)
	if got := testutil.ToFloat64(m.loginsTotal.WithLabelValues(LoginSuccess)); got < 1 {
		t.Errorf("success logins = %v", got)
	}
}
