package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同じレジストリへの二重登録でpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}

func TestRecordAuthAttempt_ByAuthenticatorAndResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthAttempt("email", "success")
	c.RecordAuthAttempt("email", "failure")
	c.RecordAuthAttempt("email", "failure")
	c.RecordAuthAttempt("username", "failure")

	m := findMetric(t, reg, "ojeomneo_auth_attempts_total", map[string]string{"authenticator": "email", "result": "failure"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("email/failure = %v, want 2", v)
	}
	m = findMetric(t, reg, "ojeomneo_auth_attempts_total", map[string]string{"authenticator": "username", "result": "failure"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("username/failure = %v, want 1", v)
	}
}

func TestRecordIdentityCreated_ByLoginMethod(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIdentityCreated("email")
	c.RecordIdentityCreated("kakao")
	c.RecordIdentityCreated("kakao")

	m := findMetric(t, reg, "ojeomneo_identities_created_total", map[string]string{"login_method": "kakao"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("kakao = %v, want 2", v)
	}
}

func TestCounters_Increment(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHandleCollision()
	c.RecordHandleCollision()
	c.RecordDuplicateIdentity()
	c.RecordRateLimited("login")

	if v := findMetric(t, reg, "ojeomneo_handle_collisions_total", nil).GetCounter().GetValue(); v != 2 {
		t.Errorf("handle_collisions_total = %v, want 2", v)
	}
	if v := findMetric(t, reg, "ojeomneo_duplicate_identities_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("duplicate_identities_total = %v, want 1", v)
	}
	if v := findMetric(t, reg, "ojeomneo_rate_limited_total", map[string]string{"limit_type": "login"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("rate_limited_total = %v, want 1", v)
	}
}

func TestObserveProbe_SetsGaugeAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveProbe(true, 5)
	if v := findMetric(t, reg, "ojeomneo_db_up", nil).GetGauge().GetValue(); v != 1 {
		t.Errorf("db_up = %v, want 1", v)
	}

	c.ObserveProbe(false, 1500)
	if v := findMetric(t, reg, "ojeomneo_db_up", nil).GetGauge().GetValue(); v != 0 {
		t.Errorf("db_up = %v, want 0", v)
	}

	h := findMetric(t, reg, "ojeomneo_db_probe_latency_seconds", nil).GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	if sum := h.GetSampleSum(); sum < 1.504 || sum > 1.506 {
		t.Errorf("sample_sum = %v, want 1.505", sum)
	}
}

func TestRecordHTTPStatus_ByStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(503)
	c.RecordHTTPStatus(503)

	if v := findMetric(t, reg, "ojeomneo_http_status_total", map[string]string{"status_code": "503"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("503 = %v, want 2", v)
	}
}
