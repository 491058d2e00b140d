package metrics

import (
	"testing"
	"time"

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
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordRemoteRequest_LabelsByEndpointAndStatus はリモート呼び出しがラベル別に集計されることを検証する。
func TestRecordRemoteRequest_LabelsByEndpointAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRemoteRequest("/api/diagnostics/", 200, 10*time.Millisecond)
	c.RecordRemoteRequest("/api/diagnostics/", 200, 20*time.Millisecond)
	c.RecordRemoteRequest("/api/diagnostics/", 0, time.Millisecond)

	ok := findMetric(t, reg, "dermadash_remote_requests_total", map[string]string{"endpoint": "/api/diagnostics/", "status_code": "200"})
	if v := ok.GetCounter().GetValue(); v != 2 {
		t.Errorf("remote_requests_total{200} = %v, want 2", v)
	}
	failed := findMetric(t, reg, "dermadash_remote_requests_total", map[string]string{"endpoint": "/api/diagnostics/", "status_code": "0"})
	if v := failed.GetCounter().GetValue(); v != 1 {
		t.Errorf("remote_requests_total{0} = %v, want 1", v)
	}
	latency := findMetric(t, reg, "dermadash_remote_request_seconds", map[string]string{"endpoint": "/api/diagnostics/"})
	if n := latency.GetHistogram().GetSampleCount(); n != 3 {
		t.Errorf("sample_count = %d, want 3", n)
	}
}

// TestRecordUpload_IncrementsOutcome はアップロード結果が集計されることを検証する。
func TestRecordUpload_IncrementsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpload("success", time.Second)
	c.RecordUpload("validation_error", 0)

	m := findMetric(t, reg, "dermadash_uploads_total", map[string]string{"outcome": "success"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("uploads_total{success} = %v, want 1", v)
	}
}

// TestRecordSync_AndPendingGauge は再送結果と未確定件数を検証する。
func TestRecordSync_AndPendingGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSync(3, 1)
	c.RecordSync(1, 0)
	c.SetPendingRecords(5)
	c.SetPendingRecords(2)

	if v := findMetric(t, reg, "dermadash_sync_confirmed_total", nil).GetCounter().GetValue(); v != 4 {
		t.Errorf("sync_confirmed_total = %v, want 4", v)
	}
	if v := findMetric(t, reg, "dermadash_sync_failed_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("sync_failed_total = %v, want 1", v)
	}
	if v := findMetric(t, reg, "dermadash_pending_records", nil).GetGauge().GetValue(); v != 2 {
		t.Errorf("pending_records = %v, want 2", v)
	}
}

// TestRecordAuthExpiredAndNavigation はラベル付きカウンタを検証する。
func TestRecordAuthExpiredAndNavigation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthExpired("list")
	c.RecordNavigation("results")
	c.RecordNavigation("results")
	c.RecordChartReleased()

	if v := findMetric(t, reg, "dermadash_auth_expired_total", map[string]string{"source": "list"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("auth_expired_total{list} = %v, want 1", v)
	}
	if v := findMetric(t, reg, "dermadash_navigations_total", map[string]string{"view": "results"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("navigations_total{results} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "dermadash_charts_released_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("charts_released_total = %v, want 1", v)
	}
}
