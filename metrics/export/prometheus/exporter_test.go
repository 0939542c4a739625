package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/directauth"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot directauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() directauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestCollectorSumsSources(t *testing.T) {
	a := fakeSource{
		snapshot: directauth.MetricsSnapshot{
			Counters: map[directauth.MetricID]uint64{directauth.MetricAuthenticated: 4},
			Histograms: map[directauth.MetricID][]uint64{
				directauth.MetricStepLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			HistogramSums: map[directauth.MetricID]time.Duration{
				directauth.MetricStepLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 1,
	}
	b := fakeSource{
		snapshot: directauth.MetricsSnapshot{
			Counters: map[directauth.MetricID]uint64{directauth.MetricAuthenticated: 3},
			HistogramSums: map[directauth.MetricID]time.Duration{
				directauth.MetricStepLatency: 500 * time.Millisecond,
			},
		},
		dropped: 1,
	}

	c := NewCollectorFromSources(a, b, nil)
	expected := `
# HELP directauth_authenticated_total Operations that ended with a token set.
# TYPE directauth_authenticated_total counter
directauth_authenticated_total 7
# HELP directauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE directauth_audit_dropped_total counter
directauth_audit_dropped_total 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"directauth_authenticated_total", "directauth_audit_dropped_total"); err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}

	reg := prom.NewRegistry()
	reg.MustRegister(c)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "directauth_step_latency_seconds" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 36 {
			t.Fatalf("expected 36 samples, got %d", h.GetSampleCount())
		}
		if got := h.GetBucket()[0].GetCumulativeCount(); got != 1 {
			t.Fatalf("expected first bucket 1, got %d", got)
		}
		if got := h.GetSampleSum(); got != 2 {
			t.Fatalf("expected summed latency 2s, got %v", got)
		}
		return
	}
	t.Fatal("histogram family not gathered")
}

func TestCollectorOverRealFlow(t *testing.T) {
	f, err := directauth.New("https://example.okta.com", "c", "openid").WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer f.Close()
	f.Reset()

	if got := testutil.CollectAndCount(NewCollector(f), "directauth_flow_reset_total"); got != 1 {
		t.Fatalf("expected one reset series, got %d", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c := NewCollectorFromSources(fakeSource{
		snapshot: directauth.MetricsSnapshot{
			Counters: map[directauth.MetricID]uint64{directauth.MetricFlowStarted: 1},
		},
	})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "directauth_flow_started_total 1") {
		t.Fatalf("expected started counter, got:\n%s", body)
	}
}
