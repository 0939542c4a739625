package directauth

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func BenchmarkMetricsIncState(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	s := &Authenticated{}
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.IncState(s)
		}
	})
}

func BenchmarkMetricsObserveLatency(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	d := 120 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Observe(MetricStepLatency, d)
	}
}

func BenchmarkClassifyToken(b *testing.B) {
	sc := &sessionContext{clock: ClockFunc(func() int64 { return testNow })}
	resp := jsonResponse(http.StatusOK, tokenBody).resp
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, ok := sc.classify(resp, shapeToken, nil).(*Authenticated); !ok {
			b.Fatal("expected *Authenticated")
		}
	}
}

func BenchmarkFlowStartPassword(b *testing.B) {
	exec := ExecutorFunc(func(context.Context, *Request) (*Response, error) {
		return jsonResponse(http.StatusOK, tokenBody).resp, nil
	})
	f, err := New(testIssuer, testClientID, "openid").
		WithExecutor(exec).
		WithLogger(discardLogger()).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	defer f.Close()

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, ok := f.Start(ctx, "user", Password{Password: "pw"}).(*Authenticated); !ok {
			b.Fatalf("expected *Authenticated, got %T", f.State())
		}
	}
}
