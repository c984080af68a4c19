package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.SignIn("success")
	m.CacheFailOpen("get")
	m.RateLimited("auth")
	m.Redirect("unauthenticated")
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SignIn("success")
	m.SignIn("success")
	m.CacheFailOpen("increment")
	m.RateLimited("auth")

	if got := testutil.ToFloat64(m.signIns.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 sign-ins, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheFailure.WithLabelValues("increment")); got != 1 {
		t.Fatalf("expected 1 cache failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimited.WithLabelValues("auth")); got != 1 {
		t.Fatalf("expected 1 rate limited, got %v", got)
	}
}
