package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func Test_Collector_ObserveAndServe(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	c.Observe("storefront", "ok", 20*time.Millisecond)
	c.Observe("storefront", "ok", 30*time.Millisecond)
	c.Observe("concierge", "rate_limited", time.Millisecond)

	if got := testutil.ToFloat64(c.requests.WithLabelValues("storefront", "ok")); got != 2 {
		t.Errorf("storefront ok count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("concierge", "rate_limited")); got != 1 {
		t.Errorf("concierge rate_limited count = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"storefront_upstream_requests_total", "storefront_upstream_request_duration_seconds"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics output missing %q", want)
		}
	}
}

func Test_Collector_NilIsSafe(t *testing.T) {
	var c *Collector
	c.Observe("storefront", "ok", time.Second)
}
