package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStorage("local", "read", "found", time.Now())
	m.ObserveRequest("GET", "/", 200)
	m.Claimed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil handler status = %d", rec.Code)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveStorage("github", "write", "ok", time.Now())
	m.ObserveRequest("POST", "/api/wishlists", 201)
	m.Claimed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`wishlist_storage_operations_total{backend="github",op="write",outcome="ok"} 1`,
		`wishlist_http_requests_total{method="POST",route="/api/wishlists",status="201"} 1`,
		`wishlist_items_claimed_total 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
