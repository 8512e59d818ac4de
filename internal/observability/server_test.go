package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"audio-event-pipeline/internal/observability/metrics"
)

func TestServer_HealthEndpoints(t *testing.T) {
	notReady := errors.New("pipeline not resolved")

	tests := []struct {
		name  string
		ready ReadinessFunc
		path  string
		code  int
		body  string
	}{
		{"healthz", nil, "/healthz", http.StatusOK, "ok"},
		{"healthz while not ready", func(context.Context) error { return notReady }, "/healthz", http.StatusOK, "ok"},
		{"readyz without check", nil, "/readyz", http.StatusOK, "ready"},
		{"readyz ready", func(context.Context) error { return nil }, "/readyz", http.StatusOK, "ready"},
		{"readyz not ready", func(context.Context) error { return notReady }, "/readyz", http.StatusServiceUnavailable, "not ready: pipeline not resolved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", tt.ready)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			if rec.Body.String() != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestRequestMetrics_RecordsRoutePattern(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(RequestMetrics(m))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/items/{id}", "418"))
	if got != 1 {
		t.Errorf("expected 1 recorded request, got %v", got)
	}
}
