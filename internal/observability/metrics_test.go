package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsRequestsByRoute(t *testing.T) {
	metrics := NewMetrics()

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/consolidation/runs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/consolidation/runs/1", "/consolidation/runs/2"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	require.Contains(t, body, "consolidate_http_requests_total")
	require.Contains(t, body, `route="/consolidation/runs/{id}"`)
	require.NotContains(t, body, `route="/consolidation/runs/1"`)
	require.True(t, strings.Contains(body, `status="200"`))
}

func TestMetricsHandlerExposesHistograms(t *testing.T) {
	metrics := NewMetrics()

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "consolidate_http_request_duration_seconds")
}
