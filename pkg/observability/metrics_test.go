package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	// Registering a second set on the same registry must panic (duplicate)
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/auth", "418"))
	assert.Equal(t, 1.0, count)
}

func TestObserveBackendCall(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveBackendCall("report_store", "create_user", time.Now(), nil)
	m.ObserveBackendCall("report_store", "create_user", time.Now(), errors.New("boom"))

	ok := testutil.ToFloat64(m.BackendCallsTotal.WithLabelValues("report_store", "create_user", "success"))
	fail := testutil.ToFloat64(m.BackendCallsTotal.WithLabelValues("report_store", "create_user", "failure"))
	assert.Equal(t, 1.0, ok)
	assert.Equal(t, 1.0, fail)
}
