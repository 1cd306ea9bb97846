//go:build unit

package metrics_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coderxlab/featurestream/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.Consumed("orders", 0, 3)
		m.Processed("orders", metrics.OutcomeDelivered)
		m.SinkAttempt("orders-fg", time.Millisecond)
		m.SinkError("orders-fg", "throttled")
		m.InFlight(1)
		m.Paused("orders", "error_rate")
		m.Resumed()
		m.Committed("orders", 0, 10)
		m.CommitFailed("orders")
		m.Lag("orders", 0, 5)
		m.Assigned(1)
		m.DeadLetterFailed("orders")
	})
}

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	m.Processed("orders", metrics.OutcomeDelivered)
	m.Processed("orders", metrics.OutcomeDelivered)
	m.Processed("orders", metrics.OutcomeDropped)
	m.Committed("orders", 1, 42)

	require.Equal(t, 2.0, testutil.ToFloat64(m.RecordsProcessed.WithLabelValues("orders", metrics.OutcomeDelivered)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RecordsProcessed.WithLabelValues("orders", metrics.OutcomeDropped)))
	require.Equal(t, 42.0, testutil.ToFloat64(m.CommittedOffset.WithLabelValues("orders", "1")))
}

func TestServerEndpoints(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.Consumed("orders", 0, 1)

	s := metrics.NewServer(":0", reg)
	h := s.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	require.Equal(t, http.StatusOK, get("/healthz").Code)

	rec := get("/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "not ready", body["status"])

	s.SetReady(true)
	require.Equal(t, http.StatusOK, get("/readyz").Code)

	rec = get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "featurestream_records_consumed_total"))
}
