package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OrdersPlaced.WithLabelValues("MARKET", Result(nil)).Inc()
	m.OrdersPlaced.WithLabelValues("MARKET", Result(errors.New("x"))).Inc()
	m.MonitoredPositions.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersPlaced.WithLabelValues("MARKET", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersPlaced.WithLabelValues("MARKET", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MonitoredPositions))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewWithoutRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.OrphanCancels.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "engine_orphan_orders_cancelled_total 1")
}
