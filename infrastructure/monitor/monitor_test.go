package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordTick("EURUSD", 0.002)
	m.RecordTick("EURUSD", 0.003)
	m.RecordDispatchSkip("not_running")
	m.RecordDispatchSkip("not_running")
	m.RecordDispatchSkip("processing")
	m.RecordAction("exit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticksTotal.WithLabelValues("EURUSD")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatchSkips.WithLabelValues("not_running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchSkips.WithLabelValues("processing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("exit")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.tickLatency))
}

func TestGauges(t *testing.T) {
	m := New(DefaultConfig())
	m.UpdateMidPrice(1.2345)
	m.UpdateHistoryLength(42)
	assert.InDelta(t, 1.2345, testutil.ToFloat64(m.midPrice), 1e-9)
	assert.Equal(t, 42.0, testutil.ToFloat64(m.historyLength))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordGateAcquire()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "qt_trigger_gate_acquires_total 1"))
}
