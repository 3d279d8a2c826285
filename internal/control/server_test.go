package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-trigger-go/config"
	"quote-trigger-go/internal/store"
	"quote-trigger-go/market"
)

type routeRecorder struct {
	mu    sync.Mutex
	codes map[string][]int
}

func (r *routeRecorder) RecordControlRequest(route string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codes == nil {
		r.codes = make(map[string][]int)
	}
	r.codes[route] = append(r.codes[route], code)
}

func decimalOf(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

func newTestServer(t *testing.T) (*Server, *store.Store, *routeRecorder) {
	t.Helper()
	st, err := store.New(store.Options{
		HistoryLimit: 10,
		Strategy:     config.DefaultStrategy(),
		Regions: config.RegionsConfig{
			EntryBuy:  config.DefaultRegion(),
			EntrySell: config.DefaultRegion(),
			Exit:      config.Region{StartX: 10, StartY: 20, EndX: 30, EndY: 40, Clicks: 2},
		},
	})
	require.NoError(t, err)
	rec := &routeRecorder{}
	return New(Options{State: st, Rand: firstRand{}, Monitor: rec}), st, rec
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	srv, st, rec := newTestServer(t)
	st.Ingest(market.Tick{Symbol: "USDJPY", Bid: decimalOf("100"), Ask: decimalOf("101")})

	w := do(t, srv, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var status store.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.IsReceived)
	assert.False(t, status.IsRunning)
	assert.Equal(t, "100.5", status.LTP)
	assert.Equal(t, 1, status.Stats.Len)
	assert.Equal(t, []int{200}, rec.codes["status"])
}

func TestPutStrategy(t *testing.T) {
	srv, st, _ := newTestServer(t)

	w := do(t, srv, http.MethodPut, "/config/strategy", `{"order_type":99,"threshold":"0.2","speed":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := st.Settings().Strategy
	assert.Equal(t, 99, got.OrderType)
	assert.Equal(t, "0.2", got.Threshold)
	assert.Equal(t, 3, got.Speed)
	assert.Equal(t, config.DefaultStrategy().Size, got.Size, "omitted fields keep current value")
}

func TestPutStrategyRejectsInvalid(t *testing.T) {
	srv, st, rec := newTestServer(t)
	before := st.Settings()

	for _, body := range []string{
		`{"threshold":"abc"}`,
		`{"threshold":"-1"}`,
		`{"unknown":1}`,
		`not json`,
	} {
		w := do(t, srv, http.MethodPut, "/config/strategy", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "error")
	}
	assert.Equal(t, before, st.Settings())
	assert.Len(t, rec.codes["config_strategy"], 4)
}

func TestPutRegion(t *testing.T) {
	srv, st, _ := newTestServer(t)

	w := do(t, srv, http.MethodPut, "/config/regions/entry-sell", `{"start_x":5,"start_y":6,"end_x":50,"end_y":60,"n":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, config.Region{StartX: 5, StartY: 6, EndX: 50, EndY: 60, Clicks: 1}, st.Region(config.RegionEntrySell))

	w = do(t, srv, http.MethodPut, "/config/regions/entry-sell", `{"start_x":50,"start_y":6,"end_x":5,"end_y":60}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, uint32(5), st.Region(config.RegionEntrySell).StartX, "rejected region leaves state unchanged")

	w = do(t, srv, http.MethodPut, "/config/regions/middle", `{"start_x":1,"start_y":1,"end_x":2,"end_y":2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPutClicks(t *testing.T) {
	srv, st, _ := newTestServer(t)

	w := do(t, srv, http.MethodPut, "/config/clicks", `{"n":4}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint8(4), st.Region(config.RegionExit).Clicks)

	for _, body := range []string{`{}`, `{"n":-1}`, `{"n":256}`} {
		w = do(t, srv, http.MethodPut, "/config/clicks", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Equal(t, uint8(4), st.Region(config.RegionExit).Clicks)
}

func TestPostRun(t *testing.T) {
	srv, st, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/run", `{"action":"start"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running":true,"message":"on"}`, w.Body.String())
	assert.True(t, st.Status().IsRunning)

	w = do(t, srv, http.MethodPost, "/run", `{"action":"stop"}`)
	require.Equal(t, http.StatusOK, w.Code)
	status := st.Status()
	assert.False(t, status.IsRunning)
	assert.Equal(t, "off", status.Message)

	w = do(t, srv, http.MethodPost, "/run", `{"action":"pause"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreview(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/regions/exit/preview?n=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Kind   string `json:"kind"`
		Points []struct {
			X uint32 `json:"x"`
			Y uint32 `json:"y"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "exit", resp.Kind)
	require.Len(t, resp.Points, 3)
	for _, p := range resp.Points {
		assert.Equal(t, uint32(10), p.X)
		assert.Equal(t, uint32(20), p.Y)
	}

	w = do(t, srv, http.MethodGet, "/regions/exit/preview", "")
	require.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{"/regions/exit/preview?n=0", "/regions/exit/preview?n=x", "/regions/exit/preview?n=1000", "/regions/left/preview"} {
		w = do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(t, srv, http.MethodDelete, "/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealth(t *testing.T) {
	_, st, _ := newTestServer(t)

	healthy := New(Options{State: st, Health: func() error { return nil }})
	assert.Equal(t, http.StatusOK, do(t, healthy, http.MethodGet, "/health", "").Code)

	down := New(Options{State: st, Health: func() error { return errors.New("tcp feed not started") }})
	w := do(t, down, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "tcp feed not started")
}
