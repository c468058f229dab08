package promclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xonx4l/orderbook/domain"
)

func newMetrics(t *testing.T) *OrderBookMetrics {
	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	require.NoError(t, err)
	return NewOrderBookMetrics(symbol)
}

func TestOrderBookMetrics_Observer(t *testing.T) {
	m := newMetrics(t)
	var obs domain.MaintainerObserver = m

	obs.OnStateChange(domain.SyncStateFetching)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.syncState))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.synchronized))

	obs.OnBufferSize(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.bufferedUpdates))

	obs.OnSnapshotFetch(120*time.Millisecond, nil)
	obs.OnSnapshotFetch(time.Second, errors.New("timeout"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.snapshotFetchError))
	assert.Equal(t, 1, testutil.CollectAndCount(m.snapshotFetch))

	obs.OnSynchronized(100, 110, 2)
	obs.OnStateChange(domain.SyncStateLive)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.syncState))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.synchronized))
	assert.Equal(t, float64(110), testutil.ToFloat64(m.lastUpdateID))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.updatesReplayed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.bootstraps))

	obs.OnUpdateApplied(111)
	obs.OnUpdateApplied(112)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.updatesApplied))
	assert.Equal(t, float64(112), testutil.ToFloat64(m.lastUpdateID))

	obs.OnUpdateDropped("outdated")
	obs.OnResync("live_gap")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.updatesDropped.WithLabelValues("outdated")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.resyncs.WithLabelValues("live_gap")))
}

func TestOrderBookMetrics_Handler(t *testing.T) {
	m := newMetrics(t)
	m.OnStateChange(domain.SyncStateLive)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `orderbook_sync_state{symbol="BTCUSDT"} 3`)
	assert.Contains(t, body, `orderbook_synchronized{symbol="BTCUSDT"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestStartPromClientServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m := newMetrics(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- StartPromClientServer(ctx, addr, m.Handler(), zerolog.Nop())
	}()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "orderbook_sync_state"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
