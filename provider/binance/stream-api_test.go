package binance

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xonx4l/orderbook/domain"
)

type fakeSubscriber struct {
	topic        string
	ch           chan []byte
	disconnected chan struct{}
	unsubscribed chan struct{}
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		ch:           make(chan []byte, 16),
		disconnected: make(chan struct{}, 1),
		unsubscribed: make(chan struct{}),
	}
}

func (f *fakeSubscriber) Subscribe(topic string) (*domain.Subscription[[]byte], error) {
	f.topic = topic
	return &domain.Subscription[[]byte]{
		Stream:       f.ch,
		Unsubscribe:  func() { close(f.unsubscribed) },
		Topic:        topic,
		Disconnected: f.disconnected,
	}, nil
}

func btcusdt(t *testing.T) *domain.MarketSymbol {
	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	require.NoError(t, err)
	return symbol
}

func receive(t *testing.T, stream <-chan *domain.OrderBookUpdate) *domain.OrderBookUpdate {
	t.Helper()

	select {
	case update, ok := <-stream:
		require.True(t, ok, "stream closed")
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
		return nil
	}
}

func TestBinanceStreamAPI_DepthDiffStream(t *testing.T) {
	sub := newFakeSubscriber()
	api := NewBinanceStreamAPI(sub, "100ms", zerolog.Nop())

	subscription, err := api.DepthDiffStream(btcusdt(t))
	require.NoError(t, err)
	assert.Equal(t, "btcusdt@depth@100ms", sub.topic)
	assert.Equal(t, "btcusdt@depth@100ms", subscription.Topic)

	sub.ch <- []byte(`{"e":"depthUpdate","E":1672515782136,"s":"BTCUSDT","U":157,"u":160,"b":[["0.0024","10"]],"a":[["0.0026","100"],["0.0027","0"]]}`)
	sub.ch <- []byte(`{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":161,"u":161,"b":[["bad","1"]],"a":[]}`)
	sub.ch <- []byte(`not json`)
	sub.ch <- []byte(`{"e":"depthUpdate","E":1,"s":"ETHUSDT","U":161,"u":162,"b":[],"a":[]}`)
	sub.ch <- []byte(`{"e":"trade","E":1,"s":"BTCUSDT"}`)
	sub.ch <- []byte(`{"e":"depthUpdate","E":1672515782137,"s":"BTCUSDT","U":161,"u":165,"b":[],"a":[]}`)

	first := receive(t, subscription.Stream)
	assert.Equal(t, uint64(157), first.FirstUpdateID)
	assert.Equal(t, uint64(160), first.LastUpdateID)
	assert.Equal(t, "depthUpdate", first.EventType)
	assert.Equal(t, int64(1672515782136), first.EventTime)
	require.Len(t, first.Bids, 1)
	require.Len(t, first.Asks, 2)
	assert.Equal(t, "0.0024", first.Bids[0].Price.String())
	assert.True(t, first.Asks[1].Quantity.IsZero())

	second := receive(t, subscription.Stream)
	assert.Equal(t, uint64(161), second.FirstUpdateID)
	assert.Equal(t, uint64(165), second.LastUpdateID)

	subscription.Unsubscribe()
	subscription.Unsubscribe()

	select {
	case <-sub.unsubscribed:
	case <-time.After(time.Second):
		t.Fatal("underlying subscription not released")
	}

	select {
	case _, ok := <-subscription.Stream:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after unsubscribe")
	}
}

func TestBinanceStreamAPI_ClosedSource(t *testing.T) {
	sub := newFakeSubscriber()
	api := NewBinanceStreamAPI(sub, "", zerolog.Nop())

	subscription, err := api.DepthDiffStream(btcusdt(t))
	require.NoError(t, err)
	assert.Equal(t, "btcusdt@depth", subscription.Topic)

	close(sub.ch)

	select {
	case _, ok := <-subscription.Stream:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
}

func TestDecodeDepthUpdate(t *testing.T) {
	symbol := btcusdt(t)

	_, err := decodeDepthUpdate([]byte(`{"e":"depthUpdate","s":"ETHUSDT","U":1,"u":2}`), symbol)
	assert.ErrorIs(t, err, ErrSymbolMismatch)

	_, err = decodeDepthUpdate([]byte(`{"e":"depthUpdate","s":"BTCUSDT","U":5,"u":2}`), symbol)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = decodeDepthUpdate([]byte(`{"e":"depthUpdate","s":"BTCUSDT","U":1,"u":2,"a":[["1"]]}`), symbol)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	update, err := decodeDepthUpdate([]byte(`{"e":"depthUpdate","s":"btcusdt","U":1,"u":2,"a":[["1.10","2.000"]]}`), symbol)
	require.NoError(t, err)
	assert.True(t, update.Symbol.Equal(symbol))
	assert.Equal(t, "1.1", update.Asks[0].Price.String())
	assert.Equal(t, "2", update.Asks[0].Quantity.String())
}

func TestBinanceStreamAPI_ForwardsDisconnect(t *testing.T) {
	sub := newFakeSubscriber()
	api := NewBinanceStreamAPI(sub, "", zerolog.Nop())

	subscription, err := api.DepthDiffStream(btcusdt(t))
	require.NoError(t, err)
	t.Cleanup(subscription.Unsubscribe)

	sub.disconnected <- struct{}{}

	select {
	case <-subscription.Disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not forwarded")
	}
}
