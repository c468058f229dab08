package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xonx4l/orderbook/domain"
	"github.com/xonx4l/orderbook/provider/binance"
)

func TestLiveApplier(t *testing.T) {
	symbol, _ := domain.NewMarketSymbol("btc", "usdt")
	book := domain.NewOrderBook(symbol)
	require.NoError(t, book.ApplySnapshot(&domain.OrderBookSnapshot{
		LastUpdateID: 50,
		Asks:         []domain.PriceLevel{domain.MustPriceLevel("100.5", "2")},
		Bids:         []domain.PriceLevel{domain.MustPriceLevel("100.0", "3")},
	}))

	applier := domain.NewLiveApplier(book, &binance.BinanceDepthUpdateValidator{})

	require.NoError(t, applier.Apply(mkUpdate(51, 52,
		[]domain.PriceLevel{domain.MustPriceLevel("100.5", "0")},
		[]domain.PriceLevel{domain.MustPriceLevel("99.5", "1")},
	)))
	assert.Equal(t, uint64(52), book.LastUpdateID())

	// duplicate
	err := applier.Apply(mkUpdate(51, 52, nil, []domain.PriceLevel{domain.MustPriceLevel("99.5", "7")}))
	assert.ErrorIs(t, err, domain.ErrOrderBookUpdateIsOutdated)

	// gap
	err = applier.Apply(mkUpdate(54, 60, nil, []domain.PriceLevel{domain.MustPriceLevel("99.5", "8")}))
	assert.ErrorIs(t, err, domain.ErrOrderBookUpdateIsOutOfSequence)

	view := book.TakeSnapshot(0)
	assert.Equal(t, uint64(52), view.LastUpdateID)
	assert.Empty(t, view.Asks)
	assert.Equal(t, []string{"100:3", "99.5:1"}, levels(view.Bids))

	bid, ok := view.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100", bid.Price.String())
	_, ok = view.BestAsk()
	assert.False(t, ok)
}
