package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xonx4l/orderbook/domain"
)

func TestNewMarketSymbol(t *testing.T) {
	tests := []struct {
		name        string
		base, quote string
		expectError bool
	}{
		{"ValidSymbol", "BTC", "USDT", false},
		{"EqualBaseQuote", "ETH", "eth", true},
		{"EmptyBase", "", "USDT", true},
		{"EmptyQuote", "BTC", " ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewMarketSymbol(tt.base, tt.quote)

			if tt.expectError {
				assert.Error(t, err, "NewMarketSymbol() should return an error")
			} else {
				assert.NoError(t, err, "NewMarketSymbol() should not return an error")
			}
		})
	}
}

func TestNewSymbolFromString(t *testing.T) {
	tests := []struct {
		name        string
		symbol      string
		expectError bool
	}{
		{"ValidString", "BTC_USDT", false},
		{"InvalidString", "ETH-USD", true},
		{"TooManyParts", "a_b_c", true},
		{"EmptyString", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewMarketSymbolFromString(tt.symbol)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMarketSymbol_Forms(t *testing.T) {
	ms, err := domain.NewMarketSymbol("BTC", "USDT")
	assert.NoError(t, err)

	assert.Equal(t, "btc_usdt", ms.String())
	assert.Equal(t, "btcusdt", ms.Join(""))
	assert.Equal(t, "BTCUSDT", ms.Exchange())
}

func TestMarketSymbol_Equal(t *testing.T) {
	ms1 := domain.MarketSymbol{BaseAsset: "btc", QuoteAsset: "usdt"}
	ms2 := domain.MarketSymbol{BaseAsset: "btc", QuoteAsset: "usdt"}
	ms3 := domain.MarketSymbol{BaseAsset: "eth", QuoteAsset: "usdt"}

	assert.True(t, ms1.Equal(&ms2))
	assert.False(t, ms1.Equal(&ms3))
	assert.False(t, ms1.Equal(nil))
}
