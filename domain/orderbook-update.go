package domain

// OrderBookUpdate is one diff event: every change on the remote book between
// FirstUpdateID and LastUpdateID inclusive, applied as a single unit.
type OrderBookUpdate struct {
	Symbol        *MarketSymbol
	EventType     string
	EventTime     int64
	FirstUpdateID uint64
	LastUpdateID  uint64
	Asks          []PriceLevel
	Bids          []PriceLevel
}

func NewOrderBookUpdate(
	bids []PriceLevel, asks []PriceLevel,
	firstUpdateID uint64, lastUpdateID uint64,
	symbol *MarketSymbol,
) *OrderBookUpdate {
	return &OrderBookUpdate{
		Symbol:        symbol,
		FirstUpdateID: firstUpdateID,
		LastUpdateID:  lastUpdateID,
		Asks:          asks,
		Bids:          bids,
	}
}
