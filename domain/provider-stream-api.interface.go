package domain

import "context"

// ProviderSyncAPI fetches full order book snapshots.
type ProviderSyncAPI interface {
	OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*OrderBookSnapshot, error)
}

// ProviderStreamAPI yields decoded diff events for a symbol. Malformed
// messages are dropped by the provider and never reach the stream.
type ProviderStreamAPI interface {
	DepthDiffStream(symbol *MarketSymbol) (*Subscription[*OrderBookUpdate], error)
}

type Subscription[T any] struct {
	Stream      <-chan T
	Unsubscribe func()
	Topic       string
	// Disconnected receives a signal each time the transport behind Stream
	// drops. Updates sent before the drop may still be queued on Stream.
	// Nil when the provider cannot tell.
	Disconnected <-chan struct{}
}
