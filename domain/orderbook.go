package domain

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type OrderBookSource string

const (
	OrderBookSource_Provider       OrderBookSource = "Provider"
	OrderBookSource_LocalOrderBook OrderBookSource = "LocalOrderBook"
)

var ErrOrderBookBootstrapped = errors.New("order book is already bootstrapped")

// OrderBookSnapshot is a point-in-time copy of a book. It is what the REST
// depth endpoint returns, and also the immutable view handed to readers.
type OrderBookSnapshot struct {
	Source       OrderBookSource
	LastUpdateID uint64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

func (s *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

func (s *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Spread is best ask minus best bid; false when either side is empty.
func (s *OrderBookSnapshot) Spread() (decimal.Decimal, bool) {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// Limit returns a copy with at most limit levels per side, assuming both
// sides are sorted best-first.
func (s *OrderBookSnapshot) Limit(limit int) *OrderBookSnapshot {
	return &OrderBookSnapshot{
		Source:       s.Source,
		LastUpdateID: s.LastUpdateID,
		Bids:         limitDepth(s.Bids, limit),
		Asks:         limitDepth(s.Asks, limit),
	}
}

func limitDepth(depth []PriceLevel, limit int) []PriceLevel {
	if limit > 0 && len(depth) > limit {
		depth = depth[:limit]
	}
	result := make([]PriceLevel, len(depth))
	copy(result, depth)
	return result
}

// OrderBook is the local replica. Every mutation happens under one exclusive
// lock, so readers observe either the state before an update or after it.
type OrderBook struct {
	Symbol *MarketSymbol

	asks           *PriceLevelMap
	bids           *PriceLevelMap
	lastUpdateID   uint64
	lastUpdateTime time.Time
	bootstrapped   bool

	mu sync.RWMutex
}

func NewOrderBook(symbol *MarketSymbol) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		asks:   NewPriceLevelMap(SideAsk),
		bids:   NewPriceLevelMap(SideBid),
	}
}

// ApplySnapshot replaces both sides wholesale. The book must be unbootstrapped.
func (ob *OrderBook) ApplySnapshot(snapshot *OrderBookSnapshot) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if ob.bootstrapped {
		return ErrOrderBookBootstrapped
	}

	ob.asks.Clear()
	ob.bids.Clear()
	ob.asks.ApplyMany(snapshot.Asks)
	ob.bids.ApplyMany(snapshot.Bids)
	ob.lastUpdateID = snapshot.LastUpdateID
	ob.lastUpdateTime = time.Now()
	ob.bootstrapped = true

	return nil
}

// ApplyUpdate applies one diff event. Sequence continuity is the caller's
// responsibility; see DepthUpdateValidator.
func (ob *OrderBook) ApplyUpdate(update *OrderBookUpdate) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.asks.ApplyMany(update.Asks)
	ob.bids.ApplyMany(update.Bids)
	ob.lastUpdateID = update.LastUpdateID
	ob.lastUpdateTime = time.Now()
}

// Reset marks the book unbootstrapped: no levels, sequence 0.
func (ob *OrderBook) Reset() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.asks.Clear()
	ob.bids.Clear()
	ob.lastUpdateID = 0
	ob.bootstrapped = false
}

// Restore moves the state of a fully built staging book into ob in one
// critical section. staged must not be used afterwards.
func (ob *OrderBook) Restore(staged *OrderBook) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if ob.bootstrapped {
		return ErrOrderBookBootstrapped
	}

	staged.mu.Lock()
	defer staged.mu.Unlock()

	ob.asks, ob.bids = staged.asks, staged.bids
	ob.lastUpdateID = staged.lastUpdateID
	ob.lastUpdateTime = staged.lastUpdateTime
	ob.bootstrapped = staged.bootstrapped

	staged.asks = NewPriceLevelMap(SideAsk)
	staged.bids = NewPriceLevelMap(SideBid)
	staged.lastUpdateID = 0
	staged.bootstrapped = false

	return nil
}

func (ob *OrderBook) LastUpdateID() uint64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.lastUpdateID
}

func (ob *OrderBook) LastUpdateTime() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.lastUpdateTime
}

func (ob *OrderBook) IsBootstrapped() bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.bootstrapped
}

// TakeSnapshot copies up to limit levels per side (all when limit <= 0)
// together with the sequence they reflect.
func (ob *OrderBook) TakeSnapshot(limit int) *OrderBookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return &OrderBookSnapshot{
		Source:       OrderBookSource_LocalOrderBook,
		LastUpdateID: ob.lastUpdateID,
		Bids:         ob.bids.Levels(limit),
		Asks:         ob.asks.Levels(limit),
	}
}
