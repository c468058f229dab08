package domain

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideAsk Side = "ask"
	SideBid Side = "bid"
)

const priceLevelsBTreeDegree = 32

// PriceLevelMap keeps one side of the book ordered best-first: ascending
// prices for asks, descending for bids. Keys compare by decimal value, so
// "100.5" and "100.50" are the same level.
type PriceLevelMap struct {
	side   Side
	levels *btree.BTreeG[PriceLevel]
}

func NewPriceLevelMap(side Side) *PriceLevelMap {
	less := func(a, b PriceLevel) bool { return a.Price.LessThan(b.Price) }
	if side == SideBid {
		less = func(a, b PriceLevel) bool { return a.Price.GreaterThan(b.Price) }
	}

	return &PriceLevelMap{
		side:   side,
		levels: btree.NewG[PriceLevel](priceLevelsBTreeDegree, less),
	}
}

func (m *PriceLevelMap) Side() Side {
	return m.side
}

// Upsert sets the quantity at price. A zero quantity removes the level;
// removing an absent level is a no-op.
func (m *PriceLevelMap) Upsert(price, quantity decimal.Decimal) {
	if quantity.IsZero() {
		m.levels.Delete(PriceLevel{Price: price})
		return
	}

	m.levels.ReplaceOrInsert(PriceLevel{Price: price, Quantity: quantity})
}

// ApplyMany applies levels in order, so a later entry for the same price wins.
func (m *PriceLevelMap) ApplyMany(levels []PriceLevel) {
	for _, level := range levels {
		m.Upsert(level.Price, level.Quantity)
	}
}

// Best returns the lowest ask or the highest bid.
func (m *PriceLevelMap) Best() (PriceLevel, bool) {
	return m.levels.Min()
}

func (m *PriceLevelMap) Get(price decimal.Decimal) (decimal.Decimal, bool) {
	level, ok := m.levels.Get(PriceLevel{Price: price})
	if !ok {
		return decimal.Zero, false
	}
	return level.Quantity, true
}

// Levels returns up to limit levels best-first. limit <= 0 returns all of them.
func (m *PriceLevelMap) Levels(limit int) []PriceLevel {
	n := m.levels.Len()
	if limit > 0 && limit < n {
		n = limit
	}

	result := make([]PriceLevel, 0, n)
	m.levels.Ascend(func(level PriceLevel) bool {
		if len(result) == n {
			return false
		}
		result = append(result, level)
		return true
	})

	return result
}

func (m *PriceLevelMap) Len() int {
	return m.levels.Len()
}

func (m *PriceLevelMap) Clear() {
	m.levels.Clear(false)
}
