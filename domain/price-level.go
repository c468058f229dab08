package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidPriceLevel = errors.New("invalid price level")

// PriceLevel is a (price, quantity) pair. A zero quantity in an update means
// the level is removed.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

func NewPriceLevel(price, quantity string) (PriceLevel, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return PriceLevel{}, fmt.Errorf("%w: price %q: %s", ErrInvalidPriceLevel, price, err)
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return PriceLevel{}, fmt.Errorf("%w: quantity %q: %s", ErrInvalidPriceLevel, quantity, err)
	}
	if p.IsNegative() || q.IsNegative() {
		return PriceLevel{}, fmt.Errorf("%w: negative value [%s, %s]", ErrInvalidPriceLevel, price, quantity)
	}
	return PriceLevel{Price: p, Quantity: q}, nil
}

// MustPriceLevel panics on malformed input. Intended for literals in tests and fixtures.
func MustPriceLevel(price, quantity string) PriceLevel {
	l, err := NewPriceLevel(price, quantity)
	if err != nil {
		panic(err)
	}
	return l
}

// ParsePriceLevels converts the wire form [[price, qty], ...] into levels.
// Any extra elements after the quantity are ignored.
func ParsePriceLevels(depth [][]string) ([]PriceLevel, error) {
	result := make([]PriceLevel, 0, len(depth))
	for i, level := range depth {
		if len(level) < 2 {
			return nil, fmt.Errorf("%w: entry %d has %d fields", ErrInvalidPriceLevel, i, len(level))
		}
		l, err := NewPriceLevel(level[0], level[1])
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}

	return result, nil
}

func SerializePriceLevels(depth []PriceLevel) [][]string {
	result := make([][]string, len(depth))
	for i, level := range depth {
		result[i] = []string{level.Price.String(), level.Quantity.String()}
	}

	return result
}
