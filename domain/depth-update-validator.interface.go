package domain

import "errors"

var (
	// The update does not continue the book; the book has to be resynchronized.
	ErrOrderBookUpdateIsOutOfSequence = errors.New("order book update is out of sequence")
	// Already reflected in the book, drop it.
	ErrOrderBookUpdateIsOutdated = errors.New("order book update is outdated")
)

type DepthUpdateValidator interface {
	// IsValidFirstUpd checks the first update applied on top of a snapshot.
	// nil means the update overlaps the snapshot with no gap.
	IsValidFirstUpd(update *OrderBookUpdate, snapshotLastUpdID uint64) error
	// IsValidUpd checks every following update against the book sequence.
	IsValidUpd(update *OrderBookUpdate, orderBookLastUpdID uint64) error
}
