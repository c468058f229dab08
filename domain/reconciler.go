package domain

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// No buffered update overlaps snapshot+1; a newer snapshot is needed.
	ErrSnapshotGap = errors.New("no buffered update continues the snapshot")
	// Two consecutive buffered updates do not join up.
	ErrSpliceGap = errors.New("buffered updates are not contiguous")
	// The snapshot id did not move past the previous snapshot.
	ErrSnapshotNotAdvanced = errors.New("snapshot last update id did not advance")
)

// Splice builds a fresh book from snapshot and the buffered updates that
// follow it. pending must contain only updates newer than the snapshot (see
// EventBuffer.DrainAndDiscardThrough). Updates are applied in ascending
// LastUpdateID order starting at the first one that overlaps snapshot+1;
// each following update must continue the previous one exactly.
//
// The returned book is private to the caller. On error nothing is applied
// anywhere.
func Splice(
	symbol *MarketSymbol,
	snapshot *OrderBookSnapshot,
	pending []*OrderBookUpdate,
	validator DepthUpdateValidator,
) (*OrderBook, int, error) {
	ordered := make([]*OrderBookUpdate, len(pending))
	copy(ordered, pending)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LastUpdateID < ordered[j].LastUpdateID
	})

	first := -1
	for i, update := range ordered {
		if validator.IsValidFirstUpd(update, snapshot.LastUpdateID) == nil {
			first = i
			break
		}
	}

	if first < 0 {
		if len(ordered) == 0 {
			return nil, 0, fmt.Errorf("%w: snapshot=%d, buffer is empty", ErrSnapshotGap, snapshot.LastUpdateID)
		}
		return nil, 0, fmt.Errorf("%w: snapshot=%d, earliest buffered update=[%d,%d]",
			ErrSnapshotGap, snapshot.LastUpdateID, ordered[0].FirstUpdateID, ordered[0].LastUpdateID)
	}

	staged := NewOrderBook(symbol)
	if err := staged.ApplySnapshot(snapshot); err != nil {
		return nil, 0, err
	}
	staged.ApplyUpdate(ordered[first])
	applied := 1

	for _, update := range ordered[first+1:] {
		err := validator.IsValidUpd(update, staged.LastUpdateID())
		if errors.Is(err, ErrOrderBookUpdateIsOutdated) {
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: book=%d, update=[%d,%d]",
				ErrSpliceGap, staged.LastUpdateID(), update.FirstUpdateID, update.LastUpdateID)
		}

		staged.ApplyUpdate(update)
		applied++
	}

	return staged, applied, nil
}
