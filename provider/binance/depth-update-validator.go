package binance

import "github.com/xonx4l/orderbook/domain"

// BinanceDepthUpdateValidator implements the sequencing rules of the
// Binance diff depth stream (U = first update id, u = final update id).
type BinanceDepthUpdateValidator struct{}

func (v *BinanceDepthUpdateValidator) IsValidFirstUpd(update *domain.OrderBookUpdate, snapshotLastUpdID uint64) error {
	// Drop any event where u is <= lastUpdateId in the snapshot
	if update.LastUpdateID <= snapshotLastUpdID {
		return domain.ErrOrderBookUpdateIsOutdated
	}

	// The first processed event should have U <= lastUpdateId+1 AND u >= lastUpdateId+1
	if update.FirstUpdateID <= snapshotLastUpdID+1 {
		return nil
	}

	return domain.ErrOrderBookUpdateIsOutOfSequence
}

func (v *BinanceDepthUpdateValidator) IsValidUpd(update *domain.OrderBookUpdate, orderBookLastUpdID uint64) error {
	if update.LastUpdateID <= orderBookLastUpdID {
		return domain.ErrOrderBookUpdateIsOutdated
	}

	// While listening to the stream, each new event's U should be equal to the previous event's u+1
	if update.FirstUpdateID != orderBookLastUpdID+1 {
		return domain.ErrOrderBookUpdateIsOutOfSequence
	}

	return nil
}
