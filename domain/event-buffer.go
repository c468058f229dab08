package domain

import (
	"errors"

	"github.com/gammazero/deque"
)

var ErrBufferOverflow = errors.New("depth update buffer high-water mark exceeded")

// EventBuffer holds diff events received while the book is not live.
// It is not safe for concurrent use; the maintainer serializes access.
type EventBuffer struct {
	queue     deque.Deque[*OrderBookUpdate]
	highWater int
}

// NewEventBuffer creates a buffer that refuses pushes beyond highWater
// events. highWater <= 0 means unbounded.
func NewEventBuffer(highWater int) *EventBuffer {
	return &EventBuffer{highWater: highWater}
}

// Push appends update. It returns ErrBufferOverflow, without storing the
// event, once the high-water mark has been reached.
func (b *EventBuffer) Push(update *OrderBookUpdate) error {
	if b.highWater > 0 && b.queue.Len() >= b.highWater {
		return ErrBufferOverflow
	}
	b.queue.PushBack(update)
	return nil
}

// DrainAndDiscardThrough drops every event with LastUpdateID <= sequence and
// returns the remaining events in arrival order. The remaining events stay
// buffered until TakeAll.
func (b *EventBuffer) DrainAndDiscardThrough(sequence uint64) []*OrderBookUpdate {
	kept := make([]*OrderBookUpdate, 0, b.queue.Len())
	for b.queue.Len() > 0 {
		update := b.queue.PopFront()
		if update.LastUpdateID <= sequence {
			continue
		}
		kept = append(kept, update)
	}

	for _, update := range kept {
		b.queue.PushBack(update)
	}

	result := make([]*OrderBookUpdate, len(kept))
	copy(result, kept)
	return result
}

// TakeAll empties the buffer and returns its contents in arrival order.
func (b *EventBuffer) TakeAll() []*OrderBookUpdate {
	result := make([]*OrderBookUpdate, 0, b.queue.Len())
	for b.queue.Len() > 0 {
		result = append(result, b.queue.PopFront())
	}
	return result
}

func (b *EventBuffer) Clear() {
	b.queue.Clear()
}

func (b *EventBuffer) Len() int {
	return b.queue.Len()
}
