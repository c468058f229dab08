package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upd(first, last uint64) *OrderBookUpdate {
	return &OrderBookUpdate{FirstUpdateID: first, LastUpdateID: last}
}

func ranges(updates []*OrderBookUpdate) [][2]uint64 {
	result := make([][2]uint64, len(updates))
	for i, u := range updates {
		result[i] = [2]uint64{u.FirstUpdateID, u.LastUpdateID}
	}
	return result
}

func TestEventBuffer_DrainAndDiscardThrough(t *testing.T) {
	b := NewEventBuffer(0)
	require.NoError(t, b.Push(upd(90, 95)))
	require.NoError(t, b.Push(upd(96, 102)))
	require.NoError(t, b.Push(upd(99, 100)))
	require.NoError(t, b.Push(upd(103, 110)))

	remaining := b.DrainAndDiscardThrough(100)
	assert.Equal(t, [][2]uint64{{96, 102}, {103, 110}}, ranges(remaining))
	assert.Equal(t, 2, b.Len(), "remaining events stay buffered")

	taken := b.TakeAll()
	assert.Equal(t, [][2]uint64{{96, 102}, {103, 110}}, ranges(taken))
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.TakeAll())
}

func TestEventBuffer_HighWater(t *testing.T) {
	b := NewEventBuffer(2)
	require.NoError(t, b.Push(upd(1, 1)))
	require.NoError(t, b.Push(upd(2, 2)))

	assert.ErrorIs(t, b.Push(upd(3, 3)), ErrBufferOverflow)
	assert.Equal(t, 2, b.Len())

	b.Clear()
	assert.NoError(t, b.Push(upd(3, 3)))
}
