package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToJsonString(t *testing.T) {
	assert.Equal(t, `{"id":1,"params":["btcusdt@depth"]}`, ToJsonString(map[string]interface{}{
		"id":     1,
		"params": []string{"btcusdt@depth"},
	}))
	assert.Equal(t, "", ToJsonString(make(chan int)))
}

func TestRandomReqID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := RandomReqID()
		assert.GreaterOrEqual(t, id, 10000)
		assert.Less(t, id, 9999999)
	}
}

func TestSleepContext(t *testing.T) {
	assert.True(t, SleepContext(context.Background(), time.Millisecond))
	assert.True(t, SleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := time.Now()
	assert.False(t, SleepContext(ctx, time.Minute))
	assert.Less(t, time.Since(started), time.Second)
	assert.False(t, SleepContext(ctx, 0))
}
