package helpers

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"
)

// ToJsonString converts any value to JSON string.
func ToJsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// RandomReqID returns an id for websocket requests, used to match acks.
func RandomReqID() int {
	min := 10000
	max := 9999999
	return min + rand.Intn(max-min)
}

// SleepContext waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func SleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
