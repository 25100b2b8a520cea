package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "lock:listing:3", lockKey("listing:3"))
	assert.Equal(t, "ratelimit:10.0.0.1", rateLimitKey("10.0.0.1"))
	assert.Equal(t, "price:ETHEREUM/USD", priceKey("ETHEREUM/USD"))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ch:*"))
	assert.True(t, hasPattern("ch:ledger?"))
	assert.False(t, hasPattern("ch:ledger"))
}

func TestDecodeStream(t *testing.T) {
	msgs := decodeStream([]redis.XMessage{
		{ID: "1-0", Values: map[string]any{"payload": `{"seq":1}`}},
		{ID: "2-0", Values: map[string]any{"other": "x"}},
		{ID: "3-0", Values: map[string]any{"payload": []byte(`{"seq":2}`)}},
	})
	if assert.Len(t, msgs, 2) {
		assert.Equal(t, "1-0", msgs[0].ID)
		assert.JSONEq(t, `{"seq":1}`, string(msgs[0].Payload))
		assert.Equal(t, "3-0", msgs[1].ID)
	}
}

func TestNewSignalBusDefaultsMaxLen(t *testing.T) {
	c := &Client{rdb: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})}
	defer c.Close()
	assert.Equal(t, defaultStreamMaxLen, NewSignalBus(c).maxLen)

	c.streamMaxLen = 500
	assert.Equal(t, int64(500), NewSignalBus(c).maxLen)
}
