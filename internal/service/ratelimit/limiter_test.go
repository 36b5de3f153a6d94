package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_PerKeyBuckets(t *testing.T) {
	l := New(0.001, 2)

	assert.True(t, l.Allow("whale_tracker"))
	assert.True(t, l.Allow("whale_tracker"))
	assert.False(t, l.Allow("whale_tracker"))

	assert.True(t, l.Allow("fear_greed"), "keys do not share a bucket")
}

func TestWait_HonoursContext(t *testing.T) {
	l := New(0.001, 1)
	assert.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}

func TestUnlimited(t *testing.T) {
	l := New(0, 1)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("k"))
	}
}
