package marketdata

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLiveFeed_LatestCachedMissesBeforeAnyPush(t *testing.T) {
	f := NewLiveFeed(zerolog.Nop())

	_, ok := f.LatestCached("BTCUSDT")
	assert.False(t, ok)
}

func TestLiveFeed_LatestCachedReturnsLastPushedPrice(t *testing.T) {
	f := NewLiveFeed(zerolog.Nop())

	f.mu.Lock()
	f.prices["BTCUSDT"] = 65000.5
	f.mu.Unlock()

	price, ok := f.LatestCached("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 65000.5, price)
}
