//go:build unit

package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

func TestLatestPriceWithinWindow(t *testing.T) {
	now := time.Now()
	cache := NewPriceCache(time.Minute).WithClock(func() time.Time { return now })
	cache.Update("BTC-USD", 105, now.Add(-30*time.Second))

	price, _, err := cache.LatestPrice("BTC-USD")
	require.NoError(t, err)
	assert.InDelta(t, 105, price, 1e-9)
}

func TestLatestPriceUnknownInstrument(t *testing.T) {
	cache := NewPriceCache(time.Minute)
	_, _, err := cache.LatestPrice("BTC-USD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStalePrice))
}

func TestLatestPriceOutsideWindow(t *testing.T) {
	now := time.Now()
	cache := NewPriceCache(time.Minute).WithClock(func() time.Time { return now })
	cache.Update("BTC-USD", 105, now.Add(-2*time.Minute))

	_, _, err := cache.LatestPrice("BTC-USD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStalePrice))
}

func TestApplyBarUsesClose(t *testing.T) {
	now := time.Now()
	cache := NewPriceCache(time.Minute).WithClock(func() time.Time { return now })
	cache.ApplyBar(datamodels.MarketBar{
		Instrument: "ETH-USD",
		Open:       100,
		Close:      102,
		Timestamp:  now,
	})

	price, at, err := cache.LatestPrice("ETH-USD")
	require.NoError(t, err)
	assert.InDelta(t, 102, price, 1e-9)
	assert.Equal(t, now, at)
}
