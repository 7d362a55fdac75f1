// Package marketdata supplies latest-price lookups and the demo bar feed.
package marketdata

import (
	"sync"
	"time"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
)

type PriceQuote struct {
	Instrument datamodels.Instrument
	Price      float64
	Timestamp  time.Time
}

// PriceCache holds the most recent price per instrument and rejects reads
// past the freshness window, so the sizer never works off dead quotes.
type PriceCache struct {
	mutex     sync.RWMutex
	prices    map[datamodels.Instrument]PriceQuote
	freshness time.Duration
	now       func() time.Time
}

func NewPriceCache(freshness time.Duration) *PriceCache {
	return &PriceCache{
		prices:    make(map[datamodels.Instrument]PriceQuote),
		freshness: freshness,
		now:       time.Now,
	}
}

// WithClock overrides the cache's clock. Used by tests.
func (c *PriceCache) WithClock(now func() time.Time) *PriceCache {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = now
	return c
}

func (c *PriceCache) Update(instrument datamodels.Instrument, price float64, timestamp time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.prices[instrument] = PriceQuote{Instrument: instrument, Price: price, Timestamp: timestamp}
}

func (c *PriceCache) ApplyBar(bar datamodels.MarketBar) {
	c.Update(bar.Instrument, bar.Close, bar.Timestamp)
}

// LatestPrice returns the freshest known price. It fails with ErrStalePrice
// when no quote has been seen, or the last one is older than the freshness
// window.
func (c *PriceCache) LatestPrice(instrument datamodels.Instrument) (float64, time.Time, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	quote, ok := c.prices[instrument]
	if !ok {
		return 0, time.Time{}, errors.Wrapf(errors.ErrStalePrice, "no price seen for %s", instrument)
	}
	age := c.now().Sub(quote.Timestamp)
	if age > c.freshness {
		return 0, time.Time{}, errors.Wrapf(errors.ErrStalePrice,
			"price for %s is %s old (window %s)", instrument, age, c.freshness)
	}
	return quote.Price, quote.Timestamp, nil
}
