package marketdata

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"stratd/src/datamodels"
	"stratd/src/utils/errors"
	"stratd/src/utils/general"
)

const (
	barChanBuffer  = 100
	demoStartPrice = 100.0
)

// DemoFeed synthesizes a random-walk bar per instrument every tick. It
// exists so the daemon can run end to end without any external data
// source.
type DemoFeed struct {
	mutex       sync.RWMutex
	instruments map[datamodels.Instrument]float64
	cadence     time.Duration
	subscribers []chan datamodels.MarketBar
	started     bool
	rng         *rand.Rand
}

func NewDemoFeed(cadence time.Duration) *DemoFeed {
	return &DemoFeed{
		instruments: make(map[datamodels.Instrument]float64),
		cadence:     cadence,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithInstrument seeds the walk's starting price for one instrument.
func (f *DemoFeed) WithInstrument(instrument datamodels.Instrument, startPrice float64) *DemoFeed {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.instruments[instrument] = startPrice
	return f
}

func (f *DemoFeed) EnsureInstrument(instrument datamodels.Instrument, startPrice float64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, ok := f.instruments[instrument]; !ok {
		f.instruments[instrument] = startPrice
	}
}

// SubscribeInstrument starts synthesizing bars for an instrument deployed
// after boot. Implements lifecycle.MarketData.
func (f *DemoFeed) SubscribeInstrument(instrument datamodels.Instrument) {
	f.EnsureInstrument(instrument, demoStartPrice)
}

// UnsubscribeInstrument stops bar synthesis once no strategy needs the
// instrument anymore.
func (f *DemoFeed) UnsubscribeInstrument(instrument datamodels.Instrument) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	delete(f.instruments, instrument)
}

// HasInstrument reports whether bars are being synthesized for an
// instrument.
func (f *DemoFeed) HasInstrument(instrument datamodels.Instrument) bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	_, ok := f.instruments[instrument]
	return ok
}

func (f *DemoFeed) Subscribe() <-chan datamodels.MarketBar {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	ch := make(chan datamodels.MarketBar, barChanBuffer)
	f.subscribers = append(f.subscribers, ch)
	return ch
}

func (f *DemoFeed) IsStarted() bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.started
}

func (f *DemoFeed) Start(ctx context.Context) error {
	f.mutex.Lock()
	if f.started {
		f.mutex.Unlock()
		slog.Warn("Demo feed already started, skipping start")
		return nil
	}
	if len(f.instruments) == 0 {
		f.mutex.Unlock()
		return errors.New("demo feed has no instruments")
	}
	f.started = true
	f.mutex.Unlock()

	go f.run(ctx)
	return nil
}

func (f *DemoFeed) run(ctx context.Context) {
	ticker := time.NewTicker(f.cadence)
	defer ticker.Stop()

	slog.Info("Demo feed started", "cadence", f.cadence)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Demo feed context done, stopping")
			f.closeSubscribers()
			return
		case tickTime := <-ticker.C:
			f.emitBars(tickTime)
		}
	}
}

func (f *DemoFeed) emitBars(tickTime time.Time) {
	f.mutex.Lock()
	bars := make([]datamodels.MarketBar, 0, len(f.instruments))
	for instrument, price := range f.instruments {
		// bounded random walk, roughly +/-0.5% per bar
		drift := price * (f.rng.Float64() - 0.5) / 100
		newPrice := price + drift
		if newPrice <= 0 {
			newPrice = price
		}
		f.instruments[instrument] = newPrice
		bars = append(bars, datamodels.MarketBar{
			Instrument: instrument,
			Open:       price,
			High:       maxFloat(price, newPrice),
			Low:        minFloat(price, newPrice),
			Close:      newPrice,
			Volume:     f.rng.Float64() * 1000,
			Timestamp:  tickTime,
		})
	}
	subscribers := make([]chan datamodels.MarketBar, len(f.subscribers))
	copy(subscribers, f.subscribers)
	f.mutex.Unlock()

	for _, bar := range bars {
		for _, ch := range subscribers {
			select {
			case ch <- bar:
				if general.ChannelAtLoadLevel(ch, 0.8) {
					slog.Warn("Demo feed subscriber channel load warning", "instrument", bar.Instrument)
				}
			default:
				slog.Warn("Demo feed subscriber channel full, dropping bar", "instrument", bar.Instrument)
			}
		}
	}
}

func (f *DemoFeed) closeSubscribers() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
