package indicator

import (
	"context"
	"fmt"
	"math"
)

// BandEngine computes a volatility channel: a simple moving average over a
// fixed lookback with bands at width standard deviations.
type BandEngine struct {
	history  HistorySource
	lookback int
	width    float64
	cache    Cache
}

// NewBandEngine creates a BandEngine.
func NewBandEngine(history HistorySource, lookback int, width float64, cache Cache) *BandEngine {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &BandEngine{
		history:  history,
		lookback: lookback,
		width:    width,
		cache:    cache,
	}
}

// Values computes the volatility channel for instrument+timeframe.
func (e *BandEngine) Values(ctx context.Context, instrument, timeframe string, useCache bool) (Snapshot, error) {
	key := cacheKey(instrument, timeframe)
	if useCache {
		if snap, ok := e.cache.Get(key); ok {
			return snap, nil
		}
	}

	candles, err := e.history.Candles(ctx, instrument, timeframe, e.lookback)
	if err != nil {
		return Snapshot{}, fmt.Errorf("band engine: %w", err)
	}
	if len(candles) < e.lookback {
		return Snapshot{}, ErrUnavailable
	}

	window := candles[len(candles)-e.lookback:]
	var sum float64
	for _, c := range window {
		sum += c.Close
	}
	mean := sum / float64(e.lookback)

	var sqSum float64
	for _, c := range window {
		d := c.Close - mean
		sqSum += d * d
	}
	stdDev := math.Sqrt(sqSum / float64(e.lookback))

	snap := Snapshot{
		Instrument: instrument,
		Timeframe:  timeframe,
		Upper:      mean + e.width*stdDev,
		Lower:      mean - e.width*stdDev,
		Middle:     mean,
	}
	e.cache.Set(key, snap)
	return snap, nil
}

// ClearCache drops all cached channel snapshots.
func (e *BandEngine) ClearCache() {
	e.cache.Clear()
}
