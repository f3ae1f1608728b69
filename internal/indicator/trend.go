package indicator

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/your-org/signal-sim-bot/internal/feed"
)

// trendState is the per-instrument session state of the trend engine,
// updated incrementally so a refresh only needs the latest bar.
type trendState struct {
	level     float64
	up        bool
	atr       float64
	prevClose float64
}

// TrendEngine computes a single trend-following stop level with a direction
// flag. The level trails price at a multiple of the average true range and
// flips side when price crosses it.
type TrendEngine struct {
	history    HistorySource
	lookback   int
	multiplier float64
	cache      Cache

	mu    sync.Mutex
	state map[string]*trendState
}

// NewTrendEngine creates a TrendEngine.
func NewTrendEngine(history HistorySource, lookback int, multiplier float64, cache Cache) *TrendEngine {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &TrendEngine{
		history:    history,
		lookback:   lookback,
		multiplier: multiplier,
		cache:      cache,
		state:      make(map[string]*trendState),
	}
}

// Values returns the trailing level for instrument+timeframe. With useCache
// it returns the session's cached snapshot; without, it refreshes the level
// from the latest bar, seeding from the full window on first use.
func (e *TrendEngine) Values(ctx context.Context, instrument, timeframe string, useCache bool) (Snapshot, error) {
	key := cacheKey(instrument, timeframe)
	if useCache {
		if snap, ok := e.cache.Get(key); ok {
			return snap, nil
		}
	}

	e.mu.Lock()
	st, seeded := e.state[key]
	e.mu.Unlock()

	if !seeded {
		var err error
		st, err = e.seed(ctx, instrument, timeframe)
		if err != nil {
			return Snapshot{}, err
		}
		e.mu.Lock()
		e.state[key] = st
		e.mu.Unlock()
	} else if !useCache {
		candles, err := e.history.Candles(ctx, instrument, timeframe, 1)
		if err != nil {
			return Snapshot{}, fmt.Errorf("trend engine: %w", err)
		}
		if len(candles) == 0 {
			return Snapshot{}, ErrUnavailable
		}
		e.mu.Lock()
		e.advance(st, candles[len(candles)-1])
		e.mu.Unlock()
	}

	snap := Snapshot{
		Instrument: instrument,
		Timeframe:  timeframe,
		TrendLevel: st.level,
		TrendUp:    st.up,
	}
	e.cache.Set(key, snap)
	return snap, nil
}

// seed establishes the initial level and direction from a full window.
func (e *TrendEngine) seed(ctx context.Context, instrument, timeframe string) (*trendState, error) {
	candles, err := e.history.Candles(ctx, instrument, timeframe, e.lookback+1)
	if err != nil {
		return nil, fmt.Errorf("trend engine: %w", err)
	}
	if len(candles) < e.lookback+1 {
		return nil, ErrUnavailable
	}

	// Average true range over the lookback, then walk the window so the
	// level ratchets into position.
	var trSum float64
	for i := 1; i <= e.lookback; i++ {
		trSum += trueRange(candles[i], candles[i-1].Close)
	}
	first := candles[e.lookback]
	st := &trendState{
		atr:       trSum / float64(e.lookback),
		prevClose: candles[e.lookback-1].Close,
		up:        first.Close >= candles[0].Close,
	}
	if st.up {
		st.level = first.Close - e.multiplier*st.atr
	} else {
		st.level = first.Close + e.multiplier*st.atr
	}
	for _, c := range candles[e.lookback:] {
		e.advance(st, c)
	}
	return st, nil
}

// advance folds one bar into the state: Wilder-smoothed ATR, a trailing
// level that only tightens, and a side flip when price crosses the level.
func (e *TrendEngine) advance(st *trendState, c feed.Candle) {
	tr := trueRange(c, st.prevClose)
	st.atr = (st.atr*float64(e.lookback-1) + tr) / float64(e.lookback)
	st.prevClose = c.Close

	upperBand := c.Close + e.multiplier*st.atr
	lowerBand := c.Close - e.multiplier*st.atr

	if st.up {
		if c.Close < st.level {
			st.up = false
			st.level = upperBand
			return
		}
		st.level = math.Max(st.level, lowerBand)
	} else {
		if c.Close > st.level {
			st.up = true
			st.level = lowerBand
			return
		}
		st.level = math.Min(st.level, upperBand)
	}
}

func trueRange(c feed.Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if d := math.Abs(c.High - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(c.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// ClearCache drops cached snapshots and the per-session trailing state.
func (e *TrendEngine) ClearCache() {
	e.cache.Clear()
	e.mu.Lock()
	e.state = make(map[string]*trendState)
	e.mu.Unlock()
}
