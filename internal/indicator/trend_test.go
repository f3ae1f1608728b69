package indicator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/signal-sim-bot/internal/feed"
	"github.com/your-org/signal-sim-bot/internal/indicator"
)

// candle builds a bar with a fixed one-point range around the close.
func candle(close float64, minute int) feed.Candle {
	return feed.Candle{
		Time:  time.Date(2026, 3, 2, 9, minute, 0, 0, time.UTC),
		Open:  close,
		High:  close + 1,
		Low:   close - 1,
		Close: close,
	}
}

func TestTrendEngineSeed(t *testing.T) {
	// Rising closes 100, 102, 104 with lookback 2 and multiplier 2:
	// true range is 3 per bar, ATR 3, so the level seeds at 104 - 2*3 = 98.
	history := &fakeHistory{candles: []feed.Candle{
		candle(100, 0), candle(102, 5), candle(104, 10),
	}}
	engine := indicator.NewTrendEngine(history, 2, 2.0, nil)

	snap, err := engine.Values(context.Background(), "RELIANCE", "5m", false)
	require.NoError(t, err)
	assert.True(t, snap.TrendUp)
	assert.InDelta(t, 98.0, snap.TrendLevel, 1e-9)
	assert.Equal(t, 3, history.lastLimit, "seed fetches lookback+1 bars")
}

func TestTrendEngineRefreshRatchetsAndFlips(t *testing.T) {
	history := &fakeHistory{candles: []feed.Candle{
		candle(100, 0), candle(102, 5), candle(104, 10),
	}}
	engine := indicator.NewTrendEngine(history, 2, 2.0, nil)

	seedSnap, err := engine.Values(context.Background(), "RELIANCE", "5m", false)
	require.NoError(t, err)
	require.InDelta(t, 98.0, seedSnap.TrendLevel, 1e-9)

	// A refresh only needs the latest bar.
	history.candles = append(history.candles, candle(110, 15))
	snap, err := engine.Values(context.Background(), "RELIANCE", "5m", false)
	require.NoError(t, err)
	assert.Equal(t, 1, history.lastLimit, "refresh fetches a single bar")
	assert.True(t, snap.TrendUp)
	assert.InDelta(t, 100.0, snap.TrendLevel, 1e-9)
	assert.Greater(t, snap.TrendLevel, seedSnap.TrendLevel, "uptrend level only tightens")

	// A close below the level flips the trend; the level jumps above price.
	history.candles = append(history.candles, candle(90, 20))
	snap, err = engine.Values(context.Background(), "RELIANCE", "5m", false)
	require.NoError(t, err)
	assert.False(t, snap.TrendUp)
	assert.InDelta(t, 116.0, snap.TrendLevel, 1e-9)
	assert.Greater(t, snap.TrendLevel, 90.0)
}

func TestTrendEngineCachedReadDoesNotAdvance(t *testing.T) {
	history := &fakeHistory{candles: []feed.Candle{
		candle(100, 0), candle(102, 5), candle(104, 10),
	}}
	engine := indicator.NewTrendEngine(history, 2, 2.0, nil)

	first, err := engine.Values(context.Background(), "RELIANCE", "5m", true)
	require.NoError(t, err)
	calls := history.calls

	second, err := engine.Values(context.Background(), "RELIANCE", "5m", true)
	require.NoError(t, err)
	assert.Equal(t, calls, history.calls, "cached read must not refetch")
	assert.Equal(t, first, second)
}

func TestTrendEngineInsufficientHistory(t *testing.T) {
	history := &fakeHistory{candles: []feed.Candle{candle(100, 0)}}
	engine := indicator.NewTrendEngine(history, 10, 2.0, nil)

	_, err := engine.Values(context.Background(), "RELIANCE", "5m", false)
	assert.ErrorIs(t, err, indicator.ErrUnavailable)
}

func TestTrendEngineClearCacheReseeds(t *testing.T) {
	history := &fakeHistory{candles: []feed.Candle{
		candle(100, 0), candle(102, 5), candle(104, 10),
	}}
	engine := indicator.NewTrendEngine(history, 2, 2.0, nil)

	_, err := engine.Values(context.Background(), "RELIANCE", "5m", false)
	require.NoError(t, err)

	engine.ClearCache()

	_, err = engine.Values(context.Background(), "RELIANCE", "5m", false)
	require.NoError(t, err)
	assert.Equal(t, 3, history.lastLimit, "state reset forces a full reseed")
}
