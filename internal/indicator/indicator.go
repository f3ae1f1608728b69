// Package indicator computes volatility-channel and trend-following stop
// levels from price history, with a per-day snapshot cache.
package indicator

import (
	"context"
	"errors"

	"github.com/your-org/signal-sim-bot/internal/feed"
)

// ErrUnavailable is returned when history is too thin to compute a value.
// Callers are expected to fall back to a percentage-based stop rather than
// receive a misleading default.
var ErrUnavailable = errors.New("indicator: insufficient history")

// Snapshot is one computed indicator reading for an instrument+timeframe.
type Snapshot struct {
	Instrument string  `json:"instrument"`
	Timeframe  string  `json:"timeframe"`
	Upper      float64 `json:"upper"`
	Lower      float64 `json:"lower"`
	Middle     float64 `json:"middle"`
	TrendLevel float64 `json:"trend_level"`
	TrendUp    bool    `json:"trend_up"`
}

// Engine computes indicator snapshots. Implementations cache per
// instrument+timeframe; the cache is cleared only at end-of-day, never by
// time-based expiry mid-session.
type Engine interface {
	// Values returns the snapshot for instrument+timeframe. With useCache
	// it returns the cached value for the current session when present.
	Values(ctx context.Context, instrument, timeframe string, useCache bool) (Snapshot, error)
	// ClearCache invalidates all cached snapshots and per-session state.
	ClearCache()
}

// HistorySource provides the price-history window the engines compute from.
// Historical price acquisition itself is an external capability.
type HistorySource interface {
	Candles(ctx context.Context, instrument, timeframe string, limit int) ([]feed.Candle, error)
}

func cacheKey(instrument, timeframe string) string {
	return instrument + "|" + timeframe
}
