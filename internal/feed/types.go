// Package feed handles interactions with the external detection pipeline
// and the market price feed.
package feed

import (
	"time"
)

// Direction identifies which side of the market a scanner is biased towards.
type Direction string

const (
	// DirectionLong asks the pipeline for buy candidates.
	DirectionLong Direction = "long"
	// DirectionShort asks the pipeline for sell candidates.
	DirectionShort Direction = "short"
)

// Signal is one scored candidate emitted by the detection pipeline.
// It is immutable once observed.
type Signal struct {
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	Score      float64   `json:"score"`    // ordinal strength, scale differs by direction
	Momentum   float64   `json:"momentum"` // signed percentage
	Pattern    string    `json:"pattern"`
	Timestamp  time.Time `json:"timestamp"`
}

// Key identifies one signal instance for deduplication.
func (s Signal) Key() string {
	return s.Instrument + "@" + s.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Candle is one OHLCV bar from the price-history service.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Tick is one streamed last-price update.
type Tick struct {
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
}
