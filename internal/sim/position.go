// Package sim owns the simulated portfolio: the position lifecycle, the
// engine that mutates it, and the runner that drives entry and exit policy.
package sim

import (
	"fmt"
	"time"
)

// Direction is the side of a simulated position.
type Direction int

const (
	// Long profits when price rises.
	Long Direction = iota
	// Short profits when price falls.
	Short
)

// Sign returns +1 for long, -1 for short. P&L is (price-entry)*qty*Sign.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// String returns the string representation of the Direction.
func (d Direction) String() string {
	if d == Short {
		return "SHORT"
	}
	return "LONG"
}

// MarshalText implements encoding.TextMarshaler for snapshot JSON.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "LONG":
		*d = Long
	case "SHORT":
		*d = Short
	default:
		return fmt.Errorf("unknown direction %q", text)
	}
	return nil
}

// Status is the lifecycle state of a position.
type Status string

const (
	// StatusOpen means the position is live and monitored.
	StatusOpen Status = "OPEN"
	// StatusClosed is terminal; closed positions stay in history and are
	// never reopened in place.
	StatusClosed Status = "CLOSED"
)

// CloseReason records why a position left the OPEN state.
type CloseReason string

const (
	// CloseStopLoss means price breached the stop level.
	CloseStopLoss CloseReason = "STOP_LOSS"
	// CloseTarget means price reached the take-profit level.
	CloseTarget CloseReason = "TARGET"
	// CloseEOD means the position was force-liquidated at end of day.
	CloseEOD CloseReason = "EOD"
	// CloseManual means an operator closed the position.
	CloseManual CloseReason = "MANUAL"
)

// Position is one simulated trade for a single instrument.
type Position struct {
	ID            string            `json:"id"`
	Instrument    string            `json:"instrument"`
	Direction     Direction         `json:"direction"`
	EntryPrice    float64           `json:"entry_price"`
	SignalPrice   float64           `json:"signal_price"`
	Quantity      float64           `json:"quantity"`
	StopLoss      float64           `json:"stop_loss"`
	Target        float64           `json:"target,omitempty"` // zero means no target
	LastPrice     float64           `json:"last_price"`
	UnrealizedPnL float64           `json:"unrealized_pnl"`
	OpenedAt      time.Time         `json:"opened_at"`
	ClosedAt      time.Time         `json:"closed_at,omitempty"`
	ClosePrice    float64           `json:"close_price,omitempty"`
	Status        Status            `json:"status"`
	CloseReason   CloseReason       `json:"close_reason,omitempty"`
	RealizedPnL   float64           `json:"realized_pnl"`
	Score         float64           `json:"score"`
	Momentum      float64           `json:"momentum"`
	Pattern       string            `json:"pattern,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Portfolio holds the open positions and the closed history. It is
// exclusively owned by one Engine; all access goes through the engine's lock.
type Portfolio struct {
	Positions      map[string]*Position `json:"positions"` // keyed by instrument, OPEN only
	Closed         []*Position          `json:"closed"`
	InitialCapital float64              `json:"initial_capital"`
	Cash           float64              `json:"cash"`
	RealizedPnL    float64              `json:"realized_pnl"`
}

// NewPortfolio creates an empty portfolio with the given starting capital.
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{
		Positions:      make(map[string]*Position),
		InitialCapital: initialCapital,
		Cash:           initialCapital,
	}
}

// RejectionRecord is the audit artifact written when the entry policy turns
// a signal down. It is write-only: nothing in the engine reads it back.
type RejectionRecord struct {
	Instrument string
	Timestamp  time.Time
	Reason     string
}
