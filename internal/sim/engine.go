package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/your-org/signal-sim-bot/internal/dbwriter"
	"github.com/your-org/signal-sim-bot/internal/metrics"
	"github.com/your-org/signal-sim-bot/pkg/logger"
)

// Sentinel failures for OpenPosition. They are policy outcomes, not crashes:
// callers treat them as rejections.
var (
	// ErrAlreadyOpen means the instrument already has an OPEN position.
	ErrAlreadyOpen = errors.New("sim: instrument already has an open position")
	// ErrInvalidPrice means a non-positive price was supplied.
	ErrInvalidPrice = errors.New("sim: price must be positive")
	// ErrInvalidStop means the stop level was absent or non-positive.
	ErrInvalidStop = errors.New("sim: stop loss must be positive")
)

// Engine owns the Portfolio and serializes every mutation behind one mutex,
// so the signal-processing path (the only opener) and the price-update
// worker (the only closer) never interleave decisions on one position.
type Engine struct {
	simulationID  string
	positionValue float64
	loc           *time.Location

	mu        sync.Mutex
	portfolio *Portfolio

	repo    dbwriter.Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source (used by tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithMetrics attaches a metric set.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine owning a fresh portfolio.
func NewEngine(simulationID string, initialCapital, positionValue float64, loc *time.Location, repo dbwriter.Repository, opts ...EngineOption) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{
		simulationID:  simulationID,
		positionValue: positionValue,
		loc:           loc,
		portfolio:     NewPortfolio(initialCapital),
		repo:          repo,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenRequest carries everything needed to open a position.
type OpenRequest struct {
	Instrument  string
	Direction   Direction
	SignalPrice float64
	EntryPrice  float64
	StopLoss    float64
	Target      float64 // zero means no target
	Score       float64
	Momentum    float64
	Pattern     string
	Metadata    map[string]string
}

// OpenPosition creates an OPEN position for the request's instrument. It
// fails with a sentinel error if the instrument already has an open position
// or the inputs are invalid; it never panics past the caller.
func (e *Engine) OpenPosition(req OpenRequest) (string, error) {
	if req.EntryPrice <= 0 || req.SignalPrice <= 0 {
		return "", ErrInvalidPrice
	}
	if req.StopLoss <= 0 {
		return "", ErrInvalidStop
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.portfolio.Positions[req.Instrument]; exists {
		return "", ErrAlreadyOpen
	}

	quantity := e.positionValue / req.EntryPrice
	pos := &Position{
		ID:            uuid.NewString(),
		Instrument:    req.Instrument,
		Direction:     req.Direction,
		EntryPrice:    req.EntryPrice,
		SignalPrice:   req.SignalPrice,
		Quantity:      quantity,
		StopLoss:      req.StopLoss,
		Target:        req.Target,
		LastPrice:     req.EntryPrice,
		OpenedAt:      e.now().In(e.loc),
		Status:        StatusOpen,
		Score:         req.Score,
		Momentum:      req.Momentum,
		Pattern:       req.Pattern,
		Metadata:      req.Metadata,
	}
	e.portfolio.Positions[req.Instrument] = pos
	e.portfolio.Cash -= quantity * req.EntryPrice

	e.metrics.PositionOpened()
	logger.Infof("Opened %s position %s: %s entry=%.4f stop=%.4f qty=%.4f",
		pos.Direction, pos.ID, pos.Instrument, pos.EntryPrice, pos.StopLoss, pos.Quantity)
	return pos.ID, nil
}

// UpdatePositionPrices refreshes last price and unrealized P&L for OPEN
// positions present in the map. It never decides exits.
func (e *Engine) UpdatePositionPrices(prices map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for instrument, price := range prices {
		pos, ok := e.portfolio.Positions[instrument]
		if !ok || price <= 0 {
			continue
		}
		pos.LastPrice = price
		pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity * pos.Direction.Sign()
	}
}

// CheckStopLosses closes every open position whose price breached its stop
// and returns the affected instruments.
func (e *Engine) CheckStopLosses(prices map[string]float64) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var closed []string
	for instrument, pos := range e.portfolio.Positions {
		price, ok := prices[instrument]
		if !ok || price <= 0 {
			continue
		}
		breached := (pos.Direction == Long && price <= pos.StopLoss) ||
			(pos.Direction == Short && price >= pos.StopLoss)
		if breached {
			e.closeLocked(pos, price, CloseStopLoss)
			closed = append(closed, instrument)
		}
	}
	return closed
}

// CheckTargets closes every open position whose price reached its target and
// returns the affected instruments. Positions without a target are skipped.
func (e *Engine) CheckTargets(prices map[string]float64) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var closed []string
	for instrument, pos := range e.portfolio.Positions {
		if pos.Target <= 0 {
			continue
		}
		price, ok := prices[instrument]
		if !ok || price <= 0 {
			continue
		}
		reached := (pos.Direction == Long && price >= pos.Target) ||
			(pos.Direction == Short && price <= pos.Target)
		if reached {
			e.closeLocked(pos, price, CloseTarget)
			closed = append(closed, instrument)
		}
	}
	return closed
}

// UpdateTrailingStop ratchets the stop of an open position: long stops may
// only rise, short stops may only fall. A less favorable proposal is a
// silent no-op.
func (e *Engine) UpdateTrailingStop(instrument string, newLevel float64) {
	if newLevel <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.portfolio.Positions[instrument]
	if !ok {
		return
	}
	improves := (pos.Direction == Long && newLevel > pos.StopLoss) ||
		(pos.Direction == Short && newLevel < pos.StopLoss)
	if !improves {
		return
	}
	logger.Debugf("Trailing stop for %s: %.4f -> %.4f", instrument, pos.StopLoss, newLevel)
	pos.StopLoss = newLevel
}

// CloseAll closes every open position at its mapped price (or its last known
// price when absent from the map) with the given reason. Returns the closed
// instruments.
func (e *Engine) CloseAll(prices map[string]float64, reason CloseReason) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var closed []string
	for instrument, pos := range e.portfolio.Positions {
		price := pos.LastPrice
		if p, ok := prices[instrument]; ok && p > 0 {
			price = p
		}
		e.closeLocked(pos, price, reason)
		closed = append(closed, instrument)
	}
	return closed
}

// ClosePosition closes one open position at the given price with reason
// MANUAL. It returns false if no open position exists for the instrument.
func (e *Engine) ClosePosition(instrument string, price float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.portfolio.Positions[instrument]
	if !ok {
		return false
	}
	if price <= 0 {
		price = pos.LastPrice
	}
	e.closeLocked(pos, price, CloseManual)
	return true
}

// closeLocked transitions one position to CLOSED and books its P&L.
// Callers must hold e.mu.
func (e *Engine) closeLocked(pos *Position, price float64, reason CloseReason) {
	pos.Status = StatusClosed
	pos.CloseReason = reason
	pos.ClosePrice = price
	pos.ClosedAt = e.now().In(e.loc)
	pos.LastPrice = price
	pos.RealizedPnL = (price - pos.EntryPrice) * pos.Quantity * pos.Direction.Sign()
	pos.UnrealizedPnL = 0

	e.portfolio.Cash += pos.Quantity*pos.EntryPrice + pos.RealizedPnL
	e.portfolio.RealizedPnL += pos.RealizedPnL
	e.portfolio.Closed = append(e.portfolio.Closed, pos)
	delete(e.portfolio.Positions, pos.Instrument)

	e.metrics.PositionClosed(string(reason))
	logger.Infof("Closed %s position %s (%s): close=%.4f pnl=%.2f",
		pos.Direction, pos.Instrument, reason, price, pos.RealizedPnL)
}

// HasOpen reports whether the instrument currently has an OPEN position.
func (e *Engine) HasOpen(instrument string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.portfolio.Positions[instrument]
	return ok
}

// OpenCount returns the number of OPEN positions.
func (e *Engine) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.portfolio.Positions)
}

// OpenInstruments returns the instruments with OPEN positions.
func (e *Engine) OpenInstruments() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	instruments := make([]string, 0, len(e.portfolio.Positions))
	for instrument := range e.portfolio.Positions {
		instruments = append(instruments, instrument)
	}
	return instruments
}

// Position returns a copy of the OPEN position for the instrument.
func (e *Engine) Position(instrument string) (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.portfolio.Positions[instrument]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// ClosedPositions returns copies of the closed history, oldest first.
func (e *Engine) ClosedPositions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Position, len(e.portfolio.Closed))
	for i, pos := range e.portfolio.Closed {
		out[i] = *pos
	}
	return out
}

// Summary is a pure read of the portfolio's value and P&L.
type Summary struct {
	TotalValue    decimal.Decimal `json:"total_value"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPct        decimal.Decimal `json:"pnl_pct"`
	OpenCount     int             `json:"open_count"`
	ClosedCount   int             `json:"closed_count"`
}

// Summary computes the current portfolio summary.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summaryLocked()
}

func (e *Engine) summaryLocked() Summary {
	value := decimal.NewFromFloat(e.portfolio.Cash)
	unrealized := decimal.Zero
	for _, pos := range e.portfolio.Positions {
		held := decimal.NewFromFloat(pos.Quantity * pos.EntryPrice)
		upnl := decimal.NewFromFloat(pos.UnrealizedPnL)
		value = value.Add(held).Add(upnl)
		unrealized = unrealized.Add(upnl)
	}

	initial := decimal.NewFromFloat(e.portfolio.InitialCapital)
	pnl := value.Sub(initial)
	pnlPct := decimal.Zero
	if !initial.IsZero() {
		pnlPct = pnl.Div(initial).Mul(decimal.NewFromInt(100)).Round(6)
	}

	return Summary{
		TotalValue:    value,
		RealizedPnL:   decimal.NewFromFloat(e.portfolio.RealizedPnL),
		UnrealizedPnL: unrealized,
		PnL:           pnl,
		PnLPct:        pnlPct,
		OpenCount:     len(e.portfolio.Positions),
		ClosedCount:   len(e.portfolio.Closed),
	}
}

// SaveDailySnapshot persists the full portfolio plus summary metrics keyed
// by (simulation id, date). Within a day it is idempotent: the same-day row
// is overwritten, and with no state change the content is identical.
func (e *Engine) SaveDailySnapshot(ctx context.Context) error {
	e.mu.Lock()
	raw, err := json.Marshal(e.portfolio)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to marshal portfolio: %w", err)
	}
	summary := e.summaryLocked()
	date := e.now().In(e.loc).Format("2006-01-02")
	e.mu.Unlock()

	snap := dbwriter.DailySnapshot{
		SimulationID:  e.simulationID,
		Date:          date,
		Portfolio:     raw,
		TotalValue:    summary.TotalValue,
		RealizedPnL:   summary.RealizedPnL,
		UnrealizedPnL: summary.UnrealizedPnL,
		PnLPct:        summary.PnLPct,
		OpenCount:     summary.OpenCount,
		ClosedCount:   summary.ClosedCount,
	}
	if err := e.repo.SaveDailySnapshot(ctx, snap); err != nil {
		return err
	}
	e.metrics.SnapshotSaved()
	return nil
}

// Reset discards all portfolio state and starts over from initial capital.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	logger.Warnf("Resetting portfolio for simulation %s", e.simulationID)
	e.portfolio = NewPortfolio(e.portfolio.InitialCapital)
}
