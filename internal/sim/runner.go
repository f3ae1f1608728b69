package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/your-org/signal-sim-bot/internal/config"
	"github.com/your-org/signal-sim-bot/internal/dbwriter"
	"github.com/your-org/signal-sim-bot/internal/feed"
	"github.com/your-org/signal-sim-bot/internal/indicator"
	"github.com/your-org/signal-sim-bot/internal/metrics"
	"github.com/your-org/signal-sim-bot/internal/signalsource"
	"github.com/your-org/signal-sim-bot/pkg/logger"
)

// stopJoinTimeout bounds how long Stop waits for the price worker to exit.
const stopJoinTimeout = 5 * time.Second

// SignalSource is the pollable candidate feed the runner consumes.
// *signalsource.Source satisfies it.
type SignalSource interface {
	Start(pollInterval time.Duration) error
	Stop()
	Poll(ctx context.Context)
	RegisterCallback(fn signalsource.Callback)
	CurrentSignals(onlyUnprocessed bool) []feed.Signal
	MarkProcessed(sig feed.Signal)
	ResetDay()
}

// PriceSource provides last prices for a set of instruments. The returned
// map may be partial. *feed.Client and *feed.StreamClient satisfy it.
type PriceSource interface {
	LastPrices(ctx context.Context, instruments []string) (map[string]float64, error)
}

// Notifier receives position lifecycle alerts.
type Notifier interface {
	Send(message string) error
}

// RejectionAuditor records rejected signals for external review.
// *csvwriter.RejectionWriter satisfies it.
type RejectionAuditor interface {
	Record(ts time.Time, instrument, reason string) error
}

// Runner wires one signal source, one indicator engine and one price source
// to a simulation engine and drives the two concurrent workers.
type Runner struct {
	cfg        *config.Config
	strategy   Strategy
	engine     *Engine
	source     SignalSource
	prices     PriceSource
	indicators indicator.Engine
	repo       dbwriter.Repository
	audit      RejectionAuditor
	notifier   Notifier
	metrics    *metrics.Metrics
	loc        *time.Location
	now        func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunnerClock overrides the runner's time source (used by tests).
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithAuditor attaches a rejection audit sink.
func WithAuditor(a RejectionAuditor) RunnerOption {
	return func(r *Runner) { r.audit = a }
}

// WithNotifier attaches an alert sink.
func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

// WithRunnerMetrics attaches a metric set.
func WithRunnerMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner. The engine must be exclusively owned by this
// runner: it is the serialization point between the two workers.
func NewRunner(cfg *config.Config, strategy Strategy, engine *Engine, source SignalSource,
	prices PriceSource, indicators indicator.Engine, repo dbwriter.Repository, opts ...RunnerOption) (*Runner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve market timezone: %w", err)
	}
	r := &Runner{
		cfg:        cfg,
		strategy:   strategy,
		engine:     engine,
		source:     source,
		prices:     prices,
		indicators: indicators,
		repo:       repo,
		loc:        loc,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ShouldEnter applies the base entry policy, then the strategy's additional
// restrictions. It returns false with a human-readable reason on rejection.
func (r *Runner) ShouldEnter(sig feed.Signal) (bool, string) {
	if r.engine.HasOpen(sig.Instrument) {
		return false, "Already have position"
	}
	if r.engine.OpenCount() >= r.cfg.Entry.MaxOpenPositions {
		return false, "Max open positions reached"
	}

	switch r.strategy.Direction() {
	case Long:
		if sig.Score < r.cfg.Entry.LongMinScore {
			return false, fmt.Sprintf("Score %.1f below minimum %.1f", sig.Score, r.cfg.Entry.LongMinScore)
		}
		if sig.Momentum < r.cfg.Entry.LongMinMomentum {
			return false, fmt.Sprintf("Momentum %.2f%% below minimum %.2f%%", sig.Momentum, r.cfg.Entry.LongMinMomentum)
		}
	case Short:
		if sig.Score < r.cfg.Entry.ShortMinScore {
			return false, fmt.Sprintf("Score %.1f below minimum %.1f", sig.Score, r.cfg.Entry.ShortMinScore)
		}
		// Shorts have no momentum floor; strongly negative momentum is
		// desirable. Only a ceiling applies.
		if sig.Momentum > r.cfg.Entry.ShortMaxMomentum {
			return false, fmt.Sprintf("Momentum %.2f%% above maximum %.2f%%", sig.Momentum, r.cfg.Entry.ShortMaxMomentum)
		}
	}

	return r.strategy.EntryAllowed(r.now())
}

// ProcessSignal evaluates one signal. Rejections are recorded for audit and
// return false; acceptance derives a stop basis from the indicator engine
// (or the configured percentage fallback) and opens a position.
func (r *Runner) ProcessSignal(sig feed.Signal) bool {
	r.metrics.SignalSeen()

	if ok, reason := r.ShouldEnter(sig); !ok {
		r.recordRejection(sig, reason)
		return false
	}
	if sig.Price <= 0 {
		r.recordRejection(sig, "Invalid signal price")
		return false
	}

	stop := r.stopBasis(sig)
	target := 0.0
	if r.cfg.Stops.TargetPct > 0 {
		target = sig.Price * (1 + r.strategy.Direction().Sign()*r.cfg.Stops.TargetPct/100)
	}

	_, err := r.engine.OpenPosition(OpenRequest{
		Instrument:  sig.Instrument,
		Direction:   r.strategy.Direction(),
		SignalPrice: sig.Price,
		EntryPrice:  sig.Price,
		StopLoss:    stop,
		Target:      target,
		Score:       sig.Score,
		Momentum:    sig.Momentum,
		Pattern:     sig.Pattern,
		Metadata:    map[string]string{"strategy": r.strategy.Name()},
	})
	if err != nil {
		// Sentinel failures (double open, bad input) are policy outcomes,
		// not crashes.
		r.recordRejection(sig, err.Error())
		return false
	}

	r.metrics.SignalAccepted()
	return true
}

// stopBasis asks the indicator engine for a stop level and falls back to a
// percentage distance from entry when no usable level is available.
func (r *Runner) stopBasis(sig feed.Signal) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Feed.Timeout())
	defer cancel()

	fallback := sig.Price * (1 - r.strategy.Direction().Sign()*r.cfg.Stops.FallbackStopPct/100)

	snap, err := r.indicators.Values(ctx, sig.Instrument, r.cfg.Indicator.Timeframe, true)
	if err != nil {
		logger.Warnf("Indicator unavailable for %s, using %.2f%% fallback stop: %v",
			sig.Instrument, r.cfg.Stops.FallbackStopPct, err)
		return fallback
	}

	stop := r.strategy.StopBasis(snap)
	if stop <= 0 {
		return fallback
	}
	// A stop on the wrong side of entry would close the position on the
	// first tick; treat it as unusable.
	if r.strategy.Direction() == Long && stop >= sig.Price {
		return fallback
	}
	if r.strategy.Direction() == Short && stop <= sig.Price {
		return fallback
	}
	return stop
}

func (r *Runner) recordRejection(sig feed.Signal, reason string) {
	rec := RejectionRecord{
		Instrument: sig.Instrument,
		Timestamp:  r.now().In(r.loc),
		Reason:     reason,
	}
	logger.Debugf("Rejected signal %s: %s", rec.Instrument, rec.Reason)
	r.metrics.SignalRejected(reason)

	r.repo.SaveRejection(dbwriter.Rejection{
		Time:         rec.Timestamp,
		SimulationID: r.cfg.SimulationID,
		Instrument:   rec.Instrument,
		Reason:       rec.Reason,
	})
	if r.audit != nil {
		if err := r.audit.Record(rec.Timestamp, rec.Instrument, rec.Reason); err != nil {
			logger.Warnf("Failed to write rejection audit record: %v", err)
		}
	}
}

// RunOnce performs a single scheduled iteration: drain unprocessed signals,
// then run one price/exit cycle. It is the alternative to Start for cron-style
// invocation.
func (r *Runner) RunOnce(ctx context.Context) {
	r.source.Poll(ctx)
	r.drainSignals()
	r.priceCycle(ctx)
}

// drainSignals pushes every unprocessed observed signal through ProcessSignal.
func (r *Runner) drainSignals() {
	for _, sig := range r.source.CurrentSignals(true) {
		r.ProcessSignal(sig)
		r.source.MarkProcessed(sig)
	}
}

// priceCycle is one pass of the price-update worker: refresh prices, update
// trailing stops, apply the forced-exit rule if due, then normal exit checks.
// This worker is the only closer of positions.
func (r *Runner) priceCycle(ctx context.Context) {
	open := r.engine.OpenInstruments()
	if len(open) == 0 {
		return
	}

	prices, err := r.prices.LastPrices(ctx, open)
	if err != nil {
		// Non-fatal: log and retry on the next tick.
		logger.Warnf("Price fetch failed, retrying next cycle: %v", err)
		r.metrics.PriceFetchError()
		return
	}
	if len(prices) == 0 {
		return
	}

	r.engine.UpdatePositionPrices(prices)

	if r.strategy.Trailing() {
		r.updateTrailingStops(ctx, open)
	}

	if r.strategy.ForceExitDue(r.now()) {
		closed := r.engine.CloseAll(prices, CloseEOD)
		if len(closed) > 0 {
			r.notify(fmt.Sprintf("Forced end-of-day exit closed %d position(s): %v", len(closed), closed))
		}
		return
	}

	if stopped := r.engine.CheckStopLosses(prices); len(stopped) > 0 {
		r.notify(fmt.Sprintf("Stop-loss closed: %v", stopped))
	}
	if hit := r.engine.CheckTargets(prices); len(hit) > 0 {
		r.notify(fmt.Sprintf("Target reached: %v", hit))
	}
}

// updateTrailingStops refreshes the trend level for each open instrument and
// proposes it to the engine, which enforces the ratchet.
func (r *Runner) updateTrailingStops(ctx context.Context, open []string) {
	for _, instrument := range open {
		snap, err := r.indicators.Values(ctx, instrument, r.cfg.Indicator.Timeframe, false)
		if err != nil {
			logger.Debugf("Trailing refresh unavailable for %s: %v", instrument, err)
			continue
		}
		if level, ok := r.strategy.TrailingLevel(snap); ok {
			r.engine.UpdateTrailingStop(instrument, level)
		}
	}
}

// Start launches continuous operation: the signal source's own polling loop
// (which calls back into ProcessSignal) and the price-update worker.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner %s is already started", r.strategy.Name())
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.source.RegisterCallback(func(sig feed.Signal) {
		r.ProcessSignal(sig)
		r.source.MarkProcessed(sig)
	})
	if err := r.source.Start(r.cfg.Intervals.SignalPoll()); err != nil {
		return err
	}

	r.wg.Add(1)
	go r.priceLoop(ctx)

	logger.Infof("Runner %s started (signal poll %v, price update %v)",
		r.strategy.Name(), r.cfg.Intervals.SignalPoll(), r.cfg.Intervals.PriceUpdate())
	return nil
}

func (r *Runner) priceLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Intervals.PriceUpdate())
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.priceCycle(ctx)
		}
	}
}

// Stop signals both workers to exit, joins them with a bounded wait, and
// always attempts one final snapshot before returning.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.source.Stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		logger.Warn("Price worker did not exit within the join timeout")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.engine.SaveDailySnapshot(ctx); err != nil {
		logger.Errorf("Final snapshot on stop failed: %v", err)
	}
	logger.Infof("Runner %s stopped", r.strategy.Name())
}

// EndOfDay persists the daily snapshot, clears the indicator cache and
// resets the source's dedupe window. Intraday variants first liquidate every
// open position regardless of price versus stop.
func (r *Runner) EndOfDay(ctx context.Context) error {
	if r.strategy.Intraday() {
		prices := map[string]float64{}
		open := r.engine.OpenInstruments()
		if len(open) > 0 {
			fetched, err := r.prices.LastPrices(ctx, open)
			if err != nil {
				// Liquidation must not be skipped: fall back to each
				// position's last known price.
				logger.Warnf("Price fetch failed during end-of-day, closing at last known prices: %v", err)
			} else {
				prices = fetched
			}
		}
		closed := r.engine.CloseAll(prices, CloseEOD)
		if len(closed) > 0 {
			r.notify(fmt.Sprintf("End-of-day liquidation closed %d position(s): %v", len(closed), closed))
		}
	}

	if err := r.engine.SaveDailySnapshot(ctx); err != nil {
		return fmt.Errorf("failed to save end-of-day snapshot: %w", err)
	}
	r.indicators.ClearCache()
	r.source.ResetDay()
	logger.Infof("End-of-day complete for runner %s", r.strategy.Name())
	return nil
}

func (r *Runner) notify(message string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Send(message); err != nil {
		logger.Warnf("Failed to send notification: %v", err)
	}
}
