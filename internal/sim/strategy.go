package sim

import (
	"fmt"
	"time"

	"github.com/your-org/signal-sim-bot/internal/config"
	"github.com/your-org/signal-sim-bot/internal/indicator"
)

// Strategy is the policy surface a runner varies on: direction, how the stop
// basis is derived from an indicator snapshot, whether the stop trails, and
// which time-of-day constraints apply. Variants are composed from a config
// struct rather than subclassed.
type Strategy interface {
	// Name identifies the variant ("long-band", "short-trend", ...).
	Name() string
	// Direction is the side this strategy trades.
	Direction() Direction
	// Trailing reports whether the stop is recomputed every price cycle.
	Trailing() bool
	// StopBasis derives the initial stop level from an indicator snapshot.
	// A non-positive or wrong-side result makes the caller fall back to a
	// percentage stop.
	StopBasis(snap indicator.Snapshot) float64
	// TrailingLevel proposes a new stop from a fresh snapshot. ok is false
	// when the snapshot gives no usable level (e.g. the trend has flipped
	// against the position).
	TrailingLevel(snap indicator.Snapshot) (level float64, ok bool)
	// Intraday reports whether the variant may never hold a position past
	// end-of-day.
	Intraday() bool
	// EntryAllowed applies the variant's additional entry restrictions.
	// It may only restrict, never relax, the runner's base checks.
	EntryAllowed(now time.Time) (bool, string)
	// ForceExitDue reports whether every open position must be liquidated
	// now regardless of stop or target state.
	ForceExitDue(now time.Time) bool
}

// policy is the single composed implementation behind all four variants.
type policy struct {
	name      string
	direction Direction
	trailing  bool
	intraday  bool

	entryCutoff config.TimeOfDay
	forcedExit  config.TimeOfDay
	loc         *time.Location
}

// NewStrategy builds the named variant. Short variants are intraday-only:
// they stop entering after the session cutoff and force-liquidate at the
// configured time.
func NewStrategy(name string, session config.SessionConfig, loc *time.Location) (Strategy, error) {
	if loc == nil {
		loc = time.UTC
	}
	p := &policy{
		name:        name,
		entryCutoff: session.EntryCutoff,
		forcedExit:  session.ForcedExit,
		loc:         loc,
	}
	switch name {
	case "long-band":
		p.direction = Long
	case "long-trend":
		p.direction = Long
		p.trailing = true
	case "short-band":
		p.direction = Short
		p.intraday = true
	case "short-trend":
		p.direction = Short
		p.trailing = true
		p.intraday = true
	default:
		return nil, fmt.Errorf("unknown strategy variant %q", name)
	}
	return p, nil
}

func (p *policy) Name() string         { return p.name }
func (p *policy) Direction() Direction { return p.direction }
func (p *policy) Trailing() bool       { return p.trailing }
func (p *policy) Intraday() bool       { return p.intraday }

// StopBasis picks the protective side of the snapshot: the lower band (or
// rising trend level) for longs, the upper band (or falling trend level)
// for shorts.
func (p *policy) StopBasis(snap indicator.Snapshot) float64 {
	if p.trailing {
		if level, ok := p.TrailingLevel(snap); ok {
			return level
		}
		return 0
	}
	if p.direction == Long {
		return snap.Lower
	}
	return snap.Upper
}

// TrailingLevel returns the trend level when it sits on the protective side
// of the position's direction.
func (p *policy) TrailingLevel(snap indicator.Snapshot) (float64, bool) {
	if snap.TrendLevel <= 0 {
		return 0, false
	}
	if p.direction == Long && snap.TrendUp {
		return snap.TrendLevel, true
	}
	if p.direction == Short && !snap.TrendUp {
		return snap.TrendLevel, true
	}
	return 0, false
}

// EntryAllowed rejects entries after the intraday cutoff.
func (p *policy) EntryAllowed(now time.Time) (bool, string) {
	if p.intraday && p.entryCutoff.Reached(now, p.loc) {
		return false, fmt.Sprintf("Entry cutoff %s passed", p.entryCutoff)
	}
	return true, ""
}

// ForceExitDue reports whether the intraday liquidation time has been reached.
func (p *policy) ForceExitDue(now time.Time) bool {
	return p.intraday && p.forcedExit.Reached(now, p.loc)
}
