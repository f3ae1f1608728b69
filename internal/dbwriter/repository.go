// Package dbwriter persists daily portfolio snapshots and rejection audit
// records to PostgreSQL.
package dbwriter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DailySnapshot is the durable end-of-day (or on-demand) portfolio snapshot.
// It is keyed by (simulation id, date) and overwritten idempotently within a day.
type DailySnapshot struct {
	SimulationID  string          `db:"simulation_id"`
	Date          string          `db:"snapshot_date"` // YYYY-MM-DD in the market timezone
	Portfolio     json.RawMessage `db:"portfolio"`
	TotalValue    decimal.Decimal `db:"total_value"`
	RealizedPnL   decimal.Decimal `db:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `db:"unrealized_pnl"`
	PnLPct        decimal.Decimal `db:"pnl_pct"`
	OpenCount     int             `db:"open_count"`
	ClosedCount   int             `db:"closed_count"`
}

// Rejection is one write-only audit record for a signal the entry policy
// turned down. The engine never reads these back.
type Rejection struct {
	Time         time.Time `db:"time"`
	SimulationID string    `db:"simulation_id"`
	Instrument   string    `db:"instrument"`
	Reason       string    `db:"reason"`
}

// Repository defines the interface for snapshot and audit persistence.
// This allows for mocking in tests and abstracting the writer implementation.
type Repository interface {
	// SaveDailySnapshot upserts the snapshot for its (simulation id, date) key.
	SaveDailySnapshot(ctx context.Context, snap DailySnapshot) error

	// SaveRejection adds a rejection record to the write buffer.
	SaveRejection(rej Rejection)

	// Close flushes any buffered data and releases the connection.
	Close()
}
