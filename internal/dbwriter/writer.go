package dbwriter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/your-org/signal-sim-bot/internal/config"
)

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Close()
}

// Writer persists snapshots immediately and batches rejection records,
// flushing on a ticker or when the buffer reaches the configured batch size.
type Writer struct {
	pool            Pool
	logger          *zap.Logger
	config          config.DBWriterConfig
	rejectionBuffer []Rejection
	bufferMutex     sync.Mutex
	flushTicker     *time.Ticker
	shutdownChan    chan struct{}
}

// Connect builds a pgx pool from the database config, applies migrations and
// returns a running Writer.
func Connect(ctx context.Context, dbCfg config.DatabaseConfig, writerCfg config.DBWriterConfig, logger *zap.Logger) (*Writer, error) {
	connString := dbCfg.ConnString()
	if err := RunMigrations(connString); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewWriter(pool, writerCfg, logger), nil
}

// NewWriter creates a Writer over an existing pool and starts the flush loop.
func NewWriter(pool Pool, writerCfg config.DBWriterConfig, logger *zap.Logger) *Writer {
	if writerCfg.WriteIntervalSeconds <= 0 {
		logger.Warn("WriteIntervalSeconds is zero or negative, defaulting to 1s.",
			zap.Int("originalValue", writerCfg.WriteIntervalSeconds))
		writerCfg.WriteIntervalSeconds = 1
	}
	if writerCfg.BatchSize <= 0 {
		logger.Warn("BatchSize is zero or negative, defaulting to 100.",
			zap.Int("originalValue", writerCfg.BatchSize))
		writerCfg.BatchSize = 100
	}

	w := &Writer{
		pool:            pool,
		logger:          logger,
		config:          writerCfg,
		rejectionBuffer: make([]Rejection, 0, writerCfg.BatchSize),
		flushTicker:     time.NewTicker(time.Duration(writerCfg.WriteIntervalSeconds) * time.Second),
		shutdownChan:    make(chan struct{}),
	}
	go w.run()
	logger.Info("Snapshot writer connected and batch loop started")
	return w
}

func (w *Writer) run() {
	for {
		select {
		case <-w.flushTicker.C:
			w.flushRejections()
		case <-w.shutdownChan:
			return
		}
	}
}

// SaveDailySnapshot upserts the snapshot row for (simulation_id, snapshot_date).
// Calling it twice in one day with unchanged state rewrites identical content.
func (w *Writer) SaveDailySnapshot(ctx context.Context, snap DailySnapshot) error {
	query := `INSERT INTO daily_snapshots
		(simulation_id, snapshot_date, portfolio, total_value, realized_pnl, unrealized_pnl, pnl_pct, open_count, closed_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (simulation_id, snapshot_date) DO UPDATE SET
		portfolio = EXCLUDED.portfolio,
		total_value = EXCLUDED.total_value,
		realized_pnl = EXCLUDED.realized_pnl,
		unrealized_pnl = EXCLUDED.unrealized_pnl,
		pnl_pct = EXCLUDED.pnl_pct,
		open_count = EXCLUDED.open_count,
		closed_count = EXCLUDED.closed_count,
		updated_at = now()`
	_, err := w.pool.Exec(ctx, query,
		snap.SimulationID, snap.Date, snap.Portfolio,
		snap.TotalValue, snap.RealizedPnL, snap.UnrealizedPnL, snap.PnLPct,
		snap.OpenCount, snap.ClosedCount,
	)
	if err != nil {
		w.logger.Error("Failed to upsert daily snapshot", zap.Error(err),
			zap.String("simulationID", snap.SimulationID), zap.String("date", snap.Date))
		return fmt.Errorf("failed to upsert daily snapshot: %w", err)
	}
	w.logger.Debug("Saved daily snapshot",
		zap.String("simulationID", snap.SimulationID), zap.String("date", snap.Date))
	return nil
}

// SaveRejection adds a rejection record to the buffer.
func (w *Writer) SaveRejection(rej Rejection) {
	w.bufferMutex.Lock()
	w.rejectionBuffer = append(w.rejectionBuffer, rej)
	shouldFlush := len(w.rejectionBuffer) >= w.config.BatchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		w.flushRejections()
	}
}

func (w *Writer) flushRejections() {
	w.bufferMutex.Lock()
	if len(w.rejectionBuffer) == 0 {
		w.bufferMutex.Unlock()
		return
	}
	batch := make([]Rejection, len(w.rejectionBuffer))
	copy(batch, w.rejectionBuffer)
	w.rejectionBuffer = w.rejectionBuffer[:0]
	w.bufferMutex.Unlock()

	w.logger.Debug("Flushing rejections", zap.Int("count", len(batch)))
	_, err := w.pool.CopyFrom(
		context.Background(),
		pgx.Identifier{"rejections"},
		[]string{"time", "simulation_id", "instrument", "reason"},
		pgx.CopyFromRows(toRejectionRows(batch)),
	)
	if err != nil {
		w.logger.Error("Failed to batch insert rejections", zap.Error(err))
	}
}

func toRejectionRows(rejections []Rejection) [][]interface{} {
	rows := make([][]interface{}, len(rejections))
	for i, r := range rejections {
		rows[i] = []interface{}{r.Time, r.SimulationID, r.Instrument, r.Reason}
	}
	return rows
}

// Close flushes the buffers and closes the pool.
func (w *Writer) Close() {
	w.logger.Info("Closing snapshot writer...")
	close(w.shutdownChan)
	w.flushTicker.Stop()

	w.flushRejections()
	w.pool.Close()
	w.logger.Info("Snapshot writer connection pool closed")
}
