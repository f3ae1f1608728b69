package dbwriter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/signal-sim-bot/internal/config"
)

func TestWriterImplementsRepository(t *testing.T) {
	assert.Implements(t, (*Repository)(nil), new(Writer))
	assert.Implements(t, (*Repository)(nil), NewInMemRepository())
}

func testSnapshot() DailySnapshot {
	portfolio, _ := json.Marshal(map[string]interface{}{"cash": 997600.0})
	return DailySnapshot{
		SimulationID:  "sim-test",
		Date:          "2026-03-02",
		Portfolio:     portfolio,
		TotalValue:    decimal.NewFromInt(997600),
		RealizedPnL:   decimal.NewFromInt(-2400),
		UnrealizedPnL: decimal.Zero,
		PnLPct:        decimal.NewFromFloat(-0.24),
		OpenCount:     0,
		ClosedCount:   1,
	}
}

func TestSaveDailySnapshotUpserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writer := NewWriter(mock, config.DBWriterConfig{BatchSize: 100, WriteIntervalSeconds: 60}, zap.NewNop())

	snap := testSnapshot()
	mock.ExpectExec("INSERT INTO daily_snapshots").
		WithArgs(snap.SimulationID, snap.Date, snap.Portfolio,
			snap.TotalValue, snap.RealizedPnL, snap.UnrealizedPnL, snap.PnLPct,
			snap.OpenCount, snap.ClosedCount).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, writer.SaveDailySnapshot(context.Background(), snap))

	// Same key again: still a single upsert statement, never a second row.
	mock.ExpectExec("INSERT INTO daily_snapshots").
		WithArgs(snap.SimulationID, snap.Date, snap.Portfolio,
			snap.TotalValue, snap.RealizedPnL, snap.UnrealizedPnL, snap.PnLPct,
			snap.OpenCount, snap.ClosedCount).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, writer.SaveDailySnapshot(context.Background(), snap))

	mock.ExpectCopyFrom(pgx.Identifier{"rejections"},
		[]string{"time", "simulation_id", "instrument", "reason"})
	writer.SaveRejection(Rejection{Time: time.Now(), SimulationID: "sim-test", Instrument: "X", Reason: "r"})
	writer.Close()

	require.NoError(t, mock.ExpectationsWereMet(), "there were unfulfilled expectations")
}

func TestSaveRejectionFlushesAtBatchSize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// Batch size 2: the second record triggers an immediate flush.
	writer := NewWriter(mock, config.DBWriterConfig{BatchSize: 2, WriteIntervalSeconds: 60}, zap.NewNop())

	mock.ExpectCopyFrom(pgx.Identifier{"rejections"},
		[]string{"time", "simulation_id", "instrument", "reason"})

	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	writer.SaveRejection(Rejection{Time: ts, SimulationID: "sim-test", Instrument: "RELIANCE", Reason: "Score 3.0 below minimum 7.0"})
	writer.SaveRejection(Rejection{Time: ts, SimulationID: "sim-test", Instrument: "TCS", Reason: "Already have position"})

	require.NoError(t, mock.ExpectationsWereMet())
	writer.Close()
}

func TestCloseFlushesRemainingRejections(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writer := NewWriter(mock, config.DBWriterConfig{BatchSize: 100, WriteIntervalSeconds: 60}, zap.NewNop())

	mock.ExpectCopyFrom(pgx.Identifier{"rejections"},
		[]string{"time", "simulation_id", "instrument", "reason"})

	writer.SaveRejection(Rejection{Time: time.Now(), SimulationID: "sim-test", Instrument: "RELIANCE", Reason: "r"})
	writer.Close()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWriterDefaultsInvalidConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writer := NewWriter(mock, config.DBWriterConfig{}, zap.NewNop())
	require.NotNil(t, writer)
	assert.Equal(t, 100, writer.config.BatchSize)
	assert.Equal(t, 1, writer.config.WriteIntervalSeconds)
	writer.Close()
}
