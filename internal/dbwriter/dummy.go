package dbwriter

import (
	"context"

	"github.com/your-org/signal-sim-bot/pkg/logger"
)

// dummyWriter is a no-op implementation of the Repository interface.
// It is used when no database is configured.
type dummyWriter struct {
	logger logger.Logger
}

// NewDummyWriter creates a new dummy writer.
func NewDummyWriter(l logger.Logger) Repository {
	l.Info("Creating dummy snapshot writer because no database is configured.")
	return &dummyWriter{logger: l}
}

// SaveDailySnapshot does nothing and returns nil.
func (d *dummyWriter) SaveDailySnapshot(_ context.Context, snap DailySnapshot) error {
	d.logger.Debugf("Dummy writer: SaveDailySnapshot %s/%s", snap.SimulationID, snap.Date)
	return nil
}

// SaveRejection does nothing.
func (d *dummyWriter) SaveRejection(Rejection) {}

// Close does nothing.
func (d *dummyWriter) Close() {
	d.logger.Debug("Dummy writer: Close called")
}
