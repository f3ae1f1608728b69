package dbwriter

import (
	"context"
	"sync"
)

// InMemRepository is an in-memory implementation of the Repository interface
// for testing.
type InMemRepository struct {
	mu         sync.RWMutex
	snapshots  map[string]DailySnapshot // key: simulationID + "/" + date
	rejections []Rejection
	closed     bool
}

// NewInMemRepository creates a new InMemRepository.
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		snapshots: make(map[string]DailySnapshot),
	}
}

// SaveDailySnapshot upserts the snapshot under its (simulation id, date) key.
func (r *InMemRepository) SaveDailySnapshot(_ context.Context, snap DailySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snap.SimulationID+"/"+snap.Date] = snap
	return nil
}

// SaveRejection appends the rejection record.
func (r *InMemRepository) SaveRejection(rej Rejection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, rej)
}

// Close marks the repository closed.
func (r *InMemRepository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Snapshot returns the stored snapshot for simulationID on date, if any.
func (r *InMemRepository) Snapshot(simulationID, date string) (DailySnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snapshots[simulationID+"/"+date]
	return snap, ok
}

// Rejections returns a copy of the recorded rejections.
func (r *InMemRepository) Rejections() []Rejection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rejection, len(r.rejections))
	copy(out, r.rejections)
	return out
}

// Closed reports whether Close was called.
func (r *InMemRepository) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
