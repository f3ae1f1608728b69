// Package signalsource turns the pollable candidate feed into a push-style
// source with at-most-once callback delivery per signal instance.
package signalsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/your-org/signal-sim-bot/internal/feed"
	"github.com/your-org/signal-sim-bot/pkg/logger"
	"github.com/your-org/signal-sim-bot/pkg/ring"
)

// Callback receives each newly observed signal exactly once per source lifetime.
type Callback func(feed.Signal)

// Fetcher is the upstream the source polls. *feed.ScannerClient satisfies it.
type Fetcher interface {
	Signals(ctx context.Context) ([]feed.Signal, error)
	Direction() feed.Direction
}

// defaultSeenCapacity bounds the dedupe window; old keys are evicted in
// observation order once the window is full.
const defaultSeenCapacity = 4096

// Source polls a direction-biased scanner and dispatches new signals.
type Source struct {
	fetcher Fetcher

	mu        sync.Mutex
	callbacks []Callback
	seen      map[string]struct{}
	seenOrder *ring.Buffer
	pending   []feed.Signal
	processed map[string]struct{}
	running   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Source over the given fetcher.
func New(fetcher Fetcher) *Source {
	return &Source{
		fetcher:   fetcher,
		seen:      make(map[string]struct{}),
		seenOrder: ring.NewBuffer(defaultSeenCapacity),
		processed: make(map[string]struct{}),
	}
}

// RegisterCallback adds a callback invoked for every newly observed signal.
func (s *Source) RegisterCallback(fn Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Start begins polling on the source's own schedule. It returns an error if
// the source is already listening.
func (s *Source) Start(pollInterval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("signal source for %s is already listening", s.fetcher.Direction())
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.pollLoop(pollInterval)
	logger.Infof("Signal source (%s) listening every %v", s.fetcher.Direction(), pollInterval)
	return nil
}

// Stop ends polling and waits for the poll goroutine to exit.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logger.Infof("Signal source (%s) stopped", s.fetcher.Direction())
}

func (s *Source) pollLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One immediate poll so a fresh runner does not idle a full interval.
	s.Poll(context.Background())

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Poll(context.Background())
		}
	}
}

// Poll fetches the feed once and dispatches any signals not seen before.
// Fetch failures are transient: logged and retried on the next cycle.
func (s *Source) Poll(ctx context.Context) {
	signals, err := s.fetcher.Signals(ctx)
	if err != nil {
		logger.Warnf("Signal fetch (%s) failed, will retry next cycle: %v", s.fetcher.Direction(), err)
		return
	}

	fresh := s.admit(signals)
	if len(fresh) == 0 {
		return
	}

	s.mu.Lock()
	callbacks := make([]Callback, len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, sig := range fresh {
		logger.Debugf("New %s signal: %s score=%.1f momentum=%.2f%%", s.fetcher.Direction(), sig.Instrument, sig.Score, sig.Momentum)
		for _, fn := range callbacks {
			fn(sig)
		}
	}
}

// admit records unseen signals and returns them in feed order.
func (s *Source) admit(signals []feed.Signal) []feed.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []feed.Signal
	for _, sig := range signals {
		key := sig.Key()
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		if oldest, evicted := s.seenOrder.Add(key); evicted {
			delete(s.seen, oldest)
			delete(s.processed, oldest)
		}
		s.pending = append(s.pending, sig)
		fresh = append(fresh, sig)
	}
	return fresh
}

// CurrentSignals returns observed signals; with onlyUnprocessed it filters
// out those already handed to MarkProcessed.
func (s *Source) CurrentSignals(onlyUnprocessed bool) []feed.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]feed.Signal, 0, len(s.pending))
	for _, sig := range s.pending {
		if onlyUnprocessed {
			if _, done := s.processed[sig.Key()]; done {
				continue
			}
		}
		result = append(result, sig)
	}
	return result
}

// MarkProcessed flags a signal so CurrentSignals(true) no longer returns it.
func (s *Source) MarkProcessed(sig feed.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[sig.Key()] = struct{}{}
}

// ResetDay clears the dedupe window and pending queue. Called at end-of-day
// so the next session starts observing from scratch.
func (s *Source) ResetDay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
	s.processed = make(map[string]struct{})
	s.seenOrder.Reset()
	s.pending = s.pending[:0]
}
