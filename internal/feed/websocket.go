package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/your-org/signal-sim-bot/pkg/logger"
)

// StreamClient consumes a websocket stream of last-price ticks and keeps an
// in-memory price table. It satisfies the same last-price contract as the
// polling Client, so it can be used as a faster PriceSource when the feed
// offers a stream.
type StreamClient struct {
	streamURL string

	mu     sync.RWMutex
	prices map[string]float64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewStreamClient creates a StreamClient for the given websocket URL.
func NewStreamClient(streamURL string) *StreamClient {
	return &StreamClient{
		streamURL: streamURL,
		prices:    make(map[string]float64),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Connect dials the stream and consumes ticks until Close is called or the
// context ends. Connection loss is retried with exponential backoff.
func (s *StreamClient) Connect(ctx context.Context) {
	defer close(s.doneCh)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.streamURL, nil)
		if err != nil {
			logger.Errorf("Price stream dial error: %v. Retrying in %v...", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}

		logger.Infof("Connected to price stream at %s", s.streamURL)
		backoff = time.Second
		s.readLoop(ctx, conn)
		conn.Close()
	}
}

func (s *StreamClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	readErr := make(chan error, 1)
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var tick Tick
			if err := json.Unmarshal(message, &tick); err != nil {
				logger.Warnf("Dropping malformed tick: %v", err)
				continue
			}
			if tick.Instrument == "" || tick.Price <= 0 {
				continue
			}
			s.mu.Lock()
			s.prices[tick.Instrument] = tick.Price
			s.mu.Unlock()
		}
	}()

	select {
	case err := <-readErr:
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			logger.Errorf("Price stream closed unexpectedly: %v", err)
		} else {
			logger.Infof("Price stream read ended: %v", err)
		}
	case <-ctx.Done():
	case <-s.stopCh:
	}
}

// Close stops the stream and waits for the reader to exit.
func (s *StreamClient) Close() {
	close(s.stopCh)
	<-s.doneCh
}

// LastPrices returns the cached prices for the requested instruments.
// Instruments without a cached tick are absent from the result.
func (s *StreamClient) LastPrices(_ context.Context, instruments []string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]float64, len(instruments))
	for _, inst := range instruments {
		if price, ok := s.prices[inst]; ok {
			result[inst] = price
		}
	}
	return result, nil
}
