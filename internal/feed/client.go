package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is an HTTP client for the detection pipeline's signal endpoint and
// the price feed's last-price and candle endpoints.
type Client struct {
	signalURL  string
	priceURL   string
	httpClient *http.Client
}

// NewClient creates a new feed Client.
func NewClient(signalURL, priceURL string, timeout time.Duration) *Client {
	return &Client{
		signalURL:  signalURL,
		priceURL:   priceURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ScannerClient is a direction-biased view of a Client. Long and short
// scanners are distinct upstream detectors, so each runner gets its own.
type ScannerClient struct {
	client    *Client
	direction Direction
}

// Scanner returns a direction-biased scanner over this client.
func (c *Client) Scanner(direction Direction) *ScannerClient {
	return &ScannerClient{client: c, direction: direction}
}

// Direction returns the scanner's bias.
func (s *ScannerClient) Direction() Direction { return s.direction }

// Signals fetches the currently published candidates for the scanner's direction.
func (s *ScannerClient) Signals(ctx context.Context) ([]Signal, error) {
	u, err := url.Parse(s.client.signalURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signal URL: %w", err)
	}
	q := u.Query()
	q.Set("direction", string(s.direction))
	u.RawQuery = q.Encode()

	var signals []Signal
	if err := s.client.getJSON(ctx, u.String(), &signals); err != nil {
		return nil, fmt.Errorf("failed to fetch %s signals: %w", s.direction, err)
	}
	return signals, nil
}

// LastPrices fetches the latest prices for the given instruments. The
// returned map may be partial; instruments the feed has no quote for are
// simply absent.
func (c *Client) LastPrices(ctx context.Context, instruments []string) (map[string]float64, error) {
	if len(instruments) == 0 {
		return map[string]float64{}, nil
	}
	u, err := url.Parse(c.priceURL + "/last")
	if err != nil {
		return nil, fmt.Errorf("invalid price URL: %w", err)
	}
	q := u.Query()
	q.Set("instruments", strings.Join(instruments, ","))
	u.RawQuery = q.Encode()

	prices := make(map[string]float64, len(instruments))
	if err := c.getJSON(ctx, u.String(), &prices); err != nil {
		return nil, fmt.Errorf("failed to fetch last prices: %w", err)
	}
	return prices, nil
}

// Candles fetches up to limit most recent bars for one instrument+timeframe.
func (c *Client) Candles(ctx context.Context, instrument, timeframe string, limit int) ([]Candle, error) {
	u, err := url.Parse(c.priceURL + "/candles")
	if err != nil {
		return nil, fmt.Errorf("invalid price URL: %w", err)
	}
	q := u.Query()
	q.Set("instrument", instrument)
	q.Set("timeframe", timeframe)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var candles []Candle
	if err := c.getJSON(ctx, u.String(), &candles); err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", instrument, err)
	}
	return candles, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}
	return nil
}
