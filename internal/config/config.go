// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	SimulationID   string          `yaml:"simulation_id"`
	Variant        string          `yaml:"variant"` // long-band, long-trend, short-band, short-trend
	MarketTimezone string          `yaml:"market_timezone"`
	InitialCapital float64         `yaml:"initial_capital"`
	PositionValue  float64         `yaml:"position_value"` // capital allocated per opened position
	Feed           FeedConfig      `yaml:"feed"`
	Entry          EntryConfig     `yaml:"entry"`
	Stops          StopConfig      `yaml:"stops"`
	Indicator      IndicatorConfig `yaml:"indicator"`
	Session        SessionConfig   `yaml:"session"`
	Intervals      IntervalConfig  `yaml:"intervals"`
	Database       DatabaseConfig  `yaml:"database"`
	DBWriter       DBWriterConfig  `yaml:"dbwriter"`
	Audit          AuditConfig     `yaml:"audit"`
	Metrics        MetricsConfig   `yaml:"metrics"`
	Discord        DiscordConfig   `yaml:"discord"`
	LogLevel       string          `yaml:"-"` // Loaded from env or defaults
}

// FeedConfig holds endpoints for the external detection pipeline and price feed.
type FeedConfig struct {
	SignalURL      string `yaml:"signal_url"` // scored-candidate feed, direction appended as query param
	PriceURL       string `yaml:"price_url"`
	StreamURL      string `yaml:"stream_url"` // optional websocket price stream
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the HTTP client timeout.
func (f FeedConfig) Timeout() time.Duration {
	if f.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// EntryConfig holds the entry-policy thresholds.
type EntryConfig struct {
	MaxOpenPositions int     `yaml:"max_open_positions"`
	LongMinScore     float64 `yaml:"long_min_score"`
	ShortMinScore    float64 `yaml:"short_min_score"`
	// LongMinMomentum is the minimum momentum (%) a long candidate must show.
	LongMinMomentum float64 `yaml:"long_min_momentum"`
	// ShortMaxMomentum is the momentum ceiling for shorts. Shorts have no
	// floor: strongly negative momentum is exactly what they look for.
	ShortMaxMomentum float64 `yaml:"short_max_momentum"`
}

// StopConfig holds stop-loss and target parameters.
type StopConfig struct {
	// FallbackStopPct is the percentage distance from entry used when the
	// indicator engine has no data for the instrument.
	FallbackStopPct float64 `yaml:"fallback_stop_pct"`
	// TargetPct, when positive, sets a take-profit level at entry +/- pct.
	TargetPct float64 `yaml:"target_pct"`
}

// IndicatorConfig configures the indicator engine and its cache.
type IndicatorConfig struct {
	Timeframe       string      `yaml:"timeframe"`
	Lookback        int         `yaml:"lookback"`
	BandWidth       float64     `yaml:"band_width"`
	TrendLookback   int         `yaml:"trend_lookback"`
	TrendMultiplier float64     `yaml:"trend_multiplier"`
	CacheBackend    string      `yaml:"cache_backend"` // "memory" (default) or "redis"
	Redis           RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the optional Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig holds the trading-session time constraints.
type SessionConfig struct {
	// EntryCutoff is the time of day after which intraday variants stop
	// opening new positions.
	EntryCutoff TimeOfDay `yaml:"entry_cutoff"`
	// ForcedExit is the time of day at which intraday variants liquidate
	// every open position regardless of stop or target state.
	ForcedExit TimeOfDay `yaml:"forced_exit"`
}

// IntervalConfig holds the loop intervals for the two runner workers.
type IntervalConfig struct {
	SignalPollSeconds  int `yaml:"signal_poll_seconds"`
	PriceUpdateSeconds int `yaml:"price_update_seconds"`
}

// SignalPoll returns the signal-polling interval.
func (i IntervalConfig) SignalPoll() time.Duration {
	if i.SignalPollSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(i.SignalPollSeconds) * time.Second
}

// PriceUpdate returns the price-update interval.
func (i IntervalConfig) PriceUpdate() time.Duration {
	if i.PriceUpdateSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(i.PriceUpdateSeconds) * time.Second
}

// DatabaseConfig holds the connection settings for snapshot persistence.
// An empty Host disables persistence and a dummy writer is used instead.
type DatabaseConfig struct {
	Host     string `yaml:"-"`
	Port     string `yaml:"-"`
	User     string `yaml:"-"`
	Password string `yaml:"-"`
	Name     string `yaml:"-"`
	SSLMode  string `yaml:"ssl_mode"`
}

// Enabled reports whether a database host has been configured.
func (d DatabaseConfig) Enabled() bool { return d.Host != "" }

// ConnString builds a pgx connection string.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode)
}

// DBWriterConfig configures the buffered database writer.
type DBWriterConfig struct {
	BatchSize            int `yaml:"batch_size"`
	WriteIntervalSeconds int `yaml:"write_interval_seconds"`
}

// AuditConfig configures the write-only rejection audit trail.
type AuditConfig struct {
	RejectionCSVPath string `yaml:"rejection_csv_path"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DiscordConfig configures the Discord alert channel. The bot token comes
// from the DISCORD_BOT_TOKEN environment variable; leaving it unset keeps
// alerts in the application log.
type DiscordConfig struct {
	BotToken              string `yaml:"-"`
	UserID                string `yaml:"user_id"`
	BufferIntervalMinutes int    `yaml:"buffer_interval_minutes"`
}

// Enabled reports whether Discord alerting is fully configured.
func (d DiscordConfig) Enabled() bool { return d.BotToken != "" && d.UserID != "" }

// LoadConfig loads configuration from the specified YAML file path
// and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		// Default values
		LogLevel:       "info",
		MarketTimezone: "UTC",
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, err
	}

	// Load sensitive data and overrides from environment variables.
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if host := os.Getenv("SIM_DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("SIM_DB_PORT"); port != "" {
		cfg.Database.Port = port
	}
	if user := os.Getenv("SIM_DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if password := os.Getenv("SIM_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if name := os.Getenv("SIM_DB_NAME"); name != "" {
		cfg.Database.Name = name
	}
	if addr := os.Getenv("SIM_REDIS_ADDR"); addr != "" {
		cfg.Indicator.Redis.Addr = addr
	}
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		cfg.Discord.BotToken = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves the configured market timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.MarketTimezone)
}

// knownVariants are the strategy variants the runner can be configured with.
var knownVariants = map[string]bool{
	"long-band":   true,
	"long-trend":  true,
	"short-band":  true,
	"short-trend": true,
}

// Validate checks the configuration for fatal problems. Any problem listed
// here aborts startup before a worker is launched.
func (c *Config) Validate() error {
	var problems []string

	if c.SimulationID == "" {
		problems = append(problems, "simulation_id must be set")
	}
	if !knownVariants[c.Variant] {
		problems = append(problems, fmt.Sprintf("variant %q is not one of long-band, long-trend, short-band, short-trend", c.Variant))
	}
	if c.InitialCapital <= 0 {
		problems = append(problems, "initial_capital must be positive")
	}
	if c.PositionValue <= 0 {
		problems = append(problems, "position_value must be positive")
	}
	if c.Feed.SignalURL == "" {
		problems = append(problems, "feed.signal_url must be set")
	}
	if c.Feed.PriceURL == "" {
		problems = append(problems, "feed.price_url must be set")
	}
	if c.Entry.MaxOpenPositions <= 0 {
		problems = append(problems, "entry.max_open_positions must be positive")
	}
	if c.Entry.LongMinScore < 0 || c.Entry.ShortMinScore < 0 {
		problems = append(problems, "entry score minimums must be non-negative")
	}
	if c.Stops.FallbackStopPct <= 0 {
		problems = append(problems, "stops.fallback_stop_pct must be positive")
	}
	if c.Indicator.Lookback <= 0 {
		problems = append(problems, "indicator.lookback must be positive")
	}
	if c.Indicator.BandWidth <= 0 {
		problems = append(problems, "indicator.band_width must be positive")
	}
	if c.Indicator.TrendLookback <= 0 {
		problems = append(problems, "indicator.trend_lookback must be positive")
	}
	if c.Indicator.TrendMultiplier <= 0 {
		problems = append(problems, "indicator.trend_multiplier must be positive")
	}
	switch c.Indicator.CacheBackend {
	case "", "memory":
	case "redis":
		if c.Indicator.Redis.Addr == "" {
			problems = append(problems, "indicator.redis.addr must be set for the redis cache backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("indicator.cache_backend %q is not one of memory, redis", c.Indicator.CacheBackend))
	}
	if strings.HasPrefix(c.Variant, "short-") {
		if c.Session.EntryCutoff.IsZero() {
			problems = append(problems, "session.entry_cutoff must be set for intraday variants")
		}
		if c.Session.ForcedExit.IsZero() {
			problems = append(problems, "session.forced_exit must be set for intraday variants")
		}
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("market_timezone %q is invalid", c.MarketTimezone))
	}
	if c.Database.Enabled() {
		if c.Database.Port == "" || c.Database.User == "" || c.Database.Name == "" {
			problems = append(problems, "database host is set but port, user or name is missing")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
