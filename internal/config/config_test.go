// Package config_test tests the config package.
package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/your-org/signal-sim-bot/internal/config"
)

// writeTestConfig writes a minimal valid config file and returns its path.
func writeTestConfig(t *testing.T, variant string) string {
	t.Helper()
	yamlContent := fmt.Sprintf(`
simulation_id: sim-test-01
variant: %s
market_timezone: Asia/Kolkata
initial_capital: 1000000
position_value: 100000
feed:
  signal_url: http://localhost:9000/api/signals
  price_url: http://localhost:9000/api/prices
  timeout_seconds: 5
entry:
  max_open_positions: 5
  long_min_score: 7.0
  short_min_score: 7.0
  long_min_momentum: 0.5
  short_max_momentum: -0.5
stops:
  fallback_stop_pct: 1.5
indicator:
  timeframe: 5m
  lookback: 20
  band_width: 2.0
  trend_lookback: 10
  trend_multiplier: 3.0
session:
  entry_cutoff: "14:45"
  forced_exit: "15:15"
intervals:
  signal_poll_seconds: 30
  price_update_seconds: 15
`, variant)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := config.LoadConfig(writeTestConfig(t, "long-band"))
	require.NoError(t, err)

	assert.Equal(t, "sim-test-01", cfg.SimulationID)
	assert.Equal(t, "long-band", cfg.Variant)
	assert.Equal(t, 5, cfg.Entry.MaxOpenPositions)
	assert.Equal(t, 1.5, cfg.Stops.FallbackStopPct)
	assert.Equal(t, 5*time.Second, cfg.Feed.Timeout())
	assert.Equal(t, 30*time.Second, cfg.Intervals.SignalPoll())
	assert.Equal(t, 15*time.Second, cfg.Intervals.PriceUpdate())
	assert.Equal(t, "14:45", cfg.Session.EntryCutoff.String())
	assert.False(t, cfg.Database.Enabled(), "no env vars means persistence is off")

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SIM_DB_HOST", "db.internal")
	t.Setenv("SIM_DB_PORT", "5432")
	t.Setenv("SIM_DB_USER", "sim")
	t.Setenv("SIM_DB_PASSWORD", "secret")
	t.Setenv("SIM_DB_NAME", "simdb")

	cfg, err := config.LoadConfig(writeTestConfig(t, "long-band"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Database.Enabled())
	assert.Contains(t, cfg.Database.ConnString(), "db.internal")
	assert.Contains(t, cfg.Database.ConnString(), "simdb")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg, err := config.LoadConfig(writeTestConfig(t, "long-band"))
		require.NoError(t, err)
		return cfg
	}

	testCases := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(cfg *config.Config) {},
		},
		{
			name:    "unknown variant",
			mutate:  func(cfg *config.Config) { cfg.Variant = "long-magic" },
			wantErr: "variant",
		},
		{
			name:    "missing simulation id",
			mutate:  func(cfg *config.Config) { cfg.SimulationID = "" },
			wantErr: "simulation_id",
		},
		{
			name:    "non-positive capital",
			mutate:  func(cfg *config.Config) { cfg.InitialCapital = 0 },
			wantErr: "initial_capital",
		},
		{
			name:    "non-positive fallback stop",
			mutate:  func(cfg *config.Config) { cfg.Stops.FallbackStopPct = 0 },
			wantErr: "fallback_stop_pct",
		},
		{
			name:    "bad timezone",
			mutate:  func(cfg *config.Config) { cfg.MarketTimezone = "Mars/Olympus" },
			wantErr: "market_timezone",
		},
		{
			name: "short variant without cutoffs",
			mutate: func(cfg *config.Config) {
				cfg.Variant = "short-band"
				cfg.Session = config.SessionConfig{}
			},
			wantErr: "session.entry_cutoff",
		},
		{
			name: "redis backend without addr",
			mutate: func(cfg *config.Config) {
				cfg.Indicator.CacheBackend = "redis"
			},
			wantErr: "indicator.redis.addr",
		},
		{
			name: "database host without credentials",
			mutate: func(cfg *config.Config) {
				cfg.Database.Host = "db.internal"
			},
			wantErr: "database host is set",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := &config.Config{MarketTimezone: "UTC"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulation_id")
	assert.Contains(t, err.Error(), "variant")
	assert.Contains(t, err.Error(), "feed.signal_url")
}

func TestTimeOfDayUnmarshal(t *testing.T) {
	testCases := []struct {
		input   string
		want    string
		minutes int
		wantErr bool
	}{
		{input: `"14:45"`, want: "14:45", minutes: 885},
		{input: `"00:00"`, want: "00:00", minutes: 0},
		{input: `"23:59"`, want: "23:59", minutes: 1439},
		{input: `"24:00"`, wantErr: true},
		{input: `"14:60"`, wantErr: true},
		{input: `"1445"`, wantErr: true},
		{input: `14.45`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			var tod config.TimeOfDay
			err := yaml.Unmarshal([]byte(tc.input), &tod)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, tod.IsZero())
			assert.Equal(t, tc.want, tod.String())
			assert.Equal(t, tc.minutes, tod.Minutes())
		})
	}
}

func TestTimeOfDayReached(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	cutoff := config.NewTimeOfDay(14, 45)

	before := time.Date(2026, 3, 2, 14, 44, 59, 0, loc)
	at := time.Date(2026, 3, 2, 14, 45, 0, 0, loc)
	after := time.Date(2026, 3, 2, 15, 10, 0, 0, loc)

	assert.False(t, cutoff.Reached(before, loc))
	assert.True(t, cutoff.Reached(at, loc))
	assert.True(t, cutoff.Reached(after, loc))

	// UTC timestamps must be interpreted in the market timezone.
	utcAfter := after.UTC()
	assert.True(t, cutoff.Reached(utcAfter, loc))

	var unset config.TimeOfDay
	assert.False(t, unset.Reached(after, loc), "unset cutoff is never reached")
}
