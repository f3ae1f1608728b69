// Package main is the entry point of the strategy simulation bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/your-org/signal-sim-bot/internal/alert"
	"github.com/your-org/signal-sim-bot/internal/config"
	"github.com/your-org/signal-sim-bot/internal/csvwriter"
	"github.com/your-org/signal-sim-bot/internal/dbwriter"
	"github.com/your-org/signal-sim-bot/internal/feed"
	"github.com/your-org/signal-sim-bot/internal/http/handler"
	"github.com/your-org/signal-sim-bot/internal/indicator"
	"github.com/your-org/signal-sim-bot/internal/metrics"
	"github.com/your-org/signal-sim-bot/internal/sim"
	"github.com/your-org/signal-sim-bot/internal/signalsource"
	"github.com/your-org/signal-sim-bot/pkg/logger"
)

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	mode := flag.String("mode", "run", "Execution mode: run (continuous), once (single iteration), eod (end-of-day maintenance), reset (discard portfolio state)")
	variant := flag.String("variant", "", "Override the configured strategy variant")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *variant != "" {
		cfg.Variant = *variant
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	logger.Infof("Simulation bot starting (variant=%s, simulation=%s)", cfg.Variant, cfg.SimulationID)
	logger.Infof("Loaded configuration from: %s", *configPath)

	var zapLogger *zap.Logger
	if cfg.LogLevel == "debug" {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		logger.Fatalf("Failed to initialize Zap logger: %v", err)
	}
	defer func() {
		if err := zapLogger.Sync(); err != nil {
			// The logger is being synced so print to stderr instead.
			fmt.Fprintf(os.Stderr, "Failed to sync zap logger: %v\n", err)
		}
	}()

	// --- Snapshot Repository (Optional Database) ---
	var repo dbwriter.Repository
	if cfg.Database.Enabled() {
		writer, err := dbwriter.Connect(ctx, cfg.Database, cfg.DBWriter, zapLogger)
		if err != nil {
			logger.Fatalf("Failed to initialize snapshot writer: %v", err)
		}
		repo = writer
		logger.Info("Database snapshot writer initialized successfully.")
	} else {
		repo = dbwriter.NewDummyWriter(logger.NewLogger(cfg.LogLevel))
	}
	defer repo.Close()

	// --- Rejection Audit Trail ---
	var auditor sim.RejectionAuditor
	if cfg.Audit.RejectionCSVPath != "" {
		csvWriter, err := csvwriter.NewRejectionWriter(cfg.Audit.RejectionCSVPath, zapLogger)
		if err != nil {
			logger.Fatalf("Failed to open rejection audit CSV: %v", err)
		}
		defer csvWriter.Close()
		auditor = csvWriter
	}

	// --- Metrics and Health Endpoints (continuous mode only) ---
	metricSet := metrics.New()
	if *mode == "run" && cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/health", handler.HealthCheckHandler)
			mux.Handle("/metrics", metricSet.Handler())
			logger.Infof("Metrics server starting on %s", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Fatalf("Metrics server failed: %v", err)
			}
		}()
	}

	// --- Feed Clients ---
	client := feed.NewClient(cfg.Feed.SignalURL, cfg.Feed.PriceURL, cfg.Feed.Timeout())

	var priceSource sim.PriceSource = client
	if cfg.Feed.StreamURL != "" && *mode == "run" {
		stream := feed.NewStreamClient(cfg.Feed.StreamURL)
		go stream.Connect(ctx)
		defer stream.Close()
		priceSource = stream
	}

	// --- Strategy, Indicators, Engine ---
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("Failed to resolve market timezone: %v", err)
	}

	strategy, err := sim.NewStrategy(cfg.Variant, cfg.Session, loc)
	if err != nil {
		logger.Fatalf("Failed to build strategy: %v", err)
	}

	cache, err := buildCache(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize indicator cache: %v", err)
	}

	var indicators indicator.Engine
	if strings.HasSuffix(cfg.Variant, "-trend") {
		indicators = indicator.NewTrendEngine(client, cfg.Indicator.TrendLookback, cfg.Indicator.TrendMultiplier, cache)
	} else {
		indicators = indicator.NewBandEngine(client, cfg.Indicator.Lookback, cfg.Indicator.BandWidth, cache)
	}

	engine := sim.NewEngine(cfg.SimulationID, cfg.InitialCapital, cfg.PositionValue, loc, repo,
		sim.WithMetrics(metricSet))

	scanDirection := feed.DirectionLong
	if strategy.Direction() == sim.Short {
		scanDirection = feed.DirectionShort
	}
	source := signalsource.New(client.Scanner(scanDirection))

	var notifier alert.Notifier = alert.NewLogNotifier()
	if cfg.Discord.Enabled() {
		discordNotifier, err := alert.NewDiscordNotifier(cfg.Discord, zapLogger)
		if err != nil {
			logger.Fatalf("Failed to initialize Discord notifier: %v", err)
		}
		defer discordNotifier.Close()
		notifier = discordNotifier
	}

	runner, err := sim.NewRunner(cfg, strategy, engine, source, priceSource, indicators, repo,
		sim.WithAuditor(auditor),
		sim.WithNotifier(notifier),
		sim.WithRunnerMetrics(metricSet),
	)
	if err != nil {
		logger.Fatalf("Failed to build runner: %v", err)
	}

	switch *mode {
	case "once":
		runner.RunOnce(ctx)
		logSummary(engine)
	case "eod":
		if err := runner.EndOfDay(ctx); err != nil {
			logger.Fatalf("End-of-day maintenance failed: %v", err)
		}
		logSummary(engine)
	case "reset":
		engine.Reset()
		if err := engine.SaveDailySnapshot(ctx); err != nil {
			logger.Fatalf("Failed to persist reset snapshot: %v", err)
		}
		logger.Infof("Portfolio state reset for simulation %s", cfg.SimulationID)
	case "run":
		runContinuous(ctx, cancel, runner, engine)
	default:
		fmt.Fprintf(os.Stderr, "Unknown mode %q (want run, once, eod or reset)\n", *mode)
		os.Exit(1)
	}
}

// runContinuous starts the runner's workers and blocks until SIGINT/SIGTERM.
func runContinuous(ctx context.Context, cancel context.CancelFunc, runner *sim.Runner, engine *sim.Engine) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	if err := runner.Start(ctx); err != nil {
		logger.Fatalf("Failed to start runner: %v", err)
	}

	sig := <-sigs
	logger.Infof("Received signal: %s, initiating shutdown...", sig)

	cancel()
	runner.Stop()
	logSummary(engine)
	logger.Info("Simulation bot shut down gracefully.")
}

// buildCache constructs the configured indicator cache backend.
func buildCache(cfg *config.Config) (indicator.Cache, error) {
	switch cfg.Indicator.CacheBackend {
	case "", "memory":
		return indicator.NewMemoryCache(), nil
	case "redis":
		return indicator.NewRedisCache(cfg.Indicator.Redis.Addr, cfg.Indicator.Redis.Password,
			cfg.Indicator.Redis.DB, cfg.SimulationID)
	default:
		return nil, fmt.Errorf("unknown indicator cache backend: %q", cfg.Indicator.CacheBackend)
	}
}

func logSummary(engine *sim.Engine) {
	s := engine.Summary()
	logger.Infof("Portfolio: value=%s realized=%s unrealized=%s pnl=%s (%s%%) open=%d closed=%d",
		s.TotalValue, s.RealizedPnL, s.UnrealizedPnL, s.PnL, s.PnLPct, s.OpenCount, s.ClosedCount)
}
