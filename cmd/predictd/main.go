// Command predictd is the backend entry point for the prediction-market
// service. It loads configuration, validates it, wires dependencies, sets up
// signal handling, and starts the application in the configured mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/predictswipe/predictd/internal/app"
	"github.com/predictswipe/predictd/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (serve, watch, bet, create, full)")

	// Bet mode.
	marketID := flag.Int64("market", 0, "market id to bet on (bet mode)")
	side := flag.String("side", "", "side to back: a or b (bet mode)")

	// Create mode.
	question := flag.String("question", "", "market question (create mode)")
	optionA := flag.String("option-a", "", "first outcome label (create mode)")
	optionB := flag.String("option-b", "", "second outcome label (create mode)")
	end := flag.String("end", "", "market end time, RFC 3339 (create mode)")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	oneShot := app.OneShot{
		MarketID: *marketID,
		Side:     *side,
		Question: *question,
		OptionA:  *optionA,
		OptionB:  *optionB,
	}
	if *end != "" {
		endTime, err := time.Parse(time.RFC3339, *end)
		if err != nil {
			logger.Error("invalid -end value, want RFC 3339",
				slog.String("end", *end),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		oneShot.EndTime = endTime
	}

	logger.Info("predictd starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger).WithOneShot(oneShot)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("predictd stopped")
}
