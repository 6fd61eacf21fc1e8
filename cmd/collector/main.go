package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/config"
	"github.com/ad-tracker/viral-video-detector/pkg/logger"
)

func main() {
	var (
		configPath string
		verifyOnly bool
		debug      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config file (default: ./config.yaml)")
	flag.BoolVar(&verifyOnly, "verify-only", false, "Check the API key and exit")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Log.Error("invalid configuration", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, verifyOnly)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, verifyOnly bool) int {
	log := logger.Named("collector")

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", zap.Error(err))
		return 1
	}
	defer a.close()

	if !a.client.VerifyKey(ctx) {
		log.Error("API key rejected or service unreachable")
		return 1
	}
	log.Info("API key verified")
	if verifyOnly {
		return 0
	}

	err = runLoop(ctx, a.collector, cfg.Detector.Interval, log)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		log.Error("collection stopped", zap.Error(err))
		return 1
	}
}
