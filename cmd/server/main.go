package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/config"
	"github.com/ad-tracker/viral-video-detector/internal/handler"
	"github.com/ad-tracker/viral-video-detector/internal/publisher"
	"github.com/ad-tracker/viral-video-detector/internal/store"
	"github.com/ad-tracker/viral-video-detector/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Log.Error("server stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log := logger.Named("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := store.Open(ctx, &cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s := store.New(repo, log.Named("store"))
	defer func() {
		if err := s.Close(); err != nil {
			log.Error("failed to close store", zap.Error(err))
		}
	}()

	log.Info("store opened", zap.String("driver", cfg.Store.Driver))

	broker, closeBroker, err := brokerHealth(&cfg.RabbitMQ, log.Named("publisher"))
	if err != nil {
		return err
	}
	defer closeBroker()

	if len(cfg.Server.APIKeys) == 0 {
		log.Warn("no API keys configured (server.apikeys), the reporting API is open")
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(
		handler.NewVideoHandler(s, log.Named("videos")),
		handler.NewHealthHandler(s, broker),
		cfg.Server.APIKeys,
		log.Named("http"),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("failed to close server", zap.Error(closeErr))
		}
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// brokerHealth connects to RabbitMQ when it is enabled so readiness reports
// the broker too. The reporter is a nil interface when it is disabled.
func brokerHealth(cfg *config.RabbitMQConfig, log *zap.Logger) (handler.HealthReporter, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	p, err := publisher.NewRabbitPublisher(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect publisher: %w", err)
	}
	return p, func() {
		if err := p.Close(); err != nil {
			log.Error("failed to close publisher", zap.Error(err))
		}
	}, nil
}
