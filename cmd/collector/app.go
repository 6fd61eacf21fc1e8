package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/classifier"
	"github.com/ad-tracker/viral-video-detector/internal/collector"
	"github.com/ad-tracker/viral-video-detector/internal/config"
	"github.com/ad-tracker/viral-video-detector/internal/feed"
	"github.com/ad-tracker/viral-video-detector/internal/publisher"
	"github.com/ad-tracker/viral-video-detector/internal/ratelimit"
	"github.com/ad-tracker/viral-video-detector/internal/store"
)

type app struct {
	client    *feed.Client
	collector *collector.Collector
	store     *store.Store
	publisher *publisher.RabbitPublisher
	logger    *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	repo, err := store.Open(ctx, &cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{
		store:  store.New(repo, log.Named("store")),
		logger: log,
	}
	log.Info("store opened", zap.String("driver", cfg.Store.Driver))

	a.client = feed.NewClient(cfg.API.Key, clientOptions(cfg, log.Named("feed"))...)

	cls := classifier.New(classifier.Config{
		MinViews:       cfg.Detector.MinViews,
		TimeLimitHours: cfg.Detector.TimeLimitHours,
	}, classifier.WithLogger(log.Named("classifier")))

	var opts []collector.Option
	opts = append(opts, collector.WithLogger(log))
	if cfg.RabbitMQ.Enabled {
		p, err := publisher.NewRabbitPublisher(&cfg.RabbitMQ, log.Named("publisher"))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect publisher: %w", err)
		}
		a.publisher = p
		opts = append(opts, collector.WithNotifier(p))
	}

	a.collector = collector.New(a.client, cls, a.store, collector.Config{
		MaxRequests:      cfg.Detector.MaxRequests,
		Countries:        cfg.Detector.Countries,
		Count:            cfg.API.Count,
		RateLimitBackoff: cfg.Detector.RateLimitBackoff,
	}, opts...)

	return a, nil
}

func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("failed to close publisher", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", zap.Error(err))
	}
}

func clientOptions(cfg *config.Config, log *zap.Logger) []feed.Option {
	opts := []feed.Option{
		feed.WithBaseURL(cfg.API.BaseURL),
		feed.WithTimeout(cfg.API.Timeout),
		feed.WithVerifyTimeout(cfg.API.VerifyTimeout),
		feed.WithLimiter(ratelimit.New(cfg.API.MinInterval)),
		feed.WithUserAgent(cfg.API.UserAgent),
		feed.WithLogger(log),
	}
	if feeds := feedsFromConfig(cfg.API.Feeds); len(feeds) > 0 {
		opts = append(opts, feed.WithFeeds(feeds...))
	}
	return opts
}

func feedsFromConfig(fcs []config.FeedConfig) []feed.Feed {
	feeds := make([]feed.Feed, 0, len(fcs))
	for _, fc := range fcs {
		feeds = append(feeds, feed.Feed{Name: fc.Name, Endpoints: fc.Endpoints})
	}
	return feeds
}

// runner is the part of the collector the loop drives.
type runner interface {
	Run(ctx context.Context) (*collector.Result, error)
}

// runLoop runs once, then again every interval until ctx is cancelled. A
// non-positive interval means a single run. An authentication failure ends
// the loop; any other run error is logged and the loop continues.
func runLoop(ctx context.Context, r runner, interval time.Duration, log *zap.Logger) error {
	if err := runOnce(ctx, r, log); err != nil || interval <= 0 {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ctx.Err(); err != nil {
				return err
			}
			log.Info("running scheduled collection")
			if err := runOnce(ctx, r, log); err != nil {
				return err
			}
		case <-ctx.Done():
			log.Info("collector stopped gracefully")
			return ctx.Err()
		}
	}
}

func runOnce(ctx context.Context, r runner, log *zap.Logger) error {
	res, err := r.Run(ctx)
	switch {
	case err == nil:
		log.Info("collection run succeeded", zap.String("run_id", res.RunID), zap.Int("viral", len(res.Viral)))
		return nil
	case errors.Is(err, feed.ErrAuthFailed), ctx.Err() != nil:
		return err
	default:
		log.Error("collection run failed", zap.Error(err))
		return nil
	}
}
