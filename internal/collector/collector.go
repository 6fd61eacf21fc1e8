// Package collector drives one collection run: it polls every configured feed
// for each region under a bounded request budget, classifies and stores every
// observation, and returns the unique viral videos found.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/classifier"
	"github.com/ad-tracker/viral-video-detector/internal/dedup"
	"github.com/ad-tracker/viral-video-detector/internal/extract"
	"github.com/ad-tracker/viral-video-detector/internal/feed"
	"github.com/ad-tracker/viral-video-detector/internal/metrics"
	"github.com/ad-tracker/viral-video-detector/internal/models"
)

const (
	DefaultMaxRequests      = 10
	DefaultRateLimitBackoff = 30 * time.Second
	summaryTopN             = 5
)

// Fetcher supplies raw records.
type Fetcher interface {
	Feeds() []feed.Feed
	FetchFeed(ctx context.Context, f feed.Feed, country string, count int) ([]extract.Record, error)
}

// Classifier turns a raw record into a video and a verdict.
type Classifier interface {
	Classify(rec extract.Record, country string) classifier.Result
}

// Saver persists observations. It must not fail the run.
type Saver interface {
	Save(ctx context.Context, video *models.Video, isViral bool) bool
}

// Notifier announces viral videos downstream.
type Notifier interface {
	PublishViral(ctx context.Context, video *models.Video) error
}

// Config bounds a run.
type Config struct {
	// MaxRequests is the number of polling rounds in a run, spread over
	// Countries in order.
	MaxRequests      int
	Countries        []string
	Count            int
	RateLimitBackoff time.Duration
}

// Result describes a finished run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Rounds     int
	Processed  int
	Saved      int
	Viral      []*models.Video
}

// Collector runs collections. It is meant to be driven from one goroutine.
type Collector struct {
	fetcher    Fetcher
	classifier Classifier
	saver      Saver
	notifier   Notifier
	cfg        Config
	logger     *zap.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithNotifier publishes each unique viral video at the end of a run.
func WithNotifier(n Notifier) Option {
	return func(c *Collector) {
		c.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Collector.
func New(f Fetcher, cls Classifier, s Saver, cfg Config, opts ...Option) *Collector {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if len(cfg.Countries) == 0 {
		cfg.Countries = []string{"us"}
	}
	if cfg.Count <= 0 || cfg.Count > feed.MaxCount {
		cfg.Count = feed.MaxCount
	}
	if cfg.RateLimitBackoff < 0 {
		cfg.RateLimitBackoff = 0
	}

	c := &Collector{
		fetcher:    f,
		classifier: cls,
		saver:      s,
		cfg:        cfg,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one collection run. An authentication failure stops the run
// and is returned wrapping feed.ErrAuthFailed. A cancelled context stops the
// run between calls and is returned as well. In both cases the partial result
// is returned alongside the error. A run that finds nothing viral succeeds.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	logger := c.logger.With(zap.String("run_id", res.RunID))
	logger.Info("collection run started",
		zap.Int("max_requests", c.cfg.MaxRequests),
		zap.Strings("countries", c.cfg.Countries),
		zap.Int("feeds", len(c.fetcher.Feeds())),
	)

	var viralBatches [][]*models.Video
	runErr := func() error {
		for round := 0; round < c.cfg.MaxRequests; round++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			country := c.cfg.Countries[round%len(c.cfg.Countries)]

			viral, err := c.round(ctx, logger, res, country)
			res.Rounds++
			viralBatches = append(viralBatches, viral)
			if err != nil {
				return err
			}
		}
		return nil
	}()

	res.Viral = dedup.Videos(viralBatches...)
	c.publish(ctx, logger, res.Viral)
	res.FinishedAt = time.Now().UTC()
	c.summarize(logger, res, runErr)

	if runErr != nil {
		return res, fmt.Errorf("collection run %s stopped: %w", res.RunID, runErr)
	}
	return res, nil
}

// round fetches every feed once for a country and processes the merged
// records. It returns the viral videos of the round.
func (c *Collector) round(ctx context.Context, logger *zap.Logger, res *Result, country string) ([]*models.Video, error) {
	var batches [][]extract.Record
feeds:
	for _, f := range c.fetcher.Feeds() {
		records, err := c.fetcher.FetchFeed(ctx, f, country, c.cfg.Count)
		switch {
		case err == nil:
			batches = append(batches, records)
		case feed.IsAuthFailed(err):
			logger.Error("authentication failed, stopping run", zap.String("feed", f.Name), zap.Error(err))
			return nil, err
		case feed.IsRateLimited(err):
			logger.Warn("rate limited, backing off",
				zap.String("feed", f.Name),
				zap.Duration("backoff", c.cfg.RateLimitBackoff),
			)
			if err := sleep(ctx, c.cfg.RateLimitBackoff); err != nil {
				return nil, err
			}
			break feeds
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			logger.Warn("feed fetch failed", zap.String("feed", f.Name), zap.Error(err))
		}
	}

	records := dedup.Records(batches...)
	var viral []*models.Video
	for _, rec := range records {
		result := c.classifier.Classify(rec, country)
		video := result.Video
		video.RunID = res.RunID
		res.Processed++

		if c.saver.Save(ctx, video, result.IsViral) {
			res.Saved++
		}
		metrics.VideosClassified.WithLabelValues(country, strconv.FormatBool(result.IsViral)).Inc()

		if result.IsViral {
			viral = append(viral, video)
		}
	}

	logger.Info("round complete",
		zap.String("country", country),
		zap.Int("records", len(records)),
		zap.Int("viral", len(viral)),
	)
	return viral, nil
}

func (c *Collector) publish(ctx context.Context, logger *zap.Logger, videos []*models.Video) {
	if c.notifier == nil || len(videos) == 0 {
		return
	}
	if ctx.Err() != nil {
		logger.Warn("run cancelled, viral events not published", zap.Int("viral", len(videos)))
		return
	}
	for _, v := range videos {
		if err := c.notifier.PublishViral(ctx, v); err != nil {
			logger.Error("failed to publish viral event", zap.String("video_id", v.VideoID), zap.Error(err))
		}
	}
}

func (c *Collector) summarize(logger *zap.Logger, res *Result, runErr error) {
	outcome := "ok"
	switch {
	case runErr == nil:
	case errors.Is(runErr, feed.ErrAuthFailed):
		outcome = "auth_failed"
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "error"
	}
	metrics.CollectionRuns.WithLabelValues(outcome).Inc()
	metrics.LastRunViral.Set(float64(len(res.Viral)))

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Int("rounds", res.Rounds),
		zap.Int("processed", res.Processed),
		zap.Int("saved", res.Saved),
		zap.Int("viral", len(res.Viral)),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
	}
	if len(res.Viral) > 0 {
		fields = append(fields,
			zap.Float64("avg_viral_rate", AverageViralRate(res.Viral)),
			zap.Strings("top_by_views", describe(TopByViews(res.Viral, summaryTopN))),
		)
	}
	logger.Info("collection run finished", fields...)
}

// TopByViews returns up to n videos ordered by views, highest first. The
// input is not modified.
func TopByViews(videos []*models.Video, n int) []*models.Video {
	sorted := make([]*models.Video, len(videos))
	copy(sorted, videos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Views > sorted[j].Views
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// AverageViralRate is the mean views-per-hour of the videos.
func AverageViralRate(videos []*models.Video) float64 {
	if len(videos) == 0 {
		return 0
	}
	var sum float64
	for _, v := range videos {
		sum += v.ViralRate
	}
	return sum / float64(len(videos))
}

func describe(videos []*models.Video) []string {
	out := make([]string, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.String())
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
