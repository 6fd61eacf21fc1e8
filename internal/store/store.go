// Package store persists video observations.
//
// Two tables are kept: all_observations holds the latest observation of every
// video seen, viral_observations holds every video that was ever saved as
// viral. A later non-viral save updates all_observations but never removes a
// video from viral_observations.
package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/metrics"
	"github.com/ad-tracker/viral-video-detector/internal/models"
)

// DefaultListLimit caps list queries when the caller passes a non-positive
// limit.
const DefaultListLimit = 100

// Repository is a storage backend.
type Repository interface {
	// Upsert replaces the video's row in all_observations and, when isViral,
	// in viral_observations. Both writes succeed or neither does.
	Upsert(ctx context.Context, video *models.Video, isViral bool) error

	// Get returns the latest observation of a video.
	Get(ctx context.Context, videoID string) (*models.Video, error)

	// ListViral returns viral videos, most recently collected first.
	ListViral(ctx context.Context, limit int) ([]*models.Video, error)

	// ListAll returns all observed videos, most viewed first.
	ListAll(ctx context.Context, limit int) ([]*models.Video, error)

	// Stats summarizes both tables.
	Stats(ctx context.Context) (*models.Stats, error)

	Ping(ctx context.Context) error
	Close() error
}

// Store wraps a Repository for the collection loop. Writes never fail from
// the caller's point of view: errors are logged and counted instead.
type Store struct {
	repo   Repository
	logger *zap.Logger
}

// New creates a Store over repo.
func New(repo Repository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, logger: logger}
}

// Save persists one observation and reports whether it was written.
func (s *Store) Save(ctx context.Context, video *models.Video, isViral bool) bool {
	if video == nil || video.VideoID == "" {
		s.logger.Warn("skipping observation without video id")
		metrics.StoreErrors.WithLabelValues("save").Inc()
		return false
	}

	if err := s.repo.Upsert(ctx, video, isViral); err != nil {
		s.logger.Error("failed to save observation",
			zap.String("video_id", video.VideoID),
			zap.Bool("is_viral", isViral),
			zap.Error(WrapError(err, "save observation")),
		)
		metrics.StoreErrors.WithLabelValues("save").Inc()
		return false
	}
	return true
}

// ListViral returns viral videos, most recently collected first.
func (s *Store) ListViral(ctx context.Context, limit int) ([]*models.Video, error) {
	return s.repo.ListViral(ctx, normalizeLimit(limit))
}

// ListAll returns all observed videos, most viewed first.
func (s *Store) ListAll(ctx context.Context, limit int) ([]*models.Video, error) {
	return s.repo.ListAll(ctx, normalizeLimit(limit))
}

// Get returns the latest observation of a video.
func (s *Store) Get(ctx context.Context, videoID string) (*models.Video, error) {
	return s.repo.Get(ctx, videoID)
}

// Stats summarizes the store.
func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	return s.repo.Stats(ctx)
}

// Ping checks backend connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.repo.Close()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// utc normalizes a time to what both backends can store: UTC, microsecond
// precision, no monotonic reading.
func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}
