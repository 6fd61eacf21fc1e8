// Package classifier turns raw feed records into normalized videos and decides
// whether each one is viral.
package classifier

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/dedup"
	"github.com/ad-tracker/viral-video-detector/internal/extract"
	"github.com/ad-tracker/viral-video-detector/internal/models"
)

// Defaults for the viral predicate.
const (
	DefaultMinViews       = 500000
	DefaultTimeLimitHours = 24
)

const videoURLBase = "https://www.tiktok.com"

// logDescriptionLen caps descriptions in log lines.
const logDescriptionLen = 60

// Candidate locations of each field, most specific first.
var (
	descriptionPaths = []extract.Path{extract.P("desc"), extract.P("description"), extract.P("title")}
	postedAtPaths    = []extract.Path{extract.P("createTime"), extract.P("create_time"), extract.P("created_at")}
	viewPaths        = []extract.Path{
		extract.P("stats", "playCount"), extract.P("stats", "play_count"), extract.P("stats", "views"),
		extract.P("statsV2", "playCount"), extract.P("playCount"), extract.P("play_count"),
		extract.P("views"), extract.P("view_count"),
	}
	likePaths = []extract.Path{
		extract.P("stats", "diggCount"), extract.P("stats", "digg_count"), extract.P("stats", "likes"),
		extract.P("statsV2", "diggCount"), extract.P("diggCount"), extract.P("likes"),
	}
	commentPaths = []extract.Path{
		extract.P("stats", "commentCount"), extract.P("stats", "comment_count"), extract.P("stats", "comments"),
		extract.P("statsV2", "commentCount"), extract.P("commentCount"), extract.P("comments"),
	}
	sharePaths = []extract.Path{
		extract.P("stats", "shareCount"), extract.P("stats", "share_count"), extract.P("stats", "shares"),
		extract.P("statsV2", "shareCount"), extract.P("shareCount"), extract.P("shares"),
	}
	authorHandlePaths = []extract.Path{
		extract.P("author", "uniqueId"), extract.P("author", "username"), extract.P("author", "unique_id"),
		extract.P("author"),
	}
	authorNamePaths = []extract.Path{
		extract.P("author", "nickname"), extract.P("author", "display_name"), extract.P("author", "name"),
	}
	followerPaths = []extract.Path{
		extract.P("authorStats", "followerCount"), extract.P("author", "followerCount"),
		extract.P("author", "follower_count"), extract.P("author", "followers"),
	}
	verifiedPaths = []extract.Path{extract.P("author", "verified")}
	hashtagPaths  = []extract.Path{extract.P("challenges"), extract.P("hashtags"), extract.P("textExtra")}
)

// Config holds the thresholds of the viral predicate.
type Config struct {
	MinViews       int64
	TimeLimitHours float64
}

// DefaultConfig returns the stock thresholds: 500k views within 24 hours.
func DefaultConfig() Config {
	return Config{MinViews: DefaultMinViews, TimeLimitHours: DefaultTimeLimitHours}
}

// Result is the outcome of classifying one record.
type Result struct {
	IsViral bool
	Video   *models.Video
}

// Classifier applies a Config to raw records.
type Classifier struct {
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for schema drift diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Classifier. Zero thresholds fall back to the defaults.
func New(cfg Config, opts ...Option) *Classifier {
	if cfg.MinViews <= 0 {
		cfg.MinViews = DefaultMinViews
	}
	if cfg.TimeLimitHours <= 0 {
		cfg.TimeLimitHours = DefaultTimeLimitHours
	}
	c := &Classifier{
		cfg:    cfg,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the thresholds in effect.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify normalizes the record and evaluates the viral predicate. The video
// is always fully populated so callers can persist non-viral observations too.
// Malformed fields degrade to zero values; Classify never panics on input
// shape.
func (c *Classifier) Classify(rec extract.Record, country string) Result {
	observedAt := c.now().UTC()

	v := &models.Video{
		VideoID:           dedup.RecordID(rec),
		Description:       extract.String(rec, descriptionPaths...),
		Views:             extract.Count(rec, viewPaths...),
		Likes:             extract.Count(rec, likePaths...),
		Comments:          extract.Count(rec, commentPaths...),
		Shares:            extract.Count(rec, sharePaths...),
		AuthorHandle:      extract.String(rec, authorHandlePaths...),
		AuthorDisplayName: extract.String(rec, authorNamePaths...),
		FollowerCount:     extract.Count(rec, followerPaths...),
		Verified:          extract.Bool(rec, verifiedPaths...),
		Hashtags:          extract.Strings(rec, hashtagPaths...),
		ObservedAt:        observedAt,
		Country:           country,
	}

	postedAt, hasPostedAt := extract.Epoch(rec, postedAtPaths...)
	if hasPostedAt {
		v.PostedAt = postedAt
		v.HoursElapsed = HoursElapsed(postedAt, observedAt)
	} else {
		c.logger.Debug("post time not resolvable, record cannot be viral",
			zap.String("video_id", v.VideoID),
			zap.Strings("keys", rec.Keys()),
		)
	}

	v.ViralRate = ViralRate(v.Views, v.HoursElapsed)
	v.VideoURL = VideoURL(v.AuthorHandle, v.VideoID)
	v.IsViral = hasPostedAt &&
		v.HoursElapsed <= c.cfg.TimeLimitHours &&
		v.Views >= c.cfg.MinViews

	if v.IsViral {
		c.logger.Info("viral video found",
			zap.String("video_id", v.VideoID),
			zap.String("description", v.ShortDescription(logDescriptionLen)),
			zap.Int64("views", v.Views),
			zap.Float64("hours_elapsed", v.HoursElapsed),
			zap.String("country", country),
		)
	}

	return Result{IsViral: v.IsViral, Video: v}
}

// HoursElapsed returns the age of a post in hours. Posts stamped in the future
// (clock skew between us and the upstream service) are clamped to zero.
func HoursElapsed(postedAt, observedAt time.Time) float64 {
	h := observedAt.Sub(postedAt).Hours()
	if h < 0 || math.IsNaN(h) {
		return 0
	}
	return h
}

// ViralRate is views per hour with the elapsed time floored at one hour, so a
// post younger than an hour reports its raw view count instead of an
// extrapolated rate.
func ViralRate(views int64, hoursElapsed float64) float64 {
	if views <= 0 {
		return 0
	}
	return float64(views) / math.Max(hoursElapsed, 1)
}

// VideoURL builds the canonical watch URL.
func VideoURL(handle, videoID string) string {
	switch {
	case videoID == "":
		return ""
	case handle == "":
		return fmt.Sprintf("%s/video/%s", videoURLBase, videoID)
	default:
		return fmt.Sprintf("%s/@%s/video/%s", videoURLBase, handle, videoID)
	}
}
