package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/models"
	"github.com/ad-tracker/viral-video-detector/internal/store"
	"github.com/ad-tracker/viral-video-detector/internal/validation"
)

// MaxListLimit caps the limit query parameter.
const MaxListLimit = 1000

// VideoReader is the read side of the store.
type VideoReader interface {
	ListViral(ctx context.Context, limit int) ([]*models.Video, error)
	ListAll(ctx context.Context, limit int) ([]*models.Video, error)
	Get(ctx context.Context, videoID string) (*models.Video, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// VideoHandler serves stored observations.
type VideoHandler struct {
	store  VideoReader
	logger *zap.Logger
}

// NewVideoHandler creates a new VideoHandler instance.
func NewVideoHandler(reader VideoReader, logger *zap.Logger) *VideoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VideoHandler{store: reader, logger: logger}
}

// ListViral returns viral videos, most recently collected first.
func (h *VideoHandler) ListViral(c *gin.Context) {
	h.list(c, "list viral videos", h.store.ListViral)
}

// ListAll returns every observed video, most viewed first.
func (h *VideoHandler) ListAll(c *gin.Context) {
	h.list(c, "list videos", h.store.ListAll)
}

func (h *VideoHandler) list(c *gin.Context, op string, fetch func(context.Context, int) ([]*models.Video, error)) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	videos, err := fetch(c.Request.Context(), limit)
	if err != nil {
		h.internalError(c, op, err)
		return
	}

	c.JSON(http.StatusOK, models.VideoList{
		Videos: videos,
		Count:  len(videos),
		Limit:  limit,
	})
}

// Get returns the latest observation of one video.
func (h *VideoHandler) Get(c *gin.Context) {
	videoID := c.Param("id")
	if !validation.IsValidVideoID(videoID) {
		writeError(c, http.StatusBadRequest, "invalid video id")
		return
	}

	video, err := h.store.Get(c.Request.Context(), videoID)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(c, http.StatusNotFound, "video "+videoID+" not found")
			return
		}
		h.internalError(c, "get video", err)
		return
	}

	c.JSON(http.StatusOK, video)
}

// Stats returns store totals.
func (h *VideoHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.internalError(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *VideoHandler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error("store query failed",
		zap.String("operation", op),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	_ = c.Error(err)
	writeError(c, http.StatusInternalServerError, "failed to "+op)
}

// parseLimit reads ?limit=. A missing value selects store.DefaultListLimit.
// It writes a 400 response and returns false when the value is unusable.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return store.DefaultListLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(c, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, true
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}
