package models

import (
	"fmt"
	"time"
)

// Video is a normalized observation of one short video. It is built once by
// the classifier and not modified afterwards.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Video struct {
	VideoID           string    `json:"video_id"`
	Description       string    `json:"description"`
	Views             int64     `json:"views"`
	Likes             int64     `json:"likes"`
	Comments          int64     `json:"comments"`
	Shares            int64     `json:"shares"`
	AuthorHandle      string    `json:"author_handle"`
	AuthorDisplayName string    `json:"author_display_name"`
	FollowerCount     int64     `json:"follower_count"`
	Verified          bool      `json:"verified"`
	PostedAt          time.Time `json:"posted_at"`
	ObservedAt        time.Time `json:"observed_at"`
	HoursElapsed      float64   `json:"hours_elapsed"`
	ViralRate         float64   `json:"viral_rate"`
	VideoURL          string    `json:"video_url"`
	Hashtags          []string  `json:"hashtags"`
	IsViral           bool      `json:"is_viral"`
	Country           string    `json:"country"`
	RunID             string    `json:"run_id,omitempty"`

	// CollectedAt is set when the row is read back from a store.
	CollectedAt time.Time `json:"collected_at,omitempty"`
}

// HasPostedAt reports whether the post time was resolved from the source.
func (v *Video) HasPostedAt() bool {
	return !v.PostedAt.IsZero()
}

// ShortDescription truncates the description for display. Stored values are
// never truncated.
func (v *Video) ShortDescription(limit int) string {
	r := []rune(v.Description)
	if limit <= 0 || len(r) <= limit {
		return v.Description
	}
	return string(r[:limit]) + "..."
}

func (v *Video) String() string {
	return fmt.Sprintf("%s (%d views, %.1fh, %s)", v.VideoID, v.Views, v.HoursElapsed, v.Country)
}

// Stats summarizes a store.
type Stats struct {
	TotalCount       int64      `json:"total_count"`
	ViralCount       int64      `json:"viral_count"`
	LatestCollection *time.Time `json:"latest_collection_timestamp"`
}
