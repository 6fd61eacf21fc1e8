// Package dedup merges batches of records into a sequence unique by video id.
package dedup

import (
	"github.com/ad-tracker/viral-video-detector/internal/extract"
	"github.com/ad-tracker/viral-video-detector/internal/models"
)

// Merge concatenates the batches and keeps the first item seen for each key,
// preserving order. Later duplicates are dropped, not reconciled. Items whose
// key is empty cannot be identified and are dropped as well.
func Merge[T any](key func(T) string, batches ...[]T) []T {
	total := 0
	for _, b := range batches {
		total += len(b)
	}

	seen := make(map[string]struct{}, total)
	out := make([]T, 0, total)
	for _, b := range batches {
		for _, item := range b {
			k := key(item)
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// RecordIDPaths locate the video id inside a raw record.
var RecordIDPaths = []extract.Path{extract.P("id"), extract.P("video_id"), extract.P("aweme_id")}

// RecordID is the dedup key of a raw record.
func RecordID(r extract.Record) string {
	return extract.String(r, RecordIDPaths...)
}

// Records merges raw feed batches fetched within one polling round.
func Records(batches ...[]extract.Record) []extract.Record {
	return Merge(RecordID, batches...)
}

// Videos merges classified videos across rounds and regions.
func Videos(batches ...[]*models.Video) []*models.Video {
	return Merge(func(v *models.Video) string {
		if v == nil {
			return ""
		}
		return v.VideoID
	}, batches...)
}
