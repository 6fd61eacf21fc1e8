package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-tracker/viral-video-detector/internal/models"
)

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func setupSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	repo.now = steppingClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleVideo(id string, views int64) *models.Video {
	posted := time.Date(2025, 5, 31, 18, 0, 0, 0, time.UTC)
	observed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.Video{
		VideoID:           id,
		Description:       "clip " + id,
		Views:             views,
		Likes:             views / 10,
		Comments:          42,
		Shares:            7,
		AuthorHandle:      "creator",
		AuthorDisplayName: "Creator",
		FollowerCount:     1000,
		Verified:          true,
		PostedAt:          posted,
		ObservedAt:        observed,
		HoursElapsed:      18,
		ViralRate:         float64(views) / 18,
		VideoURL:          "https://www.tiktok.com/@creator/video/" + id,
		Hashtags:          []string{"fyp", "dance"},
		Country:           "us",
		RunID:             "run-1",
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{":memory:", ":memory:?_pragma=busy_timeout(5000)"},
		{"data/videos.db", "data/videos.db?_pragma=busy_timeout(5000)"},
		{"file:videos.db?mode=rwc", "file:videos.db?mode=rwc&_pragma=busy_timeout(5000)"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, sqliteDSN(tt.path))
		})
	}
}

func TestSQLite_BusyTimeoutApplied(t *testing.T) {
	repo := setupSQLite(t)

	var timeout int
	require.NoError(t, repo.db.QueryRowContext(context.Background(), "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, sqliteBusyTimeoutMS, timeout)
}

func TestSQLite_SaveAndListViralRoundTrip(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	v := sampleVideo("v1", 1500000)
	v.IsViral = true
	require.NoError(t, repo.Upsert(ctx, v, true))

	viral, err := repo.ListViral(ctx, 10)
	require.NoError(t, err)
	require.Len(t, viral, 1)

	got := viral[0]
	assert.Equal(t, v.VideoID, got.VideoID)
	assert.Equal(t, v.Description, got.Description)
	assert.Equal(t, v.Views, got.Views)
	assert.Equal(t, v.Likes, got.Likes)
	assert.Equal(t, v.AuthorHandle, got.AuthorHandle)
	assert.True(t, got.Verified)
	assert.True(t, got.IsViral)
	assert.Equal(t, v.PostedAt, got.PostedAt)
	assert.Equal(t, v.ObservedAt, got.ObservedAt)
	assert.Equal(t, v.Hashtags, got.Hashtags)
	assert.InDelta(t, v.ViralRate, got.ViralRate, 0.001)
	assert.False(t, got.CollectedAt.IsZero())
}

func TestSQLite_NonViralOnlyInAllObservations(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleVideo("n1", 100), false))

	viral, err := repo.ListViral(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, viral)

	all, err := repo.ListAll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsViral)
}

func TestSQLite_ViralMembershipIsMonotonic(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleVideo("m1", 900000), true))
	later := sampleVideo("m1", 950000)
	require.NoError(t, repo.Upsert(ctx, later, false))

	viral, err := repo.ListViral(ctx, 10)
	require.NoError(t, err)
	require.Len(t, viral, 1, "a later non-viral save must not evict the video")
	assert.Equal(t, int64(900000), viral[0].Views)

	got, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, got.IsViral, "all_observations keeps the latest verdict")
	assert.Equal(t, int64(950000), got.Views)
}

func TestSQLite_LastWriteWins(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleVideo("w1", 600000), true))
	second := sampleVideo("w1", 700000)
	second.Country = "gb"
	require.NoError(t, repo.Upsert(ctx, second, true))

	viral, err := repo.ListViral(ctx, 10)
	require.NoError(t, err)
	require.Len(t, viral, 1)
	assert.Equal(t, int64(700000), viral[0].Views)
	assert.Equal(t, "gb", viral[0].Country)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalCount)
	assert.Equal(t, int64(1), stats.ViralCount)
}

func TestSQLite_ListOrdering(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleVideo("a", 100), true))
	require.NoError(t, repo.Upsert(ctx, sampleVideo("b", 300), true))
	require.NoError(t, repo.Upsert(ctx, sampleVideo("c", 200), true))

	viral, err := repo.ListViral(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(viral), "most recently collected first")

	all, err := repo.ListAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(all), "most viewed first, limited")
}

func TestSQLite_MissingPostedAtRoundTrips(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	v := sampleVideo("p1", 10)
	v.PostedAt = time.Time{}
	v.Hashtags = nil
	require.NoError(t, repo.Upsert(ctx, v, false))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, got.HasPostedAt())
	assert.Equal(t, []string{}, got.Hashtags)
}

func TestSQLite_GetMissing(t *testing.T) {
	repo := setupSQLite(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, IsNotFound(err))
}

func TestSQLite_Stats(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	empty, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalCount)
	assert.Nil(t, empty.LatestCollection)

	require.NoError(t, repo.Upsert(ctx, sampleVideo("s1", 10), false))
	require.NoError(t, repo.Upsert(ctx, sampleVideo("s2", 900000), true))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalCount)
	assert.Equal(t, int64(1), stats.ViralCount)
	require.NotNil(t, stats.LatestCollection)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 2, 0, time.UTC), *stats.LatestCollection)
}

func TestSQLite_Ping(t *testing.T) {
	repo := setupSQLite(t)
	assert.NoError(t, repo.Ping(context.Background()))
}

func ids(videos []*models.Video) []string {
	out := make([]string, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.VideoID)
	}
	return out
}
