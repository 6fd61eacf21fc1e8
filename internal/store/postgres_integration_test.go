//go:build integration
// +build integration

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ad-tracker/viral-video-detector/internal/config"
)

func setupPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("viral_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../migrations")
	require.NoError(t, err)
	require.NoError(t, Migrate(connStr, migrationsPath))
	require.NoError(t, Migrate(connStr, migrationsPath), "re-running migrations is a no-op")

	repo, err := Open(ctx, &config.StoreConfig{Driver: config.DriverPostgres, DatabaseURL: connStr, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	pg, ok := repo.(*PostgresRepository)
	require.True(t, ok)
	pg.now = steppingClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	return pg
}

func TestPostgres_RoundTripAndMonotonicViral(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	v := sampleVideo("pg1", 1500000)
	require.NoError(t, repo.Upsert(ctx, v, true))

	viral, err := repo.ListViral(ctx, 10)
	require.NoError(t, err)
	require.Len(t, viral, 1)
	assert.Equal(t, v.VideoID, viral[0].VideoID)
	assert.Equal(t, v.Views, viral[0].Views)
	assert.Equal(t, v.Hashtags, viral[0].Hashtags)
	assert.True(t, v.PostedAt.Equal(viral[0].PostedAt))
	assert.True(t, viral[0].IsViral)

	require.NoError(t, repo.Upsert(ctx, sampleVideo("pg1", 1600000), false))

	viral, err = repo.ListViral(ctx, 10)
	require.NoError(t, err)
	require.Len(t, viral, 1)
	assert.Equal(t, int64(1500000), viral[0].Views)

	got, err := repo.Get(ctx, "pg1")
	require.NoError(t, err)
	assert.False(t, got.IsViral)
	assert.Equal(t, int64(1600000), got.Views)
}

func TestPostgres_ListAndStats(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	noPost := sampleVideo("pg-b", 300)
	noPost.PostedAt = time.Time{}
	require.NoError(t, repo.Upsert(ctx, sampleVideo("pg-a", 100), true))
	require.NoError(t, repo.Upsert(ctx, noPost, false))
	require.NoError(t, repo.Upsert(ctx, sampleVideo("pg-c", 200), true))

	all, err := repo.ListAll(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"pg-b", "pg-c", "pg-a"}, ids(all))
	assert.False(t, all[0].HasPostedAt())

	viral, err := repo.ListViral(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"pg-c", "pg-a"}, ids(viral))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalCount)
	assert.Equal(t, int64(2), stats.ViralCount)
	require.NotNil(t, stats.LatestCollection)
	assert.True(t, time.Date(2025, 6, 1, 0, 0, 3, 0, time.UTC).Equal(*stats.LatestCollection))

	_, err = repo.Get(ctx, "missing")
	assert.True(t, IsNotFound(err))
}
