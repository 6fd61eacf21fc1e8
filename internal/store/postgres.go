package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ad-tracker/viral-video-detector/internal/models"
)

const pgColumns = `video_id, description, views, likes, comments, shares, author_handle,
	author_display_name, follower_count, verified, posted_at, observed_at, hours_elapsed,
	viral_rate, video_url, hashtags, country, run_id, collected_at`

const pgUpdateSet = `description = EXCLUDED.description,
	views = EXCLUDED.views,
	likes = EXCLUDED.likes,
	comments = EXCLUDED.comments,
	shares = EXCLUDED.shares,
	author_handle = EXCLUDED.author_handle,
	author_display_name = EXCLUDED.author_display_name,
	follower_count = EXCLUDED.follower_count,
	verified = EXCLUDED.verified,
	posted_at = EXCLUDED.posted_at,
	observed_at = EXCLUDED.observed_at,
	hours_elapsed = EXCLUDED.hours_elapsed,
	viral_rate = EXCLUDED.viral_rate,
	video_url = EXCLUDED.video_url,
	hashtags = EXCLUDED.hashtags,
	country = EXCLUDED.country,
	run_id = EXCLUDED.run_id,
	collected_at = EXCLUDED.collected_at`

// PostgresRepository stores observations in PostgreSQL. The schema comes from
// the migrations directory.
type PostgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRepository wraps an open pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, now: time.Now}
}

// NewPool creates a connection pool and verifies it with a ping.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, video *models.Video, isViral bool) error {
	collectedAt := utc(r.now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return WrapError(err, "begin upsert")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	allQuery := `
		INSERT INTO all_observations (` + pgColumns + `, is_viral)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (video_id) DO UPDATE
		SET ` + pgUpdateSet + `,
		    is_viral = EXCLUDED.is_viral
	`
	args := pgArgs(video, collectedAt)
	if _, err := tx.Exec(ctx, allQuery, append(args, isViral)...); err != nil {
		return WrapError(err, "upsert all_observations")
	}

	if isViral {
		viralQuery := `
			INSERT INTO viral_observations (` + pgColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			ON CONFLICT (video_id) DO UPDATE
			SET ` + pgUpdateSet + `
		`
		if _, err := tx.Exec(ctx, viralQuery, args...); err != nil {
			return WrapError(err, "upsert viral_observations")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return WrapError(err, "commit upsert")
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, videoID string) (*models.Video, error) {
	query := `SELECT ` + pgColumns + `, is_viral FROM all_observations WHERE video_id = $1`

	video, err := scanPgVideo(r.pool.QueryRow(ctx, query, videoID))
	if err != nil {
		return nil, WrapError(err, "get video")
	}
	return video, nil
}

func (r *PostgresRepository) ListViral(ctx context.Context, limit int) ([]*models.Video, error) {
	query := `
		SELECT ` + pgColumns + `, TRUE
		FROM viral_observations
		ORDER BY collected_at DESC, video_id
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, WrapError(err, "list viral videos")
	}
	defer rows.Close()

	videos, err := scanPgVideos(rows)
	if err != nil {
		return nil, WrapError(err, "scan viral videos")
	}
	return videos, nil
}

func (r *PostgresRepository) ListAll(ctx context.Context, limit int) ([]*models.Video, error) {
	query := `
		SELECT ` + pgColumns + `, is_viral
		FROM all_observations
		ORDER BY views DESC, video_id
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, WrapError(err, "list videos")
	}
	defer rows.Close()

	videos, err := scanPgVideos(rows)
	if err != nil {
		return nil, WrapError(err, "scan videos")
	}
	return videos, nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*models.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM all_observations),
			(SELECT COUNT(*) FROM viral_observations),
			(SELECT MAX(collected_at) FROM all_observations)
	`
	stats := &models.Stats{}
	var latest *time.Time
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.TotalCount, &stats.ViralCount, &latest); err != nil {
		return nil, WrapError(err, "stats")
	}
	if latest != nil {
		t := latest.UTC()
		stats.LatestCollection = &t
	}
	return stats, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func pgArgs(v *models.Video, collectedAt time.Time) []any {
	var postedAt *time.Time
	if v.HasPostedAt() {
		t := utc(v.PostedAt)
		postedAt = &t
	}
	hashtags := v.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	return []any{
		v.VideoID,
		v.Description,
		v.Views,
		v.Likes,
		v.Comments,
		v.Shares,
		v.AuthorHandle,
		v.AuthorDisplayName,
		v.FollowerCount,
		v.Verified,
		postedAt,
		utc(v.ObservedAt),
		v.HoursElapsed,
		v.ViralRate,
		v.VideoURL,
		hashtags,
		v.Country,
		v.RunID,
		collectedAt,
	}
}

func scanPgVideo(row pgx.Row) (*models.Video, error) {
	v := &models.Video{}
	var postedAt *time.Time
	err := row.Scan(
		&v.VideoID,
		&v.Description,
		&v.Views,
		&v.Likes,
		&v.Comments,
		&v.Shares,
		&v.AuthorHandle,
		&v.AuthorDisplayName,
		&v.FollowerCount,
		&v.Verified,
		&postedAt,
		&v.ObservedAt,
		&v.HoursElapsed,
		&v.ViralRate,
		&v.VideoURL,
		&v.Hashtags,
		&v.Country,
		&v.RunID,
		&v.CollectedAt,
		&v.IsViral,
	)
	if err != nil {
		return nil, err
	}
	if postedAt != nil {
		v.PostedAt = postedAt.UTC()
	}
	v.ObservedAt = v.ObservedAt.UTC()
	v.CollectedAt = v.CollectedAt.UTC()
	return v, nil
}

func scanPgVideos(rows pgx.Rows) ([]*models.Video, error) {
	videos := []*models.Video{}
	for rows.Next() {
		v, err := scanPgVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}
