package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ad-tracker/viral-video-detector/internal/models"
)

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

const sqliteColumnDefs = `
	video_id            TEXT PRIMARY KEY,
	description         TEXT NOT NULL DEFAULT '',
	views               INTEGER NOT NULL DEFAULT 0,
	likes               INTEGER NOT NULL DEFAULT 0,
	comments            INTEGER NOT NULL DEFAULT 0,
	shares              INTEGER NOT NULL DEFAULT 0,
	author_handle       TEXT NOT NULL DEFAULT '',
	author_display_name TEXT NOT NULL DEFAULT '',
	follower_count      INTEGER NOT NULL DEFAULT 0,
	verified            INTEGER NOT NULL DEFAULT 0,
	posted_at           TEXT,
	observed_at         TEXT NOT NULL,
	hours_elapsed       REAL NOT NULL DEFAULT 0,
	viral_rate          REAL NOT NULL DEFAULT 0,
	video_url           TEXT NOT NULL DEFAULT '',
	hashtags            TEXT NOT NULL DEFAULT '[]',
	country             TEXT NOT NULL DEFAULT '',
	run_id              TEXT NOT NULL DEFAULT '',
	collected_at        TEXT NOT NULL`

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS all_observations (` + sqliteColumnDefs + `,
	is_viral            INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS viral_observations (` + sqliteColumnDefs + `
	)`,
	"CREATE INDEX IF NOT EXISTS idx_all_observations_views ON all_observations(views DESC)",
	"CREATE INDEX IF NOT EXISTS idx_all_observations_collected_at ON all_observations(collected_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_viral_observations_collected_at ON viral_observations(collected_at DESC)",
}

const sqliteColumns = `video_id, description, views, likes, comments, shares, author_handle,
	author_display_name, follower_count, verified, posted_at, observed_at, hours_elapsed,
	viral_rate, video_url, hashtags, country, run_id, collected_at`

const sqliteUpdateSet = `description = excluded.description,
	views = excluded.views,
	likes = excluded.likes,
	comments = excluded.comments,
	shares = excluded.shares,
	author_handle = excluded.author_handle,
	author_display_name = excluded.author_display_name,
	follower_count = excluded.follower_count,
	verified = excluded.verified,
	posted_at = excluded.posted_at,
	observed_at = excluded.observed_at,
	hours_elapsed = excluded.hours_elapsed,
	viral_rate = excluded.viral_rate,
	video_url = excluded.video_url,
	hashtags = excluded.hashtags,
	country = excluded.country,
	run_id = excluded.run_id,
	collected_at = excluded.collected_at`

// SQLiteRepository stores observations in a local SQLite file.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, WrapError(err, "create sqlite schema")
		}
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// sqliteBusyTimeoutMS bounds how long a writer waits on a lock held by
// another process sharing the file.
const sqliteBusyTimeoutMS = 5000

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", path, sep, sqliteBusyTimeoutMS)
}

func (r *SQLiteRepository) Upsert(ctx context.Context, video *models.Video, isViral bool) error {
	args, err := sqliteArgs(video, utc(r.now()))
	if err != nil {
		return WrapError(err, "encode observation")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapError(err, "begin upsert")
	}
	defer func() { _ = tx.Rollback() }()

	allQuery := `
		INSERT INTO all_observations (` + sqliteColumns + `, is_viral)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET ` + sqliteUpdateSet + `,
			is_viral = excluded.is_viral`
	if _, err := tx.ExecContext(ctx, allQuery, append(args, isViral)...); err != nil {
		return WrapError(err, "upsert all_observations")
	}

	if isViral {
		viralQuery := `
			INSERT INTO viral_observations (` + sqliteColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(video_id) DO UPDATE SET ` + sqliteUpdateSet
		if _, err := tx.ExecContext(ctx, viralQuery, args...); err != nil {
			return WrapError(err, "upsert viral_observations")
		}
	}

	if err := tx.Commit(); err != nil {
		return WrapError(err, "commit upsert")
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, videoID string) (*models.Video, error) {
	query := `SELECT ` + sqliteColumns + `, is_viral FROM all_observations WHERE video_id = ?`

	video, err := scanSQLiteVideo(r.db.QueryRowContext(ctx, query, videoID))
	if err != nil {
		return nil, WrapError(err, "get video")
	}
	return video, nil
}

func (r *SQLiteRepository) ListViral(ctx context.Context, limit int) ([]*models.Video, error) {
	query := `
		SELECT ` + sqliteColumns + `, 1
		FROM viral_observations
		ORDER BY collected_at DESC, video_id
		LIMIT ?`
	return r.list(ctx, "list viral videos", query, limit)
}

func (r *SQLiteRepository) ListAll(ctx context.Context, limit int) ([]*models.Video, error) {
	query := `
		SELECT ` + sqliteColumns + `, is_viral
		FROM all_observations
		ORDER BY views DESC, video_id
		LIMIT ?`
	return r.list(ctx, "list videos", query, limit)
}

func (r *SQLiteRepository) list(ctx context.Context, op, query string, limit int) ([]*models.Video, error) {
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, WrapError(err, op)
	}
	defer func() { _ = rows.Close() }()

	videos := []*models.Video{}
	for rows.Next() {
		v, err := scanSQLiteVideo(rows)
		if err != nil {
			return nil, WrapError(err, op)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, op)
	}
	return videos, nil
}

func (r *SQLiteRepository) Stats(ctx context.Context) (*models.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM all_observations),
			(SELECT COUNT(*) FROM viral_observations),
			(SELECT MAX(collected_at) FROM all_observations)`

	stats := &models.Stats{}
	var latest sql.NullString
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.TotalCount, &stats.ViralCount, &latest); err != nil {
		return nil, WrapError(err, "stats")
	}
	if latest.Valid {
		t, err := time.Parse(sqliteTimeLayout, latest.String)
		if err != nil {
			return nil, WrapError(err, "parse latest collection")
		}
		stats.LatestCollection = &t
	}
	return stats, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func formatSQLiteTime(t time.Time) string {
	return utc(t).Format(sqliteTimeLayout)
}

func sqliteArgs(v *models.Video, collectedAt time.Time) ([]any, error) {
	var postedAt sql.NullString
	if v.HasPostedAt() {
		postedAt = sql.NullString{String: formatSQLiteTime(v.PostedAt), Valid: true}
	}
	hashtags := v.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	tags, err := json.Marshal(hashtags)
	if err != nil {
		return nil, err
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
		formatSQLiteTime(v.ObservedAt),
		v.HoursElapsed,
		v.ViralRate,
		v.VideoURL,
		string(tags),
		v.Country,
		v.RunID,
		formatSQLiteTime(collectedAt),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteVideo(row rowScanner) (*models.Video, error) {
	v := &models.Video{}
	var (
		postedAt    sql.NullString
		observedAt  string
		collectedAt string
		tags        string
	)
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
		&observedAt,
		&v.HoursElapsed,
		&v.ViralRate,
		&v.VideoURL,
		&tags,
		&v.Country,
		&v.RunID,
		&collectedAt,
		&v.IsViral,
	)
	if err != nil {
		return nil, err
	}

	if postedAt.Valid {
		if v.PostedAt, err = time.Parse(sqliteTimeLayout, postedAt.String); err != nil {
			return nil, fmt.Errorf("parse posted_at: %w", err)
		}
	}
	if v.ObservedAt, err = time.Parse(sqliteTimeLayout, observedAt); err != nil {
		return nil, fmt.Errorf("parse observed_at: %w", err)
	}
	if v.CollectedAt, err = time.Parse(sqliteTimeLayout, collectedAt); err != nil {
		return nil, fmt.Errorf("parse collected_at: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &v.Hashtags); err != nil {
		return nil, fmt.Errorf("decode hashtags: %w", err)
	}
	return v, nil
}
