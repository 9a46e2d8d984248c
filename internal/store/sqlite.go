package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vodpipe/internal/config"
)

// SQLite implements Store on an embedded SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ Store = (*SQLite)(nil)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// Fixed-width UTC layout so created_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLite) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the database at cfg.DatabasePath().
func Open(cfg *config.Config) (*SQLite, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, Wrap("open", fmt.Errorf("ensure directories: %w", err))
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database file at dbPath.
func OpenPath(dbPath string) (*SQLite, error) {
	// Connection-scoped pragmas go in the DSN so every pooled connection gets them.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, Wrap("open", fmt.Errorf("open sqlite db: %w", err))
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, Wrap("open", fmt.Errorf("apply pragma %q: %w", pragma, execErr))
		}
	}

	s := &SQLite{db: db, path: dbPath, now: time.Now}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, Wrap("open", err)
	}
	return s, nil
}

// Path returns the database file location.
func (s *SQLite) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return Wrap("ping", s.db.PingContext(ensureContext(ctx)))
}

func (s *SQLite) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, value)
	}
	return t
}

// CreateVideo inserts a new video in the uploading state.
func (s *SQLite) CreateVideo(ctx context.Context, v Video) (*Video, error) {
	if strings.TrimSpace(v.ID) == "" {
		return nil, Wrap("create video", errors.New("video id is required"))
	}
	now := s.timestamp()
	var description any
	if v.Description != "" {
		description = v.Description
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO videos (id, title, description, duration, status, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?, ?)`,
		v.ID, v.Title, description, string(StatusUploading), now, now,
	)
	if err != nil {
		if isConstraint(err) {
			return nil, Wrap("create video", fmt.Errorf("%w: video %s", ErrDuplicate, v.ID))
		}
		return nil, Wrap("create video", err)
	}
	return s.GetVideo(ctx, v.ID)
}

// UpdateStatus performs a guarded transition to status.
func (s *SQLite) UpdateStatus(ctx context.Context, id string, status Status) error {
	sources := allowedSources(status)
	if len(sources) == 0 {
		return Wrap("update status", fmt.Errorf("%w: nothing transitions to %q", ErrInvalidTransition, status))
	}
	placeholders := make([]string, len(sources))
	args := []any{string(status), s.timestamp(), id}
	for i, src := range sources {
		placeholders[i] = "?"
		args = append(args, string(src))
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE videos SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return Wrap("update status", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	current, err := s.GetVideo(ctx, id)
	if err != nil {
		return err
	}
	return Wrap("update status", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status))
}

// UpdateDuration records the probed duration in seconds.
func (s *SQLite) UpdateDuration(ctx context.Context, id string, seconds float64) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE videos SET duration = ?, updated_at = ? WHERE id = ?`,
		seconds, s.timestamp(), id,
	)
	if err != nil {
		return Wrap("update duration", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Wrap("update duration", ErrNotFound)
	}
	return nil
}

// InsertQuality records a produced rendition. A missing ID is generated.
func (s *SQLite) InsertQuality(ctx context.Context, q Quality) (*Quality, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	now := s.timestamp()
	_, err := s.execWithRetry(ctx,
		`INSERT INTO video_qualities (id, video_id, resolution, bitrate, file_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.VideoID, q.Resolution, q.Bitrate, q.FilePath, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return nil, Wrap("insert quality", ErrNotFound)
		}
		return nil, Wrap("insert quality", err)
	}
	q.CreatedAt = parseTime(now)
	return &q, nil
}

const videoColumns = "id, title, description, duration, status, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var (
		v           Video
		description sql.NullString
		duration    sql.NullFloat64
		status      string
		created     string
		updated     string
	)
	if err := row.Scan(&v.ID, &v.Title, &description, &duration, &status, &created, &updated); err != nil {
		return nil, err
	}
	v.Description = description.String
	if duration.Valid {
		d := duration.Float64
		v.Duration = &d
	}
	v.Status = Status(status)
	v.CreatedAt = parseTime(created)
	v.UpdatedAt = parseTime(updated)
	return &v, nil
}

// GetVideo fetches a video by ID.
func (s *SQLite) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Wrap("get video", ErrNotFound)
	}
	if err != nil {
		return nil, Wrap("get video", err)
	}
	return v, nil
}

// ListVideos returns a page of videos newest first.
func (s *SQLite) ListVideos(ctx context.Context, filter ListFilter) (ListResult, error) {
	ctx = ensureContext(ctx)
	where := ""
	var args []any
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		where = " WHERE status IN (" + strings.Join(placeholders, ",") + ")"
	}

	var result ListResult
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM videos`+where, args...).Scan(&result.Total); err != nil {
		return ListResult{}, Wrap("list videos", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos`+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return ListResult{}, Wrap("list videos", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return ListResult{}, Wrap("list videos", err)
		}
		result.Videos = append(result.Videos, *v)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, Wrap("list videos", err)
	}
	return result, nil
}

// ListQualities returns the renditions recorded for videoID.
func (s *SQLite) ListQualities(ctx context.Context, videoID string) ([]Quality, error) {
	byVideo, err := s.QualitiesFor(ctx, []string{videoID})
	if err != nil {
		return nil, err
	}
	return byVideo[videoID], nil
}

// QualitiesFor returns renditions grouped by video ID.
func (s *SQLite) QualitiesFor(ctx context.Context, videoIDs []string) (map[string][]Quality, error) {
	out := make(map[string][]Quality, len(videoIDs))
	if len(videoIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(videoIDs))
	args := make([]any, len(videoIDs))
	for i, id := range videoIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, video_id, resolution, bitrate, file_path, created_at FROM video_qualities
		 WHERE video_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY created_at, rowid`,
		args...,
	)
	if err != nil {
		return nil, Wrap("list qualities", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			q       Quality
			created string
		)
		if err := rows.Scan(&q.ID, &q.VideoID, &q.Resolution, &q.Bitrate, &q.FilePath, &created); err != nil {
			return nil, Wrap("list qualities", err)
		}
		q.CreatedAt = parseTime(created)
		out[q.VideoID] = append(out[q.VideoID], q)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap("list qualities", err)
	}
	return out, nil
}

// FailInterrupted fails every video left uploading or processing.
func (s *SQLite) FailInterrupted(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	var ids []string
	err := retryOnBusy(ctx, func() error {
		ids = ids[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM videos WHERE status IN (?, ?) ORDER BY created_at`,
			string(StatusUploading), string(StatusProcessing),
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE videos SET status = ?, updated_at = ? WHERE status IN (?, ?)`,
			string(StatusFailed), s.timestamp(), string(StatusUploading), string(StatusProcessing),
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, Wrap("fail interrupted", err)
	}
	return ids, nil
}
