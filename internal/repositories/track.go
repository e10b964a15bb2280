package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
)

// TrackRepository caches track metadata keyed by URI.
//
// It satisfies services.TrackCache, so catalog lookups and search results are stored as they are fetched.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

const trackColumns = `uri, title, artist, album, artwork, duration_ms, cached_at`

// Get returns the cached track for uri, or [shared.ErrTrackNotFound].
func (r *TrackRepository) Get(ctx context.Context, uri string) (*models.TrackRef, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE uri = ?`

	track, _, err := scanTrack(r.db.QueryRowContext(ctx, query, uri))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, uri)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return track, nil
}

// Put inserts or refreshes a track. Empty metadata never overwrites known metadata.
func (r *TrackRepository) Put(ctx context.Context, track models.TrackRef) error {
	return putTrack(ctx, r.db, track, time.Now().UTC())
}

// Recent returns the most recently cached tracks, newest first.
func (r *TrackRepository) Recent(ctx context.Context, limit int) ([]models.TrackRef, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY cached_at DESC, uri LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.TrackRef
	for rows.Next() {
		track, _, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, *track)
	}
	return tracks, rows.Err()
}

// Prune removes tracks cached before cutoff that no play references.
func (r *TrackRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tracks WHERE cached_at < ? AND uri NOT IN (SELECT uri FROM plays)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune tracks: %w", err)
	}
	return result.RowsAffected()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putTrack(ctx context.Context, db execer, track models.TrackRef, now time.Time) error {
	if track.ID == "" {
		return fmt.Errorf("%w: track uri", shared.ErrMissingArgument)
	}

	query := `
		INSERT INTO tracks (` + trackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE tracks.title END,
			artist = CASE WHEN excluded.artist != '' THEN excluded.artist ELSE tracks.artist END,
			album = CASE WHEN excluded.album != '' THEN excluded.album ELSE tracks.album END,
			artwork = CASE WHEN excluded.artwork != '' THEN excluded.artwork ELSE tracks.artwork END,
			duration_ms = CASE WHEN excluded.duration_ms > 0 THEN excluded.duration_ms ELSE tracks.duration_ms END,
			cached_at = excluded.cached_at
	`

	_, err := db.ExecContext(ctx, query,
		track.ID,
		track.Title,
		track.Artist,
		track.Album,
		track.Artwork,
		track.DurationMs,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to store track: %w", err)
	}
	return nil
}

func scanTrack(row scanner) (*models.TrackRef, time.Time, error) {
	var track models.TrackRef
	var cachedAt time.Time

	err := row.Scan(
		&track.ID,
		&track.Title,
		&track.Artist,
		&track.Album,
		&track.Artwork,
		&track.DurationMs,
		&cachedAt,
	)
	if err != nil {
		return nil, time.Time{}, err
	}
	return &track, cachedAt, nil
}
