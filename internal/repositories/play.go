package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
)

// PlayRepository records every track this client started, per room.
type PlayRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPlayRepository creates a new PlayRepository with the given database connection
func NewPlayRepository(db *sql.DB) *PlayRepository {
	return &PlayRepository{db: db, now: time.Now}
}

// Record stores a play, caching the track's metadata in the same transaction.
func (r *PlayRepository) Record(ctx context.Context, room string, track models.TrackRef, origin string) (*models.Play, error) {
	if room == "" {
		return nil, fmt.Errorf("%w: room", shared.ErrMissingArgument)
	}

	play := &models.Play{
		ID:       shared.GenerateID(),
		Room:     room,
		Track:    track,
		Origin:   origin,
		PlayedAt: r.now().UTC(),
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := putTrack(ctx, tx, track, play.PlayedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO plays (id, room, uri, origin, played_at) VALUES (?, ?, ?, ?, ?)`,
			play.ID, play.Room, track.ID, play.Origin, play.PlayedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert play: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return play, nil
}

// History returns the latest plays, newest first. An empty room lists every room.
func (r *PlayRepository) History(ctx context.Context, room string, limit int) ([]models.Play, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT p.id, p.room, p.origin, p.played_at,
			t.uri, t.title, t.artist, t.album, t.artwork, t.duration_ms, t.cached_at
		FROM plays p
		JOIN tracks t ON t.uri = p.uri
		WHERE (? = '' OR p.room = ?)
		ORDER BY p.played_at DESC, p.rowid DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, room, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list plays: %w", err)
	}
	defer rows.Close()

	var plays []models.Play
	for rows.Next() {
		var p models.Play
		var cachedAt time.Time
		err := rows.Scan(
			&p.ID, &p.Room, &p.Origin, &p.PlayedAt,
			&p.Track.ID, &p.Track.Title, &p.Track.Artist, &p.Track.Album, &p.Track.Artwork, &p.Track.DurationMs,
			&cachedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}
