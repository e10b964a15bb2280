package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/jamroom/internal/formatter"
	"github.com/desertthunder/jamroom/internal/repositories"
	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/urfave/cli/v3"
)

// CacheList prints the most recently cached tracks.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tracks, err := repositories.NewTrackRepository(db).Recent(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if len(tracks) == 0 {
		return r.writePlain("Cache is empty\n")
	}
	for i, t := range tracks {
		r.writePlain("%d. %s\n", i+1, formatter.TrackLine(t))
	}
	return nil
}

// CachePrune drops cached tracks older than --older-than that no play references.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	age := cmd.Duration("older-than")
	if age <= 0 {
		return fmt.Errorf("%w: --older-than must be positive", shared.ErrInvalidArgument)
	}
	if err := r.load(cmd); err != nil {
		return err
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	removed, err := repositories.NewTrackRepository(db).Prune(ctx, time.Now().UTC().Add(-age))
	if err != nil {
		return err
	}

	r.logger.Info("pruned track cache", "removed", removed, "older_than", age)
	return r.writePlain("✓ Removed %d cached tracks\n", removed)
}
