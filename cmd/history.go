package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/jamroom/internal/formatter"
	"github.com/desertthunder/jamroom/internal/repositories"
	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/urfave/cli/v3"
)

// History prints or exports the play log, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.load(cmd); err != nil {
		return err
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	room := cmd.String("room")
	plays, err := repositories.NewPlayRepository(db).History(ctx, room, cmd.Int("limit"))
	if err != nil {
		return err
	}

	output := cmd.String("output")
	if output != "" || cmd.Bool("save") {
		path, err := formatter.WriteExport(format, room, plays, output)
		if err != nil {
			return err
		}
		r.logger.Infof("history exported to %v with %v plays", path, len(plays))
		return r.writePlain("✓ %d plays exported to %s\n", len(plays), path)
	}

	if len(plays) == 0 && format == formatter.FormatText {
		return r.writePlain("No plays recorded yet\n")
	}

	data, err := formatter.Export(format, room, plays)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
