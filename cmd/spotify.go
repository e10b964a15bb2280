package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/jamroom/internal/formatter"
	"github.com/desertthunder/jamroom/internal/services"
	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// spotifyService returns the injected service or builds one from the stored credentials.
// Refreshed tokens are written back to the config file. cache may be nil.
func (r *Runner) spotifyService(ctx context.Context, cache services.TrackCache) (Spotify, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("%w: run 'jamroom auth' first", shared.ErrNotAuthenticated)
	}

	opts := []services.SpotifyOption{
		services.WithHTTPClient(r.httpClient),
		services.WithRateLimit(r.config.Player.RequestsPerSecond),
		services.WithDeviceName(r.config.Player.DeviceName),
		services.WithLogger(r.logger),
	}
	if cache != nil {
		opts = append(opts, services.WithTrackCache(cache))
	}

	svc, err := services.NewSpotifyService(creds.Map(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	if err := svc.Authenticate(ctx, creds.Map()); err != nil {
		return nil, err
	}
	svc.SetTokenRefreshCallback(func(token *oauth2.Token) {
		if err := r.saveTokens(token); err != nil {
			r.logger.Warn("failed to persist refreshed token", "error", err)
		}
	})

	r.spotify = svc
	return svc, nil
}

// Search lists catalog tracks matching the query argument.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	if err := r.load(cmd); err != nil {
		return err
	}

	sp, err := r.spotifyService(ctx, nil)
	if err != nil {
		return err
	}

	r.logger.Debug("searching spotify", "query", query, "limit", cmd.Int("limit"))

	tracks, err := sp.Search(ctx, query, cmd.Int("limit"))
	if err != nil {
		return authHint(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	if len(tracks) == 0 {
		return r.writePlain("No tracks found for %q\n", query)
	}
	r.writePlain("Found %d tracks:\n\n", len(tracks))
	for i, t := range tracks {
		r.writePlain("%d. %s\n", i+1, formatter.TrackLine(t))
		r.writePlain("   %s\n", t.ID)
	}
	return nil
}

// Devices lists the account's Spotify Connect devices, marking the active one.
func (r *Runner) Devices(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	sp, err := r.spotifyService(ctx, nil)
	if err != nil {
		return err
	}

	devices, err := sp.Devices(ctx)
	if err != nil {
		return authHint(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(devices, true)
	}

	if len(devices) == 0 {
		return r.writePlain("No devices found. Open Spotify on a phone, desktop or speaker first.\n")
	}
	for _, d := range devices {
		marker := " "
		if d.Active {
			marker = "*"
		}
		r.writePlain("%s %s (%s) vol %d%%\n", marker, d.Name, d.Type, d.Volume)
	}
	return nil
}
