package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jamroom/internal/coordinator"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/relay"
	"github.com/desertthunder/jamroom/internal/repositories"
	"github.com/desertthunder/jamroom/internal/services"
	"github.com/desertthunder/jamroom/internal/shared"
	"github.com/desertthunder/jamroom/internal/ui"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const tuiLogFile = "./tmp/jamroom.log"

// Join connects to a room and runs the coordinator against the local Spotify player until interrupted
// or, with the TUI, until the user quits.
func (r *Runner) Join(ctx context.Context, cmd *cli.Command) error {
	room := strings.TrimSpace(cmd.StringArg("room"))
	if room == "" {
		return fmt.Errorf("%w: room", shared.ErrMissingArgument)
	}
	if err := r.load(cmd); err != nil {
		return err
	}

	session := models.Session{Room: room, Participant: shared.ParticipantName(cmd.String("username"))}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	policyName := cmd.String("source-policy")
	if policyName == "" {
		policyName = r.config.Sync.SourcePolicy
	}
	sourcePolicy, err := coordinator.ParseSourcePolicy(policyName)
	if err != nil {
		return err
	}

	headless := cmd.Bool("headless")
	if err := r.redirectLogs(headless); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cache services.TrackCache
	var history coordinator.PlayRecorder
	if db, err := shared.OpenDatabase(r.config.Database); err != nil {
		r.logger.Warn("database unavailable, continuing without cache or history", "error", err)
	} else {
		defer db.Close()
		cache = repositories.NewTrackRepository(db)
		history = repositories.NewPlayRepository(db)
	}

	player, err := r.spotifyService(ctx, cache)
	if err != nil {
		return err
	}

	rl, closeRelay, err := r.dialRelay(ctx, session, cmd.String("relay"))
	if err != nil {
		return err
	}
	defer closeRelay()

	programPresenter := &ui.ProgramPresenter{}
	var presenter coordinator.Presenter = programPresenter
	if headless {
		presenter = ui.NewLogPresenter(r.logger)
	}

	coord, err := coordinator.New(coordinator.Options{
		Session:      session,
		Player:       player,
		Relay:        rl,
		Presenter:    presenter,
		Catalog:      player,
		History:      history,
		Timings:      coordinator.TimingsFromConfig(r.config.Sync),
		SourcePolicy: sourcePolicy,
		Logger:       r.logger,
	})
	if err != nil {
		return err
	}

	watcher := services.NewWatcher(player, services.WatcherOpts{
		Interval:      shared.Ms(r.config.Player.WatchIntervalMs, time.Second),
		SeekTolerance: shared.Ms(r.config.Player.SeekToleranceMs, 2500*time.Millisecond),
		Logger:        r.logger,
	})

	r.logger.Info("joining room", "room", session.Room, "participant", session.Participant, "policy", sourcePolicy)

	g, gctx := errgroup.WithContext(ctx)

	// The relay must outlive the coordinator so its leave announcement still goes out.
	listenCtx, stopListening := context.WithCancel(context.WithoutCancel(ctx))
	defer stopListening()

	g.Go(func() error {
		defer stopListening()
		return coord.Run(gctx)
	})
	g.Go(func() error {
		err := rl.Listen(listenCtx, coord.HandleEvent)
		if err == nil && listenCtx.Err() == nil {
			err = shared.ErrRelayClosed
		}
		return err
	})
	g.Go(func() error {
		return watcher.Run(gctx, coord.HandleDevice)
	})

	if headless {
		r.writePlain("Joined %s as %s. Press Ctrl+C to leave.\n", session.Room, session.Participant)
	} else {
		model := ui.NewModel(gctx, session, coord, player)
		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx))
		programPresenter.Attach(program)
		g.Go(func() error {
			_, err := program.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("error running TUI: %w", err)
			}
			// Quitting the TUI leaves the room.
			return context.Canceled
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.Info("left room", "room", session.Room)
	return nil
}

// redirectLogs sends logs to the configured file, or to a default file while the TUI owns the terminal.
func (r *Runner) redirectLogs(headless bool) error {
	path := r.config.Log.File
	if path == "" && !headless {
		path = tuiLogFile
	}
	if path == "" {
		return nil
	}

	fileLogger, err := shared.NewFileLogger(path)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)
	return nil
}

// dialRelay connects to the room through target, or through the configured relay when target is empty.
// target is a ws:// or wss:// relay server URL, or a redis:// URL. The returned func releases everything
// the relay holds.
func (r *Runner) dialRelay(ctx context.Context, session models.Session, target string) (relay.Relay, func(), error) {
	kind := r.config.Relay.Kind
	var redisOpts *redis.Options
	url := r.config.Relay.URL

	switch {
	case strings.HasPrefix(target, "redis://"), strings.HasPrefix(target, "rediss://"):
		opts, err := redis.ParseURL(target)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: relay url: %v", shared.ErrInvalidArgument, err)
		}
		kind, redisOpts = "redis", opts
	case target != "":
		kind, url = "websocket", target
	}

	switch kind {
	case "", "websocket":
		r.logger.Debug("dialing relay", "url", url)
		ws, err := relay.DialWebSocket(ctx, url, session, r.logger)
		if err != nil {
			return nil, nil, err
		}
		return ws, func() { ws.Close() }, nil

	case "redis":
		if redisOpts == nil {
			redisOpts = &redis.Options{
				Addr:     r.config.Relay.RedisAddr,
				Password: r.config.Relay.RedisPassword,
				DB:       r.config.Relay.RedisDB,
			}
		}
		r.logger.Debug("dialing redis relay", "addr", redisOpts.Addr)
		client := redis.NewClient(redisOpts)
		rr, err := relay.DialRedis(ctx, client, session, r.logger)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return rr, func() {
			rr.Close()
			client.Close()
		}, nil
	}

	return nil, nil, fmt.Errorf("%w: relay kind %q", shared.ErrInvalidConfig, kind)
}
