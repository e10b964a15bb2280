package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.SetupDatabase,
	}
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Authorize jamroom to control your Spotify player",
		Flags:  []cli.Flag{configFlag()},
		Action: r.SpotifyAuth,
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Check that the stored token works",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

func joinCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "join",
		Usage:     "Join a room and keep your Spotify player in step with it",
		ArgsUsage: "<room>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "room", UsageText: "Room to join"},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Participant name shown to the room (generated when empty)",
			},
			&cli.StringFlag{
				Name:  "relay",
				Usage: "Relay to use: a ws:// server URL or a redis:// address (defaults to [relay] in the config)",
			},
			&cli.StringFlag{
				Name:  "source-policy",
				Usage: "What a source does when another participant starts a different track: yield or hold",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Usage: "Log playback changes instead of starting the terminal UI",
			},
		},
		Action: r.Join,
	}
}

func relayCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "relay",
		Usage: "Run the room relay",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve rooms over WebSocket",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Address to listen on",
						Value: "127.0.0.1:4444",
					},
				},
				Action: r.RelayServe,
			},
		},
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the Spotify catalog",
		ArgsUsage: "<query>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query", UsageText: "Search terms"},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of tracks",
				Value:   10,
			},
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty print JSON output"},
		},
		Action: r.Search,
	}
}

func devicesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List Spotify Connect devices",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: r.Devices,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show or export tracks played in rooms",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "room",
				Usage: "Only show plays from this room",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of plays",
				Value:   50,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: txt, csv, md or json",
				Value:   "txt",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Write to {room}_history.{format}",
			},
		},
		Action: r.History,
	}
}

// cacheCommand inspects the track metadata cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the local track metadata cache",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recently cached tracks",
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20},
				},
				Action: r.CacheList,
			},
			{
				Name:  "prune",
				Usage: "Drop cached tracks not seen recently and not in any room's history",
				Flags: []cli.Flag{
					configFlag(),
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age past which a cached track is dropped",
						Value: 30 * 24 * time.Hour,
					},
				},
				Action: r.CachePrune,
			},
		},
	}
}
