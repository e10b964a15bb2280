package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/relay"
	"github.com/desertthunder/jamroom/internal/repositories"
	"github.com/desertthunder/jamroom/internal/shared"
	tu "github.com/desertthunder/jamroom/internal/testing"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

type fakeSpotify struct {
	*tu.MockPlayer
	tracks  []models.TrackRef
	devices []models.Device
	err     error
}

func (f *fakeSpotify) Search(_ context.Context, _ string, limit int) ([]models.TrackRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.tracks) {
		return f.tracks[:limit], nil
	}
	return f.tracks, nil
}

func (f *fakeSpotify) TrackRef(_ context.Context, id string) (*models.TrackRef, error) {
	for _, t := range f.tracks {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, shared.ErrTrackNotFound
}

func (f *fakeSpotify) Devices(context.Context) ([]models.Device, error) {
	return f.devices, f.err
}

func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "jamroom.db")
	return config
}

func run(r *Runner, args ...string) error {
	app := &cli.Command{Name: "jamroom", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"jamroom"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			spotify := &fakeSpotify{MockPlayer: tu.NewMockPlayer()}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Spotify:    spotify,
			})

			if runner.config != config || !runner.loaded {
				t.Error("expected injected config to be used as loaded")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.spotify != spotify {
				t.Error("expected spotify to be set")
			}
		})

		t.Run("with nothing provided uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.loaded {
				t.Error("expected a default config to be replaced on load")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "auth", "join", "relay", "search", "devices", "history", "cache"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})

	t.Run("load", func(t *testing.T) {
		t.Run("reads the --config file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			config := shared.DefaultConfig()
			config.Player.DeviceName = "Kitchen"
			config.Log.Level = "debug"
			if err := shared.SaveConfig(path, config); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Output: io.Discard, Spotify: &fakeSpotify{MockPlayer: tu.NewMockPlayer()}})
			if err := run(runner, "devices", "--config", path); err != nil {
				t.Fatalf("devices failed: %v", err)
			}

			if runner.configPath != path {
				t.Errorf("expected configPath %q, got %q", path, runner.configPath)
			}
			if runner.config.Player.DeviceName != "Kitchen" {
				t.Errorf("expected config from file, got device %q", runner.config.Player.DeviceName)
			}
			if runner.logger.GetLevel().String() != "debug" {
				t.Errorf("expected debug level, got %v", runner.logger.GetLevel())
			}
		})

		t.Run("rejects a bad log level", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Log.Level = "chatty"
			runner := NewRunner(RunnerOpts{Config: config, Output: io.Discard, Spotify: &fakeSpotify{MockPlayer: tu.NewMockPlayer()}})

			if err := run(runner, "devices"); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("saveTokens", func(t *testing.T) {
		t.Run("saves tokens successfully", func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")

			config := shared.DefaultConfig()
			config.Credentials.Spotify.ClientID = "test_id"
			config.Credentials.Spotify.ClientSecret = "test_secret"
			if err := shared.SaveConfig(configPath, config); err != nil {
				t.Fatalf("failed to create test config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Config: config, ConfigPath: configPath})

			token := &oauth2.Token{AccessToken: "new_access_token", RefreshToken: "new_refresh_token"}
			if err := runner.saveTokens(token); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			loaded, err := shared.LoadConfig(configPath)
			if err != nil {
				t.Fatalf("failed to reload config: %v", err)
			}
			if loaded.Credentials.Spotify.AccessToken != "new_access_token" {
				t.Errorf("expected access token to be updated, got %s", loaded.Credentials.Spotify.AccessToken)
			}
			if loaded.Credentials.Spotify.RefreshToken != "new_refresh_token" {
				t.Errorf("expected refresh token to be updated, got %s", loaded.Credentials.Spotify.RefreshToken)
			}
			if loaded.Credentials.Spotify.ClientID != "test_id" {
				t.Errorf("expected client id to survive, got %s", loaded.Credentials.Spotify.ClientID)
			}
		})

		t.Run("handles nil config error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/tmp/test.toml"})
			runner.config = nil

			err := runner.saveTokens(&oauth2.Token{AccessToken: "test"})
			if err == nil || !strings.Contains(err.Error(), "config is nil") {
				t.Errorf("expected nil config error, got %v", err)
			}
		})

		t.Run("empty configPath updates memory only", func(t *testing.T) {
			config := shared.DefaultConfig()
			runner := NewRunner(RunnerOpts{Config: config})

			if err := runner.saveTokens(&oauth2.Token{AccessToken: "new_token"}); err != nil {
				t.Fatalf("expected no error with empty path, got %v", err)
			}
			if config.Credentials.Spotify.AccessToken != "new_token" {
				t.Error("expected config to be updated in memory")
			}
		})

		t.Run("handles SaveConfig failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Config:     shared.DefaultConfig(),
				ConfigPath: filepath.Join(t.TempDir(), "missing", "dir", "config.toml"),
			})

			err := runner.saveTokens(&oauth2.Token{AccessToken: "test"})
			if err == nil || !strings.Contains(err.Error(), "failed to save config") {
				t.Errorf("expected save config error, got %v", err)
			}
		})

		t.Run("handles Update error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})

			err := runner.saveTokens(nil)
			if err == nil || !strings.Contains(err.Error(), "failed to update spotify configuration") {
				t.Fatalf("expected update error, got %v", err)
			}
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials in chain, got %v", err)
			}
		})
	})
}

func TestSpotifyCommands(t *testing.T) {
	tracks := []models.TrackRef{
		{ID: "spotify:track:1", Title: "Windowlicker", Artist: "Aphex Twin", DurationMs: 367_000},
		{ID: "spotify:track:2", Title: "Flim", Artist: "Aphex Twin"},
	}

	t.Run("search lists tracks", func(t *testing.T) {
		output := &bytes.Buffer{}
		sp := &fakeSpotify{MockPlayer: tu.NewMockPlayer(), tracks: tracks}
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Output: output, Spotify: sp})

		if err := run(runner, "search", "--limit", "1", "aphex"); err != nil {
			t.Fatalf("search failed: %v", err)
		}

		out := output.String()
		if !strings.Contains(out, "Found 1 tracks") {
			t.Errorf("expected a count, got %s", out)
		}
		if !strings.Contains(out, "1. Aphex Twin - Windowlicker [6:07]") || strings.Contains(out, "Flim") {
			t.Errorf("unexpected listing: %s", out)
		}
	})

	t.Run("search as JSON", func(t *testing.T) {
		output := &bytes.Buffer{}
		sp := &fakeSpotify{MockPlayer: tu.NewMockPlayer(), tracks: tracks}
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Output: output, Spotify: sp})

		if err := run(runner, "search", "--json", "aphex"); err != nil {
			t.Fatalf("search failed: %v", err)
		}

		var decoded []models.TrackRef
		if err := json.Unmarshal(output.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded) != 2 || decoded[0].ID != "spotify:track:1" {
			t.Errorf("unexpected decode: %+v", decoded)
		}
	})

	t.Run("search requires a query", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Output: io.Discard})
		if err := run(runner, "search"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("expired token points at auth", func(t *testing.T) {
		sp := &fakeSpotify{MockPlayer: tu.NewMockPlayer(), err: shared.ErrTokenExpired}
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Output: io.Discard, Spotify: sp})

		err := run(runner, "search", "aphex")
		if !errors.Is(err, shared.ErrTokenExpired) || !strings.Contains(err.Error(), "jamroom auth") {
			t.Errorf("expected an auth hint, got %v", err)
		}
	})

	t.Run("devices marks the active one", func(t *testing.T) {
		output := &bytes.Buffer{}
		sp := &fakeSpotify{MockPlayer: tu.NewMockPlayer(), devices: []models.Device{
			{ID: "a", Name: "Laptop", Type: "Computer", Volume: 40},
			{ID: "b", Name: "Kitchen", Type: "Speaker", Active: true, Volume: 70},
		}}
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Output: output, Spotify: sp})

		if err := run(runner, "devices"); err != nil {
			t.Fatalf("devices failed: %v", err)
		}

		out := output.String()
		if !strings.Contains(out, "  Laptop (Computer) vol 40%") || !strings.Contains(out, "* Kitchen (Speaker) vol 70%") {
			t.Errorf("unexpected listing: %s", out)
		}
	})

	t.Run("service needs credentials", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})
		runner.config.Credentials.Spotify.ClientID = ""

		if _, err := runner.spotifyService(context.Background(), nil); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("service needs a token", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})

		if _, err := runner.spotifyService(context.Background(), nil); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("service is built from stored tokens", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Credentials.Spotify.AccessToken = "stored"
		runner := NewRunner(RunnerOpts{Config: config})

		sp, err := runner.spotifyService(context.Background(), nil)
		if err != nil {
			t.Fatalf("expected a service, got %v", err)
		}
		again, _ := runner.spotifyService(context.Background(), nil)
		if sp != again {
			t.Error("expected the service to be reused")
		}
	})
}

func TestHistory(t *testing.T) {
	config := testConfig(t)
	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	plays := repositories.NewPlayRepository(db)
	ctx := context.Background()
	for _, p := range []struct {
		room  string
		track models.TrackRef
	}{
		{"lobby", models.TrackRef{ID: "spotify:track:1", Title: "One", Artist: "Band", DurationMs: 200_000}},
		{"lobby", models.TrackRef{ID: "spotify:track:2", Title: "Two", Artist: "Band"}},
		{"attic", models.TrackRef{ID: "spotify:track:3", Title: "Three", Artist: "Other"}},
	} {
		if _, err := plays.Record(ctx, p.room, p.track, "user"); err != nil {
			t.Fatalf("failed to record play: %v", err)
		}
	}
	db.Close()

	t.Run("prints one room", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Output: output})

		if err := run(runner, "history", "--room", "lobby"); err != nil {
			t.Fatalf("history failed: %v", err)
		}

		out := output.String()
		if strings.Count(out, "\n") != 2 || strings.Contains(out, "Three") {
			t.Errorf("expected the two lobby plays, got %s", out)
		}
		if !strings.Contains(out, "Band - One [3:20]") {
			t.Errorf("missing track line: %s", out)
		}
	})

	t.Run("csv across rooms", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Output: output})

		if err := run(runner, "history", "--format", "csv"); err != nil {
			t.Fatalf("history failed: %v", err)
		}

		out := output.String()
		if !strings.HasPrefix(out, "Played At,Room") || strings.Count(out, "\n") != 4 {
			t.Errorf("unexpected csv: %s", out)
		}
	})

	t.Run("exports to a file", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Output: output})
		path := filepath.Join(t.TempDir(), "lobby.md")

		if err := run(runner, "history", "--room", "lobby", "--format", "md", "--output", path); err != nil {
			t.Fatalf("history failed: %v", err)
		}

		tu.AssertFileExists(t, path)
		if content := tu.MustReadFile(t, path); !strings.Contains(content, "**Plays**: 2") {
			t.Errorf("unexpected export: %s", content)
		}
		if !strings.Contains(output.String(), "2 plays exported") {
			t.Errorf("expected confirmation, got %s", output.String())
		}
	})

	t.Run("rejects unknown formats", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: config, Output: io.Discard})
		if err := run(runner, "history", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("cache list shows played tracks", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Output: output})

		if err := run(runner, "cache", "list"); err != nil {
			t.Fatalf("cache list failed: %v", err)
		}
		if strings.Count(output.String(), "\n") != 3 {
			t.Errorf("expected three cached tracks, got %s", output.String())
		}
	})

	t.Run("cache prune keeps played tracks", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Output: output})

		if err := run(runner, "cache", "prune", "--older-than", "1ns"); err != nil {
			t.Fatalf("cache prune failed: %v", err)
		}
		if !strings.Contains(output.String(), "Removed 0 cached tracks") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	t.Chdir(dir)

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Output: output})
	if err := run(runner, "setup", "--config", configPath); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	tu.AssertFileExists(t, configPath)
	tu.AssertFileExists(t, filepath.Join(dir, "jamroom.db"))
	if !strings.Contains(output.String(), "Database ready") {
		t.Errorf("unexpected output: %s", output.String())
	}
}

func TestJoin(t *testing.T) {
	t.Run("requires a room", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: testConfig(t), Output: io.Discard})
		if err := run(runner, "join", "--headless"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("rejects unknown source policies", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: testConfig(t), Output: io.Discard})
		if err := run(runner, "join", "--headless", "--source-policy", "grab", "lobby"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestDialRelay(t *testing.T) {
	session := models.Session{Room: "lobby", Participant: "alice"}

	t.Run("redis url", func(t *testing.T) {
		mr := miniredis.RunT(t)
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})

		rl, closeRelay, err := runner.dialRelay(context.Background(), session, "redis://"+mr.Addr())
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		defer closeRelay()
		if _, ok := rl.(*relay.RedisRelay); !ok {
			t.Errorf("expected a redis relay, got %T", rl)
		}
	})

	t.Run("websocket server", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})
		hub := relay.NewHub(runner.logger)
		srv := httptest.NewServer(runner.newRelayServer(hub))
		defer srv.Close()

		rl, closeRelay, err := runner.dialRelay(context.Background(), session, "ws"+strings.TrimPrefix(srv.URL, "http"))
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		defer closeRelay()
		if _, ok := rl.(*relay.WebSocketRelay); !ok {
			t.Errorf("expected a websocket relay, got %T", rl)
		}

		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("health failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Relay.Kind = "carrier-pigeon"
		runner := NewRunner(RunnerOpts{Config: config})

		if _, _, err := runner.dialRelay(context.Background(), session, ""); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
