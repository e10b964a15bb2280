package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
	th "github.com/desertthunder/jamroom/internal/testing"
)

func samplePlays() []models.Play {
	at := time.Date(2025, 3, 14, 20, 15, 0, 0, time.UTC)
	return []models.Play{
		{
			ID:       "p2",
			Room:     "lobby",
			Origin:   "sync",
			PlayedAt: at.Add(4 * time.Minute),
			Track:    models.TrackRef{ID: "spotify:track:2", Title: "Song Two", Artist: "Artist Two", DurationMs: 240_000},
		},
		{
			ID:       "p1",
			Room:     "lobby",
			Origin:   "user",
			PlayedAt: at,
			Track:    models.TrackRef{ID: "spotify:track:1", Title: "Song, One", Artist: "Artist One", Album: "Album One", DurationMs: 180_000},
		},
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{0, "0:00"},
		{-5, "0:00"},
		{999, "0:00"},
		{61_000, "1:01"},
		{754_000, "12:34"},
		{3_600_000, "1:00:00"},
		{3_723_000, "1:02:03"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestTrackLine(t *testing.T) {
	tests := []struct {
		name  string
		track models.TrackRef
		want  string
	}{
		{"full", models.TrackRef{ID: "x", Title: "Song", Artist: "Band", Album: "LP", DurationMs: 200_000}, "Band - Song (LP) [3:20]"},
		{"no album", models.TrackRef{ID: "x", Title: "Song", Artist: "Band"}, "Band - Song"},
		{"bare ref", models.TrackRef{ID: "spotify:track:x"}, "spotify:track:x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrackLine(tt.track); got != tt.want {
				t.Errorf("TrackLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "csv": FormatCSV, "markdown": FormatMarkdown, "json": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("ParseFormat(xml) error = %v, want ErrInvalidArgument", err)
	}
}

func TestExporters(t *testing.T) {
	plays := samplePlays()

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(plays)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		output := string(data)

		if !strings.HasPrefix(output, "Played At,Room,Origin,ID,Title,Artist,Album,Duration\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "2025-03-14T20:15:00Z,lobby,user,spotify:track:1,\"Song, One\",Artist One,Album One,180000") {
			t.Errorf("CSV row not quoted as expected, got: %s", output)
		}
		if lines := strings.Count(output, "\n"); lines != 3 {
			t.Errorf("expected 3 lines, got %d", lines)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown("lobby", plays)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)

		if !strings.HasPrefix(output, "# lobby\n") {
			t.Errorf("missing heading, got: %s", output)
		}
		if !strings.Contains(output, "**Plays**: 2") {
			t.Errorf("missing play count")
		}
		if !strings.Contains(output, "1. Artist Two - Song Two [4:00] _(sync,") {
			t.Errorf("missing first entry, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown all rooms", func(t *testing.T) {
		data, _ := ExportToMarkdown("", nil)
		if !strings.HasPrefix(string(data), "# All rooms") {
			t.Errorf("unexpected heading: %s", data)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(plays)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(lines))
		}
		if !strings.Contains(lines[1], "Artist One - Song, One (Album One) [3:00]") {
			t.Errorf("unexpected line: %s", lines[1])
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(plays)
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}
		var decoded []models.Play
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded) != 2 || decoded[1].Track.Album != "Album One" {
			t.Errorf("unexpected decode: %+v", decoded)
		}

		empty, _ := ExportToJSON(nil)
		if strings.TrimSpace(string(empty)) != "[]" {
			t.Errorf("empty history should be [], got %s", empty)
		}
	})
}

func TestWriteExport(t *testing.T) {
	dir := t.TempDir()

	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(dir, "out.csv")
		got, err := WriteExport(FormatCSV, "lobby", samplePlays(), path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != path {
			t.Errorf("got path %q, want %q", got, path)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.Contains(content, "Song Two") {
			t.Errorf("export missing track: %s", content)
		}
	})

	t.Run("default name", func(t *testing.T) {
		t.Chdir(dir)
		got, err := WriteExport(FormatMarkdown, "lobby", samplePlays(), "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != "lobby_history.md" {
			t.Errorf("got %q", got)
		}
		th.AssertFileExists(t, filepath.Join(dir, got))
	})
}
