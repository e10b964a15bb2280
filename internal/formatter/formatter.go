// package formatter renders tracks and play history for the terminal and for export (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
)

// Format names an export format.
type Format string

const (
	FormatText     Format = "txt"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or a common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

// FormatDuration renders milliseconds as m:ss, or h:mm:ss from an hour up.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// TrackLine renders "Artist - Title (Album) [m:ss]", leaving out whatever is unknown.
func TrackLine(t models.TrackRef) string {
	var b strings.Builder
	if t.Artist != "" {
		b.WriteString(t.Artist + " - ")
	}
	if t.Title != "" {
		b.WriteString(t.Title)
	} else {
		b.WriteString(t.ID)
	}
	if t.Album != "" {
		fmt.Fprintf(&b, " (%s)", t.Album)
	}
	if t.DurationMs > 0 {
		fmt.Fprintf(&b, " [%s]", FormatDuration(t.DurationMs))
	}
	return b.String()
}

// ExportToCSV writes plays with columns: Played At, Room, Origin, ID, Title, Artist, Album, Duration (ms)
func ExportToCSV(plays []models.Play) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Played At", "Room", "Origin", "ID", "Title", "Artist", "Album", "Duration"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, p := range plays {
		record := []string{
			p.PlayedAt.UTC().Format(time.RFC3339),
			p.Room,
			p.Origin,
			p.Track.ID,
			p.Track.Title,
			p.Track.Artist,
			p.Track.Album,
			strconv.Itoa(p.Track.DurationMs),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown renders plays as a numbered list under a heading for room.
func ExportToMarkdown(room string, plays []models.Play) ([]byte, error) {
	var buf bytes.Buffer

	title := "All rooms"
	if room != "" {
		title = room
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Plays**: %d\n\n", len(plays))

	for i, p := range plays {
		fmt.Fprintf(&buf, "%d. %s _(%s, %s)_\n", i+1, TrackLine(p.Track), p.Origin, p.PlayedAt.Local().Format("Jan 2 15:04"))
	}
	return buf.Bytes(), nil
}

// ExportToText renders one play per line.
func ExportToText(plays []models.Play) ([]byte, error) {
	var buf bytes.Buffer
	for _, p := range plays {
		fmt.Fprintf(&buf, "%s  %-8s %-7s %s\n", p.PlayedAt.Local().Format("2006-01-02 15:04"), p.Room, p.Origin, TrackLine(p.Track))
	}
	return buf.Bytes(), nil
}

// ExportToJSON renders plays as an indented JSON array.
func ExportToJSON(plays []models.Play) ([]byte, error) {
	if plays == nil {
		plays = []models.Play{}
	}
	data, err := json.MarshalIndent(plays, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plays: %w", err)
	}
	return append(data, '\n'), nil
}

// Export renders plays for room in format.
func Export(format Format, room string, plays []models.Play) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(plays)
	case FormatMarkdown:
		return ExportToMarkdown(room, plays)
	case FormatJSON:
		return ExportToJSON(plays)
	default:
		return ExportToText(plays)
	}
}

// WriteExport writes plays to path in format.
//
// Defaults to {room}_history.{format}, or history.{format} across all rooms.
func WriteExport(format Format, room string, plays []models.Play, path string) (string, error) {
	if path == "" {
		base := "history"
		if room != "" {
			base = room + "_history"
		}
		path = fmt.Sprintf("%s.%s", base, format)
	}

	data, err := Export(format, room, plays)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
