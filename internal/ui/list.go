package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/jamroom/internal/formatter"
	"github.com/desertthunder/jamroom/internal/models"
)

var _ list.Item = trackItem{}

// trackItem wraps [models.TrackRef] to implement [list.Item].
type trackItem struct {
	track models.TrackRef
}

func (i trackItem) FilterValue() string { return i.track.Title + " " + i.track.Artist }
func (i trackItem) Title() string       { return i.track.Title }
func (i trackItem) Description() string {
	desc := i.track.Artist
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	if i.track.DurationMs > 0 {
		desc = fmt.Sprintf("%s • %s", desc, formatter.FormatDuration(i.track.DurationMs))
	}
	return desc
}

func trackItems(tracks []models.TrackRef) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
