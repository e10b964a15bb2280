package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jamroom/internal/coordinator"
	"github.com/desertthunder/jamroom/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgView MsgKind = iota
	MsgStatus
	MsgSearchResults
	MsgTick
)

type searchResults struct {
	query  string
	tracks []models.TrackRef
	err    error
}

// viewMsg is the constructor for [MsgView]
func viewMsg(v coordinator.View) Msg {
	return Msg{kind: MsgView, data: v}
}

// statusMsg is the constructor for [MsgStatus]
func statusMsg(text string) Msg {
	return Msg{kind: MsgStatus, data: text}
}

// searchResultsMsg is the constructor for [MsgSearchResults]
func searchResultsMsg(query string, tracks []models.TrackRef, err error) Msg {
	return Msg{kind: MsgSearchResults, data: searchResults{query, tracks, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
