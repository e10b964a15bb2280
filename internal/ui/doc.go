// Package ui implements the jamroom terminal interface using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [NowPlayingView] : the room, the current track and its playhead, and the status line
//  2. [SearchView] : search Spotify and pick a track to play for the room
//
// The (view) [Model] implements the standard Init/Update/View pattern, receiving messages via the [Msg] union type.
// Coordinator output reaches it through [ProgramPresenter]; key presses call back into [Controls]. Between views
// from the coordinator, the playhead is extrapolated locally on a one-second tick.
//
// Keyboard bindings (space, ←/→, n/p, +/-, /, enter, esc, ?, q) are listed with charmbracelet/bubbles/help.
//
// [LogPresenter] replaces the TUI for headless sessions.
package ui
