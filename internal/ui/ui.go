package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jamroom/internal/coordinator"
	"github.com/desertthunder/jamroom/internal/formatter"
	"github.com/desertthunder/jamroom/internal/models"
)

const (
	searchLimit   = 20
	searchTimeout = 10 * time.Second
	seekStepMs    = 10_000
	volumeStep    = 10
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	NowPlayingView ViewState = iota
	SearchView
)

// Controls are the playback actions the TUI can trigger. [coordinator.Coordinator] implements them.
type Controls interface {
	SelectTrack(models.TrackRef)
	TogglePlay()
	SeekBy(deltaMs int)
	Next()
	Previous()
	ChangeVolume(delta int)
}

// Searcher finds tracks to play.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.TrackRef, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	controls  Controls
	catalog   Searcher
	now       coordinator.View
	received  time.Time
	clock     func() time.Time
	status    string
	width     int
	height    int
	input     textinput.Model
	results   list.Model
	searching bool
	spinner   spinner.Model
	bar       progress.Model
	help      help.Model
	keys      keyMap
}

// NewModel creates the TUI for session. catalog may be nil, which disables search.
func NewModel(ctx context.Context, session models.Session, controls Controls, catalog Searcher) *Model {
	input := textinput.New()
	input.Placeholder = "search Spotify"
	input.CharLimit = 120

	results := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	results.Title = "Results"
	results.SetFilteringEnabled(false)
	results.SetShowHelp(false)

	return &Model{
		ctx:      ctx,
		view:     NowPlayingView,
		controls: controls,
		catalog:  catalog,
		now:      coordinator.View{Session: session, Listeners: 1},
		clock:    time.Now,
		input:    input,
		results:  results,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:      progress.New(progress.WithSolidFill("#1DB954"), progress.WithoutPercentage(), progress.WithWidth(40)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts the playhead ticker.
func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.results.SetSize(max(msg.Width-4, 20), max(msg.Height-8, 5))
		m.bar.Width = min(max(msg.Width-20, 10), 60)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.view == SearchView {
			return m.handleSearchKeys(msg)
		}
		return m.handleNowPlayingKeys(msg)

	case Msg:
		return m.handleMsg(msg)

	case spinner.TickMsg:
		if !m.searching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateInputs(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgView:
		m.now = msg.data.(coordinator.View)
		m.received = m.clock()
	case MsgStatus:
		m.status = msg.data.(string)
	case MsgSearchResults:
		res := msg.data.(searchResults)
		m.searching = false
		if res.err != nil {
			m.status = fmt.Sprintf("search failed: %v", res.err)
			m.input.Focus()
			return m, nil
		}
		m.results.Title = fmt.Sprintf("Results for %q", res.query)
		cmd := m.results.SetItems(trackItems(res.tracks))
		if len(res.tracks) == 0 {
			m.status = "no tracks found"
			m.input.Focus()
		}
		return m, cmd
	case MsgTick:
		return m, tick()
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SearchView:
		return m.renderSearch()
	default:
		return m.renderNowPlaying()
	}
}

func (m *Model) handleNowPlayingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		m.controls.TogglePlay()
	case key.Matches(msg, m.keys.forward):
		m.controls.SeekBy(seekStepMs)
	case key.Matches(msg, m.keys.backward):
		m.controls.SeekBy(-seekStepMs)
	case key.Matches(msg, m.keys.next):
		m.controls.Next()
	case key.Matches(msg, m.keys.previous):
		m.controls.Previous()
	case key.Matches(msg, m.keys.louder):
		m.controls.ChangeVolume(volumeStep)
	case key.Matches(msg, m.keys.quieter):
		m.controls.ChangeVolume(-volumeStep)
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.search):
		if m.catalog == nil {
			m.status = "search is unavailable"
			return m, nil
		}
		m.view = SearchView
		m.input.SetValue("")
		return m, m.input.Focus()
	}
	return m, nil
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.input.Focused() {
		switch {
		case key.Matches(msg, m.keys.back):
			m.view = NowPlayingView
			m.input.Blur()
			return m, nil
		case key.Matches(msg, m.keys.enter):
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.searching {
				return m, nil
			}
			m.searching = true
			m.input.Blur()
			return m, tea.Batch(m.spinner.Tick, m.search(query))
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.back):
		m.view = NowPlayingView
		return m, nil
	case key.Matches(msg, m.keys.search):
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.results.SelectedItem().(trackItem); ok {
			m.controls.SelectTrack(item.track)
			m.view = NowPlayingView
			m.status = "loading " + item.track.String()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != SearchView {
		return m, nil
	}
	var cmd tea.Cmd
	if m.input.Focused() {
		m.input, cmd = m.input.Update(msg)
	} else {
		m.results, cmd = m.results.Update(msg)
	}
	return m, cmd
}

func (m *Model) search(query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, searchTimeout)
		defer cancel()
		tracks, err := m.catalog.Search(ctx, query, searchLimit)
		return searchResultsMsg(query, tracks, err)
	}
}

// position extrapolates the playhead from the last view.
func (m *Model) position() int {
	pos := m.now.PositionMs
	if m.now.Track != nil && !m.now.Paused && !m.received.IsZero() {
		pos += int(m.clock().Sub(m.received) / time.Millisecond)
	}
	if m.now.DurationMs > 0 {
		pos = min(pos, m.now.DurationMs)
	}
	return pos
}

func (m *Model) renderHeader() string {
	s := m.now.Session
	listeners := "1 listener"
	if m.now.Listeners != 1 {
		listeners = fmt.Sprintf("%d listeners", m.now.Listeners)
	}
	return fmt.Sprintf("%s %s as %s · %s · vol %d%%",
		styles.badge.Render(strings.ToUpper(m.now.Role.String())), s.Room, s.Participant, listeners, m.now.Volume)
}

func (m *Model) renderNowPlaying() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.now.Idle() {
		b.WriteString(styles.help.Render("  Nothing playing. Press / to search, or wait for someone in the room."))
	} else {
		t := m.now.Track
		title := t.Title
		if title == "" {
			title = t.ID
		}
		b.WriteString("  " + styles.track.Render(title) + "\n")
		byline := t.Artist
		if t.Album != "" {
			byline = fmt.Sprintf("%s • %s", byline, t.Album)
		}
		b.WriteString("  " + styles.artist.Render(byline) + "\n\n")

		state := "▶"
		if m.now.Paused {
			state = "⏸"
		}
		pos := m.position()
		ratio := 0.0
		if m.now.DurationMs > 0 {
			ratio = float64(pos) / float64(m.now.DurationMs)
		}
		fmt.Fprintf(&b, "  %s %s %s %s", state, formatter.FormatDuration(pos), m.bar.ViewAs(ratio), formatter.FormatDuration(m.now.DurationMs))
	}

	b.WriteString("\n\n")
	if m.status != "" {
		b.WriteString(styles.warn.Render(m.status) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderSearch() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Search"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch {
	case m.searching:
		b.WriteString(m.spinner.View() + " searching...")
	case len(m.results.Items()) > 0:
		b.WriteString(m.results.View())
	}

	b.WriteString("\n\n")
	if m.status != "" {
		b.WriteString(styles.warn.Render(m.status) + "\n")
	}
	keys := []key.Binding{m.keys.enter, m.keys.back}
	if !m.input.Focused() {
		keys = append(keys, m.keys.search)
	}
	b.WriteString(m.help.ShortHelpView(keys))
	return b.String()
}
