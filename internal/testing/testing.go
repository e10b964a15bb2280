// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/jamroom/internal/models"
)

// PlayerCall is one command received by [MockPlayer].
type PlayerCall struct {
	Method     string
	Track      models.TrackRef
	PositionMs int
	Volume     int
}

// MockPlayer is a test double for a playback device.
//
// Successful commands update the device state the way a real device would, so State reflects them.
// Errors can be queued per method with FailNext or made sticky with Fail.
type MockPlayer struct {
	mu     sync.Mutex
	calls  []PlayerCall
	state  *models.DeviceState
	queued map[string][]error
	sticky map[string]error
	gate   chan struct{}
	polls  int
}

// NewMockPlayer creates a device with nothing loaded.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{queued: map[string][]error{}, sticky: map[string]error{}}
}

// FailNext makes the next call to method return err.
func (m *MockPlayer) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[method] = append(m.queued[method], err)
}

// Fail makes every call to method return err until cleared with a nil err.
func (m *MockPlayer) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.sticky, method)
		return
	}
	m.sticky[method] = err
}

// Hold blocks commands until the returned release func is called.
func (m *MockPlayer) Hold() (release func()) {
	m.mu.Lock()
	gate := make(chan struct{})
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gate == gate {
				m.gate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// SetState replaces what the device reports.
func (m *MockPlayer) SetState(s *models.DeviceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// Calls returns recorded commands, optionally filtered by method.
func (m *MockPlayer) Calls(methods ...string) []PlayerCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PlayerCall
	for _, c := range m.calls {
		if len(methods) == 0 {
			out = append(out, c)
			continue
		}
		for _, method := range methods {
			if c.Method == method {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Count returns how many times method was called.
func (m *MockPlayer) Count(method string) int {
	return len(m.Calls(method))
}

// Polls returns how many times State was called.
func (m *MockPlayer) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

func (m *MockPlayer) do(ctx context.Context, call PlayerCall, apply func(*models.DeviceState) *models.DeviceState) error {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q := m.queued[call.Method]; len(q) > 0 {
		m.queued[call.Method] = q[1:]
		return q[0]
	}
	if err := m.sticky[call.Method]; err != nil {
		return err
	}
	m.state = apply(m.state)
	return nil
}

func (m *MockPlayer) LoadAndPlay(ctx context.Context, track models.TrackRef, positionMs int) error {
	return m.do(ctx, PlayerCall{Method: "LoadAndPlay", Track: track, PositionMs: positionMs}, func(*models.DeviceState) *models.DeviceState {
		t := track
		return &models.DeviceState{Track: &t, PositionMs: positionMs, DurationMs: track.DurationMs}
	})
}

func (m *MockPlayer) Pause(ctx context.Context) error {
	return m.do(ctx, PlayerCall{Method: "Pause"}, func(s *models.DeviceState) *models.DeviceState {
		if s != nil {
			s.Paused = true
		}
		return s
	})
}

func (m *MockPlayer) Resume(ctx context.Context) error {
	return m.do(ctx, PlayerCall{Method: "Resume"}, func(s *models.DeviceState) *models.DeviceState {
		if s != nil {
			s.Paused = false
		}
		return s
	})
}

func (m *MockPlayer) Seek(ctx context.Context, positionMs int) error {
	return m.do(ctx, PlayerCall{Method: "Seek", PositionMs: positionMs}, func(s *models.DeviceState) *models.DeviceState {
		if s != nil {
			s.PositionMs = positionMs
		}
		return s
	})
}

func (m *MockPlayer) Next(ctx context.Context) error {
	return m.do(ctx, PlayerCall{Method: "Next"}, func(s *models.DeviceState) *models.DeviceState { return s })
}

func (m *MockPlayer) Previous(ctx context.Context) error {
	return m.do(ctx, PlayerCall{Method: "Previous"}, func(s *models.DeviceState) *models.DeviceState { return s })
}

func (m *MockPlayer) SetVolume(ctx context.Context, percent int) error {
	return m.do(ctx, PlayerCall{Method: "SetVolume", Volume: percent}, func(s *models.DeviceState) *models.DeviceState {
		if s != nil {
			s.Volume = percent
		}
		return s
	})
}

// State reports a copy of the current device state.
func (m *MockPlayer) State(context.Context) (*models.DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if err := m.sticky["State"]; err != nil {
		return nil, err
	}
	if m.state == nil {
		return nil, nil
	}
	s := *m.state
	if s.Track != nil {
		t := *s.Track
		s.Track = &t
	}
	return &s, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
