package services

import (
	"context"

	"github.com/desertthunder/jamroom/internal/models"
	"golang.org/x/oauth2"
)

// Player controls the participant's own playback device.
//
// Implementations map provider failures onto shared.ErrRateLimited, shared.ErrDeviceUnavailable
// and shared.ErrTransientPlayback so callers can react without knowing the provider.
type Player interface {
	// LoadAndPlay starts track on the device at positionMs.
	LoadAndPlay(ctx context.Context, track models.TrackRef, positionMs int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetVolume(ctx context.Context, percent int) error

	// State reports what the device is doing. A nil state with a nil error means nothing is loaded.
	State(ctx context.Context) (*models.DeviceState, error)
}

// Catalog resolves tracks for search and for enriching bare track identifiers.
type Catalog interface {
	Search(ctx context.Context, query string, limit int) ([]models.TrackRef, error)
	TrackRef(ctx context.Context, id string) (*models.TrackRef, error)
}

// TrackCache stores resolved track metadata between catalog lookups.
type TrackCache interface {
	Get(ctx context.Context, id string) (*models.TrackRef, error)
	Put(ctx context.Context, track models.TrackRef) error
}

// OAuthService is implemented by providers that authenticate through a browser redirect.
type OAuthService interface {
	GetAuthURL(state string) string
	OAuthConfig() *oauth2.Config
}
