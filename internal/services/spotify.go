// Spotify Web API implementation of [Player] and [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jamroom/internal/models"
	"github.com/desertthunder/jamroom/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	defaultRedirectURI = "http://127.0.0.1:3000/callback"
	maxSearchLimit     = 50
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyDevice represents a Connect device.
type SpotifyDevice struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	VolumePercent int    `json:"volume_percent"`
}

// SpotifyPlayback is the body of GET /me/player.
type SpotifyPlayback struct {
	Device     SpotifyDevice `json:"device"`
	ProgressMS int           `json:"progress_ms"`
	IsPlaying  bool          `json:"is_playing"`
	Item       *SpotifyTrack `json:"item"`
}

type spotifyError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// Ref converts the track to the shared descriptor, keyed by its URI.
func (t SpotifyTrack) Ref() models.TrackRef {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	ref := models.TrackRef{
		ID:         t.URI,
		Title:      t.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      t.Album.Name,
		DurationMs: t.DurationMS,
	}
	if ref.ID == "" && t.ID != "" {
		ref.ID = "spotify:track:" + t.ID
	}
	if len(t.Album.Images) > 0 {
		ref.Artwork = t.Album.Images[0].URL
	}
	return ref
}

func (d SpotifyDevice) model() models.Device {
	return models.Device{ID: d.ID, Name: d.Name, Type: d.Type, Active: d.IsActive, Volume: d.VolumePercent}
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithBaseURL points the service at a different API root.
func WithBaseURL(u string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client underneath the OAuth2 transport.
func WithHTTPClient(c *http.Client) SpotifyOption {
	return func(s *SpotifyService) { s.base = c }
}

// WithRateLimit caps outbound requests per second. Zero or less disables the limiter.
func WithRateLimit(rps float64) SpotifyOption {
	return func(s *SpotifyService) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithDeviceName targets playback commands at the named Connect device instead of the active one.
func WithDeviceName(name string) SpotifyOption {
	return func(s *SpotifyService) { s.deviceName = name }
}

// WithTrackCache caches catalog lookups.
func WithTrackCache(c TrackCache) SpotifyOption {
	return func(s *SpotifyService) { s.cache = c }
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) { s.logger = l }
}

// SpotifyService controls a Spotify Connect device and searches the catalog.
// Uses [oauth2] for authentication; the token source refreshes expired access tokens.
type SpotifyService struct {
	config     *oauth2.Config
	tokens     oauth2.TokenSource
	httpClient *http.Client
	base       *http.Client
	baseURL    string
	limiter    *rate.Limiter
	cache      TrackCache
	logger     *log.Logger

	deviceName string
	mu         sync.Mutex
	deviceID   string

	onTokenRefresh func(*oauth2.Token)
	refreshable    *refreshableTokenSource
}

// refreshableTokenSource reports every new access token to callback so it can be persisted.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	mu       sync.Mutex
	last     string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	callback := r.callback
	r.mu.Unlock()

	if changed && callback != nil {
		callback(token)
	}
	return token, nil
}

func (r *refreshableTokenSource) setCallback(fn func(*oauth2.Token)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = fn
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: client_id", shared.ErrMissingArgument)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: client_secret", shared.ErrMissingArgument)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = defaultRedirectURI
	}

	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes: []string{
				"user-read-private",
				"user-read-playback-state",
				"user-modify-playback-state",
				"user-read-currently-playing",
			},
			Endpoint: oauth2.Endpoint{AuthURL: spotifyAuthURL, TokenURL: spotifyTokenURL},
		},
		base:    http.DefaultClient,
		baseURL: spotifyBaseURL,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}
	s.logger = shared.WithLogger(s.logger, "service", "spotify")
	return s, nil
}

// Authenticate installs a token. Expects an "access_token" (optionally with "refresh_token" and an RFC3339
// "token_expiry") or an "auth_code" to exchange.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	var token *oauth2.Token

	switch {
	case credentials["access_token"] != "":
		token = &oauth2.Token{
			AccessToken:  credentials["access_token"],
			RefreshToken: credentials["refresh_token"],
			TokenType:    "Bearer",
		}
		if exp := credentials["token_expiry"]; exp != "" {
			if t, err := time.Parse(time.RFC3339, exp); err == nil {
				token.Expiry = t
			}
		}
	case credentials["auth_code"] != "":
		exchanged, err := s.config.Exchange(s.clientContext(ctx), credentials["auth_code"])
		if err != nil {
			return fmt.Errorf("failed to exchange auth code: %w", err)
		}
		token = exchanged
	default:
		return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrNotAuthenticated)
	}

	// The token source outlives ctx, so refreshes must not be bound to it.
	s.refreshable = &refreshableTokenSource{
		source:   s.config.TokenSource(s.clientContext(context.Background()), token),
		callback: s.onTokenRefresh,
		last:     token.AccessToken,
	}
	s.tokens = s.refreshable
	s.httpClient = oauth2.NewClient(s.clientContext(context.Background()), s.tokens)
	return nil
}

// SetTokenRefreshCallback registers fn to receive tokens obtained by refresh.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.onTokenRefresh = fn
	if s.refreshable != nil {
		s.refreshable.setCallback(fn)
	}
}

func (s *SpotifyService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.base)
}

// Token returns the current, possibly refreshed, token so callers can persist it.
func (s *SpotifyService) Token() (*oauth2.Token, error) {
	if s.tokens == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return s.tokens.Token()
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// OAuthConfig exposes the OAuth2 configuration for the callback handler.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// doRequest performs an authenticated request against the Web API and decodes the JSON response into result.
// It returns the response status so callers can distinguish 204 from 200.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) (int, error) {
	if s.httpClient == nil {
		return 0, fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return 0, fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
		}
		return 0, fmt.Errorf("%w: %v", shared.ErrTransientPlayback, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, classify(endpoint, resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// classify maps an error response onto the shared playback errors.
func classify(endpoint string, resp *http.Response) error {
	var body spotifyError
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	player := strings.HasPrefix(endpoint, "/me/player")

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if after := resp.Header.Get("Retry-After"); after != "" {
			return fmt.Errorf("%w: retry after %ss", shared.ErrRateLimited, after)
		}
		return shared.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrTokenExpired, msg)
	case body.Error.Reason == "NO_ACTIVE_DEVICE", player && resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrDeviceUnavailable, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, msg)
	case player:
		return fmt.Errorf("%w: status %d: %s", shared.ErrTransientPlayback, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
	}
}

// deviceQuery returns the device_id parameter for the configured device, resolving it on first use.
func (s *SpotifyService) deviceQuery(ctx context.Context) (url.Values, error) {
	q := url.Values{}
	if s.deviceName == "" {
		return q, nil
	}

	s.mu.Lock()
	id := s.deviceID
	s.mu.Unlock()

	if id == "" {
		devices, err := s.Devices(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range devices {
			if strings.EqualFold(d.Name, s.deviceName) {
				id = d.ID
				break
			}
		}
		if id == "" {
			return nil, fmt.Errorf("%w: no device named %q", shared.ErrDeviceUnavailable, s.deviceName)
		}
		s.mu.Lock()
		s.deviceID = id
		s.mu.Unlock()
	}

	q.Set("device_id", id)
	return q, nil
}

// command issues a playback control request, dropping a cached device id the API no longer recognizes.
func (s *SpotifyService) command(ctx context.Context, method, endpoint string, extra url.Values, body any) error {
	q, err := s.deviceQuery(ctx)
	if err != nil {
		return err
	}
	for k, v := range extra {
		q[k] = v
	}

	_, err = s.doRequest(ctx, method, endpoint, q, body, nil)
	if errors.Is(err, shared.ErrDeviceUnavailable) {
		s.mu.Lock()
		s.deviceID = ""
		s.mu.Unlock()
	}
	return err
}

// LoadAndPlay starts track at positionMs.
func (s *SpotifyService) LoadAndPlay(ctx context.Context, track models.TrackRef, positionMs int) error {
	if track.ID == "" {
		return fmt.Errorf("%w: track uri", shared.ErrMissingArgument)
	}
	body := map[string]any{
		"uris":        []string{track.ID},
		"position_ms": max(positionMs, 0),
	}
	return s.command(ctx, http.MethodPut, "/me/player/play", nil, body)
}

// Pause pauses playback.
func (s *SpotifyService) Pause(ctx context.Context) error {
	return s.command(ctx, http.MethodPut, "/me/player/pause", nil, nil)
}

// Resume continues the current track.
func (s *SpotifyService) Resume(ctx context.Context) error {
	return s.command(ctx, http.MethodPut, "/me/player/play", nil, nil)
}

// Seek moves the playhead.
func (s *SpotifyService) Seek(ctx context.Context, positionMs int) error {
	q := url.Values{"position_ms": {strconv.Itoa(max(positionMs, 0))}}
	return s.command(ctx, http.MethodPut, "/me/player/seek", q, nil)
}

func (s *SpotifyService) Next(ctx context.Context) error {
	return s.command(ctx, http.MethodPost, "/me/player/next", nil, nil)
}

func (s *SpotifyService) Previous(ctx context.Context) error {
	return s.command(ctx, http.MethodPost, "/me/player/previous", nil, nil)
}

// SetVolume sets the device volume, clamped to 0..100.
func (s *SpotifyService) SetVolume(ctx context.Context, percent int) error {
	q := url.Values{"volume_percent": {strconv.Itoa(min(max(percent, 0), 100))}}
	return s.command(ctx, http.MethodPut, "/me/player/volume", q, nil)
}

// State reports current playback. No active playback or an ad/episode with no track yields nil.
func (s *SpotifyService) State(ctx context.Context) (*models.DeviceState, error) {
	var playback SpotifyPlayback
	status, err := s.doRequest(ctx, http.MethodGet, "/me/player", nil, nil, &playback)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || playback.Item == nil || playback.Item.URI == "" && playback.Item.ID == "" {
		return nil, nil
	}

	track := playback.Item.Ref()
	return &models.DeviceState{
		Track:      &track,
		Paused:     !playback.IsPlaying,
		PositionMs: playback.ProgressMS,
		DurationMs: playback.Item.DurationMS,
		DeviceID:   playback.Device.ID,
		DeviceName: playback.Device.Name,
		Volume:     playback.Device.VolumePercent,
	}, nil
}

// Devices lists the user's Connect devices.
func (s *SpotifyService) Devices(ctx context.Context) ([]models.Device, error) {
	var response struct {
		Devices []SpotifyDevice `json:"devices"`
	}
	if _, err := s.doRequest(ctx, http.MethodGet, "/me/player/devices", nil, nil, &response); err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(response.Devices))
	for _, d := range response.Devices {
		devices = append(devices, d.model())
	}
	return devices, nil
}

// Search returns up to limit tracks matching query and caches them.
func (s *SpotifyService) Search(ctx context.Context, query string, limit int) ([]models.TrackRef, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, maxSearchLimit)

	q := url.Values{"q": {query}, "type": {"track"}, "limit": {strconv.Itoa(limit)}}
	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	if _, err := s.doRequest(ctx, http.MethodGet, "/search", q, nil, &response); err != nil {
		return nil, err
	}

	refs := make([]models.TrackRef, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		ref := item.Ref()
		refs = append(refs, ref)
		s.remember(ctx, ref)
	}
	return refs, nil
}

// TrackRef resolves a track URI (or bare id) to full metadata, consulting the cache first.
func (s *SpotifyService) TrackRef(ctx context.Context, id string) (*models.TrackRef, error) {
	trackID := spotifyID(id)
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	if s.cache != nil {
		if ref, err := s.cache.Get(ctx, "spotify:track:"+trackID); err == nil && ref != nil {
			return ref, nil
		} else if err != nil && !errors.Is(err, shared.ErrTrackNotFound) {
			s.logger.Debug("track cache lookup failed", "track", trackID, "error", err)
		}
	}

	var track SpotifyTrack
	if _, err := s.doRequest(ctx, http.MethodGet, "/tracks/"+url.PathEscape(trackID), nil, nil, &track); err != nil {
		return nil, err
	}

	ref := track.Ref()
	s.remember(ctx, ref)
	return &ref, nil
}

func (s *SpotifyService) remember(ctx context.Context, ref models.TrackRef) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, ref); err != nil {
		s.logger.Warn("failed to cache track", "track", ref.ID, "error", err)
	}
}

// spotifyID strips the "spotify:track:" prefix or an open.spotify.com URL down to the bare id.
func spotifyID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "spotify:track:") {
		return strings.TrimPrefix(id, "spotify:track:")
	}
	if u, err := url.Parse(id); err == nil && u.Host == "open.spotify.com" {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 && parts[len(parts)-2] == "track" {
			return parts[len(parts)-1]
		}
	}
	return id
}
