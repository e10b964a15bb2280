// Package services wraps the Spotify Web API as the room client's playback control surface.
//
// # Interfaces
//
// [Player] is what the coordinator drives: load a track at a position, pause, resume, seek, skip, set
// the volume and read the device state. [Catalog] searches tracks and resolves bare URIs into
// display metadata. Both are implemented by [SpotifyService].
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication. The token source refreshes expired access tokens
// with the refresh token, and [SpotifyService.SetTokenRefreshCallback] lets the CLI persist the new token.
// Outbound requests pass through an [rate.Limiter]. Catalog lookups can be cached through [TrackCache].
//
// # Device Notifications
//
// The Web API only reports state when asked, so [Watcher] polls [Player.State] and emits a notification
// when the track, the paused flag or the playhead changes, or when playback stops.
//
// # Error Handling
//
// Failures map onto shared sentinels:
//   - [shared.ErrRateLimited] : HTTP 429
//   - [shared.ErrDeviceUnavailable] : no active or named device
//   - [shared.ErrTokenExpired] : HTTP 401 or a failed refresh
//   - [shared.ErrTransientPlayback] : any other player command failure
//   - [shared.ErrTrackNotFound], [shared.ErrAPIRequest] : catalog failures
package services
