// Package server provides the HTTP side of jamroom.
//
// # Router
//
// The [Router] interface registers handlers behind a shared middleware stack. [ChiRouter] implements it
// with chi so that handlers can declare parameterized routes. [Middleware] added first runs outermost.
//
// Handlers that serve more than one route implement [Handler], which adds Routes to [http.Handler].
//
// # Relay endpoint
//
// [RelayHandler] serves GET /ws/rooms/{room}?participant=name. The connection joins a [relay.Hub]; client
// frames are routed through the hub and hub events are written back. The server pings every 54s and drops
// connections silent for a minute. [HealthHandler] serves /health.
//
// # OAuth callback
//
// [OAuthHandler] completes the Spotify authorization code flow for `jamroom auth`. A temporary server on
// the redirect address handles one callback, checks the state token and exchanges the code. The token
// arrives on [OAuthHandler.Result].
package server
