// Package repositories implements SQLite persistence for the room client.
//
// Key Implementations:
//   - [TrackRepository] : track metadata cache keyed by Spotify URI, used by the catalog to avoid refetching
//   - [PlayRepository] : local play log, one row per track the client started, with the origin of the request
//
// Schema lives in shared/sql and is applied by shared.RunMigrations.
package repositories
