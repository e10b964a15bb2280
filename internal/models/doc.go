// Package models defines the value types exchanged between the room coordinator, the playback device,
// the relay and the terminal UI.
//
// The package contains three groups of types:
//
// 1. Catalog values
//   - [TrackRef] : Opaque track identifier with display metadata, carried in every sync event
//   - [Device] : A Spotify Connect playback target
//
// 2. Session values
//   - [Session] : Room key and local participant identity, fixed for the lifetime of a join
//   - [Role] : Tagged source/listener state asserted by action rather than elected
//
// 3. Playback snapshots
//   - [PlaybackState] : The coordinator-owned view of local playback
//   - [DeviceState] : What the device reports; nil means no active track
//
// None of these types are persisted except [TrackRef], which the repositories package caches by ID.
package models
