// Package relay implements the room-scoped event channel that carries playback sync between participants.
//
// # Wire format
//
// Every transport exchanges the same JSON envelope:
//
//	{"type": "song_play", "room_key": "lobby", "sender": "alice", "payload": {...}}
//
// [Encode] and [Decode] validate envelopes and payloads with go-playground/validator. Decoding failures wrap
// shared.ErrInvalidSyncPayload; transports log and drop such frames without surfacing them to the coordinator.
//
// # Events
//
// Clients publish join, leave, song_play, song_update and sync_request. Peers receive song_play as
// song_play_sync and song_update as sync_playback (see [Mirror]); the publisher never receives its own
// play, update or sync request. The relay itself emits room_message on membership changes.
//
// # Transports
//
//   - [Hub] and [Member] route in-process. The relay server wraps a Hub; tests use it directly.
//   - [WebSocketRelay] dials a relay server (cmd "jamroom relay").
//   - [RedisRelay] uses Redis pub/sub with no server, filtering its own publishes on receipt.
package relay
