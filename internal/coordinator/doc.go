// Package coordinator keeps one participant's Spotify device in step with a shared room.
//
// # Event loop
//
// A [Coordinator] owns its role, playback state, rate-limit window, restoration counter and timers, and
// only touches them from the loop started by [Coordinator.Run]. Relay deliveries ([Coordinator.HandleEvent]),
// device notifications ([Coordinator.HandleDevice]), user controls, timer expiries and device-call results
// all arrive as closures on one channel. Device calls run in their own goroutines and post back.
//
// # Roles
//
// Selecting a track makes the participant SOURCE at once. Following a peer's broadcast of a different track
// makes it LISTENER. There is no election: two participants that select tracks within moments of each
// other both become SOURCE, and every listener ends up on whichever broadcast reached it last. Sync
// requests refused by the cooldown are parked and retried, so the last arrival wins even inside it.
//
// # Admission
//
// [Policy.Admit] checks a play in a fixed order: rate-limit penalty, duplicate within the dedup window
// (skipped for restores), a command in flight, then the cooldown.
//
// # Echo suppression
//
// A SOURCE broadcasts only after the device confirms, debounced by the stabilization delay, and then
// ignores inbound sync for the protection window. Plays that follow a peer or restore playback never
// broadcast. What a SOURCE does with an inbound sync outside the window depends on [SourcePolicy].
//
// # Restoration
//
// When an engaged device reports that nothing is loaded, the remembered track is replayed from the start
// up to [Timings.RestoreAttempts] times, [Timings.RestoreDelay] apart. Any notification with a track ends
// the episode; exhausting it clears playback.
package coordinator
