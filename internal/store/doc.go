// Package store moves persistence off the control loop: the engine fires
// small events into a buffered queue and a worker goroutine applies them to
// SQLite at its own pace.
//
// # Architecture
//
//	 engine ──► chan Event ──► Worker ──► Repository ──► SQLite
//	 (non-blocking send;        │
//	  drops on full queue)      └──► Reloader (devices file re-read)
//
// The channel is the only coupling between the cycle and the database. The
// engine's send never blocks: a cycle runs in microseconds and a disk stall
// must not stretch it. Dropped counter bumps are acceptable; dropped relay
// commands would not be, which is why relay state never travels this path.
//
// # Event Kinds
//
// Counter increments (relay, sensor, yeelight) UPSERT into the counters
// table. ReloadDevices is a control event: command surfaces queue it and the
// worker drives the loader, so a reload serialises with counter writes
// instead of racing them.
package store
