// Package yeelight drives Yeelight smart bulbs over their LAN control
// protocol so network lights can participate in automation alongside
// bus-wired relays.
//
// # Architecture
//
//	┌───────────────────────────────────────────────┐
//	│                  Controller                   │
//	│                                               │
//	│  SetPower(addr, on)                           │
//	│    │                                          │
//	│    ├── dial addr:55443 (fresh per command)    │
//	│    ├── write {"id":n,"method":"set_power",…}  │
//	│    └── read lines until reply id == n         │
//	│                                               │
//	└───────────────────────────────────────────────┘
//	                      │
//	                      ▼
//	          bulb (LAN control enabled)
//
// The protocol is newline-delimited JSON over TCP. Commands carry a
// monotonically increasing id; the bulb echoes it in the reply, which lets
// the reader skip unsolicited state notifications pushed on the same
// connection.
//
// # Connection Model
//
// One dial per command, no pooling. Bulbs limit concurrent connections and
// reap idle ones on their own schedule, so a persistent connection is a
// liability; the engine's call rate is a handful of commands per minute at
// most.
//
// The Controller satisfies the device registry's PowerSetter interface, so
// the automation engine stays ignorant of the wire protocol.
//
// # Error Model
//
// Sentinel errors distinguish the failure classes callers care about:
// ErrUnreachable (dial failed), ErrTimeout (no reply), ErrBadResponse
// (undecodable reply), ErrCommandRejected (bulb said no). All are wrapped
// with context and match with errors.Is.
package yeelight
