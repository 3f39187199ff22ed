// Package device holds the in-memory data model for onewired: sensor boards,
// sensors, relay boards, relays, network lights, and the kind table.
//
// # Key Types
//
//   - BoardID: (family code, 64-bit bus address) identity of a physical board
//   - SensorBoard / Sensor: 2-input boards and the logical inputs bound to
//     their PIO bits
//   - RelayBoard / Relay: 8-output boards (active-low) and the logical
//     actuators bound to their bits, with a write-combining Pending value
//   - Yeelight: network-addressed light actuator
//   - Actuator: the shared abstraction the automation state machine drives
//   - SensorDevices / RelayDevices: the two registries, each behind its own
//     reader-writer lock
//
// # Locking Model
//
// The automation engine takes each registry's exclusive lock once per cycle
// and uses the *Locked accessors while holding it. Everything else (HTTP
// handlers, the configuration loader, MQTT command handlers) takes a lock
// only briefly via the self-locking methods. Callers touching both
// registries acquire sensor-then-relay, matching the engine, to avoid
// deadlock.
//
// # Output Encoding
//
// Relay outputs are active-low: a cleared bit energizes the relay, and the
// all-bits-set SafeDefault leaves everything off on a cold start. Lights use
// a direct boolean.
package device
