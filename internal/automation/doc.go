// Package automation is the control core of onewired: the engine that turns
// sensor bit transitions into actuator decisions.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                      │
//	│  One iteration ("cycle"), both registry locks held:      │
//	│  ┌────────────────────────────────────────────────┐     │
//	│  │ 1. Change detector (detector.go)                │     │
//	│  │    read each sensor board, diff PIO bits        │     │
//	│  │ 2. Policy dispatcher (policy.go)                │     │
//	│  │    PIR_Trigger → energize/prolong               │     │
//	│  │    Switch      → toggle + override              │     │
//	│  │ 3. Expiry sweeper (sweeper.go)                  │     │
//	│  │    auto-off / override release                  │     │
//	│  │ 4. Board flush (sweeper.go)                     │     │
//	│  │    one write per dirty relay board              │     │
//	│  └────────────────────────────────────────────────┘     │
//	│  then sleep the poll interval and poll cancellation      │
//	└─────────────────────────────────────────────────────────┘
//
// # Actuator State Machine
//
// Every actuator (relay or light) is Off, on under a PIR hold, or on under a
// manual override. Toggles are debounced by MinToggleDelay. Motion extends
// an active hold; under override it only tops the window up to
// DefaultPIRProlong once less than that remains. The sweeper turns off
// expired actuators and releases spent overrides.
//
// # Ordering Guarantees
//
// Within a cycle, all sensor-driven decisions complete before the sweep, and
// all decisions for a relay board accumulate in its pending value before the
// board is written, giving at most one write per board per cycle. Across
// cycles there is no reordering: cycle N's flush precedes cycle N+1's reads.
//
// # Error Model
//
// There is no fatal error inside the engine. Board I/O failures are logged
// and retried on later cycles, debounce suppressions are logged warnings,
// unhandled sensor kinds are logged errors, and full downstream queues drop
// their message. The only way out of Run is context cancellation.
package automation
