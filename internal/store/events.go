package store

// EventKind identifies a persistence event.
type EventKind string

// Event kinds accepted by the persistence worker.
const (
	// IncrementRelayCounter bumps the toggle counter for a relay id.
	IncrementRelayCounter EventKind = "increment_relay_counter"

	// IncrementSensorCounter bumps the trigger counter for a sensor id.
	IncrementSensorCounter EventKind = "increment_sensor_counter"

	// IncrementYeelightCounter bumps the toggle counter for a light id.
	IncrementYeelightCounter EventKind = "increment_yeelight_counter"

	// ReloadDevices asks the worker to re-run the configuration loader
	// against the live registries. ID is unused.
	ReloadDevices EventKind = "reload_devices"
)

// Event is one fire-and-forget message to the persistence worker.
//
// Producers send over a buffered channel with a non-blocking send: a full
// queue drops the event. Counters are best-effort telemetry, never a
// correctness dependency of the control loop.
type Event struct {
	Kind EventKind
	ID   int
}
