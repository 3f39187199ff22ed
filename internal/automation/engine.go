package automation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mzagorski/onewired/internal/device"
	"github.com/mzagorski/onewired/internal/onewire"
	"github.com/mzagorski/onewired/internal/store"
)

// Timing constants for the actuator state machine.
const (
	// MinToggleDelay is the flip-flop protection window: a toggle request
	// within this time of the previous toggle is suppressed. The expiry
	// sweeper honours the same window before auto-off.
	MinToggleDelay = time.Second

	// DefaultPIRProlong is the floor under which a PIR event may extend an
	// override window. While more than this remains, the override timer is
	// left untouched; once inside the floor, a PIR event tops the window
	// back up to it.
	DefaultPIRProlong = 15 * time.Minute

	// defaultInterval is the sleep between cycles when none is configured.
	defaultInterval = 500 * time.Microsecond
)

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateChange describes one actual energize/de-energize of an actuator.
// Broadcast consumers (MQTT, WebSocket, InfluxDB) receive these best-effort.
type StateChange struct {
	Kind      string // "relay" or "light"
	ID        int
	Name      string
	Energized bool
	Source    string // "pir", "switch", "expiry", or a manual-command source
	At        time.Time
}

// Config collects the engine's dependencies and tuning.
type Config struct {
	// Sensors and Relays are the shared registries. The engine takes each
	// registry's exclusive lock once per cycle, sensor-then-relay.
	Sensors *device.SensorDevices
	Relays  *device.RelayDevices

	// Bus is the board I/O adapter.
	Bus onewire.Bus

	// Events receives counter-increment events; nil disables emission.
	Events chan<- store.Event

	// States receives actuator state changes; nil disables broadcast.
	States chan<- StateChange

	// Interval is the sleep between cycles; defaultInterval when zero.
	Interval time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger Logger
}

// Engine runs the per-cycle change-detection, policy-dispatch, expiry-sweep,
// and board-flush algorithm until its context is cancelled.
//
// Thread Safety: Run owns the cycle; ToggleRelay and ToggleLight may be
// called concurrently from command surfaces and take the relay registry lock
// briefly. The engine never holds a registry lock across I/O: boards are
// written through the Bus and lights pushed through the registry's transport
// only after the locked decision phase.
type Engine struct {
	sensors  *device.SensorDevices
	relays   *device.RelayDevices
	bus      onewire.Bus
	events   chan<- store.Event
	states   chan<- StateChange
	interval time.Duration
	now      func() time.Time
	logger   Logger

	cycles        atomic.Uint64
	eventsDropped atomic.Uint64
}

// New creates an engine from the given configuration.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		sensors:  cfg.Sensors,
		relays:   cfg.Relays,
		bus:      cfg.Bus,
		events:   cfg.Events,
		states:   cfg.States,
		interval: interval,
		now:      clock,
		logger:   logger,
	}
}

// Run executes cycles on a fixed cadence until ctx is cancelled.
//
// Cancellation is polled once per iteration; an iteration in flight always
// completes, so worst-case shutdown latency is one cycle plus one blocking
// board I/O call. Actuators are deliberately left in their last commanded
// state on shutdown: an uncommanded relay pulse is a worse outcome than
// holding position.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("engine started", "interval", e.interval.String())

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped", "cycles", e.cycles.Load())
			return
		default:
		}

		e.Cycle()
		time.Sleep(e.interval)
	}
}

// Cycle runs one full engine iteration: read and diff every sensor board,
// dispatch policies for each transition, sweep actuator timers, and flush
// dirty relay boards at most once each.
//
// Both registry locks are held for the decision phase (sensor first), so
// other goroutines observe cycles atomically. Network pushes to lights run
// after the locks are released; a slow bulb never stalls lock holders.
func (e *Engine) Cycle() {
	now := e.now()

	e.sensors.Lock()
	e.relays.Lock()

	for _, t := range e.detectLocked() {
		e.dispatchLocked(now, t)
	}

	e.sweepLocked(now)
	e.flushLocked()
	cmds := e.collectLightsLocked()

	e.cycles.Add(1)

	e.relays.Unlock()
	e.sensors.Unlock()

	e.pushLights(cmds)
}

// CycleCount returns the number of completed cycles.
func (e *Engine) CycleCount() uint64 {
	return e.cycles.Load()
}

// EventsDropped returns how many persistence events were dropped on a full
// queue.
func (e *Engine) EventsDropped() uint64 {
	return e.eventsDropped.Load()
}

// ToggleRelay applies a manual switch-style toggle to a relay: flip the
// output, enter override mode for the relay's switch hold time. The board
// write happens in the next cycle's flush.
//
// Returns ErrToggleDebounced if flip-flop protection suppresses the request,
// or device.ErrRelayNotFound for an unknown id.
func (e *Engine) ToggleRelay(id int, source string) error {
	now := e.now()

	e.relays.Lock()
	defer e.relays.Unlock()

	r, ok := e.relays.RelayLocked(id)
	if !ok {
		return fmt.Errorf("%w: id %d", device.ErrRelayNotFound, id)
	}
	if !e.applySwitchLocked(now, r, source) {
		return ErrToggleDebounced
	}
	return nil
}

// ToggleLight applies a manual switch-style toggle to a network light. The
// registry lock covers only the decision; the network push to the bulb
// happens after the lock is released.
//
// Returns ErrToggleDebounced if flip-flop protection suppresses the request,
// or device.ErrLightNotFound for an unknown id.
func (e *Engine) ToggleLight(id int, source string) error {
	now := e.now()

	e.relays.Lock()
	y, ok := e.relays.LightLocked(id)
	if !ok {
		e.relays.Unlock()
		return fmt.Errorf("%w: id %d", device.ErrLightNotFound, id)
	}
	toggled := e.applySwitchLocked(now, y, source)
	on := y.PoweredOn
	e.relays.Unlock()

	if !toggled {
		return ErrToggleDebounced
	}
	e.pushLights([]lightCommand{{light: y, on: on}})
	return nil
}

// emitEvent sends a persistence event without blocking. A full queue drops
// the event; counters are telemetry, not control state.
func (e *Engine) emitEvent(ev store.Event) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- ev:
	default:
		e.eventsDropped.Add(1)
		e.logger.Warn("persistence event dropped, queue full",
			"kind", string(ev.Kind),
			"id", ev.ID,
		)
	}
}

// emitState broadcasts an actuator state change without blocking.
func (e *Engine) emitState(sc StateChange) {
	if e.states == nil {
		return
	}
	select {
	case e.states <- sc:
	default:
		e.logger.Warn("state change dropped, queue full",
			"kind", sc.Kind,
			"id", sc.ID,
		)
	}
}

// counterEventLocked emits the counter increment matching the actuator's
// variant, plus the state-change broadcast.
func (e *Engine) counterEventLocked(now time.Time, a device.Actuator, energized bool, source string) {
	switch a.(type) {
	case *device.Relay:
		e.emitEvent(store.Event{Kind: store.IncrementRelayCounter, ID: a.ActuatorID()})
		e.emitState(StateChange{
			Kind: "relay", ID: a.ActuatorID(), Name: a.ActuatorName(),
			Energized: energized, Source: source, At: now,
		})
	case *device.Yeelight:
		e.emitEvent(store.Event{Kind: store.IncrementYeelightCounter, ID: a.ActuatorID()})
		e.emitState(StateChange{
			Kind: "light", ID: a.ActuatorID(), Name: a.ActuatorName(),
			Energized: energized, Source: source, At: now,
		})
	}
}
