package device

import (
	"fmt"
	"time"
)

// Well-known sensor kind names. The kind table maps numeric kind ids from
// the devices file to these names; the engine dispatches policy by name.
const (
	KindPIRTrigger = "PIR_Trigger"
	KindSwitch     = "Switch"
)

// Default 1-Wire family codes used when the devices file omits one.
const (
	// FamilySensorDefault is the DS2413 dual-channel addressable switch.
	FamilySensorDefault = 0x3A

	// FamilyRelayDefault is the DS2408 8-channel addressable switch.
	FamilyRelayDefault = 0x29
)

// PIO bit positions on a sensor board. A DS2413 exposes two sensed inputs
// in its status byte: PIOA at bit 0 and PIOB at bit 2.
const (
	PIOABit uint8 = 0
	PIOBBit uint8 = 2
)

// PIOBits lists the monitored input bit positions on every sensor board.
var PIOBits = [2]uint8{PIOABit, PIOBBit}

// SafeDefault is the relay board value assumed before any read or write.
// Outputs are active-low, so all bits set means every relay is de-energized.
const SafeDefault byte = 0xFF

// BoardID identifies a physical board on the 1-Wire bus by family code and
// 64-bit bus address.
type BoardID struct {
	Family  uint8
	Address uint64
}

// String renders the owfs-style directory name for the board,
// e.g. "29-00000012f3a4" (hex family code, 12 hex digits of address).
func (id BoardID) String() string {
	return fmt.Sprintf("%02x-%012x", id.Family, id.Address)
}

// SensorBoard is one physical 2-input device on the bus.
//
// LastValue is the byte from the most recent successful read, nil until the
// first read succeeds. The engine uses it as the baseline for change
// detection and overwrites it every cycle. Boards live for the process
// lifetime; they are never removed outside a full registry reload.
type SensorBoard struct {
	ID        BoardID
	LastValue *byte
}

// Sensor is a logical input bound to one PIO bit of a SensorBoard.
// Immutable after configuration load.
type Sensor struct {
	ID     int
	Name   string
	KindID int
	Board  BoardID

	// Bit is the monitored bit position: PIOABit or PIOBBit.
	Bit uint8

	// RelayIDs and LightIDs are the actuators this sensor may trigger.
	RelayIDs []int
	LightIDs []int
}

// RelayBoard is one physical 8-output device on the bus.
//
// LastValue is the last value known to be written (confirmed by a successful
// write), nil before the first write. Pending accumulates bit decisions made
// during the current cycle and is flushed at most once per cycle; it is
// cleared to nil immediately after a successful flush. A failed flush leaves
// Pending set so the value is retried on a later cycle.
type RelayBoard struct {
	ID        BoardID
	LastValue *byte
	Pending   *byte
}

// base returns the value new bit decisions accumulate onto: the pending
// value if the board was already touched, else the last confirmed value,
// else the safe default.
func (b *RelayBoard) base() byte {
	switch {
	case b.Pending != nil:
		return *b.Pending
	case b.LastValue != nil:
		return *b.LastValue
	default:
		return SafeDefault
	}
}

// BitEnergized reports whether the given output bit is energized in the
// board's effective value. Outputs are active-low: a cleared bit is on.
func (b *RelayBoard) BitEnergized(bit uint8) bool {
	return b.base()&(1<<bit) == 0
}

// SetBitEnergized records an output decision in the pending value.
// The hardware write happens later, in the cycle's single flush.
func (b *RelayBoard) SetBitEnergized(bit uint8, on bool) {
	v := b.base()
	if on {
		v &^= 1 << bit
	} else {
		v |= 1 << bit
	}
	b.Pending = &v
}

// ActuatorConfig is the immutable automation configuration shared by relays
// and lights.
type ActuatorConfig struct {
	// PIRExclude prevents motion events from ever energizing this actuator.
	PIRExclude bool

	// PIRHold is how long a PIR trigger keeps the actuator energized.
	PIRHold time.Duration

	// SwitchHold is how long a manual toggle holds override mode.
	SwitchHold time.Duration
}

// ActuatorState is the transient automation state shared by relays and
// lights, mutated only by the engine (and brief manual-command calls) under
// the relay registry lock.
//
// Invariants:
//   - OverrideMode == true implies StopAfter != nil
//   - LastToggled != nil implies the actuator toggled at least once and is
//     subject to debounce and expiry evaluation
type ActuatorState struct {
	OverrideMode bool
	LastToggled  *time.Time
	StopAfter    *time.Duration
}

// Actuator is the polymorphic surface the state machine operates on.
// Relay (bit-addressed) and Yeelight (network-addressed) implement it.
type Actuator interface {
	// ActuatorID is the configured numeric id, unique within its kind.
	ActuatorID() int

	// ActuatorName is the human-readable name for logging.
	ActuatorName() string

	// Config returns the immutable automation configuration.
	Config() ActuatorConfig

	// State returns the mutable automation state. Callers must hold the
	// owning registry's lock.
	State() *ActuatorState

	// IsEnergized reports the effective output state.
	IsEnergized() bool

	// SetEnergized commands the output. For relays this only marks the
	// owning board's pending value; for lights it records a pending push
	// the engine performs after the registry lock is released.
	SetEnergized(on bool) error
}

// Relay is a logical actuator bound to one output bit of a RelayBoard.
type Relay struct {
	ID   int
	Name string
	Bit  uint8

	Conf ActuatorConfig
	Auto ActuatorState

	board *RelayBoard
}

// ActuatorID implements Actuator.
func (r *Relay) ActuatorID() int { return r.ID }

// ActuatorName implements Actuator.
func (r *Relay) ActuatorName() string { return r.Name }

// Config implements Actuator.
func (r *Relay) Config() ActuatorConfig { return r.Conf }

// State implements Actuator.
func (r *Relay) State() *ActuatorState { return &r.Auto }

// Board returns the owning physical board.
func (r *Relay) Board() *RelayBoard { return r.board }

// IsEnergized implements Actuator.
func (r *Relay) IsEnergized() bool {
	return r.board.BitEnergized(r.Bit)
}

// SetEnergized implements Actuator. The decision lands in the board's
// pending value; hardware is written once per cycle by the engine.
func (r *Relay) SetEnergized(on bool) error {
	r.board.SetBitEnergized(r.Bit, on)
	return nil
}

// PowerSetter drives a network-addressed light. Implemented by the yeelight
// package; faked in tests.
type PowerSetter interface {
	SetPower(addr string, on bool) error
}

// Yeelight is a logical actuator addressed by IP rather than bus and bit.
// PoweredOn is the desired state, a direct boolean, not active-low.
type Yeelight struct {
	ID        int
	Name      string
	Addr      string
	PoweredOn bool

	// Pending is the desired state not yet confirmed against the bulb.
	// The engine pushes it over the transport after releasing the
	// registry lock and clears it on success, so an unreachable bulb
	// is retried on a later cycle.
	Pending *bool

	Conf ActuatorConfig
	Auto ActuatorState

	transport PowerSetter
}

// ActuatorID implements Actuator.
func (y *Yeelight) ActuatorID() int { return y.ID }

// ActuatorName implements Actuator.
func (y *Yeelight) ActuatorName() string { return y.Name }

// Config implements Actuator.
func (y *Yeelight) Config() ActuatorConfig { return y.Conf }

// State implements Actuator.
func (y *Yeelight) State() *ActuatorState { return &y.Auto }

// IsEnergized implements Actuator.
func (y *Yeelight) IsEnergized() bool { return y.PoweredOn }

// SetEnergized implements Actuator. Like a relay bit, the decision only
// lands in a pending value; the network round trip happens off-lock.
func (y *Yeelight) SetEnergized(on bool) error {
	y.PoweredOn = on
	v := on
	y.Pending = &v
	return nil
}

// Push drives the transport toward the given state. Addr and transport
// never change after load, so Push needs no registry lock.
func (y *Yeelight) Push(on bool) error {
	if y.transport == nil {
		return nil
	}
	if err := y.transport.SetPower(y.Addr, on); err != nil {
		return fmt.Errorf("light %q: %w", y.Name, err)
	}
	return nil
}

// ConfirmPending clears the pending marker if it still matches the state
// that was pushed. A toggle racing the push leaves the newer value in
// place for the next cycle to pick up.
func (y *Yeelight) ConfirmPending(on bool) {
	if y.Pending != nil && *y.Pending == on {
		y.Pending = nil
	}
}
