package automation

import (
	"errors"
	"testing"
	"time"

	"github.com/mzagorski/onewired/internal/device"
	"github.com/mzagorski/onewired/internal/onewire"
	"github.com/mzagorski/onewired/internal/store"
)

// ─── Fixture ────────────────────────────────────────────────────────────────

const (
	kindPIR     = 1
	kindSwitch  = 2
	kindUnknown = 99
)

var relayBoard = device.BoardID{Family: device.FamilyRelayDefault, Address: 0x200}

// fakeTransport records light power calls.
type fakeTransport struct {
	calls []bool
	err   error
}

func (f *fakeTransport) SetPower(_ string, on bool) error {
	f.calls = append(f.calls, on)
	return f.err
}

// slowTransport blocks every SetPower call until released, standing in for
// a bulb that is slow to accept the TCP connection.
type slowTransport struct {
	started chan struct{}
	release chan struct{}
}

func (s *slowTransport) SetPower(string, bool) error {
	s.started <- struct{}{}
	<-s.release
	return nil
}

// fixture wires an engine to fake hardware and a controllable clock.
type fixture struct {
	t         *testing.T
	sensors   *device.SensorDevices
	relays    *device.RelayDevices
	bus       *onewire.FakeBus
	transport *fakeTransport
	events    chan store.Event
	engine    *Engine

	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fx := &fixture{
		t:         t,
		sensors:   device.NewSensorDevices(),
		relays:    device.NewRelayDevices(),
		bus:       onewire.NewFakeBus(),
		transport: &fakeTransport{},
		events:    make(chan store.Event, 64),
		now:       time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	fx.relays.SetLightTransport(fx.transport)

	if err := fx.sensors.AddKind(kindPIR, device.KindPIRTrigger); err != nil {
		t.Fatalf("AddKind(pir) error = %v", err)
	}
	if err := fx.sensors.AddKind(kindSwitch, device.KindSwitch); err != nil {
		t.Fatalf("AddKind(switch) error = %v", err)
	}

	fx.engine = New(Config{
		Sensors: fx.sensors,
		Relays:  fx.relays,
		Bus:     fx.bus,
		Events:  fx.events,
		Clock:   func() time.Time { return fx.now },
	})
	return fx
}

func (fx *fixture) sensorBoard(sensorID int) device.BoardID {
	return device.BoardID{Family: device.FamilySensorDefault, Address: 0x100 + uint64(sensorID)}
}

// addSensor registers a sensor on its own board, monitored at PIOA.
func (fx *fixture) addSensor(id, kindID int, relayIDs, lightIDs []int) {
	fx.t.Helper()
	err := fx.sensors.AddSensor(&device.Sensor{
		ID:       id,
		Name:     "sensor",
		KindID:   kindID,
		Board:    fx.sensorBoard(id),
		Bit:      device.PIOABit,
		RelayIDs: relayIDs,
		LightIDs: lightIDs,
	})
	if err != nil {
		fx.t.Fatalf("AddSensor(%d) error = %v", id, err)
	}
}

func (fx *fixture) addRelay(id int, bit uint8, pirHold, switchHold time.Duration, pirExclude bool) *device.Relay {
	fx.t.Helper()
	r := &device.Relay{
		ID:   id,
		Name: "relay",
		Bit:  bit,
		Conf: device.ActuatorConfig{
			PIRExclude: pirExclude,
			PIRHold:    pirHold,
			SwitchHold: switchHold,
		},
	}
	if err := fx.relays.AddRelay(r, relayBoard); err != nil {
		fx.t.Fatalf("AddRelay(%d) error = %v", id, err)
	}
	return r
}

func (fx *fixture) addLight(id int, pirHold, switchHold time.Duration) *device.Yeelight {
	fx.t.Helper()
	y := &device.Yeelight{
		ID:   id,
		Name: "light",
		Addr: "10.0.0.20",
		Conf: device.ActuatorConfig{
			PIRHold:    pirHold,
			SwitchHold: switchHold,
		},
	}
	if err := fx.relays.AddYeelight(y); err != nil {
		fx.t.Fatalf("AddYeelight(%d) error = %v", id, err)
	}
	return y
}

// setSensor drives a sensor's PIOA level on the fake bus.
func (fx *fixture) setSensor(sensorID int, on bool) {
	board := fx.sensorBoard(sensorID)
	v := fx.bus.Value(board)
	if on {
		v |= 1 << device.PIOABit
	} else {
		v &^= 1 << device.PIOABit
	}
	fx.bus.SetValue(board, v)
}

func (fx *fixture) advance(d time.Duration) {
	fx.now = fx.now.Add(d)
}

func (fx *fixture) cycle() {
	fx.engine.Cycle()
}

// baseline runs one cycle so every sensor board records its resting value.
func (fx *fixture) baseline() {
	fx.cycle()
	fx.bus.ResetWrites()
}

// pulse produces one rising edge on a sensor across two cycles.
func (fx *fixture) pulse(sensorID int) {
	fx.setSensor(sensorID, true)
	fx.cycle()
	fx.setSensor(sensorID, false)
	fx.cycle()
}

func (fx *fixture) drainEvents() []store.Event {
	var out []store.Event
	for {
		select {
		case ev := <-fx.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// ─── At-most-one-write invariant ────────────────────────────────────────────

func TestCycle_AtMostOneWritePerBoard(t *testing.T) {
	fx := newFixture(t)
	fx.addRelay(1, 0, 2*time.Minute, time.Hour, false)
	fx.addRelay(2, 1, 2*time.Minute, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1, 2}, nil)
	fx.baseline()

	// One motion event energizes both relays on the same board
	fx.setSensor(1, true)
	fx.cycle()

	writes := fx.bus.Writes()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want exactly 1 for two relays on one board", len(writes))
	}
	want := device.SafeDefault &^ (1 << 0) &^ (1 << 1)
	if writes[0].Value != want {
		t.Errorf("written value = %08b, want %08b (both bits energized)", writes[0].Value, want)
	}
}

// ─── Debounce ───────────────────────────────────────────────────────────────

func TestSwitch_Debounce(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, time.Hour, false)
	fx.addSensor(1, kindSwitch, []int{1}, nil)
	fx.baseline()

	// First flip: accepted
	fx.setSensor(1, true)
	fx.cycle()
	if !r.IsEnergized() {
		t.Fatal("relay should be energized after first toggle")
	}
	if fx.bus.WriteCount(relayBoard) != 1 {
		t.Fatalf("writes = %d, want 1", fx.bus.WriteCount(relayBoard))
	}

	// Second flip 0.5s later: suppressed, no state change, no board write
	fx.advance(500 * time.Millisecond)
	fx.setSensor(1, false)
	fx.cycle()
	if !r.IsEnergized() {
		t.Error("suppressed toggle must not change state")
	}
	if fx.bus.WriteCount(relayBoard) != 1 {
		t.Errorf("writes = %d after suppressed toggle, want still 1", fx.bus.WriteCount(relayBoard))
	}

	// Third flip at 1.1s after the first: accepted
	fx.advance(600 * time.Millisecond)
	fx.setSensor(1, true)
	fx.cycle()
	if r.IsEnergized() {
		t.Error("accepted toggle should de-energize the relay")
	}
	if fx.bus.WriteCount(relayBoard) != 2 {
		t.Errorf("writes = %d, want 2", fx.bus.WriteCount(relayBoard))
	}
}

func TestToggleRelay_ManualDebounce(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, time.Hour, false)

	if err := fx.engine.ToggleRelay(1, "api"); err != nil {
		t.Fatalf("ToggleRelay() error = %v", err)
	}
	if !r.IsEnergized() {
		t.Fatal("relay should be energized")
	}

	fx.advance(300 * time.Millisecond)
	if err := fx.engine.ToggleRelay(1, "api"); !errors.Is(err, ErrToggleDebounced) {
		t.Errorf("ToggleRelay() error = %v, want ErrToggleDebounced", err)
	}

	fx.advance(time.Second)
	if err := fx.engine.ToggleRelay(1, "api"); err != nil {
		t.Errorf("ToggleRelay() after window error = %v", err)
	}
	if r.IsEnergized() {
		t.Error("second accepted toggle should de-energize")
	}
}

func TestToggleRelay_UnknownID(t *testing.T) {
	fx := newFixture(t)
	if err := fx.engine.ToggleRelay(42, "api"); !errors.Is(err, device.ErrRelayNotFound) {
		t.Errorf("ToggleRelay(42) error = %v, want ErrRelayNotFound", err)
	}
}

// ─── PIR hold ───────────────────────────────────────────────────────────────

func TestPIR_HoldAndExpiry(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 120*time.Second, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.baseline()

	fx.pulse(1)
	if !r.IsEnergized() {
		t.Fatal("relay should be energized by motion")
	}
	if r.Auto.OverrideMode {
		t.Error("PIR energize must not set override mode")
	}

	// Inside the hold: still on
	fx.advance(119 * time.Second)
	fx.cycle()
	if !r.IsEnergized() {
		t.Error("relay should stay energized inside hold window")
	}

	// Past the hold: sweeper turns it off with a board write
	fx.advance(2 * time.Second)
	fx.cycle()
	if r.IsEnergized() {
		t.Error("relay should be de-energized after hold expiry")
	}
	if r.Auto.StopAfter != nil {
		t.Error("StopAfter should be cleared after expiry")
	}
	if r.Auto.LastToggled == nil || !r.Auto.LastToggled.Equal(fx.now) {
		t.Error("LastToggled should move to the turn-off instant")
	}
	if fx.bus.WriteCount(relayBoard) != 2 {
		t.Errorf("writes = %d, want 2 (on + auto-off)", fx.bus.WriteCount(relayBoard))
	}
}

func TestPIR_ExcludedActuatorIgnoresMotion(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, time.Hour, true)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.baseline()

	fx.pulse(1)
	if r.IsEnergized() {
		t.Error("pir-excluded relay must never react to motion")
	}
	if fx.bus.WriteCount(relayBoard) != 0 {
		t.Errorf("writes = %d, want 0", fx.bus.WriteCount(relayBoard))
	}
}

func TestPIR_OverrideOffWins(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.addSensor(2, kindSwitch, []int{1}, nil)
	fx.baseline()

	// On then off via switch: relay is off but still inside its override
	fx.setSensor(2, true)
	fx.cycle()
	fx.advance(2 * time.Second)
	fx.setSensor(2, false)
	fx.cycle()
	if r.IsEnergized() {
		t.Fatal("relay should be off after second switch flip")
	}
	if !r.Auto.OverrideMode {
		t.Fatal("relay should still be in override mode")
	}

	// Motion must not fight the manual off
	fx.advance(5 * time.Second)
	fx.pulse(1)
	if r.IsEnergized() {
		t.Error("motion must not energize a relay switched off under override")
	}
}

// ─── Prolong and override precedence ────────────────────────────────────────

func TestPIR_ProlongExtendsHold(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 120*time.Second, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.baseline()

	fx.pulse(1)
	if !r.IsEnergized() {
		t.Fatal("relay should be energized")
	}

	// Continued motion at t+60 extends the window to 60+120
	fx.advance(60 * time.Second)
	fx.pulse(1)
	if r.Auto.StopAfter == nil || *r.Auto.StopAfter != 180*time.Second {
		t.Fatalf("StopAfter = %v, want 180s after prolong", r.Auto.StopAfter)
	}

	// Would have expired under the original hold; prolonged keeps it on
	fx.advance(110 * time.Second)
	fx.cycle()
	if !r.IsEnergized() {
		t.Error("relay should still be on inside prolonged window")
	}

	fx.advance(15 * time.Second)
	fx.cycle()
	if r.IsEnergized() {
		t.Error("relay should expire after the prolonged window")
	}
}

func TestPIR_OverridePrecedence(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 120*time.Second, 3600*time.Second, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.addSensor(2, kindSwitch, []int{1}, nil)
	fx.baseline()

	// Manual on: override for 3600s
	fx.setSensor(2, true)
	fx.cycle()
	if !r.IsEnergized() || !r.Auto.OverrideMode {
		t.Fatal("relay should be energized under override")
	}

	// Remaining 1000s (>= 900s floor): motion leaves the timer untouched
	fx.advance(2600 * time.Second)
	fx.pulse(1)
	if *r.Auto.StopAfter != 3600*time.Second {
		t.Errorf("StopAfter = %v, want untouched 3600s with 1000s remaining", *r.Auto.StopAfter)
	}

	// Remaining 500s (< 900s floor): motion tops the window up to the floor
	fx.advance(500 * time.Second)
	fx.pulse(1)
	want := 3100*time.Second + DefaultPIRProlong
	if *r.Auto.StopAfter != want {
		t.Errorf("StopAfter = %v, want %v with 500s remaining", *r.Auto.StopAfter, want)
	}
	if !r.Auto.OverrideMode {
		t.Error("prolonging must not clear override mode")
	}
}

// ─── Switch toggle pairing ──────────────────────────────────────────────────

func TestSwitch_TogglePairReturnsToOriginalState(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, time.Hour, false)
	fx.addSensor(1, kindSwitch, []int{1}, nil)
	fx.baseline()

	if r.IsEnergized() {
		t.Fatal("relay should start de-energized")
	}

	fx.setSensor(1, true)
	fx.cycle()
	if !r.IsEnergized() {
		t.Fatal("first toggle should energize")
	}

	fx.advance(2 * time.Second)
	fx.setSensor(1, false)
	fx.cycle()
	if r.IsEnergized() {
		t.Error("second toggle should return to original state")
	}
	if !r.Auto.OverrideMode {
		t.Error("second toggle must set override mode again")
	}
	if r.Auto.StopAfter == nil || *r.Auto.StopAfter != time.Hour {
		t.Errorf("StopAfter = %v, want full switch hold", r.Auto.StopAfter)
	}
}

// ─── Safe default ───────────────────────────────────────────────────────────

func TestRelayBoard_SafeDefaultBeforeFirstWrite(t *testing.T) {
	fx := newFixture(t)
	fx.addRelay(1, 3, 2*time.Minute, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.baseline()

	if fx.bus.WriteCount(relayBoard) != 0 {
		t.Fatal("no write may happen before the first decision")
	}

	fx.setSensor(1, true)
	fx.cycle()

	writes := fx.bus.Writes()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	// First write builds on the all-off safe default
	if writes[0].Value != device.SafeDefault&^(1<<3) {
		t.Errorf("written value = %08b, want safe default with bit 3 cleared", writes[0].Value)
	}
}

// ─── Kind table ─────────────────────────────────────────────────────────────

func TestUnknownKind_NeverMutatesState(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, time.Hour, false)
	fx.addSensor(1, kindUnknown, []int{1}, nil)
	fx.baseline()

	fx.pulse(1)
	if r.IsEnergized() {
		t.Error("unknown kind must not mutate actuator state")
	}
	if fx.bus.WriteCount(relayBoard) != 0 {
		t.Errorf("writes = %d, want 0", fx.bus.WriteCount(relayBoard))
	}
	if evs := fx.drainEvents(); len(evs) != 0 {
		t.Errorf("events = %v, want none for unknown kind", evs)
	}
}

// ─── Change detector ────────────────────────────────────────────────────────

func TestDetector_FirstReadIsBaseline(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)

	// Sensor already high before the first cycle: baseline, not a transition
	fx.setSensor(1, true)
	fx.cycle()
	if r.IsEnergized() {
		t.Error("first read must only record a baseline")
	}

	// Falling then rising edge now fires normally
	fx.setSensor(1, false)
	fx.cycle()
	fx.setSensor(1, true)
	fx.cycle()
	if !r.IsEnergized() {
		t.Error("transition after baseline should energize")
	}
}

func TestDetector_ReadErrorSkipsCycleKeepsBaseline(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.baseline()

	board := fx.sensorBoard(1)
	fx.bus.FailReads(board, errors.New("bus: no presence pulse"))
	fx.setSensor(1, true)
	fx.cycle()
	if r.IsEnergized() {
		t.Error("no transition may fire while reads fail")
	}

	// Reads recover: the level change during the outage is still detected
	fx.bus.FailReads(board, nil)
	fx.cycle()
	if !r.IsEnergized() {
		t.Error("transition should fire once reads recover")
	}
}

// ─── Write failure retry ────────────────────────────────────────────────────

func TestFlush_WriteFailureRetriesNextCycle(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.baseline()

	fx.bus.FailWrites(relayBoard, errors.New("bus: short circuit"))
	fx.setSensor(1, true)
	fx.cycle()
	if fx.bus.WriteCount(relayBoard) != 0 {
		t.Fatal("failed write must not be recorded")
	}
	if !r.IsEnergized() {
		t.Error("decision stands even when the write fails")
	}
	if r.Board().LastValue != nil {
		t.Error("confirmed value must not advance on a failed write")
	}

	// Next cycle retries the pending value without any new sensor event
	fx.bus.FailWrites(relayBoard, nil)
	fx.cycle()
	if fx.bus.WriteCount(relayBoard) != 1 {
		t.Errorf("writes = %d, want 1 retry", fx.bus.WriteCount(relayBoard))
	}
	if r.Board().Pending != nil {
		t.Error("pending must clear after a successful flush")
	}
}

// ─── Lights ─────────────────────────────────────────────────────────────────

func TestPIR_EnergizesLightThroughTransport(t *testing.T) {
	fx := newFixture(t)
	y := fx.addLight(1, 120*time.Second, time.Hour)
	fx.addSensor(1, kindPIR, nil, []int{1})
	fx.baseline()

	fx.pulse(1)
	if !y.PoweredOn {
		t.Fatal("light should be powered on by motion")
	}
	if len(fx.transport.calls) != 1 || !fx.transport.calls[0] {
		t.Errorf("transport calls = %v, want one power-on", fx.transport.calls)
	}

	// Expiry turns the light off through the transport too
	fx.advance(125 * time.Second)
	fx.cycle()
	if y.PoweredOn {
		t.Error("light should be off after hold expiry")
	}
	if len(fx.transport.calls) != 2 || fx.transport.calls[1] {
		t.Errorf("transport calls = %v, want power-off appended", fx.transport.calls)
	}
}

func TestToggleLight_Manual(t *testing.T) {
	fx := newFixture(t)
	y := fx.addLight(1, 120*time.Second, time.Hour)

	if err := fx.engine.ToggleLight(1, "api"); err != nil {
		t.Fatalf("ToggleLight() error = %v", err)
	}
	if !y.PoweredOn || !y.Auto.OverrideMode {
		t.Error("manual toggle should power on under override")
	}

	if err := fx.engine.ToggleLight(9, "api"); !errors.Is(err, device.ErrLightNotFound) {
		t.Errorf("ToggleLight(9) error = %v, want ErrLightNotFound", err)
	}
}

func TestToggleLight_TransportRunsOffLock(t *testing.T) {
	fx := newFixture(t)
	slow := &slowTransport{started: make(chan struct{}), release: make(chan struct{})}
	fx.relays.SetLightTransport(slow)
	fx.addLight(1, 120*time.Second, time.Hour)

	done := make(chan error, 1)
	go func() { done <- fx.engine.ToggleLight(1, "api") }()
	<-slow.started

	// The bulb is mid-dial; the registry lock must still be free.
	acquired := make(chan struct{})
	go func() {
		fx.relays.Lock()
		fx.relays.Unlock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("registry lock held across the network push")
	}

	close(slow.release)
	if err := <-done; err != nil {
		t.Fatalf("ToggleLight() error = %v", err)
	}
}

func TestLightPush_RetriesAfterFailure(t *testing.T) {
	fx := newFixture(t)
	y := fx.addLight(1, 120*time.Second, time.Hour)
	fx.transport.err = errors.New("light: connection refused")

	// The toggle itself succeeds; only the push to the bulb fails
	if err := fx.engine.ToggleLight(1, "api"); err != nil {
		t.Fatalf("ToggleLight() error = %v", err)
	}
	if !y.PoweredOn {
		t.Fatal("desired state should be recorded despite the push failure")
	}
	if y.Pending == nil {
		t.Fatal("pending marker must survive a failed push")
	}

	// Bulb reachable again: the next cycle retries without a new command
	fx.transport.err = nil
	fx.cycle()
	if y.Pending != nil {
		t.Error("pending should clear after a successful retry")
	}
	if n := len(fx.transport.calls); n != 2 || !fx.transport.calls[1] {
		t.Errorf("transport calls = %v, want retry power-on appended", fx.transport.calls)
	}
}

// ─── Expiry bookkeeping ─────────────────────────────────────────────────────

func TestSweep_OverrideExpiresWhileOff(t *testing.T) {
	fx := newFixture(t)
	r := fx.addRelay(1, 0, 2*time.Minute, 10*time.Second, false)
	fx.addSensor(1, kindSwitch, []int{1}, nil)
	fx.baseline()

	// On then off: override window still running while relay is off
	fx.setSensor(1, true)
	fx.cycle()
	fx.advance(2 * time.Second)
	fx.setSensor(1, false)
	fx.cycle()
	if r.IsEnergized() || !r.Auto.OverrideMode {
		t.Fatal("relay should be off but still in override")
	}
	fx.bus.ResetWrites()
	fx.drainEvents()

	// Override runs out while off: state clears, no hardware write
	fx.advance(11 * time.Second)
	fx.cycle()
	if r.Auto.OverrideMode || r.Auto.StopAfter != nil || r.Auto.LastToggled != nil {
		t.Error("automation state should fully clear when override expires while off")
	}
	if fx.bus.WriteCount(relayBoard) != 0 {
		t.Error("no hardware write may happen for a bookkeeping-only release")
	}
	if evs := fx.drainEvents(); len(evs) != 0 {
		t.Errorf("events = %v, want none for bookkeeping-only release", evs)
	}
}

// ─── Events ─────────────────────────────────────────────────────────────────

func TestEvents_CounterEmission(t *testing.T) {
	fx := newFixture(t)
	fx.addRelay(1, 0, 120*time.Second, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.baseline()

	fx.pulse(1)
	evs := fx.drainEvents()

	var sensorBumps, relayBumps int
	for _, ev := range evs {
		switch ev.Kind {
		case store.IncrementSensorCounter:
			sensorBumps++
			if ev.ID != 1 {
				t.Errorf("sensor event id = %d, want 1", ev.ID)
			}
		case store.IncrementRelayCounter:
			relayBumps++
		}
	}
	if sensorBumps != 1 {
		t.Errorf("sensor counter events = %d, want 1", sensorBumps)
	}
	if relayBumps != 1 {
		t.Errorf("relay counter events = %d, want 1", relayBumps)
	}

	// Expiry emits another relay counter bump
	fx.advance(125 * time.Second)
	fx.cycle()
	evs = fx.drainEvents()
	if len(evs) != 1 || evs[0].Kind != store.IncrementRelayCounter {
		t.Errorf("expiry events = %v, want one relay counter bump", evs)
	}
}

func TestEvents_FullQueueDropsWithoutBlocking(t *testing.T) {
	fx := newFixture(t)
	fx.addRelay(1, 0, 120*time.Second, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)

	// Replace the queue with a zero-capacity channel nobody reads
	fx.engine.events = make(chan store.Event)
	fx.baseline()

	done := make(chan struct{})
	go func() {
		fx.setSensor(1, true)
		fx.cycle()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle blocked on a full event queue")
	}
	if fx.engine.EventsDropped() == 0 {
		t.Error("dropped events should be counted")
	}
}

// ─── State change broadcast ─────────────────────────────────────────────────

func TestStates_BroadcastOnChange(t *testing.T) {
	fx := newFixture(t)
	states := make(chan StateChange, 16)
	fx.engine.states = states
	fx.addRelay(1, 0, 120*time.Second, time.Hour, false)
	fx.addSensor(1, kindPIR, []int{1}, nil)
	fx.baseline()

	fx.pulse(1)

	select {
	case sc := <-states:
		if sc.Kind != "relay" || sc.ID != 1 || !sc.Energized || sc.Source != "pir" {
			t.Errorf("state change = %+v, want relay 1 energized by pir", sc)
		}
	default:
		t.Fatal("expected a state change broadcast")
	}
}
