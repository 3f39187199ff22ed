package device

import (
	"fmt"
	"slices"
	"sync"
)

// Logger defines the logging interface used by the registries.
// This allows different logging implementations to be used.
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

// ─── Sensor registry ────────────────────────────────────────────────────────

// SensorDevices is the registry of sensor boards, sensors, and the kind table.
//
// Locking model: the engine takes the exclusive lock once per cycle and uses
// the *Locked accessors while holding it. Other goroutines (API, loader) use
// the self-locking methods, which hold the lock only briefly. The lock is
// never held across device I/O by anyone but the engine cycle itself.
type SensorDevices struct {
	mu sync.RWMutex

	boards  map[BoardID]*SensorBoard
	sensors map[int]*Sensor
	byPIO   map[BoardID]map[uint8]*Sensor
	kinds   map[int]string

	logger Logger
}

// NewSensorDevices creates an empty sensor registry.
func NewSensorDevices() *SensorDevices {
	return &SensorDevices{
		boards:  make(map[BoardID]*SensorBoard),
		sensors: make(map[int]*Sensor),
		byPIO:   make(map[BoardID]map[uint8]*Sensor),
		kinds:   make(map[int]string),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (d *SensorDevices) SetLogger(logger Logger) {
	d.logger = logger
}

// Lock acquires the registry's exclusive lock. The engine holds it for a
// whole cycle; external callers must release it promptly.
func (d *SensorDevices) Lock() { d.mu.Lock() }

// Unlock releases the exclusive lock.
func (d *SensorDevices) Unlock() { d.mu.Unlock() }

// AddKind registers a kind id to name mapping.
// Returns ErrKindExists for a duplicate id.
func (d *SensorDevices) AddKind(id int, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.kinds[id]; ok {
		return fmt.Errorf("%w: id %d", ErrKindExists, id)
	}
	d.kinds[id] = name
	return nil
}

// AddSensor validates and registers a sensor, creating its board entry if
// this is the first sensor on that board address.
func (d *SensorDevices) AddSensor(s *Sensor) error {
	if err := ValidateSensor(s); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sensors[s.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrSensorExists, s.ID)
	}
	if existing, ok := d.byPIO[s.Board][s.Bit]; ok {
		return fmt.Errorf("%w: board %s bit %d held by sensor %d",
			ErrSensorBitTaken, s.Board, s.Bit, existing.ID)
	}

	if _, ok := d.boards[s.Board]; !ok {
		d.boards[s.Board] = &SensorBoard{ID: s.Board}
	}
	if d.byPIO[s.Board] == nil {
		d.byPIO[s.Board] = make(map[uint8]*Sensor)
	}
	d.byPIO[s.Board][s.Bit] = s
	d.sensors[s.ID] = s

	d.logger.Info("sensor registered",
		"id", s.ID,
		"name", s.Name,
		"board", s.Board.String(),
		"bit", s.Bit,
	)
	return nil
}

// KindNameLocked resolves a kind id to its symbolic name.
// Caller must hold the registry lock.
func (d *SensorDevices) KindNameLocked(kindID int) (string, bool) {
	name, ok := d.kinds[kindID]
	return name, ok
}

// EachBoardLocked visits every sensor board in stable address order.
// Caller must hold the registry lock.
func (d *SensorDevices) EachBoardLocked(fn func(*SensorBoard)) {
	ids := make([]BoardID, 0, len(d.boards))
	for id := range d.boards {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b BoardID) int {
		switch {
		case a.Address < b.Address:
			return -1
		case a.Address > b.Address:
			return 1
		default:
			return int(a.Family) - int(b.Family)
		}
	})
	for _, id := range ids {
		fn(d.boards[id])
	}
}

// SensorAtLocked returns the sensor attached to a board bit, if any.
// Caller must hold the registry lock.
func (d *SensorDevices) SensorAtLocked(board BoardID, bit uint8) (*Sensor, bool) {
	s, ok := d.byPIO[board][bit]
	return s, ok
}

// SensorInfo is a read-only snapshot of a sensor for status reporting.
type SensorInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Board    string `json:"board"`
	Bit      uint8  `json:"bit"`
	RelayIDs []int  `json:"relay_ids,omitempty"`
	LightIDs []int  `json:"light_ids,omitempty"`
}

// ListSensors returns snapshots of all sensors in id order.
func (d *SensorDevices) ListSensors() []SensorInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]SensorInfo, 0, len(d.sensors))
	for _, s := range d.sensors {
		kind := d.kinds[s.KindID]
		infos = append(infos, SensorInfo{
			ID:       s.ID,
			Name:     s.Name,
			Kind:     kind,
			Board:    s.Board.String(),
			Bit:      s.Bit,
			RelayIDs: slices.Clone(s.RelayIDs),
			LightIDs: slices.Clone(s.LightIDs),
		})
	}
	slices.SortFunc(infos, func(a, b SensorInfo) int { return a.ID - b.ID })
	return infos
}

// Counts returns the number of registered boards and sensors.
func (d *SensorDevices) Counts() (boards, sensors int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.boards), len(d.sensors)
}

// ReplaceAll swaps the registry contents under one exclusive lock.
// Used by configuration reload. Every sensor is validated against the fresh
// state before anything is swapped; on error the registry is untouched.
// Board read baselines are discarded, so the next cycle re-baselines without
// emitting transitions.
func (d *SensorDevices) ReplaceAll(kinds map[int]string, sensors []*Sensor) error {
	boards := make(map[BoardID]*SensorBoard)
	byID := make(map[int]*Sensor, len(sensors))
	byPIO := make(map[BoardID]map[uint8]*Sensor)

	for _, s := range sensors {
		if err := ValidateSensor(s); err != nil {
			return err
		}
		if _, ok := byID[s.ID]; ok {
			return fmt.Errorf("%w: id %d", ErrSensorExists, s.ID)
		}
		if existing, ok := byPIO[s.Board][s.Bit]; ok {
			return fmt.Errorf("%w: board %s bit %d held by sensor %d",
				ErrSensorBitTaken, s.Board, s.Bit, existing.ID)
		}
		if _, ok := boards[s.Board]; !ok {
			boards[s.Board] = &SensorBoard{ID: s.Board}
		}
		if byPIO[s.Board] == nil {
			byPIO[s.Board] = make(map[uint8]*Sensor)
		}
		byPIO[s.Board][s.Bit] = s
		byID[s.ID] = s
	}

	kindCopy := make(map[int]string, len(kinds))
	for id, name := range kinds {
		kindCopy[id] = name
	}

	d.mu.Lock()
	d.boards = boards
	d.sensors = byID
	d.byPIO = byPIO
	d.kinds = kindCopy
	d.mu.Unlock()

	d.logger.Info("sensor registry reloaded", "boards", len(boards), "sensors", len(byID))
	return nil
}

// ─── Relay and light registry ───────────────────────────────────────────────

// RelayDef pairs a relay definition with its physical board for registration.
type RelayDef struct {
	Relay *Relay
	Board BoardID
}

// RelayDevices is the registry of relay boards, relays, and network lights.
//
// Locking model mirrors SensorDevices. Lock order across registries is
// sensor-then-relay; any caller touching both must follow it.
type RelayDevices struct {
	mu sync.RWMutex

	boards map[BoardID]*RelayBoard
	relays map[int]*Relay
	lights map[int]*Yeelight

	transport PowerSetter
	logger    Logger
}

// NewRelayDevices creates an empty relay/light registry.
func NewRelayDevices() *RelayDevices {
	return &RelayDevices{
		boards: make(map[BoardID]*RelayBoard),
		relays: make(map[int]*Relay),
		lights: make(map[int]*Yeelight),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (d *RelayDevices) SetLogger(logger Logger) {
	d.logger = logger
}

// SetLightTransport sets the transport wired into lights registered after
// this call. Must be set before loading the devices file.
func (d *RelayDevices) SetLightTransport(t PowerSetter) {
	d.transport = t
}

// Lock acquires the registry's exclusive lock.
func (d *RelayDevices) Lock() { d.mu.Lock() }

// Unlock releases the exclusive lock.
func (d *RelayDevices) Unlock() { d.mu.Unlock() }

// AddRelay validates and registers a relay, creating its board entry if this
// is the first relay on that board address.
func (d *RelayDevices) AddRelay(r *Relay, board BoardID) error {
	if err := ValidateRelay(r, board); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.relays[r.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrRelayExists, r.ID)
	}

	b, ok := d.boards[board]
	if !ok {
		b = &RelayBoard{ID: board}
		d.boards[board] = b
	}
	r.board = b
	d.relays[r.ID] = r

	d.logger.Info("relay registered",
		"id", r.ID,
		"name", r.Name,
		"board", board.String(),
		"bit", r.Bit,
		"pir_exclude", r.Conf.PIRExclude,
	)
	return nil
}

// AddYeelight validates and registers a network light.
func (d *RelayDevices) AddYeelight(y *Yeelight) error {
	if err := ValidateYeelight(y); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.lights[y.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrLightExists, y.ID)
	}
	y.transport = d.transport
	d.lights[y.ID] = y

	d.logger.Info("light registered", "id", y.ID, "name", y.Name, "addr", y.Addr)
	return nil
}

// RelayLocked returns a relay by id. Caller must hold the registry lock.
func (d *RelayDevices) RelayLocked(id int) (*Relay, bool) {
	r, ok := d.relays[id]
	return r, ok
}

// LightLocked returns a light by id. Caller must hold the registry lock.
func (d *RelayDevices) LightLocked(id int) (*Yeelight, bool) {
	y, ok := d.lights[id]
	return y, ok
}

// EachActuatorLocked visits every relay then every light, in id order.
// Caller must hold the registry lock.
func (d *RelayDevices) EachActuatorLocked(fn func(Actuator)) {
	relayIDs := make([]int, 0, len(d.relays))
	for id := range d.relays {
		relayIDs = append(relayIDs, id)
	}
	slices.Sort(relayIDs)
	for _, id := range relayIDs {
		fn(d.relays[id])
	}

	lightIDs := make([]int, 0, len(d.lights))
	for id := range d.lights {
		lightIDs = append(lightIDs, id)
	}
	slices.Sort(lightIDs)
	for _, id := range lightIDs {
		fn(d.lights[id])
	}
}

// EachBoardLocked visits every relay board in stable address order.
// Caller must hold the registry lock.
func (d *RelayDevices) EachBoardLocked(fn func(*RelayBoard)) {
	ids := make([]BoardID, 0, len(d.boards))
	for id := range d.boards {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b BoardID) int {
		switch {
		case a.Address < b.Address:
			return -1
		case a.Address > b.Address:
			return 1
		default:
			return int(a.Family) - int(b.Family)
		}
	})
	for _, id := range ids {
		fn(d.boards[id])
	}
}

// ActuatorStatus is a read-only snapshot of an actuator for status reporting.
type ActuatorStatus struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Energized    bool    `json:"energized"`
	OverrideMode bool    `json:"override_mode"`
	Board        string  `json:"board,omitempty"`
	Bit          *uint8  `json:"bit,omitempty"`
	Addr         string  `json:"addr,omitempty"`
	// Pending is set for lights whose desired state has not yet been
	// confirmed against the bulb.
	Pending      bool    `json:"pending,omitempty"`
	StopAfterSec float64 `json:"stop_after_secs,omitempty"`
}

// ListRelays returns snapshots of all relays in id order.
func (d *RelayDevices) ListRelays() []ActuatorStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ActuatorStatus, 0, len(d.relays))
	for _, r := range d.relays {
		bit := r.Bit
		st := ActuatorStatus{
			ID:           r.ID,
			Name:         r.Name,
			Energized:    r.IsEnergized(),
			OverrideMode: r.Auto.OverrideMode,
			Board:        r.board.ID.String(),
			Bit:          &bit,
		}
		if r.Auto.StopAfter != nil {
			st.StopAfterSec = r.Auto.StopAfter.Seconds()
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b ActuatorStatus) int { return a.ID - b.ID })
	return out
}

// ListLights returns snapshots of all lights in id order.
func (d *RelayDevices) ListLights() []ActuatorStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ActuatorStatus, 0, len(d.lights))
	for _, y := range d.lights {
		st := ActuatorStatus{
			ID:           y.ID,
			Name:         y.Name,
			Energized:    y.PoweredOn,
			OverrideMode: y.Auto.OverrideMode,
			Addr:         y.Addr,
			Pending:      y.Pending != nil,
		}
		if y.Auto.StopAfter != nil {
			st.StopAfterSec = y.Auto.StopAfter.Seconds()
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b ActuatorStatus) int { return a.ID - b.ID })
	return out
}

// Counts returns the number of registered boards, relays, and lights.
func (d *RelayDevices) Counts() (boards, relays, lights int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.boards), len(d.relays), len(d.lights)
}

// ReplaceAll swaps the registry contents under one exclusive lock.
// Used by configuration reload. Confirmed board values are discarded, so the
// first flush after a reload rewrites from the safe default.
func (d *RelayDevices) ReplaceAll(relays []RelayDef, lights []*Yeelight) error {
	boards := make(map[BoardID]*RelayBoard)
	relaysByID := make(map[int]*Relay, len(relays))
	lightsByID := make(map[int]*Yeelight, len(lights))

	for _, def := range relays {
		r := def.Relay
		if err := ValidateRelay(r, def.Board); err != nil {
			return err
		}
		if _, ok := relaysByID[r.ID]; ok {
			return fmt.Errorf("%w: id %d", ErrRelayExists, r.ID)
		}
		b, ok := boards[def.Board]
		if !ok {
			b = &RelayBoard{ID: def.Board}
			boards[def.Board] = b
		}
		r.board = b
		relaysByID[r.ID] = r
	}

	for _, y := range lights {
		if err := ValidateYeelight(y); err != nil {
			return err
		}
		if _, ok := lightsByID[y.ID]; ok {
			return fmt.Errorf("%w: id %d", ErrLightExists, y.ID)
		}
		y.transport = d.transport
		lightsByID[y.ID] = y
	}

	d.mu.Lock()
	d.boards = boards
	d.relays = relaysByID
	d.lights = lightsByID
	d.mu.Unlock()

	d.logger.Info("relay registry reloaded",
		"boards", len(boards),
		"relays", len(relaysByID),
		"lights", len(lightsByID),
	)
	return nil
}
