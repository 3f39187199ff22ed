package loader

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mzagorski/onewired/internal/device"
)

// Logger defines the logging interface used by the loader.
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

// devicesFile is the YAML shape of the devices file.
type devicesFile struct {
	Kinds     []kindDef     `yaml:"kinds"`
	Sensors   []sensorDef   `yaml:"sensors"`
	Relays    []relayDef    `yaml:"relays"`
	Yeelights []yeelightDef `yaml:"yeelights"`
}

type kindDef struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

type sensorDef struct {
	ID     int    `yaml:"id"`
	Name   string `yaml:"name"`
	Kind   int    `yaml:"kind"`
	Board  string `yaml:"board"`
	PIO    string `yaml:"pio"`
	Relays []int  `yaml:"relays"`
	Lights []int  `yaml:"lights"`
}

type relayDef struct {
	ID         int    `yaml:"id"`
	Name       string `yaml:"name"`
	Board      string `yaml:"board"`
	Bit        uint8  `yaml:"bit"`
	PIRExclude bool   `yaml:"pir_exclude"`
	PIRHold    string `yaml:"pir_hold"`
	SwitchHold string `yaml:"switch_hold"`
}

type yeelightDef struct {
	ID         int    `yaml:"id"`
	Name       string `yaml:"name"`
	Address    string `yaml:"address"`
	PIRExclude bool   `yaml:"pir_exclude"`
	PIRHold    string `yaml:"pir_hold"`
	SwitchHold string `yaml:"switch_hold"`
}

// Loader reads the devices file and installs its contents into the live
// registries.
//
// Thread Safety: Load and Reload may be called from any goroutine; the swap
// itself happens inside each registry's ReplaceAll under its exclusive lock,
// so an engine cycle never observes a half-loaded registry.
type Loader struct {
	path    string
	sensors *device.SensorDevices
	relays  *device.RelayDevices
	logger  Logger
}

// New creates a loader for the given devices file and registries.
func New(path string, sensors *device.SensorDevices, relays *device.RelayDevices) *Loader {
	return &Loader{
		path:    path,
		sensors: sensors,
		relays:  relays,
		logger:  noopLogger{},
	}
}

// SetLogger sets the loader's logger.
func (l *Loader) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Load parses the devices file and replaces both registries' contents.
// On any error the registries keep their previous contents.
func (l *Loader) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}

	var file devicesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %v", ErrBadYAML, err)
	}

	kinds, sensors, err := buildSensors(file)
	if err != nil {
		return err
	}
	relays, lights, err := buildActuators(file)
	if err != nil {
		return err
	}

	// Sensor registry first, matching the engine's lock order.
	if err := l.sensors.ReplaceAll(kinds, sensors); err != nil {
		return fmt.Errorf("installing sensors: %w", err)
	}
	if err := l.relays.ReplaceAll(relays, lights); err != nil {
		return fmt.Errorf("installing actuators: %w", err)
	}

	l.logger.Info("devices loaded",
		"path", l.path,
		"kinds", len(kinds),
		"sensors", len(sensors),
		"relays", len(relays),
		"lights", len(lights),
	)
	return nil
}

// Reload re-reads the devices file. Satisfies the persistence worker's
// Reloader interface.
func (l *Loader) Reload(ctx context.Context) error {
	return l.Load(ctx)
}

// buildSensors converts the file's kind and sensor entries to registry types.
func buildSensors(file devicesFile) (map[int]string, []*device.Sensor, error) {
	kinds := make(map[int]string, len(file.Kinds))
	for _, k := range file.Kinds {
		if k.Name == "" {
			return nil, nil, fmt.Errorf("%w: kind %d has no name", ErrBadDevice, k.ID)
		}
		if _, dup := kinds[k.ID]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate kind id %d", ErrBadDevice, k.ID)
		}
		kinds[k.ID] = k.Name
	}

	sensors := make([]*device.Sensor, 0, len(file.Sensors))
	for _, def := range file.Sensors {
		board, err := parseBoardID(def.Board, device.FamilySensorDefault)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: sensor %d: %v", ErrBadDevice, def.ID, err)
		}
		bit, err := parsePIO(def.PIO)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: sensor %d: %v", ErrBadDevice, def.ID, err)
		}
		if _, known := kinds[def.Kind]; !known {
			return nil, nil, fmt.Errorf("%w: sensor %d references unknown kind %d", ErrBadDevice, def.ID, def.Kind)
		}
		sensors = append(sensors, &device.Sensor{
			ID:       def.ID,
			Name:     def.Name,
			KindID:   def.Kind,
			Board:    board,
			Bit:      bit,
			RelayIDs: def.Relays,
			LightIDs: def.Lights,
		})
	}
	return kinds, sensors, nil
}

// buildActuators converts the file's relay and yeelight entries.
func buildActuators(file devicesFile) ([]device.RelayDef, []*device.Yeelight, error) {
	relays := make([]device.RelayDef, 0, len(file.Relays))
	for _, def := range file.Relays {
		board, err := parseBoardID(def.Board, device.FamilyRelayDefault)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: relay %d: %v", ErrBadDevice, def.ID, err)
		}
		conf, err := parseHolds(def.PIRExclude, def.PIRHold, def.SwitchHold)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: relay %d: %v", ErrBadDevice, def.ID, err)
		}
		relays = append(relays, device.RelayDef{
			Relay: &device.Relay{
				ID:   def.ID,
				Name: def.Name,
				Bit:  def.Bit,
				Conf: conf,
			},
			Board: board,
		})
	}

	lights := make([]*device.Yeelight, 0, len(file.Yeelights))
	for _, def := range file.Yeelights {
		if def.Address == "" {
			return nil, nil, fmt.Errorf("%w: yeelight %d has no address", ErrBadDevice, def.ID)
		}
		conf, err := parseHolds(def.PIRExclude, def.PIRHold, def.SwitchHold)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: yeelight %d: %v", ErrBadDevice, def.ID, err)
		}
		lights = append(lights, &device.Yeelight{
			ID:   def.ID,
			Name: def.Name,
			Addr: def.Address,
			Conf: conf,
		})
	}
	return relays, lights, nil
}

// parseHolds builds an ActuatorConfig from the file's duration strings.
// Both holds are required: an actuator without timers would latch forever.
func parseHolds(pirExclude bool, pirHold, switchHold string) (device.ActuatorConfig, error) {
	ph, err := parseDuration("pir_hold", pirHold)
	if err != nil {
		return device.ActuatorConfig{}, err
	}
	sh, err := parseDuration("switch_hold", switchHold)
	if err != nil {
		return device.ActuatorConfig{}, err
	}
	return device.ActuatorConfig{
		PIRExclude: pirExclude,
		PIRHold:    ph,
		SwitchHold: sh,
	}, nil
}

// parseDuration accepts Go duration strings ("90s", "2m", "1h30m").
func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %v", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", field, d)
	}
	return d, nil
}

// parseBoardID parses an owfs-style board name, "3a-0000001cafe0". A bare
// 12-digit address is accepted and takes the default family for its role.
func parseBoardID(s string, defaultFamily uint8) (device.BoardID, error) {
	if s == "" {
		return device.BoardID{}, fmt.Errorf("board is required")
	}

	family := uint64(defaultFamily)
	addrPart := s
	if i := strings.IndexByte(s, '-'); i >= 0 {
		f, err := strconv.ParseUint(s[:i], 16, 8)
		if err != nil {
			return device.BoardID{}, fmt.Errorf("board %q: bad family code: %v", s, err)
		}
		family = f
		addrPart = s[i+1:]
	}

	addr, err := strconv.ParseUint(addrPart, 16, 64)
	if err != nil {
		return device.BoardID{}, fmt.Errorf("board %q: bad address: %v", s, err)
	}
	return device.BoardID{Family: uint8(family), Address: addr}, nil
}

// parsePIO maps the file's channel letter to the status byte bit position.
func parsePIO(s string) (uint8, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "":
		return device.PIOABit, nil
	case "B":
		return device.PIOBBit, nil
	default:
		return 0, fmt.Errorf("pio %q: must be A or B", s)
	}
}
