package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrRelayNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSensorNotFound is returned when a sensor id does not exist.
	ErrSensorNotFound = errors.New("sensor: not found")

	// ErrSensorExists is returned when adding a sensor with a duplicate id.
	ErrSensorExists = errors.New("sensor: already exists")

	// ErrSensorBitTaken is returned when a sensor is added to a board bit
	// that already has a sensor attached.
	ErrSensorBitTaken = errors.New("sensor: board bit already attached")

	// ErrRelayNotFound is returned when a relay id does not exist.
	ErrRelayNotFound = errors.New("relay: not found")

	// ErrRelayExists is returned when adding a relay with a duplicate id.
	ErrRelayExists = errors.New("relay: already exists")

	// ErrLightNotFound is returned when a light id does not exist.
	ErrLightNotFound = errors.New("light: not found")

	// ErrLightExists is returned when adding a light with a duplicate id.
	ErrLightExists = errors.New("light: already exists")

	// ErrKindExists is returned when adding a kind with a duplicate id.
	ErrKindExists = errors.New("kind: already exists")

	// ErrInvalidSensor is returned when sensor validation fails.
	ErrInvalidSensor = errors.New("sensor: invalid")

	// ErrInvalidRelay is returned when relay validation fails.
	ErrInvalidRelay = errors.New("relay: invalid")

	// ErrInvalidLight is returned when light validation fails.
	ErrInvalidLight = errors.New("light: invalid")
)
