package device

import "fmt"

// ValidateSensor checks a sensor definition before registration.
//
// Returns ErrInvalidSensor (wrapped with detail) if:
//   - ID is not positive
//   - Name is empty
//   - Board address is zero
//   - Bit is not a monitored PIO position
func ValidateSensor(s *Sensor) error {
	if s.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidSensor, s.ID)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSensor)
	}
	if s.Board.Address == 0 {
		return fmt.Errorf("%w: board address is required", ErrInvalidSensor)
	}
	if s.Bit != PIOABit && s.Bit != PIOBBit {
		return fmt.Errorf("%w: bit must be %d (PIOA) or %d (PIOB), got %d",
			ErrInvalidSensor, PIOABit, PIOBBit, s.Bit)
	}
	return nil
}

// ValidateRelay checks a relay definition before registration.
//
// Returns ErrInvalidRelay (wrapped with detail) if:
//   - ID is not positive
//   - Name is empty
//   - Board address is zero
//   - Bit is outside the board's 0-7 output range
//   - A hold duration is negative
func ValidateRelay(r *Relay, board BoardID) error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidRelay, r.ID)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRelay)
	}
	if board.Address == 0 {
		return fmt.Errorf("%w: board address is required", ErrInvalidRelay)
	}
	if r.Bit > 7 {
		return fmt.Errorf("%w: bit must be 0-7, got %d", ErrInvalidRelay, r.Bit)
	}
	if r.Conf.PIRHold < 0 || r.Conf.SwitchHold < 0 {
		return fmt.Errorf("%w: hold durations must not be negative", ErrInvalidRelay)
	}
	return nil
}

// ValidateYeelight checks a light definition before registration.
//
// Returns ErrInvalidLight (wrapped with detail) if:
//   - ID is not positive
//   - Name is empty
//   - Addr is empty
//   - A hold duration is negative
func ValidateYeelight(y *Yeelight) error {
	if y.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidLight, y.ID)
	}
	if y.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidLight)
	}
	if y.Addr == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidLight)
	}
	if y.Conf.PIRHold < 0 || y.Conf.SwitchHold < 0 {
		return fmt.Errorf("%w: hold durations must not be negative", ErrInvalidLight)
	}
	return nil
}
