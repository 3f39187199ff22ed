package automation

import "errors"

// Domain errors for the automation package.
var (
	// ErrToggleDebounced is returned when a manual toggle request lands
	// inside the flip-flop protection window and is suppressed.
	ErrToggleDebounced = errors.New("engine: toggle suppressed by flip-flop protection")
)
