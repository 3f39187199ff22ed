package loader

import "errors"

// Loader errors.
var (
	// ErrFileUnreadable indicates the devices file could not be read.
	ErrFileUnreadable = errors.New("loader: devices file unreadable")

	// ErrBadYAML indicates the devices file is not valid YAML.
	ErrBadYAML = errors.New("loader: devices file is not valid yaml")

	// ErrBadDevice indicates one device entry failed validation. The wrapped
	// message names the entry and the field.
	ErrBadDevice = errors.New("loader: invalid device entry")
)
