package yeelight

import "errors"

// Controller errors.
var (
	// ErrUnreachable indicates the bulb could not be dialled.
	ErrUnreachable = errors.New("yeelight: bulb unreachable")

	// ErrTimeout indicates the bulb accepted the connection but never replied.
	ErrTimeout = errors.New("yeelight: command timed out")

	// ErrBadResponse indicates the bulb replied with something that is not
	// the line-delimited JSON the protocol promises.
	ErrBadResponse = errors.New("yeelight: malformed response")

	// ErrCommandRejected indicates the bulb returned an error payload.
	ErrCommandRejected = errors.New("yeelight: command rejected")
)
