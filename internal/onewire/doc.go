// Package onewire is the board I/O adapter between the automation engine and
// the physical 1-Wire bus.
//
// Boards are addressed by (family code, 64-bit address) and located on an
// owfs-style mount as files named ff-xxxxxxxxxxxx (hex family code, 12 hex
// digits of address). The adapter exposes exactly the surface the engine
// needs: read one state byte, write one state byte.
//
// # Error Model
//
// Every failure is transient by contract. The adapter wraps and returns
// errors without retrying; the engine treats a failed read as "no new data
// this cycle" and a failed write as "retry the pending value later". After
// any error the cached file handle is dropped so the next access reopens the
// device, which recovers from bus resets and replugged boards.
//
// # Testing
//
// FakeBus is an in-memory implementation with per-board fault injection and
// a write log; engine tests use it to verify the at-most-one-write-per-board
// invariant.
package onewire
