package onewire

import (
	"fmt"
	"sync"

	"github.com/mzagorski/onewired/internal/device"
)

// FakeBus is an in-memory Bus for tests. It holds a byte per board, records
// every write, and can be told to fail reads or writes per board.
//
// It lives in the package proper (not a _test.go file) so engine and API
// tests can drive hardware scenarios without a 1-Wire mount.
type FakeBus struct {
	mu sync.Mutex

	values    map[device.BoardID]byte
	readErrs  map[device.BoardID]error
	writeErrs map[device.BoardID]error
	writes    []WriteRecord
}

// WriteRecord is one recorded WriteState call.
type WriteRecord struct {
	Board device.BoardID
	Value byte
}

// NewFakeBus creates an empty fake bus. Boards read as zero until seeded
// with SetValue.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		values:    make(map[device.BoardID]byte),
		readErrs:  make(map[device.BoardID]error),
		writeErrs: make(map[device.BoardID]error),
	}
}

// SetValue seeds the byte a board reads back.
func (b *FakeBus) SetValue(board device.BoardID, value byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[board] = value
}

// Value returns the board's current byte (last seeded or written).
func (b *FakeBus) Value(board device.BoardID) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.values[board]
}

// FailReads makes ReadState return err for the board; nil clears the fault.
func (b *FakeBus) FailReads(board device.BoardID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.readErrs, board)
		return
	}
	b.readErrs[board] = err
}

// FailWrites makes WriteState return err for the board; nil clears the fault.
func (b *FakeBus) FailWrites(board device.BoardID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.writeErrs, board)
		return
	}
	b.writeErrs[board] = err
}

// Writes returns a copy of all recorded writes in order.
func (b *FakeBus) Writes() []WriteRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]WriteRecord, len(b.writes))
	copy(out, b.writes)
	return out
}

// WriteCount returns how many writes hit the given board.
func (b *FakeBus) WriteCount(board device.BoardID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, w := range b.writes {
		if w.Board == board {
			n++
		}
	}
	return n
}

// ResetWrites clears the recorded write log, keeping board values.
func (b *FakeBus) ResetWrites() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = nil
}

// ReadState implements Bus.
func (b *FakeBus) ReadState(board device.BoardID) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.readErrs[board]; err != nil {
		return 0, fmt.Errorf("reading board %s: %w", board, err)
	}
	return b.values[board], nil
}

// WriteState implements Bus. Successful writes update the readable value,
// mirroring a real board reporting back what was latched.
func (b *FakeBus) WriteState(board device.BoardID, value byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writeErrs[board]; err != nil {
		return fmt.Errorf("writing board %s: %w", board, err)
	}
	b.values[board] = value
	b.writes = append(b.writes, WriteRecord{Board: board, Value: value})
	return nil
}
