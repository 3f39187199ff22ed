package onewire

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mzagorski/onewired/internal/device"
)

// Bus is the board I/O surface the automation engine consumes.
//
// Implementations must treat every error as transient: the engine logs a
// failure and retries on a later cycle, so a failed call must leave the bus
// usable for the next attempt.
type Bus interface {
	// ReadState returns the board's latest state byte.
	ReadState(board device.BoardID) (byte, error)

	// WriteState commands the board's outputs.
	WriteState(board device.BoardID, value byte) error
}

// FilesystemBus accesses boards through an owfs-style mount point where each
// board is a file named after its identity (e.g. /mnt/1wire/29-000000012f3a).
//
// File handles are opened lazily on first use and cached per board. Any I/O
// error drops the cached handle so the next call reopens from scratch; a
// board that was unplugged and replugged recovers without intervention.
//
// Thread Safety: safe for concurrent use, though in practice only the engine
// goroutine touches it.
type FilesystemBus struct {
	root string

	mu      sync.Mutex
	handles map[device.BoardID]*os.File
}

// NewFilesystemBus creates a bus rooted at the given mount path.
// The mount is not touched until the first board access.
func NewFilesystemBus(root string) *FilesystemBus {
	return &FilesystemBus{
		root:    root,
		handles: make(map[device.BoardID]*os.File),
	}
}

// Path returns the backing file path for a board.
func (b *FilesystemBus) Path(board device.BoardID) string {
	return filepath.Join(b.root, board.String())
}

// ReadState implements Bus. It reads the single state byte at offset zero.
func (b *FilesystemBus) ReadState(board device.BoardID) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.handleLocked(board)
	if err != nil {
		return 0, err
	}

	var buf [1]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		b.dropLocked(board)
		return 0, fmt.Errorf("reading board %s: %w", board, err)
	}
	return buf[0], nil
}

// WriteState implements Bus. It writes the state byte at offset zero.
func (b *FilesystemBus) WriteState(board device.BoardID, value byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.handleLocked(board)
	if err != nil {
		return err
	}

	if _, err := f.WriteAt([]byte{value}, 0); err != nil {
		b.dropLocked(board)
		return fmt.Errorf("writing board %s: %w", board, err)
	}
	return nil
}

// Close releases all cached handles. Called on daemon shutdown.
func (b *FilesystemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for id, f := range b.handles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing board %s: %w", id, err)
		}
		delete(b.handles, id)
	}
	return firstErr
}

// handleLocked returns the cached handle for a board, opening it lazily.
func (b *FilesystemBus) handleLocked(board device.BoardID) (*os.File, error) {
	if f, ok := b.handles[board]; ok {
		return f, nil
	}

	f, err := os.OpenFile(b.Path(board), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening board %s: %w", board, err)
	}
	b.handles[board] = f
	return f, nil
}

// dropLocked closes and forgets a board's handle after an I/O error.
func (b *FilesystemBus) dropLocked(board device.BoardID) {
	if f, ok := b.handles[board]; ok {
		_ = f.Close()
		delete(b.handles, board)
	}
}
