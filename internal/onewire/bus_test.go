package onewire

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mzagorski/onewired/internal/device"
)

func testBoard(addr uint64) device.BoardID {
	return device.BoardID{Family: 0x29, Address: addr}
}

// ─── FilesystemBus ──────────────────────────────────────────────────────────

func TestFilesystemBus_Path(t *testing.T) {
	bus := NewFilesystemBus("/mnt/1wire")
	board := device.BoardID{Family: 0x29, Address: 0x12F3A4}

	want := filepath.Join("/mnt/1wire", "29-00000012f3a4")
	if got := bus.Path(board); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestFilesystemBus_ReadWrite(t *testing.T) {
	root := t.TempDir()
	board := testBoard(0x42)

	// Seed a board file with a known state byte
	path := filepath.Join(root, board.String())
	if err := os.WriteFile(path, []byte{0xA5}, 0600); err != nil {
		t.Fatalf("seeding board file: %v", err)
	}

	bus := NewFilesystemBus(root)
	defer bus.Close()

	got, err := bus.ReadState(board)
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if got != 0xA5 {
		t.Errorf("ReadState() = %#02x, want 0xA5", got)
	}

	if err := bus.WriteState(board, 0x3C); err != nil {
		t.Fatalf("WriteState() error = %v", err)
	}

	got, err = bus.ReadState(board)
	if err != nil {
		t.Fatalf("ReadState() after write error = %v", err)
	}
	if got != 0x3C {
		t.Errorf("ReadState() = %#02x, want 0x3C", got)
	}
}

func TestFilesystemBus_MissingBoard(t *testing.T) {
	bus := NewFilesystemBus(t.TempDir())
	defer bus.Close()

	if _, err := bus.ReadState(testBoard(0x99)); err == nil {
		t.Error("ReadState() expected error for missing board file")
	}
}

func TestFilesystemBus_ReopensAfterError(t *testing.T) {
	root := t.TempDir()
	board := testBoard(0x42)
	path := filepath.Join(root, board.String())

	bus := NewFilesystemBus(root)
	defer bus.Close()

	// Board absent: first read fails
	if _, err := bus.ReadState(board); err == nil {
		t.Fatal("ReadState() expected error before board appears")
	}

	// Board appears (plugged in / owfs remounted): next cycle succeeds
	if err := os.WriteFile(path, []byte{0x01}, 0600); err != nil {
		t.Fatalf("seeding board file: %v", err)
	}
	got, err := bus.ReadState(board)
	if err != nil {
		t.Fatalf("ReadState() after board appeared error = %v", err)
	}
	if got != 0x01 {
		t.Errorf("ReadState() = %#02x, want 0x01", got)
	}
}

// ─── FakeBus ────────────────────────────────────────────────────────────────

func TestFakeBus_ReadWrite(t *testing.T) {
	bus := NewFakeBus()
	board := testBoard(0x01)

	bus.SetValue(board, 0x05)
	got, err := bus.ReadState(board)
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if got != 0x05 {
		t.Errorf("ReadState() = %#02x, want 0x05", got)
	}

	if err := bus.WriteState(board, 0xF0); err != nil {
		t.Fatalf("WriteState() error = %v", err)
	}
	if bus.Value(board) != 0xF0 {
		t.Errorf("Value() = %#02x, want 0xF0 after write", bus.Value(board))
	}
	if bus.WriteCount(board) != 1 {
		t.Errorf("WriteCount() = %d, want 1", bus.WriteCount(board))
	}
}

func TestFakeBus_FaultInjection(t *testing.T) {
	bus := NewFakeBus()
	board := testBoard(0x01)
	boom := errors.New("bus: crc mismatch")

	bus.FailReads(board, boom)
	if _, err := bus.ReadState(board); !errors.Is(err, boom) {
		t.Errorf("ReadState() error = %v, want wrapped fault", err)
	}

	bus.FailReads(board, nil)
	if _, err := bus.ReadState(board); err != nil {
		t.Errorf("ReadState() error = %v after clearing fault", err)
	}

	bus.FailWrites(board, boom)
	if err := bus.WriteState(board, 0x00); !errors.Is(err, boom) {
		t.Errorf("WriteState() error = %v, want wrapped fault", err)
	}
	if bus.WriteCount(board) != 0 {
		t.Error("failed writes must not be recorded")
	}
}
