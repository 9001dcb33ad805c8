package qspi

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteEnableFailed is returned when the write enable latch is still
	// clear after one WRITE_ENABLE.
	ErrWriteEnableFailed = errors.New("write enable latch did not set")

	// ErrTimeout is returned when a bounded poll of the controller status
	// register gives up.
	ErrTimeout = errors.New("timed out polling controller status")

	ErrQuadDisabled = errors.New("quad mode is not enabled in the configuration register")
	ErrAddressRange = errors.New("address out of 24-bit range")
	ErrWidth        = errors.New("value does not fit register width")
	ErrRegister     = errors.New("unknown register")
	ErrFrameSize    = errors.New("frame exceeds controller FIFO depth")
)

// MappingError reports that the physical register window could not be
// mapped. It is fatal to the command that hit it.
type MappingError struct {
	Addr uint64
	Err  error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("failed to map physical address %#x: %v", e.Addr, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// ProtocolDesyncError reports that fewer receive bytes arrived than the
// command requires. Err is ErrTimeout when the controller RX FIFO stayed
// empty.
type ProtocolDesyncError struct {
	Op   Opcode
	Want int
	Got  int
	Err  error
}

func (e *ProtocolDesyncError) Error() string {
	s := fmt.Sprintf("%v: short read: got %d of %d receive bytes", e.Op, e.Got, e.Want)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ProtocolDesyncError) Unwrap() error { return e.Err }

// UnsupportedOperationError is returned by ParseOperation for names outside
// the operation table.
type UnsupportedOperationError struct {
	Name string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %q", e.Name)
}

// VerifyError reports a register readback that differs from the value
// written by WriteRegisters.
type VerifyError struct {
	Reg  string
	Want byte
	Got  byte
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s register readback %#02x, wrote %#02x", e.Reg, e.Got, e.Want)
}

// PartialReadError reports a bulk read that failed after N bytes had been
// delivered to the sink.
type PartialReadError struct {
	N   int
	Err error
}

func (e *PartialReadError) Error() string {
	return fmt.Sprintf("read failed after %d bytes: %v", e.N, e.Err)
}

func (e *PartialReadError) Unwrap() error { return e.Err }
