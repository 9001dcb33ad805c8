package qspi

import (
	"fmt"
	"sort"
)

// Opcode is an SPI-NOR instruction code.
type Opcode byte

// Flash commands: [S25FL-S|Table: Command Set]
const (
	OpReadID      Opcode = 0x90 // READ_ID: manufacturer / device ID
	OpWriteEnable Opcode = 0x06 // WREN
	OpWriteReg    Opcode = 0x01 // WRR: write status and configuration
	OpReadStatus  Opcode = 0x05 // RDSR1
	OpReadConfig  Opcode = 0x35 // RDCR
	OpReadBAR     Opcode = 0x16 // BRRD: bank address register read
	OpReadQuadOut Opcode = 0x6B // QOR: quad output read, 3-byte address
	OpReadQuadIO  Opcode = 0xEB // QIOR: quad I/O read, 3-byte address
)

// Operations maps operation names to opcodes. It must not be modified.
var Operations = map[string]Opcode{
	"READ_ID":       OpReadID,
	"WRITE_ENABLE":  OpWriteEnable,
	"WRITE_REG":     OpWriteReg,
	"READ_STATUS":   OpReadStatus,
	"READ_CONFIG":   OpReadConfig,
	"READ_BAR":      OpReadBAR,
	"READ_QUAD_OUT": OpReadQuadOut,
	"READ_QUAD_IO":  OpReadQuadIO,
}

// ParseOperation looks up an operation by name.
func ParseOperation(name string) (Opcode, error) {
	op, ok := Operations[name]
	if !ok {
		return 0, &UnsupportedOperationError{Name: name}
	}
	return op, nil
}

// OperationNames returns the operation names in sorted order.
func OperationNames() []string {
	names := make([]string, 0, len(Operations))
	for name := range Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (op Opcode) String() string {
	for name, v := range Operations {
		if v == op {
			return name
		}
	}
	return fmt.Sprintf("Opcode(%#02x)", byte(op))
}

// Bulk reads move readChunk bytes per command. The dummy bytes of a read
// frame cover the flash latency and then clock the data out.
const (
	readChunk      = 16
	quadOutLatency = 8 // dummy bytes between the address and the first data byte
	quadIOLatency  = 2 // after the mode byte
	fillerByte     = 0xAA
	readIDFiller   = 0xAB
	quadIOMode     = 0x00 // mode bits after a QUAD I/O READ address; not continuous
)

// command describes the frame of one instruction. The frame is the opcode,
// then args bytes supplied by the caller, then dummy filler bytes. rx bytes
// are drained from the controller, of which those from data on carry the
// result.
type command struct {
	op    Opcode
	args  int
	dummy int
	rx    int
	data  int
}

// commands is the frame table for every supported instruction.
var commands = map[Opcode]command{
	OpReadID:      {op: OpReadID, args: 5, rx: 6, data: 4},
	OpReadStatus:  {op: OpReadStatus, args: 1, rx: 2, data: 1},
	OpReadConfig:  {op: OpReadConfig, args: 1, rx: 2, data: 1},
	OpReadBAR:     {op: OpReadBAR, args: 1, rx: 2, data: 1},
	OpWriteEnable: {op: OpWriteEnable, args: 2},
	OpWriteReg:    {op: OpWriteReg, args: 2},
	OpReadQuadOut: {
		op:    OpReadQuadOut,
		args:  3,
		dummy: quadOutLatency + readChunk,
		rx:    1 + 3 + quadOutLatency + readChunk,
		data:  1 + 3 + quadOutLatency,
	},
	OpReadQuadIO: {
		op:    OpReadQuadIO,
		args:  4, // address + mode byte
		dummy: quadIOLatency + readChunk,
		rx:    1 + 4 + quadIOLatency + readChunk,
		data:  1 + 4 + quadIOLatency,
	},
}

// frame builds the transmit frame. len(args) must equal c.args.
func (c command) frame(args ...byte) ([]byte, error) {
	if len(args) != c.args {
		return nil, fmt.Errorf("%v: %d argument bytes, want %d", c.op, len(args), c.args)
	}
	f := make([]byte, 0, 1+c.args+c.dummy)
	f = append(f, byte(c.op))
	f = append(f, args...)
	for i := 0; i < c.dummy; i++ {
		f = append(f, fillerByte)
	}
	return f, nil
}

// result strips the bytes that were clocked in while the opcode, arguments
// and latency were going out.
func (c command) result(rx []byte) ([]byte, error) {
	if len(rx) < c.rx {
		return nil, &ProtocolDesyncError{Op: c.op, Want: c.rx, Got: len(rx)}
	}
	return rx[c.data:c.rx], nil
}
