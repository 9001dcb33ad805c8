package qspi

import "fmt"

// Width is the access width of a register in bits.
type Width uint8

const (
	Width8  Width = 8
	Width32 Width = 32
)

func (w Width) max() uint32 {
	switch w {
	case Width8:
		return 0xFF
	case Width32:
		return 0xFFFFFFFF
	}
	return 0
}

// Register is one of the fixed controller registers. The zero value is not
// a valid register.
type Register struct {
	name  string
	addr  uint64
	width Width
}

func (r Register) Name() string   { return r.name }
func (r Register) Addr() uint64   { return r.addr }
func (r Register) Width() Width   { return r.width }
func (r Register) valid() bool    { return r.width == Width8 || r.width == Width32 }
func (r Register) String() string { return fmt.Sprintf("%s@%#08x/%d", r.name, r.addr, r.width) }

// Physical register map.
const (
	muxBase   = 0x41210000
	muxOffset = 0x08

	qspiBase           = 0xA0030000 // [PG153] AXI Quad SPI base in the PL address map
	qspiControlOffset  = 0x60       // SPICR
	qspiStatusOffset   = 0x64       // SPISR
	qspiTxDataOffset   = 0x68       // SPI DTR
	qspiRxDataOffset   = 0x6C       // SPI DRR
	qspiSlaveSelOffset = 0x70       // SPISSR
)

var (
	RegMux         = Register{"MUX", muxBase + muxOffset, Width32}
	RegControl     = Register{"SPICR", qspiBase + qspiControlOffset, Width32}
	RegStatus      = Register{"SPISR", qspiBase + qspiStatusOffset, Width8}
	RegTxData      = Register{"SPIDTR", qspiBase + qspiTxDataOffset, Width8}
	RegRxData      = Register{"SPIDRR", qspiBase + qspiRxDataOffset, Width8}
	RegSlaveSelect = Register{"SPISSR", qspiBase + qspiSlaveSelOffset, Width8}
)

// Registers lists every register the driver touches.
var Registers = []Register{RegMux, RegControl, RegStatus, RegTxData, RegRxData, RegSlaveSelect}

// Mux patterns.
const (
	muxDeselect = 0x100 // no flash routed to the controller
	muxFlash1   = 0x104 // flash 1..4 are 0x104..0x107
	maxFlash    = 4
)

// SPICR values. Bits [PG153|SPICR]:
//
//	9 | LSB first
//	8 | Master transaction inhibit
//	7 | Manual slave select
//	6 | RX FIFO reset
//	5 | TX FIFO reset
//	4 | CPHA
//	3 | CPOL
//	2 | Master
//	1 | SPE: SPI system enable
//	0 | Loop
const (
	crInhibit  = 1 << 8
	crManualSS = 1 << 7
	crRxReset  = 1 << 6
	crTxReset  = 1 << 5
	crMaster   = 1 << 2
	crEnable   = 1 << 1

	crStart     = crManualSS | crMaster | crEnable // 0x086: clock the TX FIFO out
	crStop      = crInhibit | crStart              // 0x186
	crResetIdle = crStop | crRxReset | crTxReset   // 0x1E6: reset both FIFOs
)

// SPISR bits.
const (
	srRxEmpty = 1 << 0
	srRxFull  = 1 << 1
	srTxEmpty = 1 << 2
	srTxFull  = 1 << 3
)

// SPISSR values.
const (
	ssSelect   = 0x00
	ssDeselect = 0x01
)

// fifoDepth is the depth of both controller FIFOs.
const fifoDepth = 128
