package qspi

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"periph.io/x/conn/v3"
)

// Flash issues SPI-NOR commands through a transfer engine. Each command is
// one transfer with the bus routed to the flash for its duration.
//
// Flash is not safe for concurrent use; Device serialises access.
type Flash struct {
	conn conn.Conn
	mux  *Mux
	log  *log.Logger

	id [2]byte // manufacturer and device ID from READ_ID
	pr *flashParams

	// wel records a write enable latch confirmed by EnsureWriteEnabled. It
	// is cleared by WRITE_REG, which consumes the latch.
	wel bool

	busyInterval time.Duration
}

// NewFlash returns a Flash driving c, routed by m. A nil logger discards.
func NewFlash(c conn.Conn, m *Mux, logger *log.Logger) *Flash {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Flash{
		conn:         c,
		mux:          m,
		log:          logger,
		busyInterval: time.Millisecond,
	}
}

// tx runs one command and returns the bytes received after the opcode,
// arguments and latency.
func (f *Flash) tx(op Opcode, args ...byte) ([]byte, error) {
	c, ok := commands[op]
	if !ok {
		return nil, &UnsupportedOperationError{Name: op.String()}
	}
	frame, err := c.frame(args...)
	if err != nil {
		return nil, err
	}
	rx := make([]byte, c.rx)
	if err := f.mux.with(func() error {
		return f.conn.Tx(frame, rx)
	}); err != nil {
		return nil, err
	}
	return c.result(rx)
}

// ReadID returns the manufacturer and device ID and configures the part
// parameters. It returns a non-empty name for known IDs.
func (f *Flash) ReadID() (id [2]byte, name string, err error) {
	b, err := f.tx(OpReadID, 0, 0, 0, readIDFiller, readIDFiller)
	if err != nil {
		return
	}

	f.id = [2]byte(b)
	f.pr = nil
	if params, ok := knownFlash[f.id]; ok {
		f.pr = &params
		name = params.name
	}
	return f.id, name, nil
}

func (f *Flash) readRegister(op Opcode) (byte, error) {
	b, err := f.tx(op, 0)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (f *Flash) ReadStatusRegister() (StatusRegister, error) {
	v, err := f.readRegister(OpReadStatus)
	return StatusRegister(v), err
}

func (f *Flash) ReadConfigRegister() (ConfigRegister, error) {
	v, err := f.readRegister(OpReadConfig)
	return ConfigRegister(v), err
}

func (f *Flash) ReadBankRegister() (BankRegister, error) {
	v, err := f.readRegister(OpReadBAR)
	return BankRegister(v), err
}

// WriteEnable sends WRITE_ENABLE without checking the result. Use
// EnsureWriteEnabled before a register write.
func (f *Flash) WriteEnable() error {
	_, err := f.tx(OpWriteEnable, 0, 0)
	return err
}

// EnsureWriteEnabled makes sure the write enable latch is set. It reads the
// status register, and if WEL is clear sends one WRITE_ENABLE and reads the
// status again. ErrWriteEnableFailed is returned if the latch is still
// clear; there is no retry.
//
// A latch confirmed earlier and not yet consumed by WriteRegisters is not
// checked again.
func (f *Flash) EnsureWriteEnabled() error {
	if f.wel {
		f.log.Println("write already enabled")
		return nil
	}

	sr, err := f.ReadStatusRegister()
	if err != nil {
		return err
	}
	if sr.WriteEnabled() {
		f.wel = true
		f.log.Println("write already enabled")
		return nil
	}

	f.log.Println("setting write enable latch")
	if err := f.WriteEnable(); err != nil {
		return err
	}
	if sr, err = f.ReadStatusRegister(); err != nil {
		return err
	}
	if !sr.WriteEnabled() {
		return fmt.Errorf("%w (status %v)", ErrWriteEnableFailed, sr)
	}
	f.wel = true
	f.log.Println("write enabled")
	return nil
}

// WriteRegisters writes the status and configuration registers (WRR), waits
// for the write cycle, and reads both back. The readback is returned; one
// that differs from the written value also returns *VerifyError. The
// volatile WIP and WEL bits are not compared.
func (f *Flash) WriteRegisters(status StatusRegister, config ConfigRegister) (StatusRegister, ConfigRegister, error) {
	if err := f.EnsureWriteEnabled(); err != nil {
		return 0, 0, err
	}

	f.log.Printf("writing status %#02x, config %#02x", byte(status), byte(config))
	_, err := f.tx(OpWriteReg, byte(status), byte(config))
	f.wel = false
	if err != nil {
		return 0, 0, err
	}
	if err := f.BusyWait(f.busyInterval, f.tW()); err != nil {
		return 0, 0, err
	}

	sr, err := f.ReadStatusRegister()
	if err != nil {
		return 0, 0, err
	}
	cr, err := f.ReadConfigRegister()
	if err != nil {
		return sr, 0, err
	}
	f.log.Printf("readback status %v, config %v", sr, cr)

	const volatile = statusWEL | statusWIP
	if sr&^volatile != status&^volatile {
		return sr, cr, &VerifyError{Reg: "status", Want: byte(status), Got: byte(sr)}
	}
	if cr != config {
		return sr, cr, &VerifyError{Reg: "config", Want: byte(config), Got: byte(cr)}
	}
	return sr, cr, nil
}

// BusyWait waits for the flash to become ready by polling the status
// register's WIP bit with the given interval. It returns ErrTimeout once
// timeout has passed.
func (f *Flash) BusyWait(interval, timeout time.Duration) error {
	// Fast path
	sr, err := f.ReadStatusRegister()
	if err != nil {
		return err
	}
	if !sr.Busy() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return fmt.Errorf("write in progress after %v: %w", timeout, ErrTimeout)
		case <-ticker.C:
			sr, err := f.ReadStatusRegister()
			if err != nil {
				return err
			}
			if !sr.Busy() {
				return nil
			}
		}
	}
}

// ReadQuadOut reads n bytes starting at addr with QUAD OUTPUT READ and
// writes them to w in address order. Every readChunk bytes is a separate
// command at the next address; the flash's own address increment is not
// relied upon across commands.
//
// It returns the number of bytes written to w. A failure after the first
// chunk returns *PartialReadError carrying that count.
func (f *Flash) ReadQuadOut(addr uint32, n int, w io.Writer) (int, error) {
	return f.readQuad(OpReadQuadOut, addr, n, w)
}

// ReadQuadIO is ReadQuadOut using QUAD I/O READ.
func (f *Flash) ReadQuadIO(addr uint32, n int, w io.Writer) (int, error) {
	return f.readQuad(OpReadQuadIO, addr, n, w)
}

func (f *Flash) readQuad(op Opcode, addr uint32, n int, w io.Writer) (int, error) {
	if err := checkSpan(addr, n); err != nil {
		return 0, err
	}
	cr, err := f.ReadConfigRegister()
	if err != nil {
		return 0, err
	}
	if !cr.Quad() {
		return 0, fmt.Errorf("%w (config %v)", ErrQuadDisabled, cr)
	}

	written := 0
	for off := 0; off < n; off += readChunk {
		chunk, err := f.readAt(op, addr+uint32(off))
		if err != nil {
			return written, &PartialReadError{N: written, Err: err}
		}
		chunk = chunk[:min(readChunk, n-off)]
		m, err := w.Write(chunk)
		written += m
		if err != nil {
			return written, &PartialReadError{N: written, Err: err}
		}
	}
	return written, nil
}

func (f *Flash) readAt(op Opcode, addr uint32) ([]byte, error) {
	msb, mid, lsb, err := SplitAddress(addr)
	if err != nil {
		return nil, err
	}
	if op == OpReadQuadIO {
		return f.tx(op, msb, mid, lsb, quadIOMode)
	}
	return f.tx(op, msb, mid, lsb)
}

// StatusRegister is status register 1 of the flash.
//
//	Bits| [S25FL-S|Status Register 1]
//	----+------------------------------
//	7   | SRWD: Status Register Write Disable
//	6   | P_ERR: Programming Error
//	5   | E_ERR: Erase Error
//	4:2 | BP2-0: Block Protection
//	1   | WEL: Write Enable Latch
//	0   | WIP: Write in Progress
type StatusRegister byte

const (
	statusSRWD StatusRegister = 1 << 7
	statusPErr StatusRegister = 1 << 6
	statusEErr StatusRegister = 1 << 5
	statusBP2  StatusRegister = 1 << 4
	statusBP1  StatusRegister = 1 << 3
	statusBP0  StatusRegister = 1 << 2
	statusWEL  StatusRegister = 1 << 1
	statusWIP  StatusRegister = 1 << 0
)

func (sr StatusRegister) WriteDisable() bool { return sr&statusSRWD != 0 }
func (sr StatusRegister) ProgramError() bool { return sr&statusPErr != 0 }
func (sr StatusRegister) EraseError() bool   { return sr&statusEErr != 0 }
func (sr StatusRegister) BlockProtect() byte { return byte(sr>>2) & 0x7 }
func (sr StatusRegister) WriteEnabled() bool { return sr&statusWEL != 0 }
func (sr StatusRegister) Busy() bool         { return sr&statusWIP != 0 }
func (sr StatusRegister) String() string     { return bitString(byte(sr), statusBits) }

// ConfigRegister is configuration register 1 of the flash.
//
//	Bits| [S25FL-S|Configuration Register 1]
//	----+------------------------------
//	7:6 | LC1-0: Latency Code
//	5   | TBPROT: Top/Bottom protection
//	4   | RFU
//	3   | BPNV: Block protection non-volatile
//	2   | TBPARM: Parameter sector location
//	1   | QUAD: Quad I/O mode
//	0   | FREEZE: Lock BP2-0 and TBPROT
type ConfigRegister byte

const configQuad ConfigRegister = 1 << 1

func (cr ConfigRegister) Quad() bool        { return cr&configQuad != 0 }
func (cr ConfigRegister) LatencyCode() byte { return byte(cr >> 6) }
func (cr ConfigRegister) String() string    { return bitString(byte(cr), configBits) }

// BankRegister is the bank address register (BAR).
//
//	Bits| [S25FL-S|Bank Address Register]
//	----+------------------------------
//	7   | EXTADD: 4-byte addressing
//	6:2 | RFU
//	1:0 | BA25-24: Bank address
type BankRegister byte

func (br BankRegister) ExtendedAddress() bool { return br&(1<<7) != 0 }
func (br BankRegister) Bank() byte            { return byte(br) & 0x3 }
func (br BankRegister) String() string        { return bitString(byte(br), bankBits) }

var (
	statusBits = [8]string{"WIP", "WEL", "BP0", "BP1", "BP2", "E_ERR", "P_ERR", "SRWD"}
	configBits = [8]string{"FREEZE", "QUAD", "TBPARM", "BPNV", "", "TBPROT", "LC0", "LC1"}
	bankBits   = [8]string{"BA24", "BA25", "", "", "", "", "", "EXTADD"}
)

// bitString formats v in binary followed by the names of its set bits,
// most significant first.
func bitString(v byte, names [8]string) string {
	b := fmt.Sprintf("%08b", v)
	s := []string{}
	for i := 7; i >= 0; i-- {
		if v&(1<<i) != 0 && names[i] != "" {
			s = append(s, names[i])
		}
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}
