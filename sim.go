package qspi

import "fmt"

// Access is one register access seen by Sim.
type Access struct {
	Write bool
	Reg   Register
	Val   uint32
}

func (a Access) String() string {
	if a.Write {
		return fmt.Sprintf("W %s %#x", a.Reg.Name(), a.Val)
	}
	return fmt.Sprintf("R %s %#x", a.Reg.Name(), a.Val)
}

// Transfer is one frame clocked out by Sim, with the mux value at the time.
type Transfer struct {
	Frame []byte
	Mux   uint32
}

// Op returns the opcode of the transfer.
func (t Transfer) Op() Opcode { return opcodeOf(t.Frame) }

// Sim is an in-memory model of the QSPI controller, the bus mux and one
// S25FL-S flash. It implements MMIO.
//
// The flash only sees a transfer while the mux routes a flash to the
// controller; otherwise the receive bytes are 0xFF and nothing changes.
type Sim struct {
	// Flash state.
	ID     [2]byte
	Status StatusRegister
	Config ConfigRegister
	Bank   BankRegister
	Memory []byte // array contents from address 0; beyond it reads 0xFF

	// StuckWEL makes WRITE_ENABLE have no effect.
	StuckWEL bool

	// Responses, when not empty, replaces the receive bytes of the next
	// transfers, one entry per transfer. An entry shorter than the frame
	// models a controller that stops producing receive bytes.
	Responses [][]byte

	Accesses  []Access
	Transfers []Transfer

	mux uint32
	cr  uint32
	ss  uint32
	tx  []byte
	rx  []byte
}

var _ MMIO = (*Sim)(nil)

// NewSim returns a Sim with an S25FL256S in quad mode and mem as its array.
func NewSim(mem []byte) *Sim {
	return &Sim{
		ID:     flashIDSpansionS25FL256S,
		Config: configQuad,
		Memory: mem,
		mux:    muxDeselect,
		cr:     crResetIdle,
		ss:     ssDeselect,
	}
}

func (s *Sim) Read(r Register) (uint32, error) {
	if err := checkAccess(r, 0); err != nil {
		return 0, err
	}
	var v uint32
	switch r {
	case RegMux:
		v = s.mux
	case RegControl:
		v = s.cr
	case RegSlaveSelect:
		v = s.ss
	case RegStatus:
		if len(s.rx) == 0 {
			v |= srRxEmpty
		}
		if len(s.tx) == 0 {
			v |= srTxEmpty
		}
		if len(s.tx) >= fifoDepth {
			v |= srTxFull
		}
	case RegRxData:
		if len(s.rx) > 0 {
			v = uint32(s.rx[0])
			s.rx = s.rx[1:]
		}
	default:
		return 0, fmt.Errorf("%w: %v", ErrRegister, r)
	}
	s.Accesses = append(s.Accesses, Access{Reg: r, Val: v})
	return v, nil
}

func (s *Sim) Write(r Register, v uint32) error {
	if err := checkAccess(r, v); err != nil {
		return err
	}
	switch r {
	case RegStatus, RegRxData:
		return fmt.Errorf("%w: %v is read-only", ErrRegister, r)
	case RegMux, RegSlaveSelect, RegTxData, RegControl:
	default:
		return fmt.Errorf("%w: %v", ErrRegister, r)
	}
	s.Accesses = append(s.Accesses, Access{Write: true, Reg: r, Val: v})

	switch r {
	case RegMux:
		s.mux = v
	case RegSlaveSelect:
		s.ss = v
	case RegTxData:
		if len(s.tx) < fifoDepth {
			s.tx = append(s.tx, byte(v))
		}
	case RegControl:
		s.cr = v
		if v&crTxReset != 0 {
			s.tx = nil
		}
		if v&crRxReset != 0 {
			s.rx = nil
		}
		if v&crInhibit == 0 && v&crEnable != 0 && s.ss == ssSelect {
			s.clock()
		}
	}
	return nil
}

// WriteCount returns the number of register writes so far.
func (s *Sim) WriteCount() int {
	n := 0
	for _, a := range s.Accesses {
		if a.Write {
			n++
		}
	}
	return n
}

// Ops returns the opcodes of the transfers so far.
func (s *Sim) Ops() []Opcode {
	ops := make([]Opcode, len(s.Transfers))
	for i, t := range s.Transfers {
		ops[i] = t.Op()
	}
	return ops
}

// clock shifts the TX FIFO out and fills the RX FIFO.
func (s *Sim) clock() {
	frame := s.tx
	s.tx = nil
	s.Transfers = append(s.Transfers, Transfer{Frame: frame, Mux: s.mux})

	var rx []byte
	if s.routed() {
		rx = s.respond(frame)
	} else {
		rx = fill(len(frame), 0xFF)
	}
	if len(s.Responses) > 0 {
		rx = s.Responses[0]
		s.Responses = s.Responses[1:]
	}
	s.rx = append(s.rx, rx...)
	if len(s.rx) > fifoDepth {
		s.rx = s.rx[:fifoDepth]
	}
}

func (s *Sim) routed() bool {
	return s.mux >= muxFlash1 && s.mux < muxFlash1+maxFlash
}

// respond runs frame through the flash model. One byte comes back per byte
// sent; bytes clocked in while the flash is still receiving are zero.
func (s *Sim) respond(frame []byte) []byte {
	rx := make([]byte, len(frame))
	if len(frame) == 0 {
		return rx
	}
	put := func(off int, b ...byte) {
		if off < len(rx) {
			copy(rx[off:], b)
		}
	}
	switch Opcode(frame[0]) {
	case OpReadID:
		// Manufacturer and device ID follow the 3 address bytes, and repeat.
		for off := 4; off < len(rx); off += 2 {
			put(off, s.ID[0], s.ID[1])
		}
	case OpReadStatus:
		put(1, fill(len(rx)-1, byte(s.Status))...)
	case OpReadConfig:
		put(1, fill(len(rx)-1, byte(s.Config))...)
	case OpReadBAR:
		put(1, fill(len(rx)-1, byte(s.Bank))...)
	case OpWriteEnable:
		if !s.StuckWEL {
			s.Status |= statusWEL
		}
	case OpWriteReg:
		if !s.Status.WriteEnabled() || len(frame) < 2 {
			break
		}
		s.Status = StatusRegister(frame[1]) &^ (statusWEL | statusWIP)
		if len(frame) >= 3 {
			s.Config = ConfigRegister(frame[2])
		}
	case OpReadQuadOut:
		s.readArray(rx, frame, 1+3+quadOutLatency)
	case OpReadQuadIO:
		s.readArray(rx, frame, 1+4+quadIOLatency)
	}
	return rx
}

// readArray fills rx from data on with the array contents at the address in
// frame[1:4]. Without quad mode the data lines float high.
func (s *Sim) readArray(rx, frame []byte, data int) {
	if len(frame) < 4 || data >= len(rx) {
		return
	}
	if !s.Config.Quad() {
		copy(rx[data:], fill(len(rx)-data, 0xFF))
		return
	}
	addr := int(JoinAddress(frame[1], frame[2], frame[3]))
	for i := data; i < len(rx); i++ {
		a := addr + i - data
		if a < len(s.Memory) {
			rx[i] = s.Memory[a]
		} else {
			rx[i] = 0xFF
		}
	}
}

func fill(n int, b byte) []byte {
	if n <= 0 {
		return nil
	}
	p := make([]byte, n)
	for i := range p {
		p[i] = b
	}
	return p
}
