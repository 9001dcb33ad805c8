package qspi

import (
	"bytes"
	"errors"
	"log"
	"slices"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestReadID(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	d := newTestDevice(c, sim, nil)

	id, name, err := d.ReadID()
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, [2]byte{0x01, 0x18})
	c.Assert(name, qt.Equals, "Spansion S25FL256S 256Mb")
	c.Assert(sim.Transfers[0].Frame, qt.DeepEquals, []byte{0x90, 0, 0, 0, 0xAB, 0xAB})

	sim.ID = [2]byte{0xEF, 0x40}
	id, name, err = d.ReadID()
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, [2]byte{0xEF, 0x40})
	c.Assert(name, qt.Equals, "")
}

func TestReadRegisters(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	sim.Status = 0x1C
	sim.Config = 0x82
	sim.Bank = 0x81
	d := newTestDevice(c, sim, nil)

	sr, err := d.ReadStatus()
	c.Assert(err, qt.IsNil)
	c.Assert(sr.BlockProtect(), qt.Equals, byte(7))
	c.Assert(sr.String(), qt.Equals, "00011100 BP2,BP1,BP0")

	cr, err := d.ReadConfig()
	c.Assert(err, qt.IsNil)
	c.Assert(cr.Quad(), qt.IsTrue)
	c.Assert(cr.LatencyCode(), qt.Equals, byte(2))
	c.Assert(cr.String(), qt.Equals, "10000010 LC1,QUAD")

	br, err := d.ReadBAR()
	c.Assert(err, qt.IsNil)
	c.Assert(br.ExtendedAddress(), qt.IsTrue)
	c.Assert(br.Bank(), qt.Equals, byte(1))
	c.Assert(br.String(), qt.Equals, "10000001 EXTADD,BA24")

	c.Assert(sim.Ops(), qt.DeepEquals, []Opcode{OpReadStatus, OpReadConfig, OpReadBAR})
	c.Assert(StatusRegister(0).String(), qt.Equals, "00000000")
}

func TestEnsureWriteEnabled(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	var logs bytes.Buffer
	d := newTestDevice(c, sim, log.New(&logs, "", 0))

	c.Assert(d.EnsureWriteEnabled(), qt.IsNil)
	c.Assert(sim.Ops(), qt.DeepEquals, []Opcode{OpReadStatus, OpWriteEnable, OpReadStatus})
	c.Assert(sim.Status.WriteEnabled(), qt.IsTrue)
	c.Assert(logs.String(), qt.Contains, "write enabled")

	// A second call finds the latch already set and touches no register.
	logs.Reset()
	n, w := len(sim.Accesses), sim.WriteCount()
	c.Assert(d.EnsureWriteEnabled(), qt.IsNil)
	c.Assert(sim.WriteCount(), qt.Equals, w)
	c.Assert(sim.Accesses, qt.HasLen, n)
	c.Assert(logs.String(), qt.Contains, "already enabled")
}

func TestEnsureWriteEnabledAlreadySet(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	sim.Status = statusWEL
	var logs bytes.Buffer
	d := newTestDevice(c, sim, log.New(&logs, "", 0))

	c.Assert(d.EnsureWriteEnabled(), qt.IsNil)
	c.Assert(sim.Ops(), qt.DeepEquals, []Opcode{OpReadStatus})
	c.Assert(logs.String(), qt.Equals, "write already enabled\n")
}

func TestEnsureWriteEnabledFails(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	sim.StuckWEL = true
	d := newTestDevice(c, sim, nil)

	err := d.EnsureWriteEnabled()
	c.Assert(err, qt.ErrorIs, ErrWriteEnableFailed)
	// Single attempt.
	c.Assert(sim.Ops(), qt.DeepEquals, []Opcode{OpReadStatus, OpWriteEnable, OpReadStatus})

	// WRITE_REG is never sent without the latch.
	_, _, err = d.WriteRegisters(0x00, 0x02)
	c.Assert(err, qt.ErrorIs, ErrWriteEnableFailed)
	c.Assert(slices.Contains(sim.Ops(), OpWriteReg), qt.IsFalse)
}

func TestWriteRegisters(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	sim.Config = 0
	d := newTestDevice(c, sim, nil)

	sr, cr, err := d.WriteRegisters(0x00, 0x02)
	c.Assert(err, qt.IsNil)
	c.Assert(sr, qt.Equals, StatusRegister(0x00))
	c.Assert(cr, qt.Equals, ConfigRegister(0x02))
	// The verify readback is the last transfer; nothing else is read.
	c.Assert(sim.Ops(), qt.DeepEquals, []Opcode{
		OpReadStatus, OpWriteEnable, OpReadStatus, // write enable gate
		OpWriteReg,
		OpReadStatus,               // busy wait
		OpReadStatus, OpReadConfig, // verify
	})
	c.Assert(sim.Transfers[3].Frame, qt.DeepEquals, []byte{0x01, 0x00, 0x02})
	c.Assert(sim.Config, qt.Equals, ConfigRegister(0x02))
	c.Assert(sim.Status.WriteEnabled(), qt.IsFalse)

	// The latch was consumed, so the next write checks it again.
	sim.Transfers = nil
	_, _, err = d.WriteRegisters(0x00, 0x02)
	c.Assert(err, qt.IsNil)
	c.Assert(sim.Ops()[:4], qt.DeepEquals, []Opcode{OpReadStatus, OpWriteEnable, OpReadStatus, OpWriteReg})
}

func TestWriteRegistersVerify(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	sim.Status = statusWEL
	sim.Responses = [][]byte{
		{0x00, byte(statusWEL)}, // gate: latch set
		nil,                     // WRITE_REG
		{0x00, 0x00},            // busy wait
		{0x00, 0x00},            // status readback
		{0x00, 0x00},            // config readback: quad bit lost
	}
	d := newTestDevice(c, sim, nil)

	sr, cr, err := d.WriteRegisters(0x00, 0x02)
	c.Assert(sr, qt.Equals, StatusRegister(0x00))
	c.Assert(cr, qt.Equals, ConfigRegister(0x00))
	var verr *VerifyError
	c.Assert(err, qt.ErrorAs, &verr)
	c.Assert(*verr, qt.Equals, VerifyError{Reg: "config", Want: 0x02, Got: 0x00})
	c.Assert(err, qt.ErrorMatches, "config register readback 0x00, wrote 0x02")
}

func TestWriteRegistersStatusMismatch(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	sim.Status = statusWEL
	sim.Responses = [][]byte{
		{0x00, byte(statusWEL)},
		nil,
		{0x00, 0x00},
		{0x00, 0x1E}, // BP bits stuck, WEL ignored
		{0x00, 0x02},
	}
	d := newTestDevice(c, sim, nil)

	sr, _, err := d.WriteRegisters(0x00, 0x02)
	c.Assert(sr, qt.Equals, StatusRegister(0x1E))
	var verr *VerifyError
	c.Assert(err, qt.ErrorAs, &verr)
	c.Assert(verr.Reg, qt.Equals, "status")
	c.Assert(verr.Got, qt.Equals, byte(0x1E))
}

func TestReadQuadOutChunks(t *testing.T) {
	c := qt.New(t)
	mem := pattern(256)
	sim := NewSim(mem)
	d := newTestDevice(c, sim, nil)

	var buf bytes.Buffer
	n, err := d.ReadQuadOut(0x10, 40, &buf)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 40)
	c.Assert(buf.Bytes(), qt.DeepEquals, mem[0x10:0x38])

	// Quad mode check, then one full command per chunk.
	c.Assert(sim.Ops(), qt.DeepEquals, []Opcode{OpReadConfig, OpReadQuadOut, OpReadQuadOut, OpReadQuadOut})
	for i, tr := range sim.Transfers[1:] {
		c.Assert(tr.Frame, qt.HasLen, 1+3+24)
		addr := JoinAddress(tr.Frame[1], tr.Frame[2], tr.Frame[3])
		c.Assert(addr, qt.Equals, uint32(0x10+16*i))
		c.Assert(tr.Frame[4:], qt.DeepEquals, fill(24, fillerByte))
	}
}

func TestReadQuadOutSpan(t *testing.T) {
	c := qt.New(t)
	mem := pattern(4096)
	sim := NewSim(mem)
	d := newTestDevice(c, sim, nil)

	var buf bytes.Buffer
	n, err := d.ReadQuadOut(0x000120, 240, &buf)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 240)
	c.Assert(buf.Bytes(), qt.DeepEquals, mem[0x120:0x120+240])

	next := uint32(0x120)
	for _, tr := range sim.Transfers[1:] {
		addr := JoinAddress(tr.Frame[1], tr.Frame[2], tr.Frame[3])
		c.Assert(addr, qt.Equals, next)
		next += 16
	}
	c.Assert(next, qt.Equals, uint32(0x120+240))
}

func TestReadQuadOutEmpty(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	d := newTestDevice(c, sim, nil)

	n, err := d.ReadQuadOut(0, 0, &bytes.Buffer{})
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
	c.Assert(sim.Ops(), qt.DeepEquals, []Opcode{OpReadConfig})
}

func TestReadQuadOutPartial(t *testing.T) {
	c := qt.New(t)
	mem := pattern(64)
	sim := NewSim(mem)
	first := make([]byte, 28)
	copy(first[12:], mem[:16])
	sim.Responses = [][]byte{
		{0x00, byte(configQuad)},
		first,
		{0x00, 0x00, 0x00}, // controller stops producing bytes
	}
	d := newTestDevice(c, sim, nil)

	var buf bytes.Buffer
	n, err := d.ReadQuadOut(0, 48, &buf)
	c.Assert(n, qt.Equals, 16)
	c.Assert(buf.Bytes(), qt.DeepEquals, mem[:16])

	var perr *PartialReadError
	c.Assert(err, qt.ErrorAs, &perr)
	c.Assert(perr.N, qt.Equals, 16)
	var derr *ProtocolDesyncError
	c.Assert(err, qt.ErrorAs, &derr)
	c.Assert(derr.Got, qt.Equals, 3)
	c.Assert(derr.Want, qt.Equals, 28)

	// No further chunks after the failure.
	c.Assert(sim.Ops(), qt.HasLen, 3)
}

type failWriter struct {
	n int
}

func (w *failWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errors.New("disk full")
	}
	w.n--
	return len(p), nil
}

func TestReadQuadOutSinkFailure(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(pattern(64))
	d := newTestDevice(c, sim, nil)

	n, err := d.ReadQuadOut(0, 64, &failWriter{n: 2})
	c.Assert(n, qt.Equals, 32)
	c.Assert(err, qt.ErrorMatches, "read failed after 32 bytes: disk full")
}

func TestReadQuadOutQuadDisabled(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(pattern(64))
	sim.Config = 0
	d := newTestDevice(c, sim, nil)

	n, err := d.ReadQuadOut(0, 16, &bytes.Buffer{})
	c.Assert(n, qt.Equals, 0)
	c.Assert(err, qt.ErrorIs, ErrQuadDisabled)
	c.Assert(sim.Ops(), qt.DeepEquals, []Opcode{OpReadConfig})
	c.Assert(sim.Config, qt.Equals, ConfigRegister(0))
}

func TestReadQuadOutRange(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	d := newTestDevice(c, sim, nil)

	_, err := d.ReadQuadOut(MaxAddress, 2, &bytes.Buffer{})
	c.Assert(err, qt.ErrorIs, ErrAddressRange)
	c.Assert(sim.Transfers, qt.HasLen, 0)
}

func TestReadQuadIO(t *testing.T) {
	c := qt.New(t)
	mem := pattern(128)
	sim := NewSim(mem)
	d := newTestDevice(c, sim, nil)

	var buf bytes.Buffer
	n, err := d.ReadQuadIO(0x08, 20, &buf)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 20)
	c.Assert(buf.Bytes(), qt.DeepEquals, mem[0x08:0x1C])

	c.Assert(sim.Ops(), qt.DeepEquals, []Opcode{OpReadConfig, OpReadQuadIO, OpReadQuadIO})
	c.Assert(sim.Transfers[1].Frame[:5], qt.DeepEquals, []byte{0xEB, 0x00, 0x00, 0x08, quadIOMode})
	c.Assert(sim.Transfers[1].Frame, qt.HasLen, 1+4+2+16)
	c.Assert(sim.Transfers[2].Frame[3], qt.Equals, byte(0x18))
}

func TestWriteTimeFromPart(t *testing.T) {
	c := qt.New(t)
	sim := NewSim(nil)
	f := NewFlash(NewController(sim, 4, 0), &Mux{mem: sim, set: muxFlash1}, nil)

	// Unidentified parts wait as long as the slowest known part.
	c.Assert(f.tW(), qt.Equals, 2*time.Second)

	_, name, err := f.ReadID()
	c.Assert(err, qt.IsNil)
	c.Assert(name, qt.Not(qt.Equals), "")
	c.Assert(f.pr, qt.Not(qt.IsNil))
	c.Assert(f.tW(), qt.Equals, knownFlash[flashIDSpansionS25FL256S].tW)
}
