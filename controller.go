package qspi

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3"
)

// Controller is the QSPI transfer engine. It loads a frame into the TX FIFO,
// runs the chip-select/trigger sequence and drains the RX FIFO.
//
// Controller does not touch the mux; callers bracket transfers with
// Mux.with.
type Controller struct {
	mem       MMIO
	pollLimit int
	interval  time.Duration
}

var _ conn.Conn = (*Controller)(nil)

func NewController(mem MMIO, pollLimit int, interval time.Duration) *Controller {
	if pollLimit < 1 {
		pollLimit = 1
	}
	return &Controller{mem: mem, pollLimit: pollLimit, interval: interval}
}

func (c *Controller) String() string      { return fmt.Sprintf("qspi@%#x", qspiBase) }
func (c *Controller) Duplex() conn.Duplex { return conn.Full }

// Tx implements conn.Conn. It transmits w and fills r with the first len(r)
// receive bytes. A short receive returns *ProtocolDesyncError and leaves the
// unfilled tail of r untouched.
func (c *Controller) Tx(w, r []byte) error {
	rx, err := c.Execute(w, len(r))
	copy(r, rx)
	return err
}

// Execute runs one transfer of frame and returns up to rxLen receive bytes
// in arrival order. If fewer than rxLen bytes arrive the truncated slice is
// returned along with a *ProtocolDesyncError.
func (c *Controller) Execute(frame []byte, rxLen int) ([]byte, error) {
	if len(frame) > fifoDepth {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameSize, len(frame))
	}

	if err := c.mem.Write(RegControl, crResetIdle); err != nil {
		return nil, err
	}
	for _, b := range frame {
		if err := c.mem.Write(RegTxData, uint32(b)); err != nil {
			return nil, err
		}
	}

	// [PG153|Manual slave select mode] SS asserted, inhibit cleared starts
	// the transfer; SS released, inhibit set ends it and latches RX.
	if err := c.mem.Write(RegSlaveSelect, ssSelect); err != nil {
		return nil, err
	}
	if err := c.mem.Write(RegControl, crStart); err != nil {
		return nil, err
	}
	txErr := c.waitStatus(srTxEmpty, true)
	if err := c.mem.Write(RegSlaveSelect, ssDeselect); err != nil {
		return nil, err
	}
	if err := c.mem.Write(RegControl, crStop); err != nil {
		return nil, err
	}
	if txErr != nil {
		return nil, fmt.Errorf("waiting for TX FIFO to drain: %w", txErr)
	}

	rx := make([]byte, 0, rxLen)
	for len(rx) < rxLen {
		if err := c.waitStatus(srRxEmpty, false); err != nil {
			return rx, &ProtocolDesyncError{Op: opcodeOf(frame), Want: rxLen, Got: len(rx), Err: err}
		}
		v, err := c.mem.Read(RegRxData)
		if err != nil {
			return rx, err
		}
		rx = append(rx, byte(v))
	}
	return rx, nil
}

// waitStatus polls SPISR until bit is set (or clear), at most pollLimit
// times.
func (c *Controller) waitStatus(bit uint32, set bool) error {
	for i := 0; i < c.pollLimit; i++ {
		sr, err := c.mem.Read(RegStatus)
		if err != nil {
			return err
		}
		if (sr&bit != 0) == set {
			return nil
		}
		if c.interval > 0 {
			time.Sleep(c.interval)
		}
	}
	return ErrTimeout
}

func opcodeOf(frame []byte) Opcode {
	if len(frame) == 0 {
		return 0
	}
	return Opcode(frame[0])
}
