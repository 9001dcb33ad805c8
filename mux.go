package qspi

import "fmt"

// Mux routes the QSPI pins of one flash chip to the controller.
type Mux struct {
	mem MMIO
	set uint32
}

// NewMux returns a mux selecting flash chip n (1-based).
func NewMux(mem MMIO, n int) (*Mux, error) {
	if n < 1 || n > maxFlash {
		return nil, fmt.Errorf("flash %d out of range [1, %d]", n, maxFlash)
	}
	return &Mux{mem: mem, set: muxFlash1 + uint32(n-1)}, nil
}

func (m *Mux) Route() error   { return m.mem.Write(RegMux, m.set) }
func (m *Mux) Release() error { return m.mem.Write(RegMux, muxDeselect) }

// with routes the bus for the duration of fn. The mux is released even when
// fn fails; a release error is reported only if fn succeeded.
func (m *Mux) with(fn func() error) (err error) {
	defer func() {
		if relErr := m.Release(); relErr != nil && err == nil {
			err = relErr
		}
	}()
	if err = m.Route(); err != nil {
		return err
	}
	err = fn()
	return
}
