package qspi

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/host/v3"
	"periph.io/x/host/v3/pmem"
)

// MMIO is raw fixed-width access to the controller registers.
type MMIO interface {
	Read(r Register) (uint32, error)
	Write(r Register, v uint32) error
}

func checkAccess(r Register, v uint32) error {
	if !r.valid() {
		return fmt.Errorf("%w: %v", ErrRegister, r)
	}
	if v > r.width.max() {
		return fmt.Errorf("%w: %#x to %v", ErrWidth, v, r)
	}
	return nil
}

const pageSize = 4096

// DevMem accesses the registers through /dev/mem.
type DevMem struct {
	views map[uint64]*pmem.View // keyed by page-aligned physical address
}

var hostInitialized atomic.Bool

// OpenDevMem maps every page holding one of regs. A failed mapping returns a
// *MappingError and leaves nothing mapped.
func OpenDevMem(regs ...Register) (*DevMem, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	m := &DevMem{views: map[uint64]*pmem.View{}}
	for _, r := range regs {
		if !r.valid() {
			m.Close()
			return nil, fmt.Errorf("%w: %v", ErrRegister, r)
		}
		page := r.addr &^ (pageSize - 1)
		if _, ok := m.views[page]; ok {
			continue
		}
		v, err := pmem.Map(page, pageSize)
		if err != nil {
			m.Close()
			return nil, &MappingError{Addr: page, Err: err}
		}
		m.views[page] = v
	}
	return m, nil
}

func (m *DevMem) view(r Register) (*pmem.View, int, error) {
	page := r.addr &^ (pageSize - 1)
	v, ok := m.views[page]
	if !ok {
		return nil, 0, &MappingError{Addr: r.addr, Err: errors.New("page not mapped")}
	}
	return v, int(r.addr - page), nil
}

func (m *DevMem) Read(r Register) (uint32, error) {
	if err := checkAccess(r, 0); err != nil {
		return 0, err
	}
	v, off, err := m.view(r)
	if err != nil {
		return 0, err
	}
	if r.width == Width8 {
		return uint32(v.Bytes()[off]), nil
	}
	return v.Uint32()[off/4], nil
}

func (m *DevMem) Write(r Register, val uint32) error {
	if err := checkAccess(r, val); err != nil {
		return err
	}
	v, off, err := m.view(r)
	if err != nil {
		return err
	}
	if r.width == Width8 {
		v.Bytes()[off] = byte(val)
		return nil
	}
	v.Uint32()[off/4] = val
	return nil
}

// Close unmaps every page.
func (m *DevMem) Close() error {
	var errs []error
	for page, v := range m.views {
		if err := v.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unmap %#x: %w", page, err))
		}
		delete(m.views, page)
	}
	return errors.Join(errs...)
}
