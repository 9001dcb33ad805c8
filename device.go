package qspi

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"
)

// Config configures a Device. The zero value selects flash 1 with the
// default poll bounds.
type Config struct {
	// Flash selects which of the mux's flash chips (1-4) is routed to the
	// controller.
	Flash int

	// PollLimit bounds every wait on the controller status register, in
	// reads. PollInterval is the pause between reads.
	PollLimit    int
	PollInterval time.Duration

	// BusyInterval is the status polling interval while a register write is
	// in progress.
	BusyInterval time.Duration

	// Logger receives progress messages. Nil discards them.
	Logger *log.Logger
}

const (
	defaultFlash        = 1
	defaultPollLimit    = 1000
	defaultBusyInterval = time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Flash == 0 {
		c.Flash = defaultFlash
	}
	if c.PollLimit <= 0 {
		c.PollLimit = defaultPollLimit
	}
	if c.BusyInterval <= 0 {
		c.BusyInterval = defaultBusyInterval
	}
	return c
}

// Device is a flash behind the QSPI controller. Its methods may be called
// from multiple goroutines; each command holds the device for its whole
// mux route, transfer and release sequence.
type Device struct {
	mu sync.Mutex

	mem   MMIO
	mux   *Mux
	ctrl  *Controller
	flash *Flash
}

// Open maps the controller registers through /dev/mem and returns a Device
// using them. Close unmaps them.
func Open(cfg Config) (*Device, error) {
	mem, err := OpenDevMem(Registers...)
	if err != nil {
		return nil, err
	}
	d, err := NewDevice(mem, cfg)
	if err != nil {
		return nil, errors.Join(err, mem.Close())
	}
	return d, nil
}

// NewDevice returns a Device driving the registers in mem.
func NewDevice(mem MMIO, cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()
	mux, err := NewMux(mem, cfg.Flash)
	if err != nil {
		return nil, err
	}
	ctrl := NewController(mem, cfg.PollLimit, cfg.PollInterval)
	flash := NewFlash(ctrl, mux, cfg.Logger)
	flash.busyInterval = cfg.BusyInterval
	return &Device{
		mem:   mem,
		mux:   mux,
		ctrl:  ctrl,
		flash: flash,
	}, nil
}

// Close releases the register mapping if the backend holds one.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.mem.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Device) ReadID() ([2]byte, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash.ReadID()
}

func (d *Device) ReadStatus() (StatusRegister, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash.ReadStatusRegister()
}

func (d *Device) ReadConfig() (ConfigRegister, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash.ReadConfigRegister()
}

func (d *Device) ReadBAR() (BankRegister, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash.ReadBankRegister()
}

// EnsureWriteEnabled sets the write enable latch if needed. See
// Flash.EnsureWriteEnabled.
func (d *Device) EnsureWriteEnabled() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash.EnsureWriteEnabled()
}

// WriteRegisters writes and verifies the status and configuration
// registers and returns the readback. The device is held from the write
// enable check to the readback.
func (d *Device) WriteRegisters(status StatusRegister, config ConfigRegister) (StatusRegister, ConfigRegister, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash.WriteRegisters(status, config)
}

func (d *Device) ReadQuadOut(addr uint32, n int, w io.Writer) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash.ReadQuadOut(addr, n, w)
}

func (d *Device) ReadQuadIO(addr uint32, n int, w io.Writer) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flash.ReadQuadIO(addr, n, w)
}
