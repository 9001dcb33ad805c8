package main

import (
	"log"
	"os"

	"github.com/gentam/qspi"
)

var devFlags struct {
	flash     int
	pollLimit int
	sim       bool
	verbose   bool
}

// simImageSize is the array size of the -sim flash. The image is an
// address-derived pattern so dumps are recognisable.
const simImageSize = 64 << 10

// openDevice opens the controller selected by the global flags. The caller
// closes it.
func openDevice() *qspi.Device {
	cfg := qspi.Config{
		Flash:     devFlags.flash,
		PollLimit: devFlags.pollLimit,
	}
	if devFlags.verbose {
		cfg.Logger = log.New(os.Stderr, "qspi: ", log.Lmicroseconds)
	}

	if !devFlags.sim {
		d, err := qspi.Open(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		return d
	}

	img := make([]byte, simImageSize)
	for i := range img {
		img[i] = byte(i ^ i>>8)
	}
	d, err := qspi.NewDevice(qspi.NewSim(img), cfg)
	if err != nil {
		fatalf("%v", err)
	}
	return d
}
