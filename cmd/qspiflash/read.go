package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/gentam/qspi"
)

func readRegCommand(op qspi.Opcode, args []string) {
	fs := flag.NewFlagSet(op.String(), flag.ExitOnError)
	fs.Parse(args)

	d := openDevice()
	defer d.Close()

	if op == qspi.OpReadID {
		id, name, err := d.ReadID()
		if err != nil {
			fatalf("%v failed: %v", op, err)
		}
		if name == "" {
			name = "unknown flash"
		}
		fmt.Printf("%X\t%s\n", id, name)
		return
	}

	var (
		out fmt.Stringer
		err error
	)
	switch op {
	case qspi.OpReadStatus:
		out, err = d.ReadStatus()
	case qspi.OpReadConfig:
		out, err = d.ReadConfig()
	case qspi.OpReadBAR:
		out, err = d.ReadBAR()
	}
	if err != nil {
		fatalf("%v failed: %v", op, err)
	}
	fmt.Println(out)
}

func readCommand(op qspi.Opcode, args []string) {
	fs := flag.NewFlagSet(op.String(), flag.ExitOnError)
	var (
		addr    uint
		nread   int
		outFile string
	)
	fs.UintVar(&addr, "addr", 0x000120, "24-bit start address")
	fs.IntVar(&nread, "n", 240, "number of bytes to read")
	fs.StringVar(&outFile, "o", "qspi_bitfile.bin", "output file, - for stdout (hexdump on a terminal)")
	fs.Parse(args)

	if addr > qspi.MaxAddress {
		fatalUsage("address %#x out of 24-bit range", addr)
	}
	if nread < 0 {
		fatalUsage("byte count must not be negative")
	}

	// Open the device first so a failed open leaves an earlier dump intact.
	d := openDevice()
	defer d.Close()

	sink, err := openSink(outFile)
	if err != nil {
		fatalf("failed to create output file: %v", err)
	}

	crc := qspi.NewCRC8()
	read := d.ReadQuadOut
	if op == qspi.OpReadQuadIO {
		read = d.ReadQuadIO
	}

	start := time.Now()
	n, err := read(uint32(addr), nread, io.MultiWriter(sink, crc))
	elapsed := time.Since(start)
	// fatalf skips deferred calls, so the sink is flushed here.
	closeErr := sink.Close()
	if err != nil {
		var perr *qspi.PartialReadError
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "%d of %d bytes read before failure\n", perr.N, nread)
		}
		if errors.Is(err, qspi.ErrQuadDisabled) {
			fmt.Fprintln(os.Stderr, "run WRITE_REG (default -status 0x00 -config 0x02) to enable quad mode")
		}
		fatalf("%v failed: %v", op, err)
	}
	if closeErr != nil {
		fatalf("write output failed: %v", closeErr)
	}
	fmt.Fprintf(os.Stderr, "%d bytes from %#06x in %v, CRC-8 %#02x\n", n, addr, elapsed.Round(time.Millisecond), crc.Sum8())
}

// openSink returns the destination of a bulk read. "-" is stdout, rendered
// as a hexdump when stdout is a terminal.
func openSink(name string) (io.WriteCloser, error) {
	switch {
	case name == "-" && term.IsTerminal(int(os.Stdout.Fd())):
		return hex.Dumper(os.Stdout), nil
	case name == "-":
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(name)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
