package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/gentam/qspi"
)

func writeEnableCommand(args []string) {
	fs := flag.NewFlagSet("WRITE_ENABLE", flag.ExitOnError)
	fs.Parse(args)

	d := openDevice()
	defer d.Close()

	if err := d.EnsureWriteEnabled(); err != nil {
		fatalf("write enable failed: %v", err)
	}
	fmt.Println("write enabled")
}

func writeRegCommand(args []string) {
	fs := flag.NewFlagSet("WRITE_REG", flag.ExitOnError)
	var status, config uint
	fs.UintVar(&status, "status", 0x00, "status register value")
	fs.UintVar(&config, "config", 0x02, "configuration register value (0x02: latency code 00, quad mode)")
	fs.Parse(args)

	if status > 0xFF || config > 0xFF {
		fatalUsage("register values must fit in 8 bits")
	}

	d := openDevice()
	defer d.Close()

	sr, cr, err := d.WriteRegisters(qspi.StatusRegister(status), qspi.ConfigRegister(config))
	var verr *qspi.VerifyError
	switch {
	case errors.As(err, &verr):
		fatalf("write registers: %v", err)
	case errors.Is(err, qspi.ErrWriteEnableFailed):
		fatalf("write registers not attempted: %v", err)
	case err != nil:
		fatalf("write registers failed: %v", err)
	}

	fmt.Printf("status: %v\nconfig: %v\n", sr, cr)
}
