// Command qspiflash issues SPI-NOR flash commands through the QSPI
// controller.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gentam/qspi"
)

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func fatalUsage(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
	qspiflash [flags] <operation> [arguments]

Operations:
	%s

Flags:
`, strings.Join(qspi.OperationNames(), "\n\t"))
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("qspiflash: ")

	flag.Usage = usage
	flag.IntVar(&devFlags.flash, "flash", 1, "flash chip routed by the mux (1-4)")
	flag.IntVar(&devFlags.pollLimit, "poll", 1000, "controller status reads before giving up")
	flag.BoolVar(&devFlags.sim, "sim", false, "use the simulated controller instead of /dev/mem")
	flag.BoolVar(&devFlags.verbose, "v", false, "log each step")
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	if name == "help" {
		usage()
	}
	op, err := qspi.ParseOperation(strings.ToUpper(name))
	if err != nil {
		var unsupported *qspi.UnsupportedOperationError
		if errors.As(err, &unsupported) {
			fatalf("%v (want one of %s)", err, strings.Join(qspi.OperationNames(), ", "))
		}
		fatalf("%v", err)
	}

	switch op {
	case qspi.OpReadID, qspi.OpReadStatus, qspi.OpReadConfig, qspi.OpReadBAR:
		readRegCommand(op, args)
	case qspi.OpWriteEnable:
		writeEnableCommand(args)
	case qspi.OpWriteReg:
		writeRegCommand(args)
	case qspi.OpReadQuadOut, qspi.OpReadQuadIO:
		readCommand(op, args)
	}
}
