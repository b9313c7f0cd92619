// Command bmcd runs an IPMI baseboard management controller emulator
// over a serial transport, loading its MC/sensor/SEL/SDR/FRU population
// from a CBOR configuration document.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/allanliu/openipmi/config"
	"github.com/allanliu/openipmi/ipmi/engine"
	"github.com/allanliu/openipmi/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))

	configPath := flag.String("config", "", "path to the CBOR configuration document")
	dev := flag.String("dev", "", "serial device path (platform default if empty)")
	baud := flag.Int("baud", 115200, "serial baud rate")
	flag.Parse()

	if *configPath == "" {
		return fmt.Errorf("bmcd: -config is required")
	}
	data, err := os.ReadFile(*configPath)
	if err != nil {
		return fmt.Errorf("bmcd: read config: %w", err)
	}
	doc, err := config.Parse(data)
	if err != nil {
		return fmt.Errorf("bmcd: %w", err)
	}
	e, err := doc.Apply()
	if err != nil {
		return fmt.Errorf("bmcd: apply config: %w", err)
	}
	if e.BMC() == nil {
		return fmt.Errorf("bmcd: config defines no MC at bmc_slave_address %#x", doc.BMCSlaveAddress)
	}

	port, err := transport.OpenSerial(*dev, *baud)
	if err != nil {
		return fmt.Errorf("bmcd: %w", err)
	}
	defer port.Close()

	log.Printf("bmcd: serving IPMI on %s at %d baud", *dev, *baud)
	d := engine.New(e)
	err = transport.ServeSerial(context.Background(), d, port)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("bmcd: %w", err)
	}
	log.Printf("bmcd: connection closed")
	return nil
}
