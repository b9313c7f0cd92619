package transport

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// IPMBBus models the physical IPMB bus as a periph.io i2c bus, mirroring
// wshat.Open's host.Init()-then-open-device idiom. Real IPMB slave-mode
// response is out of reach of a host-only i2c master, so this is strictly
// the demonstration relay path for SEND_MSG: sending an already-framed
// outer request to a satellite's bus address and reading back its reply.
type IPMBBus struct {
	bus i2c.BusCloser
}

// OpenIPMB initializes the host's periph.io drivers and opens the named
// i2c bus (empty name selects the platform default).
func OpenIPMB(name string) (*IPMBBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("transport: host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("transport: open i2c bus %q: %w", name, err)
	}
	return &IPMBBus{bus: bus}, nil
}

// Close releases the underlying bus handle.
func (b *IPMBBus) Close() error { return b.bus.Close() }

// dev addresses one satellite MC by its IPMB slave address, masked down
// to the 7-bit form i2c.Dev expects.
func (b *IPMBBus) dev(slave byte) *i2c.Dev {
	return &i2c.Dev{Addr: uint16(slave >> 1), Bus: b.bus}
}

// Relay writes an already-framed SEND_MSG outer request to the satellite
// at slave and reads back respLen bytes of reply. The SEND_MSG framing
// itself belongs entirely to engine.Dispatcher; this is a thin I/O
// wrapper around the bus transaction.
func (b *IPMBBus) Relay(ctx context.Context, slave byte, request []byte, respLen int) ([]byte, error) {
	resp := make([]byte, respLen)
	if err := b.dev(slave).Tx(request, resp); err != nil {
		return nil, fmt.Errorf("transport: ipmb tx to %#x: %w", slave, err)
	}
	return resp, nil
}
