// Package transport provides optional host-side framing around
// engine.Dispatcher: a serial-port byte stream and a periph.io IPMB bus.
// Neither carries engine semantics of its own; they only frame bytes in
// and out of HandleMessage, mirroring how mjolnir.Open and wshat.Open
// probe and open a physical device for their own higher-level protocols.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/tarm/serial"

	"github.com/allanliu/openipmi/ipmi/engine"
)

// OpenSerial probes the given device path (or a platform default list
// when dev is empty) and returns an open serial port, in the same
// first-match-wins style as mjolnir.Open.
func OpenSerial(dev string, baud int) (io.ReadWriteCloser, error) {
	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("transport: no serial device specified")
	}
	var firstErr error
	for _, d := range devices {
		c := &serial.Config{Name: d, Baud: baud}
		s, err := serial.OpenPort(c)
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("transport: open serial: %w", firstErr)
}

// frameHeaderSize is the request header this package imposes on top of
// the raw request/response shape spec.md §6 defines: dst_lun (1 byte),
// length (1 byte, 0-255), then length request bytes. A response frame is
// a single length byte followed by the response bytes.
const frameHeaderSize = 2

// ErrFrameTooLarge is returned when a response would not fit this
// transport's single-byte length field.
var ErrFrameTooLarge = errors.New("transport: frame exceeds 255 bytes")

// ServeSerial reads framed requests from rw, dispatches each through d,
// and writes the framed response back to rw, until a read or write fails
// or a response exceeds 255 bytes. An io.EOF before a frame header is
// returned unwrapped so the caller can distinguish a clean shutdown from
// a real I/O failure.
func ServeSerial(ctx context.Context, d *engine.Dispatcher, rw io.ReadWriter) error {
	br := bufio.NewReader(rw)
	for {
		header := make([]byte, frameHeaderSize)
		if _, err := io.ReadFull(br, header); err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("transport: read header: %w", err)
		}
		dstLUN := header[0]
		length := int(header[1])
		request := make([]byte, length)
		if _, err := io.ReadFull(br, request); err != nil {
			return fmt.Errorf("transport: read request: %w", err)
		}
		resp := d.HandleMessage(ctx, dstLUN, request)
		if len(resp) > 255 {
			return ErrFrameTooLarge
		}
		out := make([]byte, 1+len(resp))
		out[0] = byte(len(resp))
		copy(out[1:], resp)
		if _, err := rw.Write(out); err != nil {
			return fmt.Errorf("transport: write response: %w", err)
		}
	}
}
