// Package fru implements the Field-Replaceable Unit inventory areas: one
// fixed-length byte buffer per device id, randomly addressable by 16-bit
// offset.
package fru

import (
	"github.com/allanliu/openipmi/ipmi/codec"
	"github.com/allanliu/openipmi/ipmi/ipmicc"
)

// MaxDeviceID is the largest legal FRU device id (0..254).
const MaxDeviceID = 254

// AccessMode is the fixed access-mode byte returned by Get Area Info (byte
// access, not word access).
const AccessMode = 0x00

// Store holds the FRU data areas for one MC, keyed by device id.
type Store struct {
	areas map[byte][]byte
}

// New creates an empty FRU store.
func New() *Store {
	return &Store{areas: make(map[byte][]byte)}
}

// AddArea installs a zero-filled buffer of the given length for deviceID,
// for use by the external configuration loader.
func (s *Store) AddArea(deviceID byte, length int) {
	s.areas[deviceID] = make([]byte, length)
}

// GetAreaInfo implements "Get FRU Inventory Area Info".
func (s *Store) GetAreaInfo(deviceID byte) (byte, []byte) {
	area, ok := s.areas[deviceID]
	if !ok {
		return ipmicc.InvalidDataField, nil
	}
	resp := make([]byte, 3)
	codec.SetU16LE(resp, 0, uint16(len(area)))
	resp[2] = AccessMode
	return ipmicc.OK, resp
}

// Read implements "Read FRU Data". offset and count select a window;
// count is clamped to the area's remaining length, and a clamped count
// above respCapacity-2 (the response has a leading count byte) is
// rejected with RequestedDataLengthExceeded rather than clamped further.
func (s *Store) Read(deviceID byte, offset int, count int, respCapacity int) (byte, []byte) {
	area, ok := s.areas[deviceID]
	if !ok {
		return ipmicc.InvalidDataField, nil
	}
	if offset >= len(area) {
		return ipmicc.ParameterOutOfRange, nil
	}
	n := count
	if max := len(area) - offset; n > max {
		n = max
	}
	if max := respCapacity - 2; n > max {
		return ipmicc.RequestedDataLengthExceeded, nil
	}
	resp := make([]byte, 1+n)
	resp[0] = byte(n)
	copy(resp[1:], area[offset:offset+n])
	return ipmicc.OK, resp
}

// Write implements "Write FRU Data". No truncation: writing past the end
// of the area is an error, not a silent clamp.
func (s *Store) Write(deviceID byte, offset int, data []byte) (byte, []byte) {
	area, ok := s.areas[deviceID]
	if !ok {
		return ipmicc.InvalidDataField, nil
	}
	if offset >= len(area) && len(data) > 0 {
		return ipmicc.ParameterOutOfRange, nil
	}
	if offset+len(data) > len(area) {
		return ipmicc.RequestedDataLengthExceeded, nil
	}
	copy(area[offset:], data)
	resp := []byte{byte(len(data))}
	return ipmicc.OK, resp
}
