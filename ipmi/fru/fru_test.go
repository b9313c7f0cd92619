package fru

import (
	"bytes"
	"testing"

	"github.com/allanliu/openipmi/ipmi/ipmicc"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	s := New()
	s.AddArea(0x00, 64)

	data := []byte{1, 2, 3, 4, 5}
	cc, _ := s.Write(0x00, 10, data)
	if cc != ipmicc.OK {
		t.Fatalf("Write cc = %#x", cc)
	}

	cc, resp := s.Read(0x00, 10, len(data), 64)
	if cc != ipmicc.OK {
		t.Fatalf("Read cc = %#x", cc)
	}
	if resp[0] != byte(len(data)) {
		t.Fatalf("count = %d, want %d", resp[0], len(data))
	}
	if !bytes.Equal(resp[1:], data) {
		t.Fatalf("data = %x, want %x", resp[1:], data)
	}
}

func TestReadOffsetOutOfRange(t *testing.T) {
	s := New()
	s.AddArea(0x00, 8)
	cc, _ := s.Read(0x00, 8, 1, 64)
	if cc != ipmicc.ParameterOutOfRange {
		t.Fatalf("cc = %#x, want %#x", cc, ipmicc.ParameterOutOfRange)
	}
}

func TestReadClampsToAreaLength(t *testing.T) {
	s := New()
	s.AddArea(0x00, 8)
	cc, resp := s.Read(0x00, 5, 10, 64)
	if cc != ipmicc.OK {
		t.Fatalf("cc = %#x", cc)
	}
	if resp[0] != 3 {
		t.Fatalf("count = %d, want 3", resp[0])
	}
}

func TestReadExceedsResponseCapacity(t *testing.T) {
	s := New()
	s.AddArea(0x00, 64)
	cc, _ := s.Read(0x00, 0, 40, 10)
	if cc != ipmicc.RequestedDataLengthExceeded {
		t.Fatalf("cc = %#x, want %#x", cc, ipmicc.RequestedDataLengthExceeded)
	}
}

func TestWriteOverflowIsError(t *testing.T) {
	s := New()
	s.AddArea(0x00, 4)
	cc, _ := s.Write(0x00, 2, []byte{1, 2, 3})
	if cc != ipmicc.RequestedDataLengthExceeded {
		t.Fatalf("cc = %#x, want %#x", cc, ipmicc.RequestedDataLengthExceeded)
	}
}

func TestUnknownDeviceID(t *testing.T) {
	s := New()
	if cc, _ := s.GetAreaInfo(0x05); cc != ipmicc.InvalidDataField {
		t.Fatalf("cc = %#x, want %#x", cc, ipmicc.InvalidDataField)
	}
}
