package sdr

import (
	"bytes"
	"testing"
	"time"

	"github.com/allanliu/openipmi/ipmi/codec"
	"github.com/allanliu/openipmi/ipmi/ipmicc"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func newTestStore(flags byte) *Store {
	s := New(flags)
	s.SetClock(fixedClock{t: time.Unix(1_700_000_000, 0)})
	return s
}

func TestAddSingleShotRoundTrip(t *testing.T) {
	s := newTestStore(0)
	body := make([]byte, 9)
	body[5] = 3 // declared body length -> total = 9
	body[6], body[7], body[8] = 0xAA, 0xBB, 0xCC

	cc, resp := s.Add(body)
	if cc != ipmicc.OK {
		t.Fatalf("Add cc = %#x", cc)
	}
	id := codec.GetU16LE(resp, 0)

	cc, _ = s.GetEntry(0, id, 0, len(body)-2)
	if cc != ipmicc.OK {
		t.Fatalf("GetEntry cc = %#x", cc)
	}
	rec := s.records[s.findIndex(id)]
	if !bytes.Equal(rec[2:], body[2:]) {
		t.Fatalf("record body = %x, want %x", rec[2:], body[2:])
	}
}

func TestNonModalOnlyRejectsAddOutsideUpdateMode(t *testing.T) {
	s := newTestStore(ipmicc.ModalNonModalOnly)
	body := make([]byte, 6)
	cc, _ := s.Add(body)
	if cc != ipmicc.NotSupportedInPresentState {
		t.Fatalf("cc = %#x, want %#x", cc, ipmicc.NotSupportedInPresentState)
	}
	// Update mode needs a modal-capable repository, so a non-modal-only
	// store refuses to enter it and keeps rejecting adds.
	if cc := s.EnterUpdateMode(); cc != ipmicc.InvalidCmd {
		t.Fatalf("EnterUpdateMode cc = %#x, want %#x", cc, ipmicc.InvalidCmd)
	}
	cc, _ = s.Add(body)
	if cc != ipmicc.NotSupportedInPresentState {
		t.Fatalf("cc after enter update mode = %#x, want %#x", cc, ipmicc.NotSupportedInPresentState)
	}
}

func TestPartialAddMatchesSingleShot(t *testing.T) {
	full := make([]byte, 20)
	for i := range full {
		full[i] = byte(i)
	}
	// full[5] declared per single-shot semantics: total-6.
	full[5] = byte(len(full) - 6)

	single := newTestStore(ipmicc.SupportReserve)
	cc, resp := single.Add(full)
	if cc != ipmicc.OK {
		t.Fatalf("single Add cc = %#x", cc)
	}
	singleRec := single.records[single.findIndex(codec.GetU16LE(resp, 0))]

	s := newTestStore(ipmicc.SupportReserve)
	_, rres := s.Reserve()
	reservation := codec.GetU16LE(rres, 0)

	// body mirrors Add's data[2:]: 4 header bytes (body[3] = declared
	// record body length) followed by the payload.
	body := append([]byte{}, full[2:]...)
	body[3] = byte(len(body) - 4)
	seg1 := body[:8]
	seg2 := body[8:]

	cc, r1 := s.PartialAdd(reservation, 0, 0, 0, seg1)
	if cc != ipmicc.OK || r1.Done {
		t.Fatalf("seg1 cc=%#x done=%v", cc, r1.Done)
	}
	cc, r2 := s.PartialAdd(reservation, r1.RecordID, len(seg1), 1, seg2)
	if cc != ipmicc.OK || !r2.Done {
		t.Fatalf("seg2 cc=%#x done=%v", cc, r2.Done)
	}

	partialRec := s.records[s.findIndex(r2.RecordID)]
	if !bytes.Equal(partialRec[2:], singleRec[2:]) {
		t.Fatalf("partial-add record = %x, want %x", partialRec[2:], singleRec[2:])
	}
}

func TestPartialAddNonContiguousOffsetErrors(t *testing.T) {
	s := newTestStore(0)
	seg1 := []byte{10, 1, 2, 3}
	cc, r1 := s.PartialAdd(0, 0, 0, 0, seg1)
	if cc != ipmicc.OK || r1.Done {
		t.Fatalf("seg1 cc=%#x done=%v", cc, r1.Done)
	}
	// Skip ahead instead of continuing at the watermark.
	cc, _ = s.PartialAdd(0, r1.RecordID, len(seg1)+5, 1, []byte{1, 2, 3})
	if cc != ipmicc.InvalidDataField {
		t.Fatalf("cc = %#x, want %#x", cc, ipmicc.InvalidDataField)
	}
}

func TestReserveAbortsInProgressPartialAdd(t *testing.T) {
	s := newTestStore(ipmicc.SupportReserve)
	s.PartialAdd(0, 0, 0, 0, []byte{10, 1, 2, 3})
	if !s.partial.active {
		t.Fatalf("expected partial add in progress")
	}
	s.Reserve()
	if s.partial.active {
		t.Fatalf("Reserve did not abort the in-progress partial add")
	}
}
