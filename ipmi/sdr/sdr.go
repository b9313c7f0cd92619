// Package sdr implements the Sensor Data Record repository: an ordered
// list of variable-length sensor descriptors, reservation-protected, with
// modal update-mode gating and a partial (multi-packet) add protocol.
package sdr

import (
	"time"

	"github.com/allanliu/openipmi/ipmi/codec"
	"github.com/allanliu/openipmi/ipmi/ipmicc"
)

// MaxRecordLen is the largest legal SDR record (6-byte header + 255-byte
// body).
const MaxRecordLen = 261

// Clock mirrors sel.Clock; kept as a separate type so the two packages
// don't need to depend on each other for this small interface.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Record is one variable-length SDR. Bytes 0-1 are the record id (LE).
type Record []byte

// RecordID returns the record's id.
func (r Record) RecordID() uint16 { return codec.GetU16LE(r, 0) }

type partialAdd struct {
	active    bool
	recordID  uint16
	total     int
	next      int
	buf       []byte
}

// Store is the SDR repository owned by one MC (either the main repository
// or one of the four per-LUN device-SDR repositories).
type Store struct {
	clock Clock

	records []Record

	// flags carries both capability bits (alloc-info, reserve, delete)
	// and the modal encoding (bits 5-6), plus the overflow status bit.
	flags byte

	reservation   uint16
	nextEntry     uint16
	lastAddTime   int64
	lastEraseTime int64
	timeOffset    int64

	inUpdateMode bool
	partial      partialAdd
}

// New creates an empty store with the given capability/modal flags. Modal
// state persists for the store's lifetime; it is configured once by the
// loader, unlike SEL's Enable which can be called repeatedly.
func New(flags byte) *Store {
	return &Store{clock: realClock{}, flags: flags, nextEntry: 1}
}

// SetClock overrides the store's clock; used by tests.
func (s *Store) SetClock(c Clock) { s.clock = c }

func (s *Store) now() int64 { return s.clock.Now().Unix() }

func (s *Store) supports(bit byte) bool { return s.flags&bit != 0 }

func (s *Store) modal() byte { return s.flags & ipmicc.ModalMask }

// isModalCapable reports whether the store supports update mode at all
// (modal-only or both).
func (s *Store) isModalCapable() bool {
	m := s.modal()
	return m == ipmicc.ModalModalOnly || m == ipmicc.ModalBoth
}

// addAllowed reports whether a direct (non-modal) add/partial-add is
// currently permitted.
func (s *Store) addAllowed() bool {
	if s.modal() != ipmicc.ModalNonModalOnly {
		return true
	}
	return s.inUpdateMode
}

func (s *Store) findIndex(id uint16) int {
	for i, r := range s.records {
		if r.RecordID() == id {
			return i
		}
	}
	return -1
}

func (s *Store) recordIDInUse(id uint16) bool { return s.findIndex(id) >= 0 }

func (s *Store) checkReservation(reservation uint16) bool {
	if !s.supports(ipmicc.SupportReserve) {
		return true
	}
	if reservation == 0 {
		return true
	}
	return reservation == s.reservation
}

// Count returns the number of live records.
func (s *Store) Count() int { return len(s.records) }

// GetInfo implements "Get SDR Repository Info". Unlike sel.Store, the
// repository has no configured capacity to subtract live records from,
// so free space is always reported as 0 (see DESIGN.md).
func (s *Store) GetInfo() (byte, []byte) {
	resp := make([]byte, 14)
	resp[0] = ipmicc.IPMIVersion
	codec.SetU16LE(resp, 1, uint16(len(s.records)))
	free := uint16(0)
	codec.SetU16LE(resp, 3, free)
	codec.SetU32LE(resp, 5, uint32(s.lastAddTime))
	codec.SetU32LE(resp, 9, uint32(s.lastEraseTime))
	resp[13] = s.flags
	s.flags &^= ipmicc.SupportOverflow
	return ipmicc.OK, resp
}

// GetAllocInfo implements "Get SDR Repository Allocation Info".
func (s *Store) GetAllocInfo() (byte, []byte) {
	if !s.supports(ipmicc.SupportGetAllocInfo) {
		return ipmicc.InvalidCmd, nil
	}
	resp := make([]byte, 9)
	codec.SetU16LE(resp, 0, 0)
	codec.SetU16LE(resp, 2, 0)
	codec.SetU16LE(resp, 4, 0)
	codec.SetU16LE(resp, 6, 0)
	resp[8] = 1
	return ipmicc.OK, resp
}

// Reserve implements "Reserve SDR Repository"; it additionally aborts any
// in-progress partial add, freeing its working record.
func (s *Store) Reserve() (byte, []byte) {
	if !s.supports(ipmicc.SupportReserve) {
		return ipmicc.InvalidCmd, nil
	}
	s.partial = partialAdd{}
	s.reservation++
	if s.reservation == 0 {
		s.reservation = 1
	}
	resp := make([]byte, 2)
	codec.SetU16LE(resp, 0, s.reservation)
	return ipmicc.OK, resp
}

// GetEntry implements "Get SDR". offset/count select a window into the
// variable-length record.
func (s *Store) GetEntry(reservation, recordID uint16, offset, count int) (byte, []byte) {
	if !s.checkReservation(reservation) {
		return ipmicc.InvalidReservation, nil
	}
	idx, next := s.locate(recordID)
	if idx < 0 {
		return ipmicc.NotPresent, nil
	}
	rec := s.records[idx]
	if offset >= len(rec) {
		return ipmicc.InvalidDataField, nil
	}
	n := count
	if max := len(rec) - offset; n > max {
		n = max
	}
	resp := make([]byte, 2+n)
	codec.SetU16LE(resp, 0, next)
	copy(resp[2:], rec[offset:offset+n])
	return ipmicc.OK, resp
}

func (s *Store) locate(recordID uint16) (idx int, next uint16) {
	switch recordID {
	case 0:
		if len(s.records) == 0 {
			return -1, 0xFFFF
		}
		idx = 0
	case 0xFFFF:
		if len(s.records) == 0 {
			return -1, 0xFFFF
		}
		idx = len(s.records) - 1
	default:
		idx = s.findIndex(recordID)
		if idx < 0 {
			return -1, 0
		}
	}
	if idx == len(s.records)-1 {
		next = 0xFFFF
	} else {
		next = s.records[idx+1].RecordID()
	}
	return idx, next
}

func (s *Store) allocateID() (uint16, bool) {
	id := s.nextEntry
	if id == 0 {
		id = 1
	}
	for i := 0; i < 0xFFFF; i++ {
		if id != 0 && !s.recordIDInUse(id) {
			return id, true
		}
		id++
		if id == 0 {
			id = 1
		}
	}
	return 0, false
}

func (s *Store) append(body []byte) (uint16, bool) {
	id, ok := s.allocateID()
	if !ok {
		s.flags |= ipmicc.SupportOverflow
		return 0, false
	}
	rec := make(Record, len(body))
	copy(rec, body)
	codec.SetU16LE(rec, 0, id)
	s.records = append(s.records, rec)
	s.lastAddTime = s.now()
	s.nextEntry = id + 1
	return id, true
}

// Add implements single-shot "Add SDR". data is the full request payload
// (reservation not included; the caller already validated it if
// required). data[5] holds the declared body length, and the record
// total length must equal data[5]+6.
func (s *Store) Add(data []byte) (byte, []byte) {
	if !s.addAllowed() {
		return ipmicc.NotSupportedInPresentState, nil
	}
	if len(data) < 6 || len(data) != int(data[5])+6 {
		return ipmicc.CmdSpecificLengthInvalid, nil
	}
	id, ok := s.append(data)
	if !ok {
		return ipmicc.OutOfSpace, nil
	}
	resp := make([]byte, 2)
	codec.SetU16LE(resp, 0, id)
	return ipmicc.OK, resp
}

// PartialAddResult carries the outcome of one partial-add segment.
type PartialAddResult struct {
	Done     bool
	RecordID uint16
}

// PartialAdd implements "Partial Add SDR". recordIDIn/offset/progress are
// decoded from the request by the caller per spec.md's pinned byte
// positions (request bytes 2-3, 4-5, 6); body is the trailing segment
// bytes. The segments concatenate to the whole record: the first segment
// starts with the two record-id placeholder bytes (overwritten with the
// allocated id on commit), and its body[3] declares how many record bytes
// follow a 4-byte header.
func (s *Store) PartialAdd(reservation, recordIDIn uint16, offset int, progress byte, body []byte) (byte, PartialAddResult) {
	if !s.addAllowed() {
		return ipmicc.NotSupportedInPresentState, PartialAddResult{}
	}
	if !s.checkReservation(reservation) {
		return ipmicc.InvalidReservation, PartialAddResult{}
	}
	last := progress&0x0F == 1

	if recordIDIn == 0 {
		if offset != 0 {
			s.partial = partialAdd{}
			return ipmicc.InvalidDataField, PartialAddResult{}
		}
		if s.partial.active {
			s.partial = partialAdd{}
			return ipmicc.InvalidDataField, PartialAddResult{}
		}
		if len(body) < 4 {
			return ipmicc.RequestDataLengthInvalid, PartialAddResult{}
		}
		// The record is a 4-byte header followed by body[3] bytes.
		total := int(body[3]) + 4
		s.partial = partialAdd{
			active: true,
			total:  total,
			next:   0,
			buf:    make([]byte, 0, total),
		}
		s.partial.buf = append(s.partial.buf, body...)
		s.partial.next = len(body)
	} else {
		if !s.partial.active {
			return ipmicc.InvalidDataField, PartialAddResult{}
		}
		if offset != s.partial.next {
			s.partial = partialAdd{}
			return ipmicc.InvalidDataField, PartialAddResult{}
		}
		if offset+len(body) > s.partial.total {
			s.partial = partialAdd{}
			return ipmicc.InvalidDataField, PartialAddResult{}
		}
		s.partial.buf = append(s.partial.buf, body...)
		s.partial.next = offset + len(body)
	}

	if !last {
		// Allocate (or keep) a placeholder id so the caller can echo it
		// back on the next segment, without yet making the record live.
		if s.partial.recordID == 0 {
			id, ok := s.allocateID()
			if !ok {
				s.partial = partialAdd{}
				return ipmicc.OutOfSpace, PartialAddResult{}
			}
			s.partial.recordID = id
		}
		return ipmicc.OK, PartialAddResult{Done: false, RecordID: s.partial.recordID}
	}

	if s.partial.next != s.partial.total {
		s.partial = partialAdd{}
		return ipmicc.InvalidDataField, PartialAddResult{}
	}
	id, ok := s.append(s.partial.buf)
	s.partial = partialAdd{}
	if !ok {
		return ipmicc.OutOfSpace, PartialAddResult{}
	}
	return ipmicc.OK, PartialAddResult{Done: true, RecordID: id}
}

// DeleteEntry implements "Delete SDR".
func (s *Store) DeleteEntry(reservation, recordID uint16) (byte, []byte) {
	if !s.supports(ipmicc.SupportDelete) {
		return ipmicc.InvalidCmd, nil
	}
	if !s.checkReservation(reservation) {
		return ipmicc.InvalidReservation, nil
	}
	idx, _ := s.locate(recordID)
	if idx < 0 {
		return ipmicc.NotPresent, nil
	}
	id := s.records[idx].RecordID()
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	resp := make([]byte, 2)
	codec.SetU16LE(resp, 0, id)
	return ipmicc.OK, resp
}

// Clear implements "Clear SDR Repository".
func (s *Store) Clear(body []byte) (byte, []byte) {
	if len(body) < 4 || body[0] != ipmicc.ClearMagic[0] || body[1] != ipmicc.ClearMagic[1] || body[2] != ipmicc.ClearMagic[2] {
		return ipmicc.InvalidDataField, nil
	}
	switch body[3] {
	case ipmicc.ClearOpInitiate:
		s.records = nil
		s.partial = partialAdd{}
		s.lastEraseTime = s.now()
	case ipmicc.ClearOpGetStatus:
	default:
		return ipmicc.InvalidDataField, nil
	}
	return ipmicc.OK, []byte{ipmicc.ClearComplete}
}

// GetTime / SetTime mirror sel.Store's.
func (s *Store) GetTime() (byte, []byte) {
	resp := make([]byte, 4)
	codec.SetU32LE(resp, 0, uint32(s.now()+s.timeOffset))
	return ipmicc.OK, resp
}

func (s *Store) SetTime(epoch uint32) byte {
	s.timeOffset = int64(epoch) - s.now()
	return ipmicc.OK
}

// EnterUpdateMode implements "Enter SDR Repository Update Mode".
func (s *Store) EnterUpdateMode() byte {
	if !s.isModalCapable() {
		return ipmicc.InvalidCmd
	}
	s.inUpdateMode = true
	return ipmicc.OK
}

// ExitUpdateMode implements "Exit SDR Repository Update Mode".
func (s *Store) ExitUpdateMode() byte {
	if !s.isModalCapable() {
		return ipmicc.InvalidCmd
	}
	s.inUpdateMode = false
	return ipmicc.OK
}

// Records exposes the live records in order; must not be mutated.
func (s *Store) Records() []Record { return s.records }
