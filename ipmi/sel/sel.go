// Package sel implements the System Event Log repository: an ordered
// sequence of 16-byte event records keyed by a reservation-protected
// record id.
package sel

import (
	"time"

	"github.com/allanliu/openipmi/ipmi/codec"
	"github.com/allanliu/openipmi/ipmi/ipmicc"
)

// EntrySize is the fixed length of a SEL record.
const EntrySize = 16

// Clock supplies the wall-clock time used for timestamp rewriting, the
// last-add/last-erase times and the SEL time, mirroring the teacher's injectable
// Platform.Now() pattern so tests can pin the clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Entry is one 16-byte SEL record. Bytes 0-1 are the record id (LE),
// byte 2 the record type, bytes 3-15 the type-specific body.
type Entry [EntrySize]byte

// RecordID returns the entry's record id.
func (e Entry) RecordID() uint16 { return codec.GetU16LE(e[:], 0) }

// RecordType returns the entry's record type byte.
func (e Entry) RecordType() byte { return e[2] }

// Store is the SEL repository owned by one MC.
type Store struct {
	clock Clock

	entries  []Entry
	maxCount int

	// support holds the capability bits enabled at Enable time (a subset
	// of ipmicc.EnableSupportMask) plus the overflow status bit.
	support byte

	reservation   uint16
	nextEntry     uint16
	lastAddTime   int64
	lastEraseTime int64
	timeOffset    int64
}

// New creates an empty, disabled store. Call Enable to size and arm it.
func New() *Store {
	return &Store{clock: realClock{}}
}

// SetClock overrides the store's clock; used by tests.
func (s *Store) SetClock(c Clock) { s.clock = c }

func (s *Store) now() int64 { return s.clock.Now().Unix() }

// Enable resets the store to empty with the given capacity and support
// flags (masked to ipmicc.EnableSupportMask: delete, reserve, alloc-info).
func (s *Store) Enable(maxEntries int, supportFlags byte) {
	s.entries = nil
	s.maxCount = maxEntries
	s.support = supportFlags & ipmicc.EnableSupportMask
	s.reservation = 0
	s.nextEntry = 1
	s.lastAddTime = 0
	s.lastEraseTime = 0
	s.timeOffset = 0
}

func (s *Store) supports(bit byte) bool { return s.support&bit != 0 }

// Count returns the number of live entries.
func (s *Store) Count() int { return len(s.entries) }

func (s *Store) findIndex(id uint16) int {
	for i, e := range s.entries {
		if e.RecordID() == id {
			return i
		}
	}
	return -1
}

func (s *Store) recordIDInUse(id uint16) bool {
	return s.findIndex(id) >= 0
}

// checkReservation validates a caller-supplied reservation against the
// current one. A reservation of 0 always passes (unreserved caller);
// otherwise it must match exactly when reserve is supported.
func (s *Store) checkReservation(reservation uint16) bool {
	if !s.supports(ipmicc.SupportReserve) {
		return true
	}
	if reservation == 0 {
		return true
	}
	return reservation == s.reservation
}

// GetInfo implements "Get SEL Info". Returns the completion code and the
// response payload (bytes after response[0]).
func (s *Store) GetInfo() (byte, []byte) {
	resp := make([]byte, 14)
	resp[0] = ipmicc.IPMIVersion
	codec.SetU16LE(resp, 1, uint16(len(s.entries)))
	freeSpace := uint16((s.maxCount - len(s.entries)) * EntrySize)
	codec.SetU16LE(resp, 3, freeSpace)
	codec.SetU32LE(resp, 5, uint32(s.lastAddTime))
	codec.SetU32LE(resp, 9, uint32(s.lastEraseTime))
	resp[13] = s.support
	// Side effect: clear the overflow bit.
	s.support &^= ipmicc.SupportOverflow
	return ipmicc.OK, resp
}

// GetAllocInfo implements "Get SEL Allocation Info".
func (s *Store) GetAllocInfo() (byte, []byte) {
	if !s.supports(ipmicc.SupportGetAllocInfo) {
		return ipmicc.InvalidCmd, nil
	}
	resp := make([]byte, 9)
	codec.SetU16LE(resp, 0, uint16(s.maxCount*EntrySize))
	codec.SetU16LE(resp, 2, EntrySize)
	free := s.maxCount - len(s.entries)
	codec.SetU16LE(resp, 4, uint16(free))
	largest := uint16(0)
	if free > 0 {
		largest = 1
	}
	codec.SetU16LE(resp, 6, largest)
	resp[8] = 1
	return ipmicc.OK, resp
}

// Reserve implements "Reserve SEL".
func (s *Store) Reserve() (byte, []byte) {
	if !s.supports(ipmicc.SupportReserve) {
		return ipmicc.InvalidCmd, nil
	}
	s.reservation++
	if s.reservation == 0 {
		s.reservation = 1
	}
	resp := make([]byte, 2)
	codec.SetU16LE(resp, 0, s.reservation)
	return ipmicc.OK, resp
}

// GetEntry implements "Get SEL Entry". offset and count select a window
// into the 16-byte record.
func (s *Store) GetEntry(reservation, recordID uint16, offset int, count int) (byte, []byte) {
	if !s.checkReservation(reservation) {
		return ipmicc.InvalidReservation, nil
	}
	if offset >= EntrySize {
		return ipmicc.InvalidDataField, nil
	}
	idx, next := s.locate(recordID)
	if idx < 0 {
		return ipmicc.NotPresent, nil
	}
	n := count
	if max := EntrySize - offset; n > max {
		n = max
	}
	resp := make([]byte, 2+n)
	codec.SetU16LE(resp, 0, next)
	copy(resp[2:], s.entries[idx][offset:offset+n])
	return ipmicc.OK, resp
}

// locate resolves the 0/0xFFFF/specific record-id selection rule shared
// by Get and Delete, returning the entry index and the next record id to
// report (0xFFFF,0xFFFF encoded as next==0xFFFF meaning "last").
func (s *Store) locate(recordID uint16) (idx int, next uint16) {
	switch recordID {
	case 0:
		if len(s.entries) == 0 {
			return -1, 0xFFFF
		}
		idx = 0
	case 0xFFFF:
		if len(s.entries) == 0 {
			return -1, 0xFFFF
		}
		idx = len(s.entries) - 1
	default:
		idx = s.findIndex(recordID)
		if idx < 0 {
			return -1, 0
		}
	}
	if idx == len(s.entries)-1 {
		next = 0xFFFF
	} else {
		next = s.entries[idx+1].RecordID()
	}
	return idx, next
}

// allocateID finds the next free record id starting at nextEntry,
// skipping 0 and any collision, bounded to 65535 iterations.
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

// AddEntry implements "Add SEL Entry". body is the 16-byte request
// payload, laid out exactly like the final record (record id placeholder
// at 0-1, record type at 2, timestamp at 3-6, the rest of the
// type-specific fields at 7-15) — the standard IPMI Add SEL Entry request
// shape. device_support's SEL bit is checked by the caller before
// invoking AddEntry. A store already holding maxCount entries rejects the
// add with OutOfSpace and sets the overflow bit.
func (s *Store) AddEntry(body []byte) (byte, []byte) {
	if len(body) < EntrySize {
		return ipmicc.RequestDataLengthInvalid, nil
	}
	if len(s.entries) >= s.maxCount {
		s.support |= ipmicc.SupportOverflow
		return ipmicc.OutOfSpace, nil
	}
	id, ok := s.allocateID()
	if !ok {
		s.support |= ipmicc.SupportOverflow
		return ipmicc.OutOfSpace, nil
	}
	var e Entry
	codec.SetU16LE(e[:], 0, id)
	recordType := body[2]
	e[2] = recordType
	if recordType < ipmicc.OEMRecordTypeBoundary {
		now := s.now()
		codec.SetU32LE(e[:], 3, uint32(now+s.timeOffset))
		copy(e[7:], body[7:16])
	} else {
		copy(e[3:], body[3:16])
	}
	s.entries = append(s.entries, e)
	s.lastAddTime = s.now()
	s.nextEntry = id + 1
	resp := make([]byte, 2)
	codec.SetU16LE(resp, 0, id)
	return ipmicc.OK, resp
}

// AddSystemEvent is a synthesis helper used by sensor threshold/discrete
// event generation and the OEM0 power-change event (spec.md §4.5, §4.7):
// it builds a system-event record directly from its fields, bypassing the
// wire request shape AddEntry decodes.
func (s *Store) AddSystemEvent(recordType, genSlave, genLUN, evmRev, sensorType, sensorNum, dirAndType, d1, d2, d3 byte) (byte, []byte) {
	var body [16]byte
	body[2] = recordType
	body[7] = genSlave
	body[8] = genLUN
	body[9] = evmRev
	body[10] = sensorType
	body[11] = sensorNum
	body[12] = dirAndType
	body[13] = d1
	body[14] = d2
	body[15] = d3
	return s.AddEntry(body[:])
}

// DeleteEntry implements "Delete SEL Entry".
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
	id := s.entries[idx].RecordID()
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	resp := make([]byte, 2)
	codec.SetU16LE(resp, 0, id)
	return ipmicc.OK, resp
}

// Clear implements "Clear SEL". body is the command-specific request
// payload: 3-byte "CLR" magic followed by the op byte.
func (s *Store) Clear(body []byte) (byte, []byte) {
	if len(body) < 4 || body[0] != ipmicc.ClearMagic[0] || body[1] != ipmicc.ClearMagic[1] || body[2] != ipmicc.ClearMagic[2] {
		return ipmicc.InvalidDataField, nil
	}
	switch body[3] {
	case ipmicc.ClearOpInitiate:
		s.entries = nil
		s.lastEraseTime = s.now()
	case ipmicc.ClearOpGetStatus:
	default:
		return ipmicc.InvalidDataField, nil
	}
	return ipmicc.OK, []byte{ipmicc.ClearComplete}
}

// GetTime implements "Get SEL Time".
func (s *Store) GetTime() (byte, []byte) {
	resp := make([]byte, 4)
	codec.SetU32LE(resp, 0, uint32(s.now()+s.timeOffset))
	return ipmicc.OK, resp
}

// SetTime implements "Set SEL Time".
func (s *Store) SetTime(epoch uint32) byte {
	s.timeOffset = int64(epoch) - s.now()
	return ipmicc.OK
}

// Entries exposes the live entries in order, for test assertions and for
// configuration-time inspection. The returned slice must not be mutated.
func (s *Store) Entries() []Entry { return s.entries }
