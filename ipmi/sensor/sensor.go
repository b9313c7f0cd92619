// Package sensor implements the live per-LUN sensor table: thresholds,
// hysteresis, event masks, and the deterministic threshold-crossing and
// discrete-event evaluation that feeds the SEL of a designated receiver.
package sensor

import "github.com/allanliu/openipmi/ipmi/ipmicc"

// ThresholdEventReadingCode is the event_reading_code value that enables
// threshold get/set and threshold evaluation.
const ThresholdEventReadingCode = 0x01

// Threshold slot indices, in the order spec.md §3 pins down.
const (
	LowerNonCritical = iota
	LowerCritical
	LowerNonRecoverable
	UpperNonCritical
	UpperCritical
	UpperNonRecoverable
	NumThresholds
)

// NumEventBits is the number of assert/deassert/event-status bits (0..14).
const NumEventBits = 15

// Support describes a readable/settable/fixed/none capability level,
// shared by hysteresis and threshold support.
type Support byte

const (
	SupportNone Support = iota
	SupportReadable
	SupportSettable
	SupportFixed
)

// EventSupport describes a sensor's event-enable granularity.
type EventSupport byte

const (
	EventSupportNone EventSupport = iota
	EventSupportPerEvent
	EventSupportEntireSensor
	EventSupportGlobalEnable
)

// Event is a single assert/deassert occurrence produced by a state
// transition. The caller (the owning MC) decides whether it is actually
// delivered to a receiver's SEL, per the MC-level gating in spec.md §4.5.
type Event struct {
	Assert bool
	// Offset is the six-bit event-identity field: threshold events in
	// [0x50, 0x5C), discrete events in [0x00, 0x0F).
	Offset byte
	Data2  byte
	Data3  byte
}

// Sensor is one live sensor on an MC, addressed by (LUN, Num).
type Sensor struct {
	Num              byte
	LUN              byte
	SensorType       byte
	EventReadingCode byte

	Value           byte
	ScanningEnabled bool
	EventsEnabled   bool

	HysteresisSupport  Support
	PositiveHysteresis byte
	NegativeHysteresis byte

	ThresholdSupport  Support
	ThresholdSupported [NumThresholds]bool
	Thresholds         [NumThresholds]byte

	EventSupport EventSupport

	AssertEventSupported   [NumEventBits]bool
	DeassertEventSupported [NumEventBits]bool
	AssertEventEnabled     [NumEventBits]bool
	DeassertEventEnabled   [NumEventBits]bool
	EventStatus            [NumEventBits]bool
}

// New creates a sensor with the given identity fields; num must be < 255
// and lun < 4, per spec.md's invariants (the caller, the configuration
// loader, is expected to enforce this).
func New(lun, num, sensorType, eventReadingCode byte) *Sensor {
	return &Sensor{
		Num:              num,
		LUN:              lun,
		SensorType:       sensorType,
		EventReadingCode: eventReadingCode,
	}
}

// Table holds the sparse per-LUN, per-sensor-number sensors for one MC.
type Table struct {
	sensors map[byte]map[byte]*Sensor
}

// NewTable creates an empty sensor table.
func NewTable() *Table {
	return &Table{sensors: make(map[byte]map[byte]*Sensor)}
}

// Add installs a sensor, created by the configurator; sensors are never
// destroyed individually (spec.md §3 Lifecycles).
func (t *Table) Add(s *Sensor) {
	lun := t.sensors[s.LUN]
	if lun == nil {
		lun = make(map[byte]*Sensor)
		t.sensors[s.LUN] = lun
	}
	lun[s.Num] = s
}

// Get looks up a sensor by LUN and number.
func (t *Table) Get(lun, num byte) (*Sensor, bool) {
	m, ok := t.sensors[lun]
	if !ok {
		return nil, false
	}
	s, ok := m[num]
	return s, ok
}

func thresholdOffset(i int) byte {
	if i < 3 {
		return 0x50 | byte(i*2)
	}
	return 0x50 | byte((i-3)*2+1)
}

// checkThresholds runs the deterministic threshold-crossing procedure
// (spec.md §4.5) and returns the events it newly asserts or deasserts.
func (s *Sensor) checkThresholds() []Event {
	var events []Event
	for i := 0; i < NumThresholds; i++ {
		if !s.ThresholdSupported[i] {
			continue
		}
		threshold := s.Thresholds[i]
		var assertCond, deassertCond bool
		if i < 3 {
			assertCond = s.Value <= threshold
			deassertCond = int(s.Value)-int(s.NegativeHysteresis) > int(threshold)
		} else {
			assertCond = s.Value >= threshold
			deassertCond = int(s.Value)+int(s.PositiveHysteresis) < int(threshold)
		}
		offset := thresholdOffset(i)
		was := s.EventStatus[i]
		switch {
		case !was && assertCond:
			s.EventStatus[i] = true
			if s.AssertEventEnabled[i] {
				events = append(events, Event{Assert: true, Offset: offset, Data2: s.Value, Data3: threshold})
			}
		case was && deassertCond:
			s.EventStatus[i] = false
			if s.DeassertEventEnabled[i] {
				events = append(events, Event{Assert: false, Offset: offset, Data2: s.Value, Data3: threshold})
			}
		}
	}
	return events
}

// SetValue updates the sensor's current reading and re-runs threshold
// evaluation when event_reading_code is THRESHOLD. The returned events
// are eligible for delivery; the caller still applies the MC-level gate
// (event_receiver configured, events_enabled, caller requested).
func (s *Sensor) SetValue(value byte) []Event {
	s.Value = value
	if s.EventReadingCode != ThresholdEventReadingCode {
		return nil
	}
	return s.checkThresholds()
}

// SetBit implements set_bit (spec.md §4.5): sets event_status[bit] if
// changed and returns the resulting event when the matching enable bit is
// set. bit must be < 15.
func (s *Sensor) SetBit(bit int, value bool) []Event {
	if s.EventStatus[bit] == value {
		return nil
	}
	s.EventStatus[bit] = value
	enabled := s.AssertEventEnabled[bit]
	if !value {
		enabled = s.DeassertEventEnabled[bit]
	}
	if !enabled {
		return nil
	}
	return []Event{{Assert: value, Offset: byte(bit)}}
}

// GetHysteresis implements "Get Sensor Hysteresis".
func (s *Sensor) GetHysteresis() (byte, []byte) {
	if s.HysteresisSupport != SupportSettable && s.HysteresisSupport != SupportReadable {
		return ipmicc.InvalidCmd, nil
	}
	return ipmicc.OK, []byte{s.PositiveHysteresis, s.NegativeHysteresis}
}

// SetHysteresis implements "Set Sensor Hysteresis".
func (s *Sensor) SetHysteresis(positive, negative byte) byte {
	if s.HysteresisSupport != SupportSettable {
		return ipmicc.InvalidCmd
	}
	s.PositiveHysteresis = positive
	s.NegativeHysteresis = negative
	return ipmicc.OK
}

// GetThresholds implements "Get Sensor Thresholds".
func (s *Sensor) GetThresholds() (byte, []byte) {
	if s.EventReadingCode != ThresholdEventReadingCode {
		return ipmicc.InvalidCmd, nil
	}
	if s.ThresholdSupport != SupportSettable && s.ThresholdSupport != SupportReadable {
		return ipmicc.InvalidCmd, nil
	}
	resp := make([]byte, 1+NumThresholds)
	for i := 0; i < NumThresholds; i++ {
		if s.ThresholdSupported[i] {
			resp[0] |= 1 << i
		}
		resp[1+i] = s.Thresholds[i]
	}
	return ipmicc.OK, resp
}

// SetThresholds implements "Set Sensor Thresholds". mask selects which of
// the six thresholds to update (bit i -> Thresholds[i]); only slots whose
// per-sensor ThresholdSupported bit is set may be written. After a
// successful set, threshold checking is re-run.
func (s *Sensor) SetThresholds(mask byte, values [NumThresholds]byte) (byte, []Event) {
	if s.EventReadingCode != ThresholdEventReadingCode {
		return ipmicc.InvalidCmd, nil
	}
	if s.ThresholdSupport != SupportSettable {
		return ipmicc.InvalidCmd, nil
	}
	for i := 0; i < NumThresholds; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		if !s.ThresholdSupported[i] {
			return ipmicc.InvalidDataField, nil
		}
	}
	for i := 0; i < NumThresholds; i++ {
		if mask&(1<<i) != 0 {
			s.Thresholds[i] = values[i]
		}
	}
	return ipmicc.OK, s.checkThresholds()
}

// Event-enable op field values (spec.md §4.5).
const (
	eventEnableOpGlobalOnly = 0
	eventEnableOpEnableSelected = 1
	eventEnableOpDisableSelected = 2
)

// GetEventEnable implements "Get Sensor Event Enable".
func (s *Sensor) GetEventEnable() (byte, []byte) {
	if s.EventSupport == EventSupportNone {
		return ipmicc.InvalidCmd, nil
	}
	resp := make([]byte, 7)
	flags := byte(0)
	if s.EventsEnabled {
		flags |= 1 << 7
	}
	if s.ScanningEnabled {
		flags |= 1 << 6
	}
	resp[0] = flags
	for i := 0; i < NumEventBits; i++ {
		if s.AssertEventEnabled[i] {
			resp[1+i/8] |= 1 << (i % 8)
		}
		if s.DeassertEventEnabled[i] {
			resp[4+i/8] |= 1 << (i % 8)
		}
	}
	return ipmicc.OK, resp
}

// SetEventEnable implements "Set Sensor Event Enable". flagsByte carries
// events_enabled (bit7) and scanning_enabled (bit6) in its upper bits and
// the op code in bits 4-5; assertBytes/deassertBytes are the 3-byte
// per-bit masks used when op selects individual bits.
func (s *Sensor) SetEventEnable(flagsByte byte, assertBytes, deassertBytes [3]byte) byte {
	if s.EventSupport == EventSupportNone {
		return ipmicc.InvalidCmd
	}
	op := (flagsByte >> 4) & 0x03
	if s.EventSupport == EventSupportEntireSensor && op != eventEnableOpGlobalOnly {
		return ipmicc.InvalidCmd
	}
	if op == 3 {
		return ipmicc.InvalidDataField
	}
	s.EventsEnabled = flagsByte&(1<<7) != 0
	s.ScanningEnabled = flagsByte&(1<<6) != 0
	switch op {
	case eventEnableOpEnableSelected:
		for i := 0; i < NumEventBits; i++ {
			if assertBytes[i/8]&(1<<(i%8)) != 0 {
				s.AssertEventEnabled[i] = true
			}
			if deassertBytes[i/8]&(1<<(i%8)) != 0 {
				s.DeassertEventEnabled[i] = true
			}
		}
	case eventEnableOpDisableSelected:
		for i := 0; i < NumEventBits; i++ {
			if assertBytes[i/8]&(1<<(i%8)) != 0 {
				s.AssertEventEnabled[i] = false
			}
			if deassertBytes[i/8]&(1<<(i%8)) != 0 {
				s.DeassertEventEnabled[i] = false
			}
		}
	}
	return ipmicc.OK
}

// GetReading implements "Get Sensor Reading".
func (s *Sensor) GetReading() (byte, []byte) {
	resp := make([]byte, 4)
	resp[0] = s.Value
	flags := byte(0)
	if s.EventsEnabled {
		flags |= 1 << 7
	}
	if s.ScanningEnabled {
		flags |= 1 << 6
	}
	resp[1] = flags
	for i := 0; i < NumEventBits; i++ {
		if s.EventStatus[i] {
			resp[2+i/8] |= 1 << (i % 8)
		}
	}
	return ipmicc.OK, resp
}

// GetType implements "Get Sensor Type".
func (s *Sensor) GetType() (byte, []byte) {
	return ipmicc.OK, []byte{s.SensorType, s.EventReadingCode}
}
