package sensor

import "testing"

func newThresholdSensor() *Sensor {
	s := New(0, 1, 0x01, ThresholdEventReadingCode)
	s.ThresholdSupport = SupportSettable
	s.HysteresisSupport = SupportSettable
	// Only the slots the tests exercise are supported: a supported upper
	// threshold left at 0 would assert on every reading.
	s.ThresholdSupported[LowerCritical] = true
	s.ThresholdSupported[UpperCritical] = true
	for i := range s.AssertEventEnabled {
		s.AssertEventEnabled[i] = true
		s.DeassertEventEnabled[i] = true
	}
	s.Thresholds[UpperCritical] = 80
	s.NegativeHysteresis = 2
	s.PositiveHysteresis = 2
	return s
}

func TestUpperCriticalAssertMatchesScenario(t *testing.T) {
	s := newThresholdSensor()
	events := s.SetValue(85)
	if len(events) != 1 {
		t.Fatalf("events = %v, want 1", events)
	}
	e := events[0]
	if !e.Assert || e.Offset != 0x53 || e.Data2 != 85 || e.Data3 != 80 {
		t.Fatalf("event = %+v, want assert offset 0x53 value 85 threshold 80", e)
	}
	if !s.EventStatus[UpperCritical] {
		t.Fatalf("event_status not set after assert")
	}
}

func TestUpperCriticalDeassertRequiresHysteresisMargin(t *testing.T) {
	s := newThresholdSensor()
	s.SetValue(85)

	if events := s.SetValue(79); len(events) != 0 {
		t.Fatalf("events = %v, want none (within hysteresis margin)", events)
	}
	if !s.EventStatus[UpperCritical] {
		t.Fatalf("event_status cleared despite being within hysteresis band")
	}

	events := s.SetValue(77)
	if len(events) != 1 || events[0].Assert {
		t.Fatalf("events = %v, want single deassert", events)
	}
	if s.EventStatus[UpperCritical] {
		t.Fatalf("event_status still set after deassert")
	}
}

func TestLowerThresholdAssertAndDeassert(t *testing.T) {
	s := newThresholdSensor()
	s.Thresholds[LowerCritical] = 20
	s.NegativeHysteresis = 3

	events := s.SetValue(20)
	if len(events) != 1 || !events[0].Assert || events[0].Offset != 0x52 {
		t.Fatalf("events = %v, want assert offset 0x52", events)
	}

	if events := s.SetValue(22); len(events) != 0 {
		t.Fatalf("events = %v, want none (within margin)", events)
	}
	events = s.SetValue(24)
	if len(events) != 1 || events[0].Assert {
		t.Fatalf("events = %v, want deassert", events)
	}
}

func TestEventSuppressedWhenDisabled(t *testing.T) {
	s := newThresholdSensor()
	s.AssertEventEnabled[UpperCritical] = false
	events := s.SetValue(85)
	if len(events) != 0 {
		t.Fatalf("events = %v, want none (assert disabled)", events)
	}
	if !s.EventStatus[UpperCritical] {
		t.Fatalf("event_status should still track the raw condition")
	}
}

func TestSetBitTogglesOnChangeOnly(t *testing.T) {
	s := New(0, 2, 0x05, 0x6F)
	s.AssertEventEnabled[3] = true
	s.DeassertEventEnabled[3] = true

	events := s.SetBit(3, true)
	if len(events) != 1 || !events[0].Assert || events[0].Offset != 3 {
		t.Fatalf("events = %v, want single assert offset 3", events)
	}
	if events := s.SetBit(3, true); len(events) != 0 {
		t.Fatalf("events = %v, want none (no change)", events)
	}
	events = s.SetBit(3, false)
	if len(events) != 1 || events[0].Assert {
		t.Fatalf("events = %v, want single deassert", events)
	}
}

func TestGetSetThresholdsRejectsNonThresholdSensor(t *testing.T) {
	s := New(0, 3, 0x05, 0x6F)
	if cc, _ := s.GetThresholds(); cc == 0 {
		t.Fatalf("GetThresholds should fail for non-threshold sensor")
	}
	var vals [NumThresholds]byte
	if cc, _ := s.SetThresholds(0x01, vals); cc == 0 {
		t.Fatalf("SetThresholds should fail for non-threshold sensor")
	}
}

func TestSetThresholdsRejectsUnsupportedSlot(t *testing.T) {
	s := newThresholdSensor()
	s.ThresholdSupported[LowerNonRecoverable] = false
	var vals [NumThresholds]byte
	cc, events := s.SetThresholds(1<<LowerNonRecoverable, vals)
	if cc == 0 || events != nil {
		t.Fatalf("SetThresholds should reject unsupported slot, got cc=%#x events=%v", cc, events)
	}
}

func TestGetReadingReflectsStatusBits(t *testing.T) {
	s := newThresholdSensor()
	s.SetValue(85)
	cc, resp := s.GetReading()
	if cc != 0 {
		t.Fatalf("GetReading cc = %#x", cc)
	}
	if resp[0] != 85 {
		t.Fatalf("value = %d, want 85", resp[0])
	}
	bit := UpperCritical
	if resp[2+bit/8]&(1<<(bit%8)) == 0 {
		t.Fatalf("status bitmap missing upper-critical bit")
	}
}

func TestSetEventEnableSelectedBits(t *testing.T) {
	s := New(0, 4, 0x02, 0x6F)
	s.EventSupport = EventSupportPerEvent
	cc := s.SetEventEnable(1<<7|eventEnableOpEnableSelected<<4, [3]byte{0x01, 0, 0}, [3]byte{0x01, 0, 0})
	if cc != 0 {
		t.Fatalf("SetEventEnable cc = %#x", cc)
	}
	if !s.EventsEnabled || !s.AssertEventEnabled[0] || !s.DeassertEventEnabled[0] {
		t.Fatalf("enable bits not applied: %+v", s)
	}
}
