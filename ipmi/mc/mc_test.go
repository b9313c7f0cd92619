package mc

import (
	"testing"

	"github.com/allanliu/openipmi/ipmi/sensor"
)

func wireResolver(all map[byte]*MC) {
	for _, m := range all {
		m.SetResolver(func(slave byte) *MC { return all[slave] })
	}
}

func TestGetDeviceIDRoundTrip(t *testing.T) {
	m := New(0x20)
	m.Identity = Identity{
		DeviceID:       0x01,
		FirmwareMajor:  0x02,
		FirmwareMinor:  0x10,
		IPMIVersion:    0x51,
		ManufacturerID: [3]byte{0x01, 0x02, 0x03},
		ProductID:      0x1234,
		DeviceSupport:  0b10000101,
	}
	cc, resp := m.GetDeviceID()
	if cc != 0 {
		t.Fatalf("GetDeviceID cc = %#x", cc)
	}
	if resp[0] != 0x01 || resp[4] != 0x51 || resp[5] != 0b10000101 {
		t.Fatalf("resp = %x", resp)
	}
}

func TestSensorEventDeliveredToResolvedReceiver(t *testing.T) {
	source := New(0x20)
	receiver := New(0x10)
	receiver.SEL.Enable(16, 0)
	all := map[byte]*MC{0x20: source, 0x10: receiver}
	wireResolver(all)

	source.EventReceiverSlave = 0x10
	source.EventReceiverLUN = 0

	s := sensor.New(0, 5, 0x01, sensor.ThresholdEventReadingCode)
	s.EventsEnabled = true
	s.ThresholdSupport = sensor.SupportSettable
	s.ThresholdSupported[sensor.UpperCritical] = true
	s.Thresholds[sensor.UpperCritical] = 80
	s.AssertEventEnabled[sensor.UpperCritical] = true
	source.Sensors[0].Add(s)

	cc := source.SetSensorValue(0, 5, 85, true)
	if cc != 0 {
		t.Fatalf("SetSensorValue cc = %#x", cc)
	}
	if receiver.SEL.Count() != 1 {
		t.Fatalf("receiver SEL count = %d, want 1", receiver.SEL.Count())
	}
}

func TestSensorEventSuppressedWithoutReceiver(t *testing.T) {
	source := New(0x20)
	s := sensor.New(0, 5, 0x01, sensor.ThresholdEventReadingCode)
	s.EventsEnabled = true
	s.ThresholdSupport = sensor.SupportSettable
	s.ThresholdSupported[sensor.UpperCritical] = true
	s.Thresholds[sensor.UpperCritical] = 80
	s.AssertEventEnabled[sensor.UpperCritical] = true
	source.Sensors[0].Add(s)

	// No event receiver configured and no resolver wired: must not panic
	// and must not deliver anything.
	cc := source.SetSensorValue(0, 5, 85, true)
	if cc != 0 {
		t.Fatalf("SetSensorValue cc = %#x", cc)
	}
}

func TestSetEventReceiverThenGet(t *testing.T) {
	m := New(0x20)
	if cc := m.SetEventReceiver(0x10, 2); cc != 0 {
		t.Fatalf("SetEventReceiver cc = %#x", cc)
	}
	_, resp := m.GetEventReceiver()
	if resp[0] != 0x10 || resp[1] != 2 {
		t.Fatalf("GetEventReceiver = %v", resp)
	}
}

func TestSetPowerRaisesOEMControlEvent(t *testing.T) {
	source := New(0x30)
	receiver := New(0x10)
	receiver.SEL.Enable(16, 0)
	all := map[byte]*MC{0x30: source, 0x10: receiver}
	wireResolver(all)
	source.EventReceiverSlave = 0x10

	if cc := source.SetPower(1, true); cc != 0 {
		t.Fatalf("SetPower cc = %#x", cc)
	}
	if receiver.SEL.Count() != 1 {
		t.Fatalf("receiver SEL count = %d, want 1", receiver.SEL.Count())
	}
	entry := receiver.SEL.Entries()[0]
	if entry.RecordType() != 0xC0 {
		t.Fatalf("record type = %#x, want 0xC0", entry.RecordType())
	}
	if entry[7] != 0x20 {
		t.Fatalf("generator slave = %#x, want 0x20", entry[7])
	}
	if entry[13] != 1 {
		t.Fatalf("power value byte = %#x, want 1", entry[13])
	}

	// Re-setting the same value must not raise a second event.
	if cc := source.SetPower(1, true); cc != 0 {
		t.Fatalf("SetPower cc = %#x", cc)
	}
	if receiver.SEL.Count() != 1 {
		t.Fatalf("receiver SEL count = %d, want 1 (no duplicate event)", receiver.SEL.Count())
	}

	if cc, resp := source.GetPower(); cc != 0 || resp[0] != 1 {
		t.Fatalf("GetPower = %#x %v", cc, resp)
	}
}
