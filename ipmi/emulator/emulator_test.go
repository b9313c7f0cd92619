package emulator

import (
	"testing"

	"github.com/allanliu/openipmi/ipmi/mc"
	"github.com/allanliu/openipmi/ipmi/sensor"
)

func TestAddGetReplaceDestroy(t *testing.T) {
	e := New(0x20)
	bmc := mc.New(0x20)
	if err := e.Add(bmc); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if e.Get(0x20) != bmc {
		t.Fatalf("Get did not return the added MC")
	}
	if e.BMC() != bmc {
		t.Fatalf("BMC() did not return the added MC")
	}

	replacement := mc.New(0x20)
	e.Add(replacement)
	if e.Get(0x20) != replacement {
		t.Fatalf("Add did not replace the existing MC")
	}

	e.Remove(0x20)
	if e.Get(0x20) != nil {
		t.Fatalf("Remove left the MC installed")
	}
}

func TestAddRejectsOddSlaveAddress(t *testing.T) {
	e := New(0x20)
	if err := e.Add(mc.New(0x21)); err == nil {
		t.Fatalf("Add should reject an odd slave address")
	}
}

func TestAddedMCResolvesOtherMCsByAddress(t *testing.T) {
	e := New(0x20)
	bmc := mc.New(0x20)
	bmc.SEL.Enable(16, 0)
	sat := mc.New(0x30)
	e.Add(bmc)
	e.Add(sat)
	sat.EventReceiverSlave = 0x20

	s := sensor.New(0, 1, 0x01, sensor.ThresholdEventReadingCode)
	s.EventsEnabled = true
	s.ThresholdSupport = sensor.SupportSettable
	s.ThresholdSupported[sensor.UpperCritical] = true
	s.Thresholds[sensor.UpperCritical] = 50
	s.AssertEventEnabled[sensor.UpperCritical] = true
	sat.Sensors[0].Add(s)

	if cc := sat.SetSensorValue(0, 1, 60, true); cc != 0 {
		t.Fatalf("SetSensorValue cc = %#x", cc)
	}
	if bmc.SEL.Count() != 1 {
		t.Fatalf("bmc SEL count = %d, want 1 (cross-MC delivery via emulator resolver)", bmc.SEL.Count())
	}
}
