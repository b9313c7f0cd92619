// Package mc models one Management Controller: its identity, its SEL,
// SDR and FRU repositories, its per-LUN sensor tables, and the event
// receiver resolution used to deliver sensor events across MCs.
package mc

import (
	"github.com/allanliu/openipmi/ipmi/codec"
	"github.com/allanliu/openipmi/ipmi/fru"
	"github.com/allanliu/openipmi/ipmi/ipmicc"
	"github.com/allanliu/openipmi/ipmi/sdr"
	"github.com/allanliu/openipmi/ipmi/sel"
	"github.com/allanliu/openipmi/ipmi/sensor"
)

// NumLUNs is the number of IPMB logical units an MC exposes (0-3).
const NumLUNs = 4

const systemEventRecordType = 0x02
const eventMessageRevision = 0x04

// oemPowerEventSlave is the fixed generator slave address spec.md §4.7
// pins down for the OEM0 power-change event, independent of the source
// MC's own slave address.
const oemPowerEventSlave = 0x20

// Identity holds the static fields returned by Get Device ID.
type Identity struct {
	DeviceID       byte
	DeviceRevision byte
	FirmwareMajor  byte
	FirmwareMinor  byte
	IPMIVersion    byte
	ManufacturerID [3]byte
	ProductID      uint16
	DeviceSupport  byte
}

// MC is one emulated management controller, addressed on the IPMB by a
// slave address and aggregating the device-model repositories spec.md §3
// groups under it.
type MC struct {
	Identity     Identity
	SlaveAddress byte

	EventReceiverSlave byte
	EventReceiverLUN   byte

	SEL       *sel.Store
	MainSDR   *sdr.Store
	DeviceSDR [NumLUNs]*sdr.Store
	FRU       *fru.Store
	Sensors   [NumLUNs]*sensor.Table

	PowerValue              byte
	DynamicSensorPopulation bool

	// resolve looks up another MC on the same IPMB by slave address; the
	// emulator installs it via SetResolver when the MC is added, so this
	// package never imports the emulator.
	resolve func(slave byte) *MC
}

// New creates an MC with empty repositories for every LUN.
func New(slaveAddress byte) *MC {
	m := &MC{
		SlaveAddress: slaveAddress,
		SEL:          sel.New(),
		MainSDR:      sdr.New(0),
		FRU:          fru.New(),
	}
	for i := range m.DeviceSDR {
		m.DeviceSDR[i] = sdr.New(0)
		m.Sensors[i] = sensor.NewTable()
	}
	return m
}

// SetResolver installs the event-receiver lookup callback.
func (m *MC) SetResolver(f func(slave byte) *MC) { m.resolve = f }

// GetDeviceID implements "Get Device ID".
func (m *MC) GetDeviceID() (byte, []byte) {
	resp := make([]byte, 11)
	resp[0] = m.Identity.DeviceID
	resp[1] = m.Identity.DeviceRevision
	resp[2] = m.Identity.FirmwareMajor
	resp[3] = m.Identity.FirmwareMinor
	resp[4] = m.Identity.IPMIVersion
	resp[5] = m.Identity.DeviceSupport
	copy(resp[6:9], m.Identity.ManufacturerID[:])
	codec.SetU16LE(resp, 9, m.Identity.ProductID)
	return ipmicc.OK, resp
}

// GetEventReceiver implements "Get Event Receiver".
func (m *MC) GetEventReceiver() (byte, []byte) {
	return ipmicc.OK, []byte{m.EventReceiverSlave, m.EventReceiverLUN}
}

// SetEventReceiver implements "Set Event Receiver".
func (m *MC) SetEventReceiver(slave, lun byte) byte {
	m.EventReceiverSlave = slave
	m.EventReceiverLUN = lun & 0x03
	return ipmicc.OK
}

// raiseSensorEvent delivers a sensor event to the configured receiver,
// gated on event_receiver being set, the sensor's events_enabled, and the
// caller having requested event generation (spec.md §4.5).
func (m *MC) raiseSensorEvent(lun byte, s *sensor.Sensor, ev sensor.Event, genEvent bool) {
	if !genEvent || !s.EventsEnabled || m.EventReceiverSlave == 0 || m.resolve == nil {
		return
	}
	target := m.resolve(m.EventReceiverSlave)
	if target == nil {
		return
	}
	dir := byte(0)
	if !ev.Assert {
		dir = 1
	}
	dirAndType := dir<<7 | s.EventReadingCode
	target.SEL.AddSystemEvent(systemEventRecordType, m.SlaveAddress, lun, eventMessageRevision,
		s.SensorType, s.Num, dirAndType, ev.Offset, ev.Data2, ev.Data3)
}

// DeliverEvents routes a batch of sensor events (as produced directly by
// sensor.Sensor methods invoked from wire commands, e.g. Set Sensor
// Thresholds) through the same gating SetSensorValue uses.
func (m *MC) DeliverEvents(lun byte, s *sensor.Sensor, events []sensor.Event) {
	for _, ev := range events {
		m.raiseSensorEvent(lun, s, ev, true)
	}
}

// SetSensorValue implements "Set Sensor Reading" (injection path): it
// updates the sensor's value, runs threshold evaluation and delivers any
// resulting events when genEvent is set.
func (m *MC) SetSensorValue(lun, num, value byte, genEvent bool) byte {
	s, ok := m.Sensors[lun].Get(lun, num)
	if !ok {
		return ipmicc.NotPresent
	}
	for _, ev := range s.SetValue(value) {
		m.raiseSensorEvent(lun, s, ev, genEvent)
	}
	return ipmicc.OK
}

// SetSensorBit implements discrete set_bit injection (spec.md §4.5).
func (m *MC) SetSensorBit(lun, num byte, bit int, value, genEvent bool) byte {
	s, ok := m.Sensors[lun].Get(lun, num)
	if !ok {
		return ipmicc.NotPresent
	}
	for _, ev := range s.SetBit(bit, value) {
		m.raiseSensorEvent(lun, s, ev, genEvent)
	}
	return ipmicc.OK
}

// GetPower implements the OEM0 "Get Power" command (spec.md §4.7).
func (m *MC) GetPower() (byte, []byte) {
	return ipmicc.OK, []byte{m.PowerValue}
}

// SetPower implements the OEM0 "Set Power" command (spec.md §4.7). On a
// changed value, with gen_event requested and an event receiver
// configured, it synthesizes a control-style OEM event (record type
// 0xC0) into the receiver's SEL: source slave fixed at 0x20, sensor
// number 0, offset fields 0, and the new power value as the record's
// first data byte.
func (m *MC) SetPower(value byte, genEvent bool) byte {
	changed := m.PowerValue != value
	m.PowerValue = value
	if changed && genEvent && m.EventReceiverSlave != 0 && m.resolve != nil {
		if target := m.resolve(m.EventReceiverSlave); target != nil {
			target.SEL.AddSystemEvent(ipmicc.OEMControlRecordType, oemPowerEventSlave, 0, 0, 0, 0, 0, value, 0, 0)
		}
	}
	return ipmicc.OK
}
