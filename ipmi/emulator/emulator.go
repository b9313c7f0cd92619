// Package emulator owns the IPMB-address-indexed table of management
// controllers that make up one emulated system, and wires each MC's
// event-receiver resolution to the others.
package emulator

import (
	"fmt"

	"github.com/allanliu/openipmi/ipmi/mc"
)

// TableSize is the number of addressable IPMB slave address slots.
const TableSize = 128

// Emulator is the top-level emulated system: a BMC and zero or more
// satellite MCs, indexed by IPMB slave address.
type Emulator struct {
	BMCSlaveAddress byte
	mcs             [TableSize]*mc.MC
}

// New creates an emulator with no MCs installed yet.
func New(bmcSlaveAddress byte) *Emulator {
	return &Emulator{BMCSlaveAddress: bmcSlaveAddress}
}

// slotOf maps an IPMB slave address to its table slot. IPMB addresses are
// 7-bit values carried in the top 7 bits of the byte (bit 0 is the
// read/write bit in the wire protocol and is always 0 for a slave
// address), so shifting right by one yields a dense 0..127 index.
func slotOf(slave byte) int { return int(slave) >> 1 }

// Add installs m at its own SlaveAddress, replacing whatever MC was there
// before (spec.md's MC lifecycle: add, replace, destroy). It wires the
// MC's event-receiver resolver to this emulator's table.
func (e *Emulator) Add(m *mc.MC) error {
	if m.SlaveAddress&1 != 0 {
		return fmt.Errorf("emulator: slave address %#x is not even", m.SlaveAddress)
	}
	m.SetResolver(e.Get)
	e.mcs[slotOf(m.SlaveAddress)] = m
	return nil
}

// Remove destroys the MC at the given slave address, if any.
func (e *Emulator) Remove(slave byte) {
	e.mcs[slotOf(slave)] = nil
}

// Get resolves the MC at the given IPMB slave address, or nil.
func (e *Emulator) Get(slave byte) *mc.MC {
	return e.mcs[slotOf(slave)]
}

// BMC returns the management controller at the emulator's configured BMC
// slave address, or nil if none has been added there yet.
func (e *Emulator) BMC() *mc.MC {
	return e.Get(e.BMCSlaveAddress)
}
