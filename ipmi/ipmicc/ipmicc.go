// Package ipmicc holds the wire constants that must be preserved exactly
// across the IPMI command families this module implements: completion
// codes, network function codes, and the small set of magic values the
// spec pins down byte-for-byte.
package ipmicc

// Completion codes, placed at response byte 0.
const (
	OK                           = 0x00
	CmdSpecificLengthInvalid     = 0x80
	IPMBNak                      = 0x83
	InvalidCmd                   = 0xC1
	OutOfSpace                   = 0xC4
	InvalidReservation           = 0xC5
	RequestDataLengthInvalid     = 0xC7
	ParameterOutOfRange          = 0xC9
	RequestedDataLengthExceeded  = 0xCA
	NotPresent                   = 0xCB
	InvalidDataField             = 0xCC
	NotSupportedInPresentState   = 0xD5
	UnknownErr                   = 0xFF
)

// Network function codes (top 6 bits of the request's first byte, shifted
// left by 2 on the wire).
const (
	NetfnChassis      = 0x00
	NetfnApp          = 0x06
	NetfnSensorEvent  = 0x04
	NetfnStorage      = 0x0A
	NetfnTransport    = 0x0C
	NetfnOEM0         = 0x30
)

// App netfn commands used by the dispatcher (spec.md §4.6).
const (
	CmdGetDeviceID      = 0x01
	CmdSetEventReceiver = 0x02
	CmdGetEventReceiver = 0x03
	CmdSendMsg          = 0x34
)

// Sensor/Event netfn commands used by the dispatcher (spec.md §4.5).
const (
	CmdGetSensorReading     = 0x2D
	CmdGetSensorType        = 0x2F
	CmdSetSensorHysteresis  = 0x24
	CmdGetSensorHysteresis  = 0x25
	CmdSetSensorThresholds  = 0x26
	CmdGetSensorThresholds  = 0x27
	CmdSetSensorEventEnable = 0x28
	CmdGetSensorEventEnable = 0x29
)

// Storage netfn commands used by the dispatcher (spec.md §4.2-§4.4).
const (
	CmdGetFRUAreaInfo = 0x10
	CmdReadFRUData    = 0x11
	CmdWriteFRUData   = 0x12

	CmdGetSDRRepoInfo      = 0x20
	CmdGetSDRRepoAllocInfo = 0x21
	CmdReserveSDRRepo      = 0x22
	CmdGetSDR              = 0x23
	CmdAddSDR              = 0x24
	CmdPartialAddSDR       = 0x25
	CmdDeleteSDR           = 0x26
	CmdClearSDRRepo        = 0x27
	CmdGetSDRRepoTime      = 0x28
	CmdSetSDRRepoTime      = 0x29
	CmdEnterSDRUpdateMode  = 0x2A
	CmdExitSDRUpdateMode   = 0x2B

	CmdGetSELInfo      = 0x40
	CmdGetSELAllocInfo = 0x41
	CmdReserveSEL      = 0x42
	CmdGetSELEntry     = 0x43
	CmdAddSELEntry     = 0x44
	CmdDeleteSELEntry  = 0x46
	CmdClearSEL        = 0x47
	CmdGetSELTime      = 0x48
	CmdSetSELTime      = 0x49
)

// OEM0 netfn commands (§4.7).
const (
	CmdSetPower = 0x01
	CmdGetPower = 0x02
)

// IPMIVersion is the fixed version byte (0x51) returned by Get Device ID
// and SEL/SDR "get info" commands.
const IPMIVersion = 0x51

// OEMRecordTypeBoundary is the record_type at and above which SEL/SDR
// entries are OEM records carrying a caller-supplied, non-rewritten body.
const OEMRecordTypeBoundary = 0xE0

// OEMControlRecordType is used for the synthetic power-change event in
// §4.7.
const OEMControlRecordType = 0xC0

// SlaveAddressMask masks an event-receiver slave address byte to an even
// IPMB address (bit 0 is always 0).
const SlaveAddressMask = 0xFE

// Device support bitfield bits (§4.6).
const (
	DeviceSupportSensor        = 1 << 0
	DeviceSupportSDRRepository = 1 << 1
	DeviceSupportSEL           = 1 << 2
	DeviceSupportFRU           = 1 << 3
	DeviceSupportIPMBEventRecv = 1 << 4
	DeviceSupportIPMBEventGen  = 1 << 5
	DeviceSupportBridge        = 1 << 6
	DeviceSupportChassis       = 1 << 7
)

// SEL/SDR repository support flag bits.
const (
	SupportGetAllocInfo = 1 << 0
	SupportReserve      = 1 << 1
	SupportDelete       = 1 << 3
	SupportOverflow     = 1 << 7

	// EnableSupportMask is the mask applied to the flags byte given to
	// Enable (spec.md §4.2): delete, reserve and get-alloc-info.
	EnableSupportMask = 0b1011
)

// SDR modal bits (flags bits 5-6).
const (
	ModalUnspecified  = 0b00 << 5
	ModalNonModalOnly = 0b01 << 5
	ModalModalOnly    = 0b10 << 5
	ModalBoth         = 0b11 << 5
	ModalMask         = 0b11 << 5
)

// ClearMagic is the 3-byte ASCII prefix required by SEL/SDR Clear.
var ClearMagic = [3]byte{'C', 'L', 'R'}

const (
	ClearOpInitiate = 0x00
	ClearOpGetStatus = 0xAA
	ClearComplete    = 0x01
)
