// Package engine implements the top-level request dispatcher: netfn/cmd
// routing, SEND_MSG encapsulation, and the uniform completion-code
// handling spec.md §4.6 describes.
package engine

import (
	"context"

	"github.com/allanliu/openipmi/ipmi/codec"
	"github.com/allanliu/openipmi/ipmi/emulator"
	"github.com/allanliu/openipmi/ipmi/ipmicc"
	"github.com/allanliu/openipmi/ipmi/mc"
	"github.com/allanliu/openipmi/ipmi/sdr"
	"github.com/allanliu/openipmi/ipmi/sensor"
)

// Dispatcher is the engine's single entry point, bound to one emulator
// domain (one BMC and its satellite MCs).
type Dispatcher struct {
	Emulator *emulator.Emulator
}

// New creates a dispatcher over the given emulator domain.
func New(e *emulator.Emulator) *Dispatcher {
	return &Dispatcher{Emulator: e}
}

// maxResponseData bounds response buffer capacity passed to FRU reads;
// the emulator has no real transport-level MTU, so a generous constant
// stands in (spec.md leaves the concrete buffer size to the transport).
const maxResponseData = 255

// HandleMessage is the engine's only entry point. ctx is accepted so the
// surrounding transport can attach deadlines to I/O around this call; the
// dispatch itself never blocks or checks it, per spec.md §5.
func (d *Dispatcher) HandleMessage(ctx context.Context, dstLUN byte, request []byte) []byte {
	if len(request) < 2 {
		return []byte{ipmicc.RequestDataLengthInvalid}
	}
	netfn := request[0] >> 2
	cmd := request[1]
	data := request[2:]

	if netfn == ipmicc.NetfnApp && cmd == ipmicc.CmdSendMsg {
		return d.handleSendMsg(data)
	}

	target := d.Emulator.BMC()
	if target == nil {
		return []byte{ipmicc.UnknownErr}
	}
	cc, resp := d.route(target, dstLUN, netfn, cmd, data)
	return append([]byte{cc}, resp...)
}

func (d *Dispatcher) route(target *mc.MC, lun, netfn, cmd byte, data []byte) (byte, []byte) {
	switch netfn {
	case ipmicc.NetfnApp:
		return d.routeApp(target, cmd, data)
	case ipmicc.NetfnSensorEvent:
		return d.routeSensorEvent(target, lun, cmd, data)
	case ipmicc.NetfnStorage:
		return d.routeStorage(target, lun, cmd, data)
	case ipmicc.NetfnOEM0:
		return d.routeOEM0(target, cmd, data)
	default:
		return ipmicc.InvalidCmd, nil
	}
}

func (d *Dispatcher) routeApp(target *mc.MC, cmd byte, data []byte) (byte, []byte) {
	switch cmd {
	case ipmicc.CmdGetDeviceID:
		return target.GetDeviceID()
	case ipmicc.CmdSetEventReceiver:
		if target.Identity.DeviceSupport&ipmicc.DeviceSupportIPMBEventGen == 0 {
			return ipmicc.InvalidCmd, nil
		}
		if len(data) < 2 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		return target.SetEventReceiver(data[0]&ipmicc.SlaveAddressMask, data[1]&0x03), nil
	case ipmicc.CmdGetEventReceiver:
		if target.Identity.DeviceSupport&ipmicc.DeviceSupportIPMBEventGen == 0 {
			return ipmicc.InvalidCmd, nil
		}
		return target.GetEventReceiver()
	default:
		return ipmicc.InvalidCmd, nil
	}
}

func (d *Dispatcher) routeOEM0(target *mc.MC, cmd byte, data []byte) (byte, []byte) {
	switch cmd {
	case ipmicc.CmdGetPower:
		return target.GetPower()
	case ipmicc.CmdSetPower:
		if len(data) < 1 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		return target.SetPower(data[0], true), nil
	default:
		return ipmicc.InvalidCmd, nil
	}
}

func (d *Dispatcher) routeSensorEvent(target *mc.MC, lun, cmd byte, data []byte) (byte, []byte) {
	if len(data) < 1 {
		return ipmicc.RequestDataLengthInvalid, nil
	}
	table := target.Sensors[lun&0x03]
	s, ok := table.Get(lun&0x03, data[0])
	if !ok {
		return ipmicc.NotPresent, nil
	}
	rest := data[1:]
	switch cmd {
	case ipmicc.CmdGetSensorReading:
		return s.GetReading()
	case ipmicc.CmdGetSensorType:
		return s.GetType()
	case ipmicc.CmdGetSensorHysteresis:
		return s.GetHysteresis()
	case ipmicc.CmdSetSensorHysteresis:
		if len(rest) < 2 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		return s.SetHysteresis(rest[0], rest[1]), nil
	case ipmicc.CmdGetSensorThresholds:
		return s.GetThresholds()
	case ipmicc.CmdSetSensorThresholds:
		if len(rest) < 1+sensor.NumThresholds {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		var vals [sensor.NumThresholds]byte
		copy(vals[:], rest[1:1+sensor.NumThresholds])
		cc, events := s.SetThresholds(rest[0], vals)
		if cc == ipmicc.OK {
			target.DeliverEvents(lun&0x03, s, events)
		}
		return cc, nil
	case ipmicc.CmdGetSensorEventEnable:
		return s.GetEventEnable()
	case ipmicc.CmdSetSensorEventEnable:
		if len(rest) < 7 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		var assertBytes, deassertBytes [3]byte
		copy(assertBytes[:], rest[1:4])
		copy(deassertBytes[:], rest[4:7])
		return s.SetEventEnable(rest[0], assertBytes, deassertBytes), nil
	default:
		return ipmicc.InvalidCmd, nil
	}
}

func (d *Dispatcher) sdrStore(target *mc.MC, lun byte) *sdr.Store {
	if lun == 0 {
		return target.MainSDR
	}
	return target.DeviceSDR[lun&0x03]
}

func (d *Dispatcher) routeStorage(target *mc.MC, lun, cmd byte, data []byte) (byte, []byte) {
	switch cmd {
	case ipmicc.CmdGetFRUAreaInfo:
		if len(data) < 1 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		return target.FRU.GetAreaInfo(data[0])
	case ipmicc.CmdReadFRUData:
		if len(data) < 4 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		offset := int(codec.GetU16LE(data, 1))
		count := int(data[3])
		return target.FRU.Read(data[0], offset, count, maxResponseData)
	case ipmicc.CmdWriteFRUData:
		if len(data) < 3 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		offset := int(codec.GetU16LE(data, 1))
		return target.FRU.Write(data[0], offset, data[3:])

	case ipmicc.CmdGetSELInfo:
		return target.SEL.GetInfo()
	case ipmicc.CmdGetSELAllocInfo:
		return target.SEL.GetAllocInfo()
	case ipmicc.CmdReserveSEL:
		return target.SEL.Reserve()
	case ipmicc.CmdGetSELEntry:
		if len(data) < 6 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		reservation := codec.GetU16LE(data, 0)
		recordID := codec.GetU16LE(data, 2)
		return target.SEL.GetEntry(reservation, recordID, int(data[4]), int(data[5]))
	case ipmicc.CmdAddSELEntry:
		if target.Identity.DeviceSupport&ipmicc.DeviceSupportSEL == 0 {
			return ipmicc.InvalidCmd, nil
		}
		return target.SEL.AddEntry(data)
	case ipmicc.CmdDeleteSELEntry:
		if len(data) < 4 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		reservation := codec.GetU16LE(data, 0)
		recordID := codec.GetU16LE(data, 2)
		return target.SEL.DeleteEntry(reservation, recordID)
	case ipmicc.CmdClearSEL:
		return target.SEL.Clear(data)
	case ipmicc.CmdGetSELTime:
		return target.SEL.GetTime()
	case ipmicc.CmdSetSELTime:
		if len(data) < 4 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		return target.SEL.SetTime(codec.GetU32LE(data, 0)), nil

	case ipmicc.CmdGetSDRRepoInfo:
		return d.sdrStore(target, lun).GetInfo()
	case ipmicc.CmdGetSDRRepoAllocInfo:
		return d.sdrStore(target, lun).GetAllocInfo()
	case ipmicc.CmdReserveSDRRepo:
		return d.sdrStore(target, lun).Reserve()
	case ipmicc.CmdGetSDR:
		if len(data) < 6 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		reservation := codec.GetU16LE(data, 0)
		recordID := codec.GetU16LE(data, 2)
		return d.sdrStore(target, lun).GetEntry(reservation, recordID, int(data[4]), int(data[5]))
	case ipmicc.CmdAddSDR:
		return d.sdrStore(target, lun).Add(data)
	case ipmicc.CmdPartialAddSDR:
		if len(data) < 7 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		reservation := codec.GetU16LE(data, 0)
		recordIDIn := codec.GetU16LE(data, 2)
		offset := int(codec.GetU16LE(data, 4))
		progress := data[6]
		body := data[7:]
		cc, result := d.sdrStore(target, lun).PartialAdd(reservation, recordIDIn, offset, progress, body)
		if cc != ipmicc.OK {
			return cc, nil
		}
		resp := make([]byte, 2)
		codec.SetU16LE(resp, 0, result.RecordID)
		return cc, resp
	case ipmicc.CmdDeleteSDR:
		if len(data) < 4 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		reservation := codec.GetU16LE(data, 0)
		recordID := codec.GetU16LE(data, 2)
		return d.sdrStore(target, lun).DeleteEntry(reservation, recordID)
	case ipmicc.CmdClearSDRRepo:
		return d.sdrStore(target, lun).Clear(data)
	case ipmicc.CmdGetSDRRepoTime:
		return d.sdrStore(target, lun).GetTime()
	case ipmicc.CmdSetSDRRepoTime:
		if len(data) < 4 {
			return ipmicc.RequestDataLengthInvalid, nil
		}
		return d.sdrStore(target, lun).SetTime(codec.GetU32LE(data, 0)), nil
	case ipmicc.CmdEnterSDRUpdateMode:
		return d.sdrStore(target, lun).EnterUpdateMode(), nil
	case ipmicc.CmdExitSDRUpdateMode:
		return d.sdrStore(target, lun).ExitUpdateMode(), nil

	default:
		return ipmicc.InvalidCmd, nil
	}
}

// handleSendMsg implements the SEND_MSG encapsulation wrapper (spec.md
// §4.6, step 1): an IPMB bridging frame carrying an inner request for
// another MC on the bus.
func (d *Dispatcher) handleSendMsg(data []byte) []byte {
	if len(data) < 1 || data[0]&0x3F != 0 {
		return []byte{ipmicc.InvalidDataField}
	}
	rest := data[1:]
	if len(rest) > 0 && rest[0] == 0x00 {
		rest = rest[1:]
	}
	if len(rest) < 7 {
		return []byte{ipmicc.RequestDataLengthInvalid}
	}

	destSlave := rest[0]
	innerNetfnLun := rest[1]
	// rest[2] is the header's own checksum byte; rest[3] is the requester's
	// slave address, unused here since the reply is framed as the target
	// MC's own outbound message rather than a direct reply to a recorded
	// sender.
	seqLun := rest[4]
	cmd := rest[5]
	payload := rest[6 : len(rest)-1]

	innerNetfn := innerNetfnLun >> 2
	innerLun := innerNetfnLun & 0x03

	var innerResp []byte
	if target := d.Emulator.Get(destSlave); target == nil {
		innerResp = []byte{ipmicc.IPMBNak}
	} else {
		cc, body := d.route(target, innerLun, innerNetfn, cmd, payload)
		innerResp = append([]byte{cc}, body...)
	}

	return wrapIPMBResponse(d.Emulator.BMCSlaveAddress, destSlave, innerNetfn, innerLun, seqLun, cmd, innerResp)
}

// wrapIPMBResponse builds the 7-byte IPMB response header plus trailing
// checksum spec.md §4.6 step 4 describes, carrying innerResp as the
// encapsulated payload.
func wrapIPMBResponse(bmcSlave, respSlave, innerNetfn, innerLun, seqLun, cmd byte, innerResp []byte) []byte {
	rsNetfnLun := (innerNetfn|1)<<2 | innerLun
	header := make([]byte, 0, 7+len(innerResp)+1)
	header = append(header, ipmicc.OK, bmcSlave, rsNetfnLun)
	header = append(header, codec.Checksum([]byte{bmcSlave, rsNetfnLun}, 0))
	header = append(header, respSlave, (seqLun&0xFC)|(innerLun&0x03), cmd)
	header = append(header, innerResp...)
	return append(header, codec.Checksum(header, 0))
}
