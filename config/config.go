// Package config loads a CBOR-encoded emulator configuration document and
// applies it to an emulator.Emulator, implementing the Configuration API
// spec.md §6 describes as the engine's only mutation surface outside the
// wire protocol itself.
package config

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/allanliu/openipmi/ipmi/emulator"
	"github.com/allanliu/openipmi/ipmi/fru"
	"github.com/allanliu/openipmi/ipmi/ipmicc"
	"github.com/allanliu/openipmi/ipmi/mc"
	"github.com/allanliu/openipmi/ipmi/sdr"
	"github.com/allanliu/openipmi/ipmi/sensor"
)

// Document is the top-level shape of a configuration file: the BMC's own
// slave address plus the set of MCs to populate (the BMC is simply the MC
// whose IPMB address matches BMCSlaveAddress).
type Document struct {
	BMCSlaveAddress byte         `cbor:"bmc_slave_address"`
	MCs             []MCConfig   `cbor:"mcs"`
}

// MCConfig describes one management controller and its repositories.
type MCConfig struct {
	IPMB                    byte            `cbor:"ipmb"`
	DeviceID                byte            `cbor:"device_id"`
	HasDeviceSDRs           bool            `cbor:"has_device_sdrs"`
	DeviceRevision          byte            `cbor:"device_revision"`
	MajorFirmwareRevision   byte            `cbor:"major_fw"`
	MinorFirmwareRevision   byte            `cbor:"minor_fw"`
	DeviceSupport           byte            `cbor:"device_support"`
	ManufacturerID          [3]byte         `cbor:"mfg_id"`
	ProductID               [2]byte         `cbor:"product_id"`
	DynamicSensorPopulation bool            `cbor:"dynamic_sensor_population"`

	SEL *SELConfig `cbor:"sel"`

	MainSDR   *SDRConfig   `cbor:"main_sdr"`
	DeviceSDR []DeviceSDR  `cbor:"device_sdr"`

	FRUs []FRUConfig `cbor:"frus"`

	Sensors []SensorConfig `cbor:"sensors"`
}

// SELConfig mirrors the "enable SEL" configuration operation.
type SELConfig struct {
	MaxEntries   int  `cbor:"max_entries"`
	SupportFlags byte `cbor:"support_flags"`
}

// SDRConfig mirrors "add main/device SDR": a store's capability/modal
// flags plus the raw records to seed it with.
type SDRConfig struct {
	Flags   byte     `cbor:"flags"`
	Records [][]byte `cbor:"records"`
}

// DeviceSDR pairs a per-LUN device-SDR repository with its LUN.
type DeviceSDR struct {
	LUN byte      `cbor:"lun"`
	SDR SDRConfig `cbor:"sdr"`
}

// FRUConfig mirrors "add FRU data (device_id < 255, buffer length)"; Data,
// if non-empty, is written into the newly allocated area at offset 0 as a
// configuration-time convenience (not part of the wire protocol).
type FRUConfig struct {
	DeviceID byte   `cbor:"device_id"`
	Length   int    `cbor:"length"`
	Data     []byte `cbor:"data"`
}

// SensorConfig mirrors "add sensor" plus the per-sensor setters spec.md §6
// groups under it.
type SensorConfig struct {
	LUN              byte `cbor:"lun"`
	Num              byte `cbor:"num"`
	SensorType       byte `cbor:"sensor_type"`
	EventReadingCode byte `cbor:"event_reading_code"`

	ScanningEnabled bool `cbor:"scanning_enabled"`
	EventsEnabled   bool `cbor:"events_enabled"`

	HysteresisSupport  sensor.Support `cbor:"hysteresis_support"`
	PositiveHysteresis byte           `cbor:"positive_hysteresis"`
	NegativeHysteresis byte           `cbor:"negative_hysteresis"`

	ThresholdSupport    sensor.Support                     `cbor:"threshold_support"`
	ThresholdSupported  [sensor.NumThresholds]bool          `cbor:"threshold_supported"`
	Thresholds          [sensor.NumThresholds]byte          `cbor:"thresholds"`

	EventSupport           sensor.EventSupport            `cbor:"event_support"`
	AssertEventSupported   [sensor.NumEventBits]bool       `cbor:"assert_event_supported"`
	DeassertEventSupported [sensor.NumEventBits]bool       `cbor:"deassert_event_supported"`
	AssertEventEnabled     [sensor.NumEventBits]bool       `cbor:"assert_event_enabled"`
	DeassertEventEnabled   [sensor.NumEventBits]bool       `cbor:"deassert_event_enabled"`
}

// Parse decodes a CBOR configuration document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &doc, nil
}

// Apply builds a fresh emulator.Emulator from the document, running every
// Configuration API operation spec.md §6 names: add MC, set BMC address,
// enable SEL, add main/device SDR, add FRU data, add sensor and its
// per-sensor setters.
func (d *Document) Apply() (*emulator.Emulator, error) {
	e := emulator.New(d.BMCSlaveAddress)
	for _, mcCfg := range d.MCs {
		if err := applyMC(e, mcCfg); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func applyMC(e *emulator.Emulator, cfg MCConfig) error {
	m := mc.New(cfg.IPMB)
	hasSDRsBit := byte(0)
	if cfg.HasDeviceSDRs {
		hasSDRsBit = 1 << 7
	}
	m.Identity = mc.Identity{
		DeviceID:       cfg.DeviceID,
		DeviceRevision: hasSDRsBit | cfg.DeviceRevision&0x0F,
		FirmwareMajor:  cfg.MajorFirmwareRevision & 0x7F,
		FirmwareMinor:  cfg.MinorFirmwareRevision,
		IPMIVersion:    ipmicc.IPMIVersion,
		ManufacturerID: cfg.ManufacturerID,
		ProductID:      uint16(cfg.ProductID[0]) | uint16(cfg.ProductID[1])<<8,
		DeviceSupport:  cfg.DeviceSupport,
	}
	m.DynamicSensorPopulation = cfg.DynamicSensorPopulation

	if cfg.SEL != nil {
		m.SEL.Enable(cfg.SEL.MaxEntries, cfg.SEL.SupportFlags)
	}
	if cfg.MainSDR != nil {
		if err := applySDR(m.MainSDR, *cfg.MainSDR); err != nil {
			return fmt.Errorf("config: mc %#x main sdr: %w", cfg.IPMB, err)
		}
	}
	for _, dsdr := range cfg.DeviceSDR {
		if dsdr.LUN >= mc.NumLUNs {
			return fmt.Errorf("config: mc %#x device sdr lun %d out of range", cfg.IPMB, dsdr.LUN)
		}
		if err := applySDR(m.DeviceSDR[dsdr.LUN], dsdr.SDR); err != nil {
			return fmt.Errorf("config: mc %#x device sdr lun %d: %w", cfg.IPMB, dsdr.LUN, err)
		}
	}
	for _, fruCfg := range cfg.FRUs {
		if fruCfg.DeviceID > fru.MaxDeviceID {
			return fmt.Errorf("config: mc %#x fru device id %d out of range", cfg.IPMB, fruCfg.DeviceID)
		}
		m.FRU.AddArea(fruCfg.DeviceID, fruCfg.Length)
		if len(fruCfg.Data) > 0 {
			if cc, _ := m.FRU.Write(fruCfg.DeviceID, 0, fruCfg.Data); cc != ipmicc.OK {
				return fmt.Errorf("config: mc %#x fru %d initial data: completion code %#x", cfg.IPMB, fruCfg.DeviceID, cc)
			}
		}
	}
	for _, sensorCfg := range cfg.Sensors {
		if sensorCfg.LUN >= mc.NumLUNs {
			return fmt.Errorf("config: mc %#x sensor %d lun %d out of range", cfg.IPMB, sensorCfg.Num, sensorCfg.LUN)
		}
		if sensorCfg.Num == 255 {
			return fmt.Errorf("config: mc %#x sensor number %d out of range", cfg.IPMB, sensorCfg.Num)
		}
		m.Sensors[sensorCfg.LUN].Add(buildSensor(sensorCfg))
	}

	return e.Add(m)
}

func applySDR(store *sdr.Store, cfg SDRConfig) error {
	*store = *sdr.New(cfg.Flags)
	for _, rec := range cfg.Records {
		if cc, _ := store.Add(rec); cc != ipmicc.OK {
			return fmt.Errorf("add sdr record: completion code %#x", cc)
		}
	}
	return nil
}

func buildSensor(cfg SensorConfig) *sensor.Sensor {
	s := sensor.New(cfg.LUN, cfg.Num, cfg.SensorType, cfg.EventReadingCode)
	s.ScanningEnabled = cfg.ScanningEnabled
	s.EventsEnabled = cfg.EventsEnabled
	s.HysteresisSupport = cfg.HysteresisSupport
	s.PositiveHysteresis = cfg.PositiveHysteresis
	s.NegativeHysteresis = cfg.NegativeHysteresis
	s.ThresholdSupport = cfg.ThresholdSupport
	s.ThresholdSupported = cfg.ThresholdSupported
	s.Thresholds = cfg.Thresholds
	s.EventSupport = cfg.EventSupport
	s.AssertEventSupported = cfg.AssertEventSupported
	s.DeassertEventSupported = cfg.DeassertEventSupported
	s.AssertEventEnabled = cfg.AssertEventEnabled
	s.DeassertEventEnabled = cfg.DeassertEventEnabled
	return s
}
