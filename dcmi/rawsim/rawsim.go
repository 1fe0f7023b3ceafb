// Package rawsim is an in-memory implementation of the native call surface.
// It behaves like the vendor library at the wire level: two-call size/fill
// reporting, raw status codes, little-endian fixed-layout records. It backs
// the test suite and the CLI's simulate mode; nothing in it touches
// hardware.
package rawsim

import (
	"encoding/binary"
	"sync"

	"codeberg.org/ferrule/dcmictl/dcmi"
)

// HBM describes simulated high-bandwidth memory. Devices with a nil HBM
// report Unsupported for the HBM class.
type HBM struct {
	TotalMB       uint64
	FrequencyMHz  uint32
	UsedMB        uint64
	TemperatureC  int32
	BandwidthUtil uint32
}

// ECC describes simulated error-correction counters. Nil means Unsupported.
type ECC struct {
	Enabled                bool
	SingleBitErrors        uint32
	DoubleBitErrors        uint32
	TotalSingleBitErrors   uint32
	TotalDoubleBitErrors   uint32
	SingleBitIsolatedPages uint32
	DoubleBitIsolatedPages uint32
}

// Device is one simulated device and its telemetry.
type Device struct {
	TemperatureC      int32
	PowerDeciwatts    uint32
	Health            uint32
	MemoryTotalMB     uint64
	MemoryAvailableMB uint64
	MemoryFreqMHz     uint32
	HugePageSizeKB    uint64
	HugePagesTotal    uint64
	HugePagesFree     uint64
	MemoryUtilization uint32
	UtilAICore        uint32
	UtilAICPU         uint32
	UtilMemory        uint32
	UtilMemBandwidth  uint32
	FreqDDRMHz        uint32
	FreqCtrlCPUMHz    uint32
	FreqHBMMHz        uint32
	FreqAICoreMHz     uint32
	FreqAICoreMaxMHz  uint32
	VoltageCentivolts uint32
	BoardID           uint32
	PCBID             uint32
	BOMID             uint32
	SlotID            uint32
	HBM               *HBM
	ECC               *ECC
	ChipType          string
	ChipName          string
	ChipVersion       string
	AICoreCount       uint32
	FaultCodes        []uint32

	// Removed simulates hot-unplug: the device stays in the topology
	// snapshot but every query reports DeviceNotExist.
	Removed bool
}

// Card is one simulated management unit.
type Card struct {
	ID      int32
	Devices []*Device
}

// Surface implements dcmi.RawAPI against in-memory state.
type Surface struct {
	mu    sync.Mutex
	cards []*Card

	initialized   bool
	initCalls     int
	shutdownCalls int
	queryCalls    int

	// Status overrides for fault injection. Zero values mean success.
	InitStatus     int32
	ShutdownStatus int32
	QueryStatus    map[dcmi.TelemetryClass]int32

	// RecordPadding appends extra zero bytes to every record, simulating a
	// newer firmware whose structs grew.
	RecordPadding int
	// VersionOverride reports a different struct version per class.
	VersionOverride map[dcmi.TelemetryClass]uint32

	DriverVersionString string
}

var _ dcmi.RawAPI = (*Surface)(nil)

// New builds a surface over the given cards.
func New(cards ...*Card) *Surface {
	return &Surface{
		cards:               cards,
		DriverVersionString: "24.1.rc3.sim",
	}
}

// Demo builds a small populated topology: two cards with one device each,
// the second without HBM.
func Demo() *Surface {
	return New(
		&Card{ID: 0, Devices: []*Device{demoDevice(42, 1150)}},
		&Card{ID: 1, Devices: []*Device{func() *Device {
			d := demoDevice(51, 2870)
			d.HBM = nil
			return d
		}()}},
	)
}

func demoDevice(temp int32, powerDW uint32) *Device {
	return &Device{
		TemperatureC:      temp,
		PowerDeciwatts:    powerDW,
		Health:            0,
		MemoryTotalMB:     32768,
		MemoryAvailableMB: 30112,
		MemoryFreqMHz:     1600,
		HugePageSizeKB:    2048,
		HugePagesTotal:    16384,
		HugePagesFree:     15056,
		MemoryUtilization: 8,
		FreqDDRMHz:        1600,
		FreqCtrlCPUMHz:    1000,
		FreqHBMMHz:        1200,
		FreqAICoreMHz:     960,
		FreqAICoreMaxMHz:  1080,
		VoltageCentivolts: 81,
		BoardID:           100,
		PCBID:             2,
		BOMID:             1,
		SlotID:            0,
		UtilAICore:        23,
		UtilAICPU:         4,
		UtilMemory:        8,
		UtilMemBandwidth:  11,
		HBM: &HBM{
			TotalMB:       16384,
			FrequencyMHz:  1200,
			UsedMB:        2048,
			TemperatureC:  temp + 4,
			BandwidthUtil: 11,
		},
		ECC:         &ECC{Enabled: true},
		ChipType:    "ascend",
		ChipName:    "sim-910b",
		ChipVersion: "1.0",
		AICoreCount: 32,
	}
}

// InitCalls reports how many native init calls were issued.
func (s *Surface) InitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initCalls
}

// ShutdownCalls reports how many native cleanup calls were issued.
func (s *Surface) ShutdownCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownCalls
}

// QueryCalls reports how many native telemetry queries were issued,
// counting every probe and fill individually.
func (s *Surface) QueryCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryCalls
}

// RemoveDevice marks a device as hot-unplugged.
func (s *Surface) RemoveDevice(card, device int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.lookup(card, device); d != nil {
		d.Removed = true
	}
}

func (s *Surface) lookup(card, device int32) *Device {
	for _, c := range s.cards {
		if c.ID != card {
			continue
		}
		if device < 0 || int(device) >= len(c.Devices) {
			return nil
		}
		return c.Devices[device]
	}
	return nil
}

func (s *Surface) Init() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	if s.InitStatus != 0 {
		return s.InitStatus
	}
	s.initialized = true
	return dcmi.StatusOK
}

func (s *Surface) Shutdown() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownCalls++
	if s.ShutdownStatus != 0 {
		return s.ShutdownStatus
	}
	s.initialized = false
	return dcmi.StatusOK
}

func (s *Surface) DriverVersion(buf []byte) (int, int, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0, 0, dcmi.StatusNotReady
	}
	return fillBytes(buf, append([]byte(s.DriverVersionString), 0))
}

func (s *Surface) CardList(ids []int32) (int, int, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0, 0, dcmi.StatusNotReady
	}
	required := len(s.cards)
	if len(ids) < required {
		return 0, required, dcmi.StatusBufferTooSmall
	}
	for i, c := range s.cards {
		ids[i] = c.ID
	}
	return required, required, dcmi.StatusOK
}

func (s *Surface) DeviceCount(card int32) (int32, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0, dcmi.StatusNotReady
	}
	for _, c := range s.cards {
		if c.ID == card {
			return int32(len(c.Devices)), dcmi.StatusOK
		}
	}
	return 0, dcmi.StatusDeviceNotExist
}

func (s *Surface) Query(card, device int32, class dcmi.TelemetryClass, buf []byte) (int, int, uint32, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	if !s.initialized {
		return 0, 0, 0, dcmi.StatusNotReady
	}
	if st, ok := s.QueryStatus[class]; ok && st != 0 {
		return 0, 0, 0, st
	}
	d := s.lookup(card, device)
	if d == nil || d.Removed {
		return 0, 0, 0, dcmi.StatusDeviceNotExist
	}

	record, version, status := s.encode(d, class)
	if status != dcmi.StatusOK {
		return 0, 0, 0, status
	}
	if s.RecordPadding > 0 {
		record = append(record, make([]byte, s.RecordPadding)...)
	}
	if v, ok := s.VersionOverride[class]; ok {
		version = v
	}

	written, required, st := fillBytes(buf, record)
	return written, required, version, st
}

func (s *Surface) ErrorCodes(card, device int32, codes []uint32) (int, int, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	if !s.initialized {
		return 0, 0, dcmi.StatusNotReady
	}
	d := s.lookup(card, device)
	if d == nil || d.Removed {
		return 0, 0, dcmi.StatusDeviceNotExist
	}
	required := len(d.FaultCodes)
	if len(codes) < required {
		return 0, required, dcmi.StatusBufferTooSmall
	}
	copy(codes, d.FaultCodes)
	return required, required, dcmi.StatusOK
}

// fillBytes applies the size/fill convention for a byte record.
func fillBytes(buf, record []byte) (int, int, int32) {
	required := len(record)
	if len(buf) < required {
		return 0, required, dcmi.StatusBufferTooSmall
	}
	copy(buf, record)
	return required, required, dcmi.StatusOK
}

func (s *Surface) encode(d *Device, class dcmi.TelemetryClass) ([]byte, uint32, int32) {
	w := &recordWriter{}
	switch class {
	case dcmi.ClassTemperature:
		w.i32(d.TemperatureC)
		return w.buf, 1, dcmi.StatusOK
	case dcmi.ClassPower:
		w.u32(d.PowerDeciwatts)
		return w.buf, 1, dcmi.StatusOK
	case dcmi.ClassMemory:
		w.u64(d.MemoryTotalMB)
		w.u64(d.MemoryAvailableMB)
		w.u32(d.MemoryFreqMHz)
		w.u64(d.HugePageSizeKB)
		w.u64(d.HugePagesTotal)
		w.u64(d.HugePagesFree)
		w.u32(d.MemoryUtilization)
		return w.buf, 3, dcmi.StatusOK
	case dcmi.ClassUtilization:
		w.u32(d.UtilAICore)
		w.u32(d.UtilAICPU)
		w.u32(d.UtilMemory)
		w.u32(d.UtilMemBandwidth)
		return w.buf, 1, dcmi.StatusOK
	case dcmi.ClassHealth:
		w.u32(d.Health)
		return w.buf, 1, dcmi.StatusOK
	case dcmi.ClassHBM:
		if d.HBM == nil {
			return nil, 0, dcmi.StatusNotSupport
		}
		w.u64(d.HBM.TotalMB)
		w.u32(d.HBM.FrequencyMHz)
		w.u64(d.HBM.UsedMB)
		w.i32(d.HBM.TemperatureC)
		w.u32(d.HBM.BandwidthUtil)
		return w.buf, 1, dcmi.StatusOK
	case dcmi.ClassECC:
		if d.ECC == nil {
			return nil, 0, dcmi.StatusNotSupport
		}
		var enabled uint32
		if d.ECC.Enabled {
			enabled = 1
		}
		w.u32(enabled)
		w.u32(d.ECC.SingleBitErrors)
		w.u32(d.ECC.DoubleBitErrors)
		w.u32(d.ECC.TotalSingleBitErrors)
		w.u32(d.ECC.TotalDoubleBitErrors)
		w.u32(d.ECC.SingleBitIsolatedPages)
		w.u32(d.ECC.DoubleBitIsolatedPages)
		return w.buf, 1, dcmi.StatusOK
	case dcmi.ClassFrequency:
		w.u32(d.FreqDDRMHz)
		w.u32(d.FreqCtrlCPUMHz)
		w.u32(d.FreqHBMMHz)
		w.u32(d.FreqAICoreMHz)
		w.u32(d.FreqAICoreMaxMHz)
		return w.buf, 1, dcmi.StatusOK
	case dcmi.ClassVoltage:
		w.u32(d.VoltageCentivolts)
		return w.buf, 1, dcmi.StatusOK
	case dcmi.ClassBoardInfo:
		w.u32(d.BoardID)
		w.u32(d.PCBID)
		w.u32(d.BOMID)
		w.u32(d.SlotID)
		return w.buf, 1, dcmi.StatusOK
	case dcmi.ClassChipInfo:
		w.cstring(d.ChipType, 32)
		w.cstring(d.ChipName, 32)
		w.cstring(d.ChipVersion, 32)
		w.u32(d.AICoreCount)
		return w.buf, 1, dcmi.StatusOK
	default:
		return nil, 0, dcmi.StatusInvalidParameter
	}
}

type recordWriter struct {
	buf []byte
}

func (w *recordWriter) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *recordWriter) i32(v int32) {
	w.u32(uint32(v))
}

func (w *recordWriter) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *recordWriter) cstring(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	if len(s) >= n {
		field[n-1] = 0
	}
	w.buf = append(w.buf, field...)
}
