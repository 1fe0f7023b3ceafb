package dcmi

import (
	"bytes"
	"encoding/binary"

	"codeberg.org/ferrule/dcmictl/internal/errors"
)

// Native records are little-endian, fixed-layout blobs. Marshaling validates
// the blob length against the declared layout before any field is read, so a
// record can never be read out of bounds regardless of firmware or API
// version skew.

// Sentinels lists the raw values a class uses to mean "not applicable".
// The conventions are firmware-specific, so they are configuration
// (WithSentinels) rather than hard-coded; the defaults follow the vendor
// reference manual.
type Sentinels struct {
	Int32  []int32
	Uint32 []uint32
	Uint64 []uint64
}

const (
	// Register-read sentinels used by temperature-style signed fields.
	sentinelInvalidData int32 = 0x7ffd
	sentinelReadError   int32 = 0x7fff
	// Device-gone marker used by the health record.
	healthDeviceGone uint32 = 0xffffffff
)

func defaultSentinels() map[TelemetryClass]Sentinels {
	unsigned := Sentinels{
		Uint32: []uint32{0xffffffff},
		Uint64: []uint64{0xffffffffffffffff},
	}
	return map[TelemetryClass]Sentinels{
		ClassTemperature: {Int32: []int32{sentinelInvalidData, sentinelReadError}},
		ClassPower:       unsigned,
		ClassMemory:      unsigned,
		ClassUtilization: unsigned,
		ClassHBM: {
			Int32:  []int32{sentinelInvalidData, sentinelReadError},
			Uint32: []uint32{0xffffffff},
			Uint64: []uint64{0xffffffffffffffff},
		},
		ClassECC:       unsigned,
		ClassChipInfo:  unsigned,
		ClassFrequency: unsigned,
		// Voltage is a register read; it shares the register sentinels.
		ClassVoltage: {Uint32: []uint32{
			uint32(sentinelInvalidData), uint32(sentinelReadError),
		}},
		ClassBoardInfo: unsigned,
	}
}

func (s Sentinels) int32Field(v int32) Int32Field {
	for _, sv := range s.Int32 {
		if v == sv {
			return Int32Field{}
		}
	}
	return Int32Field{Value: v, Valid: true}
}

func (s Sentinels) uint32Field(v uint32) Uint32Field {
	for _, sv := range s.Uint32 {
		if v == sv {
			return Uint32Field{}
		}
	}
	return Uint32Field{Value: v, Valid: true}
}

func (s Sentinels) uint64Field(v uint64) Uint64Field {
	for _, sv := range s.Uint64 {
		if v == sv {
			return Uint64Field{}
		}
	}
	return Uint64Field{Value: v, Valid: true}
}

// Declared layout sizes per class and struct version.
const (
	temperatureV1Size = 4
	powerV1Size       = 4
	memoryV3Size      = 48
	utilizationV1Size = 16
	healthV1Size      = 4
	hbmV1Size         = 28
	eccV1Size         = 28
	chipInfoV1Size    = 100
	frequencyV1Size   = 20
	voltageV1Size     = 4
	boardInfoV1Size   = 16

	chipStringLen = 32
)

var layoutSizes = map[TelemetryClass]map[uint32]int{
	ClassTemperature: {1: temperatureV1Size},
	ClassPower:       {1: powerV1Size},
	ClassMemory:      {3: memoryV3Size},
	ClassUtilization: {1: utilizationV1Size},
	ClassHealth:      {1: healthV1Size},
	ClassHBM:         {1: hbmV1Size},
	ClassECC:         {1: eccV1Size},
	ClassChipInfo:    {1: chipInfoV1Size},
	ClassFrequency:   {1: frequencyV1Size},
	ClassVoltage:     {1: voltageV1Size},
	ClassBoardInfo:   {1: boardInfoV1Size},
}

// checkLayout validates the blob length for the given class and version and
// returns the populated meta. Shorter than the declared layout is
// ErrMalformedResponse; longer is accepted with Truncated set, which also
// covers future struct versions whose prefix matches the newest layout this
// build knows.
func checkLayout(class TelemetryClass, raw []byte, version uint32) (RecordMeta, error) {
	sizes := layoutSizes[class]
	size, known := sizes[version]
	if !known {
		// Future version: decode the newest known prefix.
		for _, s := range sizes {
			if s > size {
				size = s
			}
		}
	}
	if len(raw) < size {
		return RecordMeta{}, errors.WithData(ErrMalformedResponse, len(raw))
	}
	return RecordMeta{
		StructVersion: version,
		Truncated:     !known || len(raw) > size,
	}, nil
}

// recordReader walks a length-validated blob. Offsets never pass the
// declared layout size checked beforehand.
type recordReader struct {
	buf []byte
	off int
}

func (r *recordReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *recordReader) i32() int32 {
	return int32(r.u32())
}

func (r *recordReader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *recordReader) cstring(n int) string {
	raw := r.buf[r.off : r.off+n]
	r.off += n
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

func marshalTemperature(raw []byte, version uint32, s Sentinels) (Temperature, error) {
	meta, err := checkLayout(ClassTemperature, raw, version)
	if err != nil {
		return Temperature{}, err
	}
	r := recordReader{buf: raw}
	return Temperature{
		RecordMeta: meta,
		Celsius:    s.int32Field(r.i32()),
	}, nil
}

func marshalPower(raw []byte, version uint32, s Sentinels) (PowerInfo, error) {
	meta, err := checkLayout(ClassPower, raw, version)
	if err != nil {
		return PowerInfo{}, err
	}
	r := recordReader{buf: raw}
	return PowerInfo{
		RecordMeta: meta,
		Draw:       s.uint32Field(r.u32()),
	}, nil
}

func marshalMemory(raw []byte, version uint32, s Sentinels) (MemoryInfo, error) {
	meta, err := checkLayout(ClassMemory, raw, version)
	if err != nil {
		return MemoryInfo{}, err
	}
	r := recordReader{buf: raw}
	return MemoryInfo{
		RecordMeta:     meta,
		TotalMB:        s.uint64Field(r.u64()),
		AvailableMB:    s.uint64Field(r.u64()),
		FrequencyMHz:   s.uint32Field(r.u32()),
		HugePageSizeKB: s.uint64Field(r.u64()),
		HugePagesTotal: s.uint64Field(r.u64()),
		HugePagesFree:  s.uint64Field(r.u64()),
		Utilization:    s.uint32Field(r.u32()),
	}, nil
}

func marshalUtilization(raw []byte, version uint32, s Sentinels) (UtilizationInfo, error) {
	meta, err := checkLayout(ClassUtilization, raw, version)
	if err != nil {
		return UtilizationInfo{}, err
	}
	r := recordReader{buf: raw}
	return UtilizationInfo{
		RecordMeta:      meta,
		AICore:          s.uint32Field(r.u32()),
		AICPU:           s.uint32Field(r.u32()),
		Memory:          s.uint32Field(r.u32()),
		MemoryBandwidth: s.uint32Field(r.u32()),
	}, nil
}

func marshalHealth(raw []byte, version uint32) (HealthInfo, error) {
	meta, err := checkLayout(ClassHealth, raw, version)
	if err != nil {
		return HealthInfo{}, err
	}
	r := recordReader{buf: raw}
	state := r.u32()
	if state == healthDeviceGone {
		// The record is well-formed but the device it describes is gone.
		return HealthInfo{}, errors.New(ErrDeviceUnavailable)
	}
	return HealthInfo{
		RecordMeta: meta,
		State:      HealthState(state),
	}, nil
}

func marshalHBM(raw []byte, version uint32, s Sentinels) (HBMInfo, error) {
	meta, err := checkLayout(ClassHBM, raw, version)
	if err != nil {
		return HBMInfo{}, err
	}
	r := recordReader{buf: raw}
	return HBMInfo{
		RecordMeta:    meta,
		TotalMB:       s.uint64Field(r.u64()),
		FrequencyMHz:  s.uint32Field(r.u32()),
		UsedMB:        s.uint64Field(r.u64()),
		Temperature:   s.int32Field(r.i32()),
		BandwidthUtil: s.uint32Field(r.u32()),
	}, nil
}

func marshalECC(raw []byte, version uint32, s Sentinels) (ECCInfo, error) {
	meta, err := checkLayout(ClassECC, raw, version)
	if err != nil {
		return ECCInfo{}, err
	}
	r := recordReader{buf: raw}
	return ECCInfo{
		RecordMeta:             meta,
		Enabled:                r.u32() != 0,
		SingleBitErrors:        s.uint32Field(r.u32()),
		DoubleBitErrors:        s.uint32Field(r.u32()),
		TotalSingleBitErrors:   s.uint32Field(r.u32()),
		TotalDoubleBitErrors:   s.uint32Field(r.u32()),
		SingleBitIsolatedPages: s.uint32Field(r.u32()),
		DoubleBitIsolatedPages: s.uint32Field(r.u32()),
	}, nil
}

func marshalFrequency(raw []byte, version uint32, s Sentinels) (FrequencyInfo, error) {
	meta, err := checkLayout(ClassFrequency, raw, version)
	if err != nil {
		return FrequencyInfo{}, err
	}
	r := recordReader{buf: raw}
	return FrequencyInfo{
		RecordMeta: meta,
		DDR:        s.uint32Field(r.u32()),
		CtrlCPU:    s.uint32Field(r.u32()),
		HBM:        s.uint32Field(r.u32()),
		AICore:     s.uint32Field(r.u32()),
		AICoreMax:  s.uint32Field(r.u32()),
	}, nil
}

func marshalVoltage(raw []byte, version uint32, s Sentinels) (VoltageInfo, error) {
	meta, err := checkLayout(ClassVoltage, raw, version)
	if err != nil {
		return VoltageInfo{}, err
	}
	r := recordReader{buf: raw}
	return VoltageInfo{
		RecordMeta: meta,
		Level:      s.uint32Field(r.u32()),
	}, nil
}

func marshalBoardInfo(raw []byte, version uint32, s Sentinels) (BoardInfo, error) {
	meta, err := checkLayout(ClassBoardInfo, raw, version)
	if err != nil {
		return BoardInfo{}, err
	}
	r := recordReader{buf: raw}
	return BoardInfo{
		RecordMeta: meta,
		BoardID:    s.uint32Field(r.u32()),
		PCBID:      s.uint32Field(r.u32()),
		BOMID:      s.uint32Field(r.u32()),
		SlotID:     s.uint32Field(r.u32()),
	}, nil
}

func marshalChipInfo(raw []byte, version uint32, s Sentinels) (ChipInfo, error) {
	meta, err := checkLayout(ClassChipInfo, raw, version)
	if err != nil {
		return ChipInfo{}, err
	}
	r := recordReader{buf: raw}
	return ChipInfo{
		RecordMeta:  meta,
		Type:        r.cstring(chipStringLen),
		Name:        r.cstring(chipStringLen),
		Version:     r.cstring(chipStringLen),
		AICoreCount: s.uint32Field(r.u32()),
	}, nil
}
