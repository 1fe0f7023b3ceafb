package dcmi

import "fmt"

// CardID identifies a management unit. Identifiers are opaque and not stable
// across re-initialization of the library.
type CardID int32

// DeviceID identifies a device within a card. Same stability caveats as
// CardID.
type DeviceID int32

// RecordMeta is embedded in every marshaled telemetry value. It records
// which native struct version produced the record and whether the record
// carried bytes beyond the layout this build knows, so callers can tell a
// partially understood record from a complete one.
type RecordMeta struct {
	StructVersion uint32
	// Truncated is set when the native record was longer than the known
	// layout and only the known prefix was decoded.
	Truncated bool
}

// Int32Field is a fixed-width signed field the device may decline to report.
// Valid is false when the raw value was a per-class sentinel.
type Int32Field struct {
	Value int32
	Valid bool
}

func (f Int32Field) String() string {
	if !f.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%d", f.Value)
}

// Uint32Field is the unsigned 32-bit counterpart of Int32Field.
type Uint32Field struct {
	Value uint32
	Valid bool
}

func (f Uint32Field) String() string {
	if !f.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%d", f.Value)
}

// Uint64Field is the unsigned 64-bit counterpart of Int32Field.
type Uint64Field struct {
	Value uint64
	Valid bool
}

func (f Uint64Field) String() string {
	if !f.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%d", f.Value)
}

// Temperature is a device temperature reading.
type Temperature struct {
	RecordMeta
	// Celsius is the die temperature in whole degrees.
	Celsius Int32Field
}

// PowerInfo is a device power reading.
type PowerInfo struct {
	RecordMeta
	// Draw is the instantaneous power draw in tenths of a watt.
	Draw Uint32Field
}

// Watts returns the power draw in watts, or 0 when unavailable.
func (p PowerInfo) Watts() float64 {
	if !p.Draw.Valid {
		return 0
	}
	return float64(p.Draw.Value) / 10
}

// MemoryInfo describes device-attached memory.
type MemoryInfo struct {
	RecordMeta
	TotalMB        Uint64Field
	AvailableMB    Uint64Field
	FrequencyMHz   Uint32Field
	HugePageSizeKB Uint64Field
	HugePagesTotal Uint64Field
	HugePagesFree  Uint64Field
	// Utilization is the memory usage rate in percent.
	Utilization Uint32Field
}

// UtilizationInfo carries per-subsystem utilization rates in percent.
type UtilizationInfo struct {
	RecordMeta
	AICore          Uint32Field
	AICPU           Uint32Field
	Memory          Uint32Field
	MemoryBandwidth Uint32Field
}

// HealthState is the device's coarse health classification.
type HealthState uint32

const (
	HealthOK             HealthState = 0
	HealthGeneralAlarm   HealthState = 1
	HealthImportantAlarm HealthState = 2
	HealthEmergencyAlarm HealthState = 3
)

func (s HealthState) String() string {
	switch s {
	case HealthOK:
		return "ok"
	case HealthGeneralAlarm:
		return "general-alarm"
	case HealthImportantAlarm:
		return "important-alarm"
	case HealthEmergencyAlarm:
		return "emergency-alarm"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// HealthInfo is a device health reading.
type HealthInfo struct {
	RecordMeta
	State HealthState
}

// HBMInfo describes high-bandwidth memory, on devices that have it.
type HBMInfo struct {
	RecordMeta
	TotalMB       Uint64Field
	FrequencyMHz  Uint32Field
	UsedMB        Uint64Field
	Temperature   Int32Field
	BandwidthUtil Uint32Field
}

// ECCInfo carries memory error-correction counters.
type ECCInfo struct {
	RecordMeta
	Enabled                bool
	SingleBitErrors        Uint32Field
	DoubleBitErrors        Uint32Field
	TotalSingleBitErrors   Uint32Field
	TotalDoubleBitErrors   Uint32Field
	SingleBitIsolatedPages Uint32Field
	DoubleBitIsolatedPages Uint32Field
}

// FrequencyInfo carries the device clock frequencies in MHz.
type FrequencyInfo struct {
	RecordMeta
	DDR       Uint32Field
	CtrlCPU   Uint32Field
	HBM       Uint32Field
	AICore    Uint32Field
	AICoreMax Uint32Field
}

// VoltageInfo is a device voltage reading.
type VoltageInfo struct {
	RecordMeta
	// Level is the voltage in hundredths of a volt.
	Level Uint32Field
}

// Volts returns the voltage in volts, or 0 when unavailable.
func (v VoltageInfo) Volts() float64 {
	if !v.Level.Valid {
		return 0
	}
	return float64(v.Level.Value) / 100
}

// BoardInfo identifies the physical board carrying a device.
type BoardInfo struct {
	RecordMeta
	BoardID Uint32Field
	PCBID   Uint32Field
	BOMID   Uint32Field
	SlotID  Uint32Field
}

// ChipInfo identifies the silicon behind a device.
type ChipInfo struct {
	RecordMeta
	Type        string
	Name        string
	Version     string
	AICoreCount Uint32Field
}
