// Package dcmi is a process-local safety boundary over a vendor-supplied
// DCMI-class device-management library. The vendor surface is consumed as a
// RawAPI value supplied by glue code outside this package; everything the
// package does is gate that surface behind a deterministic lifecycle, a
// bounded buffer-negotiation protocol, length-checked record decoding, and
// a typed error taxonomy.
package dcmi

import "sync"

// RawAPI is the call surface of the native library as the core consumes it.
// Every method is a direct, blocking native call returning a raw status code
// from the Status* table. List- and record-producing calls follow the
// two-call convention: invoked with a short (or nil) buffer they report the
// required capacity; invoked with enough capacity they fill it and report
// how much was written.
//
// Implementations are not assumed reentrant. The Library serializes all
// dispatch through a single lock.
type RawAPI interface {
	// Init brings the native library up. Paired with exactly one Shutdown.
	Init() int32

	// Shutdown releases all native state.
	Shutdown() int32

	// DriverVersion fills buf with a NUL-terminated version string.
	DriverVersion(buf []byte) (written, required int, status int32)

	// CardList fills ids with the identifiers of present management units.
	CardList(ids []int32) (written, required int, status int32)

	// DeviceCount reports the number of devices on the given card.
	DeviceCount(card int32) (count int32, status int32)

	// Query fills buf with the raw record for one telemetry class of one
	// device, reporting the record's full length and the native struct
	// version that produced it.
	Query(card, device int32, class TelemetryClass, buf []byte) (written, required int, version uint32, status int32)

	// ErrorCodes fills codes with the device's pending fault codes.
	ErrorCodes(card, device int32, codes []uint32) (written, required int, status int32)
}

// TelemetryClass selects which record a Query call produces.
type TelemetryClass int32

const (
	ClassTemperature TelemetryClass = iota + 1
	ClassPower
	ClassMemory
	ClassUtilization
	ClassHealth
	ClassHBM
	ClassECC
	ClassChipInfo
	ClassFrequency
	ClassVoltage
	ClassBoardInfo
)

func (c TelemetryClass) String() string {
	switch c {
	case ClassTemperature:
		return "temperature"
	case ClassPower:
		return "power"
	case ClassMemory:
		return "memory"
	case ClassUtilization:
		return "utilization"
	case ClassHealth:
		return "health"
	case ClassHBM:
		return "hbm"
	case ClassECC:
		return "ecc"
	case ClassChipInfo:
		return "chip_info"
	case ClassFrequency:
		return "frequency"
	case ClassVoltage:
		return "voltage"
	case ClassBoardInfo:
		return "board_info"
	default:
		return "unknown"
	}
}

// Raw status codes as described by the vendor header. The values are part of
// the consumed surface: glue code generating real bindings must report these
// exact codes, and simulated surfaces reuse them.
const (
	StatusOK                    int32 = 0
	StatusInvalidParameter      int32 = -8001
	StatusNotPermitted          int32 = -8002
	StatusMemOperateFail        int32 = -8003
	StatusSecureFuncFail        int32 = -8004
	StatusInnerErr              int32 = -8005
	StatusTimeout               int32 = -8006
	StatusInvalidDeviceID       int32 = -8007
	StatusDeviceNotExist        int32 = -8008
	StatusIoctlFail             int32 = -8009
	StatusSendMsgFail           int32 = -8010
	StatusRecvMsgFail           int32 = -8011
	StatusNotReady              int32 = -8012
	StatusNotSupportInContainer int32 = -8013
	StatusResetFail             int32 = -8015
	StatusAbortOperate          int32 = -8016
	StatusIsUpgrading           int32 = -8017
	StatusResourceOccupied      int32 = -8020
	StatusBufferTooSmall        int32 = -8100
	StatusNotSupport            int32 = -8255
)

var (
	registerMu sync.Mutex
	registered RawAPI
)

// Register hands the core a native call surface. Vendor glue packages call
// this from init(); calling it twice panics, mirroring database/sql driver
// registration.
func Register(api RawAPI) {
	registerMu.Lock()
	defer registerMu.Unlock()
	if api == nil {
		panic("dcmi: Register called with nil RawAPI")
	}
	if registered != nil {
		panic("dcmi: RawAPI already registered")
	}
	registered = api
}

// Registered returns the registered call surface, if any.
func Registered() (RawAPI, bool) {
	registerMu.Lock()
	defer registerMu.Unlock()
	return registered, registered != nil
}
