package dcmi

// DeviceHandle addresses one (card, device) pair from an enumeration
// snapshot. Handles are freely shareable across goroutines: every query is
// read-only and serialized by the library's dispatch lock. A handle borrows
// its Ready period's validity token; after Shutdown all its queries fail
// with ErrInvalidated without touching the native library.
type DeviceHandle struct {
	lib    *Library
	tok    *validityToken
	card   CardID
	device DeviceID
}

// Card returns the management-unit identifier this handle addresses.
func (h *DeviceHandle) Card() CardID { return h.card }

// Device returns the device identifier within the card.
func (h *DeviceHandle) Device() DeviceID { return h.device }

// queryRecord fetches one telemetry record through the size/fill
// negotiation and returns the raw blob plus the struct version that
// produced it.
func (h *DeviceHandle) queryRecord(class TelemetryClass) ([]byte, uint32, error) {
	var version uint32
	raw, err := negotiate(func(buf []byte) (int, int, int32, error) {
		var written, required int
		var status int32
		err := h.lib.dispatch(h.tok, func(api RawAPI) {
			written, required, version, status = api.Query(int32(h.card), int32(h.device), class, buf)
		})
		return written, required, status, err
	})
	if err != nil {
		return nil, 0, err
	}
	return raw, version, nil
}

// Temperature queries the device temperature.
func (h *DeviceHandle) Temperature() (Temperature, error) {
	raw, version, err := h.queryRecord(ClassTemperature)
	if err != nil {
		return Temperature{}, err
	}
	return marshalTemperature(raw, version, h.lib.sentinelsFor(ClassTemperature))
}

// Power queries the instantaneous power draw.
func (h *DeviceHandle) Power() (PowerInfo, error) {
	raw, version, err := h.queryRecord(ClassPower)
	if err != nil {
		return PowerInfo{}, err
	}
	return marshalPower(raw, version, h.lib.sentinelsFor(ClassPower))
}

// Memory queries device-attached memory information.
func (h *DeviceHandle) Memory() (MemoryInfo, error) {
	raw, version, err := h.queryRecord(ClassMemory)
	if err != nil {
		return MemoryInfo{}, err
	}
	return marshalMemory(raw, version, h.lib.sentinelsFor(ClassMemory))
}

// Utilization queries per-subsystem utilization rates.
func (h *DeviceHandle) Utilization() (UtilizationInfo, error) {
	raw, version, err := h.queryRecord(ClassUtilization)
	if err != nil {
		return UtilizationInfo{}, err
	}
	return marshalUtilization(raw, version, h.lib.sentinelsFor(ClassUtilization))
}

// Health queries the device health classification.
func (h *DeviceHandle) Health() (HealthInfo, error) {
	raw, version, err := h.queryRecord(ClassHealth)
	if err != nil {
		return HealthInfo{}, err
	}
	return marshalHealth(raw, version)
}

// HBM queries high-bandwidth memory information. Devices without HBM report
// ErrUnsupported.
func (h *DeviceHandle) HBM() (HBMInfo, error) {
	raw, version, err := h.queryRecord(ClassHBM)
	if err != nil {
		return HBMInfo{}, err
	}
	return marshalHBM(raw, version, h.lib.sentinelsFor(ClassHBM))
}

// ECC queries memory error-correction counters.
func (h *DeviceHandle) ECC() (ECCInfo, error) {
	raw, version, err := h.queryRecord(ClassECC)
	if err != nil {
		return ECCInfo{}, err
	}
	return marshalECC(raw, version, h.lib.sentinelsFor(ClassECC))
}

// ChipInfo queries the chip identification record.
func (h *DeviceHandle) ChipInfo() (ChipInfo, error) {
	raw, version, err := h.queryRecord(ClassChipInfo)
	if err != nil {
		return ChipInfo{}, err
	}
	return marshalChipInfo(raw, version, h.lib.sentinelsFor(ClassChipInfo))
}

// Frequency queries the device clock frequencies.
func (h *DeviceHandle) Frequency() (FrequencyInfo, error) {
	raw, version, err := h.queryRecord(ClassFrequency)
	if err != nil {
		return FrequencyInfo{}, err
	}
	return marshalFrequency(raw, version, h.lib.sentinelsFor(ClassFrequency))
}

// Voltage queries the device voltage.
func (h *DeviceHandle) Voltage() (VoltageInfo, error) {
	raw, version, err := h.queryRecord(ClassVoltage)
	if err != nil {
		return VoltageInfo{}, err
	}
	return marshalVoltage(raw, version, h.lib.sentinelsFor(ClassVoltage))
}

// Board queries the physical board identification record.
func (h *DeviceHandle) Board() (BoardInfo, error) {
	raw, version, err := h.queryRecord(ClassBoardInfo)
	if err != nil {
		return BoardInfo{}, err
	}
	return marshalBoardInfo(raw, version, h.lib.sentinelsFor(ClassBoardInfo))
}

// ErrorCodes queries the device's pending fault-code list.
func (h *DeviceHandle) ErrorCodes() ([]uint32, error) {
	return negotiate(func(buf []uint32) (int, int, int32, error) {
		var written, required int
		var status int32
		err := h.lib.dispatch(h.tok, func(api RawAPI) {
			written, required, status = api.ErrorCodes(int32(h.card), int32(h.device), buf)
		})
		return written, required, status, err
	})
}
