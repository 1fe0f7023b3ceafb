package dcmi_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/ferrule/dcmictl/dcmi"
	"codeberg.org/ferrule/dcmictl/dcmi/rawsim"
	"codeberg.org/ferrule/dcmictl/internal/errors"
)

func readyLibrary(t *testing.T, sim *rawsim.Surface) *dcmi.Library {
	t.Helper()
	lib := dcmi.New(sim)
	require.NoError(t, lib.Init())
	t.Cleanup(func() {
		if lib.Ready() {
			require.NoError(t, lib.Shutdown())
		}
	})
	return lib
}

func firstHandle(t *testing.T, lib *dcmi.Library) *dcmi.DeviceHandle {
	t.Helper()
	list, err := lib.ListDevices()
	require.NoError(t, err)
	handle, ok := list.Next()
	require.True(t, ok)
	return handle
}

func TestEndToEndTelemetry(t *testing.T) {
	sim := rawsim.Demo()
	lib := dcmi.New(sim)
	require.NoError(t, lib.Init())

	list, err := lib.ListDevices()
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len(), "demo topology has 2 cards with 1 device each")

	handle, ok := list.Next()
	require.True(t, ok)
	assert.Equal(t, dcmi.CardID(0), handle.Card())
	assert.Equal(t, dcmi.DeviceID(0), handle.Device())

	temp, err := handle.Temperature()
	require.NoError(t, err)
	require.True(t, temp.Celsius.Valid)
	assert.Equal(t, int32(42), temp.Celsius.Value)
	assert.GreaterOrEqual(t, temp.Celsius.Value, int32(0))
	assert.Less(t, temp.Celsius.Value, int32(120))

	require.NoError(t, lib.Shutdown())

	_, err = handle.Temperature()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrInvalidated, errors.CodeOf(err))
}

func TestAllTelemetryClasses(t *testing.T) {
	lib := readyLibrary(t, rawsim.Demo())
	handle := firstHandle(t, lib)

	power, err := handle.Power()
	require.NoError(t, err)
	assert.InDelta(t, 115.0, power.Watts(), 0.001)

	mem, err := handle.Memory()
	require.NoError(t, err)
	assert.Equal(t, uint64(32768), mem.TotalMB.Value)
	assert.Equal(t, uint64(30112), mem.AvailableMB.Value)
	assert.False(t, mem.Truncated)

	util, err := handle.Utilization()
	require.NoError(t, err)
	assert.Equal(t, uint32(23), util.AICore.Value)

	health, err := handle.Health()
	require.NoError(t, err)
	assert.Equal(t, dcmi.HealthOK, health.State)

	hbm, err := handle.HBM()
	require.NoError(t, err)
	assert.Equal(t, uint64(16384), hbm.TotalMB.Value)
	assert.Equal(t, int32(46), hbm.Temperature.Value)

	ecc, err := handle.ECC()
	require.NoError(t, err)
	assert.True(t, ecc.Enabled)

	chip, err := handle.ChipInfo()
	require.NoError(t, err)
	assert.Equal(t, "ascend", chip.Type)
	assert.Equal(t, "sim-910b", chip.Name)

	freq, err := handle.Frequency()
	require.NoError(t, err)
	assert.Equal(t, uint32(1600), freq.DDR.Value)
	assert.Equal(t, uint32(960), freq.AICore.Value)
	assert.Equal(t, uint32(1080), freq.AICoreMax.Value)

	volt, err := handle.Voltage()
	require.NoError(t, err)
	assert.InDelta(t, 0.81, volt.Volts(), 0.001)

	board, err := handle.Board()
	require.NoError(t, err)
	assert.Equal(t, uint32(100), board.BoardID.Value)
	assert.Equal(t, uint32(2), board.PCBID.Value)
}

func TestHBMUnsupportedSurfaces(t *testing.T) {
	lib := readyLibrary(t, rawsim.Demo())

	list, err := lib.ListDevices()
	require.NoError(t, err)
	handles := list.Rest()
	require.Len(t, handles, 2)

	// The second demo device has no HBM.
	_, err = handles[1].HBM()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrUnsupported, errors.CodeOf(err))
}

func TestRemovedDeviceFailsUnavailable(t *testing.T) {
	sim := rawsim.Demo()
	lib := readyLibrary(t, sim)
	handle := firstHandle(t, lib)

	sim.RemoveDevice(0, 0)

	_, err := handle.Temperature()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrDeviceUnavailable, errors.CodeOf(err))
}

func TestErrorCodesList(t *testing.T) {
	sim := rawsim.Demo()
	lib := readyLibrary(t, sim)
	handle := firstHandle(t, lib)

	codes, err := handle.ErrorCodes()
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestErrorCodesListPopulated(t *testing.T) {
	device := &rawsim.Device{TemperatureC: 40, FaultCodes: []uint32{0x80e01401, 0x80e01402}}
	sim := rawsim.New(&rawsim.Card{ID: 7, Devices: []*rawsim.Device{device}})
	lib := readyLibrary(t, sim)
	handle := firstHandle(t, lib)

	codes, err := handle.ErrorCodes()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x80e01401, 0x80e01402}, codes)
}

func TestPaddedRecordsFlagTruncation(t *testing.T) {
	sim := rawsim.Demo()
	sim.RecordPadding = 12
	lib := readyLibrary(t, sim)
	handle := firstHandle(t, lib)

	temp, err := handle.Temperature()
	require.NoError(t, err)
	assert.True(t, temp.Truncated)
	assert.Equal(t, int32(42), temp.Celsius.Value, "known prefix still decodes")
}

func TestFutureStructVersion(t *testing.T) {
	sim := rawsim.Demo()
	sim.RecordPadding = 8
	sim.VersionOverride = map[dcmi.TelemetryClass]uint32{dcmi.ClassMemory: 4}
	lib := readyLibrary(t, sim)
	handle := firstHandle(t, lib)

	mem, err := handle.Memory()
	require.NoError(t, err)
	assert.Equal(t, uint32(4), mem.StructVersion)
	assert.True(t, mem.Truncated)
	assert.Equal(t, uint64(32768), mem.TotalMB.Value)
}

func TestQueryFaultInjection(t *testing.T) {
	sim := rawsim.Demo()
	sim.QueryStatus = map[dcmi.TelemetryClass]int32{
		dcmi.ClassPower: dcmi.StatusTimeout,
	}
	lib := readyLibrary(t, sim)
	handle := firstHandle(t, lib)

	_, err := handle.Power()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrTimeout, errors.CodeOf(err))

	// Other classes are unaffected; a failed query leaves the library and
	// the handle usable.
	_, err = handle.Temperature()
	require.NoError(t, err)
}

func TestConcurrentQueries(t *testing.T) {
	lib := readyLibrary(t, rawsim.Demo())
	handle := firstHandle(t, lib)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := handle.Temperature(); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
