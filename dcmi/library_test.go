package dcmi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/ferrule/dcmictl/dcmi"
	"codeberg.org/ferrule/dcmictl/dcmi/rawsim"
	"codeberg.org/ferrule/dcmictl/internal/errors"
)

func TestInitShutdownStateMachine(t *testing.T) {
	sim := rawsim.Demo()
	lib := dcmi.New(sim)

	assert.False(t, lib.Ready())

	require.NoError(t, lib.Init())
	assert.True(t, lib.Ready())

	require.NoError(t, lib.Shutdown())
	assert.False(t, lib.Ready())

	err := lib.Shutdown()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrNotInitialized, errors.CodeOf(err))
}

func TestInitIsIdempotentWhileReady(t *testing.T) {
	sim := rawsim.Demo()
	lib := dcmi.New(sim)
	defer lib.Shutdown() //nolint:errcheck

	require.NoError(t, lib.Init())
	require.NoError(t, lib.Init(), "re-init while Ready must succeed")

	assert.Equal(t, 1, sim.InitCalls(), "double-init must not reach the native library twice")
}

func TestNativeCallPairing(t *testing.T) {
	sim := rawsim.Demo()
	lib := dcmi.New(sim)

	require.NoError(t, lib.Init())
	require.NoError(t, lib.Shutdown())
	require.NoError(t, lib.Init())
	require.NoError(t, lib.Shutdown())

	assert.Equal(t, 2, sim.InitCalls())
	assert.Equal(t, 2, sim.ShutdownCalls())
}

func TestSecondLibraryCannotInit(t *testing.T) {
	first := dcmi.New(rawsim.Demo())
	second := dcmi.New(rawsim.Demo())

	require.NoError(t, first.Init())

	err := second.Init()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrAlreadyInitialized, errors.CodeOf(err))

	require.NoError(t, first.Shutdown())

	// The native singleton is free again.
	require.NoError(t, second.Init())
	require.NoError(t, second.Shutdown())
}

func TestInitFailureSurfacesTranslated(t *testing.T) {
	sim := rawsim.Demo()
	sim.InitStatus = dcmi.StatusNotPermitted
	lib := dcmi.New(sim)

	err := lib.Init()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrPermissionDenied, errors.CodeOf(err))
	assert.False(t, lib.Ready())
}

func TestShutdownRevokesOutstandingHandles(t *testing.T) {
	sim := rawsim.Demo()
	lib := dcmi.New(sim)
	require.NoError(t, lib.Init())

	list, err := lib.ListDevices()
	require.NoError(t, err)
	handle, ok := list.Next()
	require.True(t, ok)

	// Shutdown succeeds despite the live handle; the handle's token is
	// revoked rather than blocking the transition.
	require.NoError(t, lib.Shutdown())

	_, err = handle.Temperature()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrInvalidated, errors.CodeOf(err))
}

func TestStaleHandleAfterReinit(t *testing.T) {
	sim := rawsim.Demo()
	lib := dcmi.New(sim)
	require.NoError(t, lib.Init())

	list, err := lib.ListDevices()
	require.NoError(t, err)
	stale, ok := list.Next()
	require.True(t, ok)

	require.NoError(t, lib.Shutdown())
	require.NoError(t, lib.Init())
	defer lib.Shutdown() //nolint:errcheck

	// Handles never survive across Ready periods, even though the library
	// is Ready again.
	_, err = stale.Health()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrInvalidated, errors.CodeOf(err))
}

func TestQueriesRequireReady(t *testing.T) {
	lib := dcmi.New(rawsim.Demo())

	_, err := lib.ListDevices()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrNotInitialized, errors.CodeOf(err))

	_, err = lib.DriverVersion()
	require.Error(t, err)
	assert.Equal(t, dcmi.ErrNotInitialized, errors.CodeOf(err))
}

func TestDriverVersion(t *testing.T) {
	sim := rawsim.Demo()
	lib := dcmi.New(sim)
	require.NoError(t, lib.Init())
	defer lib.Shutdown() //nolint:errcheck

	version, err := lib.DriverVersion()
	require.NoError(t, err)
	assert.Equal(t, "24.1.rc3.sim", version)
}
