package dcmi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/ferrule/dcmictl/internal/errors"
)

// fixedFill simulates a native call that reports required size n, then
// fills with the given payload.
func fixedFill(payload []byte) fillFunc[byte] {
	return func(buf []byte) (int, int, int32, error) {
		if len(buf) < len(payload) {
			return 0, len(payload), StatusBufferTooSmall, nil
		}
		copy(buf, payload)
		return len(payload), len(payload), StatusOK, nil
	}
}

func TestNegotiateExactFill(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}

	got, err := negotiate(fixedFill(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Len(t, got, 5, "buffer must be exactly the reported size")
}

func TestNegotiateEmptyResult(t *testing.T) {
	got, err := negotiate(func(buf []int32) (int, int, int32, error) {
		return 0, 0, StatusOK, nil
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNegotiatePartialWrite(t *testing.T) {
	// The native call may confirm fewer elements written than capacity;
	// the unwritten tail must not leak into the result.
	q := func(buf []int32) (int, int, int32, error) {
		if len(buf) < 8 {
			return 0, 8, StatusBufferTooSmall, nil
		}
		buf[0], buf[1], buf[2] = 7, 8, 9
		return 3, 8, StatusOK, nil
	}

	got, err := negotiate(q)
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 8, 9}, got)
}

func TestNegotiateGrowthWithinBound(t *testing.T) {
	// Required size grows once between probe and fill, then stabilizes.
	sizes := []int{4, 6}
	calls := 0
	q := func(buf []byte) (int, int, int32, error) {
		required := sizes[min(calls, len(sizes)-1)]
		calls++
		if len(buf) < required {
			return 0, required, StatusBufferTooSmall, nil
		}
		for i := 0; i < required; i++ {
			buf[i] = byte(i)
		}
		return required, required, StatusOK, nil
	}

	got, err := negotiate(q)
	require.NoError(t, err)
	assert.Len(t, got, 6, "negotiation should settle on the final size")
}

func TestNegotiateUnboundedGrowthFailsTransient(t *testing.T) {
	required := 1
	q := func(buf []byte) (int, int, int32, error) {
		required *= 2
		return 0, required, StatusBufferTooSmall, nil
	}

	_, err := negotiate(q)
	require.Error(t, err)
	assert.Equal(t, ErrTransient, errors.CodeOf(err))
}

func TestNegotiateStuckRequirementFailsTransient(t *testing.T) {
	// A fill that keeps reporting the same required size it was given will
	// never converge and must not loop.
	q := func(buf []byte) (int, int, int32, error) {
		return 0, 4, StatusBufferTooSmall, nil
	}

	_, err := negotiate(q)
	require.Error(t, err)
	assert.Equal(t, ErrTransient, errors.CodeOf(err))
}

func TestNegotiateNativeFailureSurfaces(t *testing.T) {
	q := func(buf []byte) (int, int, int32, error) {
		return 0, 0, StatusNotPermitted, nil
	}

	_, err := negotiate(q)
	require.Error(t, err)
	assert.Equal(t, ErrPermissionDenied, errors.CodeOf(err))
}

func TestNegotiateOverclaimedWriteIsMalformed(t *testing.T) {
	q := func(buf []byte) (int, int, int32, error) {
		if len(buf) < 4 {
			return 0, 4, StatusBufferTooSmall, nil
		}
		return 12, 4, StatusOK, nil
	}

	_, err := negotiate(q)
	require.Error(t, err)
	assert.Equal(t, ErrMalformedResponse, errors.CodeOf(err))
}

func TestNegotiateGateErrorAborts(t *testing.T) {
	gateErr := errors.New(ErrInvalidated)
	calls := 0
	q := func(buf []byte) (int, int, int32, error) {
		calls++
		return 0, 0, 0, gateErr
	}

	_, err := negotiate(q)
	require.Error(t, err)
	assert.Equal(t, ErrInvalidated, errors.CodeOf(err))
	assert.Equal(t, 1, calls, "gate failures must not be retried")
}
