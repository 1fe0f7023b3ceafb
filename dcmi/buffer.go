package dcmi

import (
	"codeberg.org/ferrule/dcmictl/internal/errors"
)

// maxFillAttempts bounds the size/fill retry loop. The required capacity can
// grow between the probe and the fill (hot-plug between calls); beyond this
// many fill attempts the negotiation fails with ErrTransient.
const maxFillAttempts = 4

// fillFunc is one native size/fill query. Called with a short (or nil)
// buffer it reports the required element count via required and
// StatusBufferTooSmall; with enough capacity it fills buf and reports the
// written count. A non-nil err aborts negotiation immediately (lifecycle
// gate failures, not native statuses).
type fillFunc[T any] func(buf []T) (written, required int, status int32, err error)

// negotiate runs the two-call size/fill protocol: probe for the required
// capacity, allocate exactly that much, fill, and re-probe with the newly
// reported size if the result set grew in between. The returned slice is
// truncated to what the native call confirmed it wrote; unwritten capacity
// is never exposed.
func negotiate[T any](q fillFunc[T]) ([]T, error) {
	written, required, status, err := q(nil)
	if err != nil {
		return nil, err
	}
	switch cat := Translate(status); cat {
	case "":
		// The full result fit in zero capacity: it is empty.
		if written != 0 {
			return nil, errors.WithData(ErrMalformedResponse, written)
		}
		return nil, nil
	case errInsufficientBuffer:
		// Expected probe outcome; required now holds the capacity.
	default:
		return nil, statusErr(status)
	}

	for attempt := 0; attempt < maxFillAttempts; attempt++ {
		buf := make([]T, required)
		written, newRequired, status, err := q(buf)
		if err != nil {
			return nil, err
		}
		switch cat := Translate(status); cat {
		case "":
			if written > len(buf) {
				// The native call claims more than the provided capacity.
				return nil, errors.WithData(ErrMalformedResponse, written)
			}
			return buf[:written], nil
		case errInsufficientBuffer:
			if newRequired <= required {
				// A shrinking or stuck requirement will never converge.
				return nil, errors.WithData(ErrTransient, newRequired)
			}
			required = newRequired
		default:
			return nil, statusErr(status)
		}
	}

	return nil, errors.WithData(ErrTransient, required)
}
