package dcmi

import (
	"bytes"
	"sync"
	"sync/atomic"

	"codeberg.org/ferrule/dcmictl/internal/errors"
	"github.com/rs/zerolog"
)

// libState is the lifecycle state machine: Uninitialized -> Ready ->
// ShuttingDown -> Uninitialized.
type libState int32

const (
	stateUninitialized libState = iota
	stateReady
	stateShuttingDown
)

func (s libState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateReady:
		return "ready"
	case stateShuttingDown:
		return "shutting-down"
	default:
		return "invalid"
	}
}

// validityToken proves that the Ready period a handle was created in is
// still live. Shutdown revokes the token; handles holding it fail their next
// operation with ErrInvalidated instead of reaching the native library.
// Tokens are weak: they never keep the library Ready.
type validityToken struct {
	revoked atomic.Bool
}

// Only one Library may be Ready at a time; the native library is a process
// singleton even when multiple Library values exist (tests create several).
var (
	activeMu sync.Mutex
	active   *Library
)

// Library is the lifecycle guard over one native call surface. The zero
// value is not usable; construct with New.
//
// All native dispatch is serialized through a single lock: the vendor
// library is treated as non-reentrant until documented otherwise.
type Library struct {
	raw RawAPI
	log zerolog.Logger

	// dispatchMu serializes every native call, including init and shutdown.
	dispatchMu sync.Mutex
	// stateMu guards state and token; always acquired after dispatchMu when
	// both are held.
	stateMu sync.Mutex
	state   libState
	token   *validityToken

	sentinels map[TelemetryClass]Sentinels
}

// Option configures a Library.
type Option func(*Library)

// WithLogger attaches a logger; lifecycle transitions and negotiation
// retries are logged at debug level.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Library) {
		l.log = log
	}
}

// WithSentinels overrides the "not applicable" raw values for one telemetry
// class. Sentinel conventions vary by firmware, so deployments supply them
// alongside the call surface.
func WithSentinels(class TelemetryClass, s Sentinels) Option {
	return func(l *Library) {
		l.sentinels[class] = s
	}
}

// New wraps a native call surface. The library starts uninitialized; no
// native call is made until Init.
func New(raw RawAPI, opts ...Option) *Library {
	l := &Library{
		raw:       raw,
		log:       zerolog.Nop(),
		state:     stateUninitialized,
		sentinels: defaultSentinels(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init transitions the library to Ready, issuing exactly one native init
// call per Ready period. Calling Init on an already-Ready library is a
// no-op returning nil, tolerating concurrent callers. Initializing while a
// different Library is Ready fails with ErrAlreadyInitialized: the native
// state is process-wide.
func (l *Library) Init() error {
	l.dispatchMu.Lock()
	defer l.dispatchMu.Unlock()

	l.stateMu.Lock()
	switch l.state {
	case stateReady:
		l.stateMu.Unlock()
		return nil
	case stateShuttingDown:
		l.stateMu.Unlock()
		return errors.New(ErrResourceBusy)
	}
	l.stateMu.Unlock()

	activeMu.Lock()
	defer activeMu.Unlock()
	if active != nil && active != l {
		return errors.New(ErrAlreadyInitialized)
	}

	if err := statusErr(l.raw.Init()); err != nil {
		return err
	}

	l.stateMu.Lock()
	l.state = stateReady
	l.token = &validityToken{}
	l.stateMu.Unlock()

	active = l

	l.log.Debug().Msg("library initialized")

	return nil
}

// Shutdown transitions Ready -> Uninitialized, revoking every outstanding
// validity token before the native cleanup call. Handles issued during the
// closed Ready period keep working until this point and fail with
// ErrInvalidated afterwards. Shutting down an uninitialized library fails
// with ErrNotInitialized.
func (l *Library) Shutdown() error {
	l.dispatchMu.Lock()
	defer l.dispatchMu.Unlock()

	l.stateMu.Lock()
	if l.state != stateReady {
		st := l.state
		l.stateMu.Unlock()
		if st == stateShuttingDown {
			return errors.New(ErrResourceBusy)
		}
		return errors.New(ErrNotInitialized)
	}
	l.state = stateShuttingDown
	l.token.revoked.Store(true)
	l.stateMu.Unlock()

	err := statusErr(l.raw.Shutdown())

	l.stateMu.Lock()
	l.state = stateUninitialized
	l.token = nil
	l.stateMu.Unlock()

	activeMu.Lock()
	if active == l {
		active = nil
	}
	activeMu.Unlock()

	if err != nil {
		return err
	}
	l.log.Debug().Msg("library shut down")

	return nil
}

// Ready reports whether the library is currently initialized.
func (l *Library) Ready() bool {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.state == stateReady
}

// dispatch runs one native call under the global dispatch lock, after
// verifying the lifecycle gate: the library must be Ready and, when the
// caller holds a validity token, the token must not have been revoked by an
// intervening shutdown. On gate failure the native library is never touched.
func (l *Library) dispatch(tok *validityToken, call func(RawAPI)) error {
	l.dispatchMu.Lock()
	defer l.dispatchMu.Unlock()

	l.stateMu.Lock()
	// Revocation outranks the state check: a stale handle reports that it
	// outlived its Ready period even if the library was initialized again.
	if tok != nil && tok.revoked.Load() {
		l.stateMu.Unlock()
		return errors.New(ErrInvalidated)
	}
	if l.state != stateReady {
		l.stateMu.Unlock()
		return errors.New(ErrNotInitialized)
	}
	l.stateMu.Unlock()

	call(l.raw)

	return nil
}

// currentToken returns the validity token of the live Ready period.
func (l *Library) currentToken() (*validityToken, error) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if l.state != stateReady {
		return nil, errors.New(ErrNotInitialized)
	}
	return l.token, nil
}

// sentinelsFor returns the sentinel configuration for a class.
func (l *Library) sentinelsFor(class TelemetryClass) Sentinels {
	return l.sentinels[class]
}

// DriverVersion queries the native driver version string through the
// size/fill protocol.
func (l *Library) DriverVersion() (string, error) {
	tok, err := l.currentToken()
	if err != nil {
		return "", err
	}

	raw, err := negotiate(func(buf []byte) (int, int, int32, error) {
		var written, required int
		var status int32
		err := l.dispatch(tok, func(api RawAPI) {
			written, required, status = api.DriverVersion(buf)
		})
		return written, required, status, err
	})
	if err != nil {
		return "", err
	}

	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw), nil
}
