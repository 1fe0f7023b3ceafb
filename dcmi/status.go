package dcmi

import (
	"codeberg.org/ferrule/dcmictl/internal/errors"
)

// ErrorCode is the category attached to every error this package returns.
type ErrorCode = errors.ErrorCode

// Error taxonomy. Every failure surfaces as exactly one of these categories;
// raw native codes never escape except as diagnostic data on
// ErrUnrecognized.
const (
	ErrAlreadyInitialized = errors.ErrorCode("dcmi_already_initialized")
	ErrNotInitialized     = errors.ErrorCode("dcmi_not_initialized")
	ErrInvalidated        = errors.ErrorCode("dcmi_handle_invalidated")
	ErrInvalidParameter   = errors.ErrorCode("dcmi_invalid_parameter")
	ErrInvalidHandle      = errors.ErrorCode("dcmi_invalid_handle")
	ErrPermissionDenied   = errors.ErrorCode("dcmi_permission_denied")
	ErrResourceBusy       = errors.ErrorCode("dcmi_resource_busy")
	ErrUnsupported        = errors.ErrorCode("dcmi_unsupported")
	ErrTimeout            = errors.ErrorCode("dcmi_timeout")
	ErrTransient          = errors.ErrorCode("dcmi_transient")
	ErrMalformedResponse  = errors.ErrorCode("dcmi_malformed_response")
	ErrDeviceUnavailable  = errors.ErrorCode("dcmi_device_unavailable")
	ErrInternal           = errors.ErrorCode("dcmi_internal_failure")
	ErrUnrecognized       = errors.ErrorCode("dcmi_unrecognized_status")

	// errInsufficientBuffer is the retry signal of the two-call size/fill
	// protocol. The buffer negotiator consumes it; callers never see it.
	errInsufficientBuffer = errors.ErrorCode("dcmi_insufficient_buffer")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrAlreadyInitialized: "Library already initialized",
		ErrNotInitialized:     "Library not initialized",
		ErrInvalidated:        "Handle invalidated by shutdown",
		ErrInvalidParameter:   "Invalid parameter",
		ErrInvalidHandle:      "Invalid card or device identifier",
		ErrPermissionDenied:   "Operation not permitted",
		ErrResourceBusy:       "Device resource busy",
		ErrUnsupported:        "Not supported on this hardware or firmware",
		ErrTimeout:            "Native call timed out",
		ErrTransient:          "Result set kept changing during retrieval",
		ErrMalformedResponse:  "Native record shorter than declared layout",
		ErrDeviceUnavailable:  "Device no longer present",
		ErrInternal:           "Native library internal failure",
		ErrUnrecognized:       "Unrecognized native status code",
		errInsufficientBuffer: "Provided buffer too small",
	})
}

// Translate maps a raw native status code to its error category. It is total:
// every int32 input yields a defined category, with StatusOK mapping to the
// empty code.
func Translate(code int32) ErrorCode {
	switch code {
	case StatusOK:
		return ""
	case StatusInvalidParameter:
		return ErrInvalidParameter
	case StatusNotPermitted:
		return ErrPermissionDenied
	case StatusInvalidDeviceID:
		return ErrInvalidHandle
	case StatusDeviceNotExist:
		return ErrDeviceUnavailable
	case StatusResourceOccupied, StatusNotReady, StatusIsUpgrading:
		return ErrResourceBusy
	case StatusNotSupport, StatusNotSupportInContainer:
		return ErrUnsupported
	case StatusTimeout:
		return ErrTimeout
	case StatusBufferTooSmall:
		return errInsufficientBuffer
	case StatusMemOperateFail, StatusSecureFuncFail, StatusInnerErr,
		StatusIoctlFail, StatusSendMsgFail, StatusRecvMsgFail,
		StatusResetFail, StatusAbortOperate:
		return ErrInternal
	default:
		return ErrUnrecognized
	}
}

// statusErr converts a raw status code into an error, or nil on success. The
// raw code rides along as diagnostic data.
func statusErr(code int32) error {
	cat := Translate(code)
	if cat == "" {
		return nil
	}
	return errors.WithData(cat, code)
}

// CodeOf extracts the error category from err; empty when err is nil or
// foreign.
func CodeOf(err error) ErrorCode {
	return errors.CodeOf(err)
}

// RawStatus recovers the native status code preserved on a translated error.
// The second return is false when err carries no raw code.
func RawStatus(err error) (int32, bool) {
	var appErr errors.Error
	if !errors.As(err, &appErr) {
		return 0, false
	}
	code, ok := appErr.Data().(int32)
	return code, ok
}
