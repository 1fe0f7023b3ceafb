package errors

// Shared error codes used across packages. Domain packages declare their own
// codes next to the code that raises them.
const (
	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
)

var errorMessages = map[ErrorCode]string{
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrInvalidLogLevel: "Invalid log level",
}

// Message returns the default message for a code. Codes without a registered
// message fall back to the code itself.
func Message(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return string(code)
}

// RegisterMessages adds default messages for domain-specific codes. Later
// registrations win on conflict.
func RegisterMessages(msgs map[ErrorCode]string) {
	for code, msg := range msgs {
		errorMessages[code] = msg
	}
}
