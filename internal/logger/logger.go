package logger

import (
	"os"
	"strings"
	"time"

	"codeberg.org/ferrule/dcmictl/internal/errors"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

// Init configures the process logger. Level is one of debug, info, warning,
// error; unknown values fall back to warning. Service mode drops timestamps
// since the journal adds its own.
func Init(level string, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "error":
		return zerolog.ErrorLevel
	case "warning", "warn", "":
		return zerolog.WarnLevel
	default:
		return zerolog.WarnLevel
	}
}

// IsService reports whether the process appears to run under a service
// manager rather than an interactive shell.
func IsService() bool {
	if os.Getenv("INVOCATION_ID") != "" || os.Getenv("SERVICE_NAME") != "" {
		return true
	}
	return os.Getppid() == 1
}

// Logger returns the configured zerolog logger for packages that take one
// as a dependency.
func Logger() zerolog.Logger {
	return log
}

func Debug() *zerolog.Event { return log.Debug() }

func Info() *zerolog.Event { return log.Info() }

func Warn() *zerolog.Event { return log.Warn() }

func Error() *zerolog.Event { return log.Error() }

func Fatal() *zerolog.Event { return log.Fatal() }

// ErrorWithCode logs an error together with its category code.
func ErrorWithCode(err errors.Error) *zerolog.Event {
	return log.Error().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error())
}
