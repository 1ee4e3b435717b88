package ports

import "fmt"

// LogLevel is the minimum severity a Logger emits.
type LogLevel int

const (
	// LevelDebug covers per-frame and per-set details (drops, writes).
	LevelDebug LogLevel = iota
	// LevelInfo covers lifecycle transitions and progress.
	LevelInfo
	// LevelWarn covers recoverable problems such as partial sets or failed writes.
	LevelWarn
	// LevelError covers fatal conditions that stop capture.
	LevelError
	// LevelQuiet suppresses all output.
	LevelQuiet
)

// String returns the flag name of the level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelQuiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses a flag or config value.
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "quiet":
		return LevelQuiet, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is the leveled, translatable logger every component receives.
// msg is a printf-style message key looked up in the l10n catalog.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithComponent returns a Logger that tags lines with the component name.
	WithComponent(component string) Logger
}
