package bitmap

import "github.com/srediag/plugin-bitmap/internal/logging"

// Log levels accepted by SetLogLevel.
const (
	LogLevelTrace   = logging.LevelTrace
	LogLevelDebug   = logging.LevelDebug
	LogLevelInfo    = logging.LevelInfo
	LogLevelWarn    = logging.LevelWarn
	LogLevelError   = logging.LevelError
	LogLevelNoPrint = logging.LevelNoPrint
)

// SetLogLevel sets the level of the package's internal logger. The default
// comes from BITMAP_LOG_LEVEL and is warn.
func SetLogLevel(level int) {
	logging.SetLogLevel(level)
}

// LogLevel returns the current level of the internal logger.
func LogLevel() int {
	return logging.Level()
}
