package logger

// Level is a logging severity independent of the backing library
type Level int8

const (
	Disabled   Level = -1   // Disabled turns logging off.
	TraceLevel Level = iota // TraceLevel is used for wire level details.
	DebugLevel              // DebugLevel is used for decision internals.
	InfoLevel               // InfoLevel is used for decisions and broker requests.
	WarnLevel               // WarnLevel is used for skipped cycles.
	ErrorLevel              // ErrorLevel is used for failed cycles and rejected orders.
	FatalLevel              // FatalLevel logs and exits the process.
	NoLevel                 // NoLevel is used for unlevelled output.
)

// Logger is the logging surface every package depends on
type Logger interface {
	WithField(key string, value any) Logger  // WithField returns a logger with the given key-value pair.
	WithFields(fields map[string]any) Logger // WithFields returns a logger with the given fields.
	WithError(err error) Logger              // WithError returns a logger carrying the error.

	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)

	SetLevel(level Level)
	GetLevel() Level
}
