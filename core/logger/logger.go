package logger

// Logger is the logging facade used across fleettrack. Every implementation
// tags its lines with the component it was created for.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	// With returns a child logger carrying the given fields on every line.
	With(fields map[string]any) Logger
}
