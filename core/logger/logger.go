package logger

// Fields carries structured key/value pairs attached to a log line.
type Fields map[string]any

// Logger exposes leveled logging for the scheduling components.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields Fields)
	Infof(format string, args ...any)
	// Infow logs a message with structured fields.
	Infow(msg string, fields Fields)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Debugw(string, Fields) {}
func (Nop) Infof(string, ...any)  {}
func (Nop) Infow(string, Fields)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}
