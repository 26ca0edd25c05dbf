package logger

import (
	"fmt"
	"strings"
	"sync"
)

// Appender is a per-scenario log sink. Log lines written through a scenario
// Logger accumulate here until drained into a step result.
type Appender interface {
	// Append records one log line.
	Append(line string)
	// Collect drains and returns everything appended since the last call.
	Collect() string
	// Close releases the sink. Appends after Close are dropped.
	Close()
}

// StringAppender buffers log lines in memory.
type StringAppender struct {
	mu     sync.Mutex
	buf    strings.Builder
	closed bool
}

// NewStringAppender creates an empty in-memory appender.
func NewStringAppender() *StringAppender {
	return &StringAppender{}
}

// Append records one log line.
func (a *StringAppender) Append(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.buf.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		a.buf.WriteByte('\n')
	}
}

// Collect drains the buffer.
func (a *StringAppender) Collect() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.buf.String()
	a.buf.Reset()
	return s
}

// Close releases the buffer to reclaim memory.
func (a *StringAppender) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.buf.Reset()
}

// NopAppender discards everything. Used in performance mode where log
// capture would dominate memory.
type NopAppender struct{}

// Append discards the line.
func (NopAppender) Append(string) {}

// Collect returns "".
func (NopAppender) Collect() string { return "" }

// Close is a no-op.
func (NopAppender) Close() {}

// Logger is a scenario-scoped logger that tees into the global log and the
// scenario's capture appender.
type Logger struct {
	appender Appender
}

// New creates a scenario logger bound to the given appender.
func New(appender Appender) *Logger {
	if appender == nil {
		appender = NopAppender{}
	}
	return &Logger{appender: appender}
}

// SetAppender rebinds the capture sink.
func (l *Logger) SetAppender(appender Appender) {
	if appender == nil {
		appender = NopAppender{}
	}
	l.appender = appender
}

// Appender returns the current capture sink.
func (l *Logger) Appender() Appender {
	return l.appender
}

func (l *Logger) emit(level, format string, v ...interface{}) {
	line := fmt.Sprintf("["+level+"] "+format, v...)
	l.appender.Append(line)
	output(level, format, v...)
}

// Info logs an info message.
func (l *Logger) Info(format string, v ...interface{}) { l.emit("INFO", format, v...) }

// Debug logs a debug message.
func (l *Logger) Debug(format string, v ...interface{}) { l.emit("DEBUG", format, v...) }

// Warn logs a warning message.
func (l *Logger) Warn(format string, v ...interface{}) { l.emit("WARN", format, v...) }

// Error logs an error message.
func (l *Logger) Error(format string, v ...interface{}) { l.emit("ERROR", format, v...) }

// Print logs raw text with no level prefix, for user-facing print steps.
func (l *Logger) Print(text string) {
	l.appender.Append(text)
	output("INFO", "%s", text)
}
