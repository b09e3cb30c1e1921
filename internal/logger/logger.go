package logger

import (
	"io"
	"log"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

// Logger is a small leveled wrapper over the standard library logger. Tasks
// log through tagged children so every line carries its origin.
type Logger struct {
	logger *log.Logger
	level  LogLevel
	tag    string
}

// NewLogger wraps base at the given level. A nil base discards all output.
func NewLogger(base *log.Logger, level LogLevel) *Logger {
	if base == nil {
		base = log.New(io.Discard, "", 0)
	}
	return &Logger{
		logger: base,
		level:  level,
	}
}

// WithTag creates a child logger whose lines are prefixed with [tag].
func (l *Logger) WithTag(tag string) *Logger {
	return &Logger{
		logger: l.logger,
		level:  l.level,
		tag:    tag,
	}
}

func (l *Logger) formatMessage(level string, format string) string {
	msg := format
	if level != "" {
		msg = level + " " + msg
	}
	if l.tag != "" {
		msg = "[" + l.tag + "] " + msg
	}
	return msg
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.logger.Printf(l.formatMessage("DEBUG:", format), v...)
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.logger.Printf(l.formatMessage("", format), v...)
	}
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.level >= LogLevelWarning {
		l.logger.Printf(l.formatMessage("WARN:", format), v...)
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.logger.Printf(l.formatMessage("ERROR:", format), v...)
	}
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf(l.formatMessage("FATAL:", format), v...)
}
