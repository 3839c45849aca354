package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel represents an enumeration of log levels
type LogLevel int32

const (
	Critical LogLevel = 50
	Fatal    LogLevel = Critical
	Error    LogLevel = 40
	Warning  LogLevel = 30
	Info     LogLevel = 20
	Debug    LogLevel = 10
	NotSet   LogLevel = 0
)

// ParseLogLevel maps a level name to a LogLevel. Unknown names yield Warning
// and an error.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn", "warning":
		return Warning, nil
	case "error":
		return Error, nil
	case "critical", "fatal":
		return Critical, nil
	}
	return Warning, fmt.Errorf("unknown log level %q", s)
}

// defaultLevel reads LOG_LEVEL, falling back to Warning.
func defaultLevel() LogLevel {
	lvl, err := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return Warning
	}
	return lvl
}

// Logger is a leveled key/value logger for background workers. Loggers
// derived with With share the parent's level.
type Logger struct {
	prefix string
	fields []interface{}
	logger *log.Logger
	level  *atomic.Int32
}

// NewLogger creates a new logger with a given prefix. The level defaults to
// LOG_LEVEL or Warning.
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	lvl := defaultLevel()
	if len(logLevel) > 0 {
		lvl = logLevel[0]
	}
	l := &Logger{
		prefix: prefix,
		logger: log.New(os.Stdout, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		level:  new(atomic.Int32),
	}
	l.level.Store(int32(lvl))
	return l
}

// With returns a logger that appends keyvals to every message.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keyvals))
	fields = append(fields, l.fields...)
	fields = append(fields, keyvals...)
	return &Logger{prefix: l.prefix, fields: fields, logger: l.logger, level: l.level}
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.level.Store(int32(logLevel))
}

// SetOutput redirects the logger, mainly for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

func (l *Logger) enabled(lvl LogLevel) bool {
	return LogLevel(l.level.Load()) <= lvl
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	if l.enabled(Info) {
		l.logger.Println(l.formatMessage("INFO", msg, keyvals...))
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	if l.enabled(Error) {
		l.logger.Println(l.formatMessage("ERROR", msg, keyvals...))
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	if l.enabled(Warning) {
		l.logger.Println(l.formatMessage("WARN", msg, keyvals...))
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	if l.enabled(Debug) {
		l.logger.Println(l.formatMessage("DEBUG", msg, keyvals...))
	}
}

// formatMessage formats a message with key-value pairs. A trailing key
// without a value is printed as key=<missing>.
func (l *Logger) formatMessage(level, msg string, keyvals ...interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	write := func(kv []interface{}) {
		for i := 0; i < len(kv); i += 2 {
			if i+1 < len(kv) {
				fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
			} else {
				fmt.Fprintf(&b, " %v=<missing>", kv[i])
			}
		}
	}
	write(l.fields)
	write(keyvals)
	return b.String()
}
