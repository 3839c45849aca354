package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

const (
	Critical = 50
	Fatal    = Critical
	Error    = 40
	Warning  = 30
	Info     = 20
	Debug    = 10
	NotSet   = 0
)

// level is read on every request path, so it is an atomic rather than a
// mutex-guarded int.
var level atomic.Int32

func init() {
	level.Store(Warning)

	localEnv := os.Getenv("LOCAL")
	if strings.ToLower(localEnv) == "true" || localEnv == "1" {
		SetLogLevel(Debug)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if l, err := ParseLevel(v); err == nil {
			SetLogLevel(l)
		} else {
			log.Printf("[WARN] %v, keeping current level", err)
		}
	}
}

// ParseLevel maps a level name (debug, info, warn, error, critical) to its
// numeric value.
func ParseLevel(s string) (int, error) {
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
	return NotSet, fmt.Errorf("unknown log level %q", s)
}

func SetLogLevel(l int) {
	level.Store(int32(l))
}

func LogLevel() int {
	return int(level.Load())
}

func enabled(l int) bool {
	return int(level.Load()) <= l
}

func Debugf(format string, v ...interface{}) {
	if enabled(Debug) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func Infof(format string, v ...interface{}) {
	if enabled(Info) {
		log.Printf("[INFO] "+format, v...)
	}
}

func Warningf(format string, v ...interface{}) {
	if enabled(Warning) {
		log.Printf("[WARN] "+format, v...)
	}
}

func Errorf(format string, v ...interface{}) {
	if enabled(Error) {
		log.Printf("[ERROR] "+format, v...)
	}
}

func Criticalf(format string, v ...interface{}) {
	if enabled(Critical) {
		log.Printf("[CRITICAL] "+format, v...)
	}
}

func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
