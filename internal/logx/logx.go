// Package logx provides the debug logging hook shared by all components.
// Debug output is disabled unless ENSEMBLE_DEBUG is set or SetDebug is called.
package logx

import (
	"log"
	"os"
	"sync/atomic"
)

var debugEnabled atomic.Bool

func init() {
	if os.Getenv("ENSEMBLE_DEBUG") != "" {
		debugEnabled.Store(true)
	}
}

// SetDebug enables or disables debug logging at runtime.
func SetDebug(on bool) {
	debugEnabled.Store(on)
}

// Enabled reports whether debug logging is active.
func Enabled() bool {
	return debugEnabled.Load()
}

// Debugf writes a debug line when debug logging is enabled.
// Components prefix their messages with a [component] tag.
func Debugf(format string, args ...interface{}) {
	if debugEnabled.Load() {
		log.Printf(format, args...)
	}
}
