// Package monitoring holds the diagnostic logger shared by the clutter
// pipeline and its adapters.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

var (
	mu sync.RWMutex

	// Logf is the package-level diagnostic logger. It defaults to log.Printf
	// and may be replaced by SetLogger, e.g. to mute it in tests.
	Logf func(format string, v ...interface{}) = log.Printf
)

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Tagged returns a printf-style logger that prefixes each line with
// "[component] ". The current Logf is looked up on every call, so a later
// SetLogger also redirects loggers created earlier.
func Tagged(component string) func(format string, v ...interface{}) {
	prefix := fmt.Sprintf("[%s] ", component)
	return func(format string, v ...interface{}) {
		mu.RLock()
		f := Logf
		mu.RUnlock()
		f(prefix+format, v...)
	}
}
