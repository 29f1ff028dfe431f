// Package monitoring holds the process-wide diagnostic logger every other
// package writes through, so tests and embedders can redirect or silence
// log output in one place.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, defaulting to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil f silences logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
