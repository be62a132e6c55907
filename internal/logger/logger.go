// Package logger provides leveled logging for the importer CLI.
// Debug, Info and Section output is only printed when verbose mode is
// enabled via the --verbose flag. Warnings and errors are always printed
// so that skipped backups and failed uploads are visible.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	logf(true, "[DEBUG] ", format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	logf(true, "[INFO] ", format, args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	logf(false, "[WARN] ", format, args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	logf(false, "[ERROR] ", format, args...)
}

func logf(verboseOnly bool, level, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verboseOnly && !verbose {
		return
	}
	fmt.Fprintf(output, level+format+"\n", args...)
}

// Scoped prefixes every message with a component name.
type Scoped struct {
	prefix string
}

// WithPrefix returns a logger that prefixes messages with "name: ".
func WithPrefix(name string) Scoped {
	return Scoped{prefix: name + ": "}
}

// Debug prints a prefixed debug message.
func (s Scoped) Debug(format string, args ...any) {
	Debug(s.prefix+format, args...)
}

// Info prints a prefixed informational message.
func (s Scoped) Info(format string, args ...any) {
	Info(s.prefix+format, args...)
}

// Warn prints a prefixed warning.
func (s Scoped) Warn(format string, args ...any) {
	Warn(s.prefix+format, args...)
}

// Error prints a prefixed error.
func (s Scoped) Error(format string, args ...any) {
	Error(s.prefix+format, args...)
}
