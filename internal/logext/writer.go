// Package logext provides a custom [log.Logger] for debug logging.
//
// Logging is controlled by the MEMFRONT_DEBUG environment variable, set to
// "true" to enable debug logging.
package logext

import (
	"io"
	"log"
	"os"
)

// DebugEnvVar is the name of the environment variable that controls debug logging.
const DebugEnvVar = "MEMFRONT_DEBUG"

// NewLogger returns a new logger.
// If the MEMFRONT_DEBUG environment variable is set, it logs messages to the
// provided output. Otherwise, it discards all log messages.
func NewLogger(output io.Writer) *log.Logger {
	if os.Getenv(DebugEnvVar) != "true" {
		output = io.Discard
	}
	return log.New(output, "[memfront] ", log.LstdFlags|log.Lshortfile|log.Lmicroseconds)
}
