// Package logger provides a configured zerolog logger.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a structured logger tagged with the service name.
func New(service string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().
		Str("service", service).
		Timestamp().
		Logger()
}
