package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process-wide root logger. Services derive component
// loggers from it with With().Str("component", ...).
func New(service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
