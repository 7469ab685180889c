// Package observability owns logging setup and the prometheus metrics
// exported by the protocol stack.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-wide console logger and returns it.
func InitLogger(app string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// NopLogger returns a logger that discards everything, for components
// constructed without a caller-supplied logger.
func NopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
