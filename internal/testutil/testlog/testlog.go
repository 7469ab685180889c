// Package testlog provides test-scoped loggers: silent by default,
// console output when SCANLINK_TEST_LOG is set.
package testlog

import (
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/scanlink/internal/observability"
)

func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	if os.Getenv("SCANLINK_TEST_LOG") != "" {
		return zerolog.New(zerolog.NewConsoleWriter()).With().Str("test", t.Name()).Logger()
	}
	return observability.NopLogger()
}
