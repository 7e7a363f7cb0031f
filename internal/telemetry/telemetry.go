// Package telemetry wraps the engine's structured logger.
//
// The audio thread never logs: allocation and the logger's internal mutex
// would both violate realtime constraints. Only the main thread and the
// collector thread hold a *Logger.
package telemetry

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger is the engine's structured logger.
type Logger = log.Logger

// New creates the engine's root logger, writing to stderr with the given
// name as a prefix (e.g. "engine", "collector", "scan").
func New(name string) *Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          name,
	})
	return l
}

// Noop returns a logger discarding all output, for tests.
func Noop() *Logger {
	l := log.NewWithOptions(nil, log.Options{})
	l.SetOutput(discard{})
	return l
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
