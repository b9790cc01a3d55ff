// Package logging provides the default Logger implementation over the
// standard library's log package, adapted from the teacher's
// infrastructure/logging.LogLogger.
package logging

import (
	"log"

	"tcpms/application"
)

type LogLogger struct{}

func NewLogLogger() application.Logger {
	return &LogLogger{}
}

func (l LogLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// Discard is a Logger that drops everything, useful for tests that don't
// want protocol-internal noise in their output.
type Discard struct{}

func NewDiscard() application.Logger { return &Discard{} }

func (Discard) Printf(string, ...any) {}
