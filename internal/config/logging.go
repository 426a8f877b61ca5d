package config

import (
	"os"

	"github.com/phuslu/log"
)

// SetupLogging configures the package-level phuslu logger. Human-readable
// console output on a terminal, JSON lines otherwise.
func SetupLogging(level string) {
	logger := log.Logger{
		Level:      log.ParseLevel(level),
		Caller:     1,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Writer:     &log.IOWriter{Writer: os.Stderr},
	}
	if log.IsTerminal(os.Stderr.Fd()) {
		logger.TimeFormat = "15:04:05"
		logger.Writer = &log.ConsoleWriter{ColorOutput: true, EndWithMessage: true}
	}
	log.DefaultLogger = logger
}
