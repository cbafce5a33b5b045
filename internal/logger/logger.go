package logger

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New returns the process logger. Log lines go to stderr so stdout stays
// reserved for tables and JSON output; a console writer is used when stderr
// is a terminal.
func New() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return log.Level(zerolog.InfoLevel)
}
