// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs a logger at the given level as log.Logger, and as the
// fallback for log.Ctx, and returns it.
// Unknown levels fall back to info. When pretty is set output goes through
// a console writer on stderr, otherwise JSON lines on stdout.
func Setup(level string, pretty bool) zerolog.Logger {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return setup(out, level)
}

func setup(out io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	l := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	if err != nil {
		l.Warn().Str("configured_level", level).Msg("invalid log level, using info")
	}
	return l
}
