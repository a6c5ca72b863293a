// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runtime holds environment variables that shape logging
type Runtime struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	NoColor bool   `env:"NO_COLOR"`
}

// ParseRuntime reads Runtime from the process environment.
func ParseRuntime() (Runtime, error) {
	var rt Runtime
	if err := env.Parse(&rt); err != nil {
		return Runtime{}, fmt.Errorf("parse env: %w", err)
	}
	return rt, nil
}

// Production reports whether APP_ENV selects production output.
func (r Runtime) Production() bool {
	return strings.EqualFold(r.AppEnv, "production")
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup sets the global level and installs the global logger writing to out:
// JSON when format is "json" or APP_ENV is production, console otherwise.
func Setup(level, format string, out io.Writer) (zerolog.Logger, error) {
	rt, err := ParseRuntime()
	if err != nil {
		return log.Logger, err
	}
	if out == nil {
		out = os.Stdout
	}

	zerolog.SetGlobalLevel(ParseLevel(level))

	if format == "json" || rt.Production() {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    rt.NoColor,
		}).With().Timestamp().Logger()
	}
	return log.Logger, nil
}
