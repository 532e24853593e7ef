package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/config"
)

// newLogger builds the component-scoped zerolog.Logger every package below
// cmd/ logs through, per cfg.Logging.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out *os.File = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	if cfg.JSONFormat {
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
}
