// Package logging builds the zerolog.Logger flowctl's CLI and core
// packages share. Glyph-prefixed messages (□ in progress, ✓ done,
// ✗ failed) stay in the message text, routed through a structured
// logger so fields like job ID and module name travel with the line
// instead of being interpolated into it.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a console-formatted logger for interactive/TTY use when
// json is false, or a line-delimited JSON logger (for CI/non-TTY use)
// when json is true. level is parsed via zerolog.ParseLevel; an
// unrecognized level falls back to info.
func New(w io.Writer, level string, json bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}

	var out io.Writer = w
	if !json {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: false}
	}

	return zerolog.New(out).Level(parsed).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, for tests and
// library callers that do not want flowctl's log output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
