// Package logging configures the global zerolog logger for the binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	Level      string `mapstructure:"log-level"`
	Format     string `mapstructure:"log-format"`
	WithCaller bool   `mapstructure:"with-caller"`
}

func DefaultSettings() Settings {
	return Settings{Level: "info", Format: "auto"}
}

// Init replaces log.Logger according to s. Logs go to w, os.Stderr when nil.
// Format is one of json, console or auto (console on a terminal, json otherwise).
func Init(s Settings, w io.Writer) error {
	if w == nil {
		w = os.Stderr
	}
	level := strings.ToLower(strings.TrimSpace(s.Level))
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", s.Level)
	}

	var out io.Writer
	switch strings.ToLower(s.Format) {
	case "json":
		out = w
	case "console":
		out = newConsoleWriter(w)
	case "", "auto":
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			out = newConsoleWriter(w)
		} else {
			out = w
		}
	default:
		return errors.Errorf("unsupported log format %q", s.Format)
	}

	zerolog.SetGlobalLevel(lvl)
	ctx := zerolog.New(out).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}

func newConsoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
}
