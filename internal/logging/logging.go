// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cxd309/transit-engine/internal/simerr"
)

// Output formats accepted by Setup.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup sets the level and formatter of the standard logger. Output goes to
// stderr so stdout stays free for simulation output.
func Setup(level, format string) error {
	return configure(log.StandardLogger(), os.Stderr, level, format)
}

// Component returns an entry tagged with the component name.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}

func configure(l *log.Logger, out io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, simerr.ErrInvalidInput)
	}

	switch strings.ToLower(format) {
	case "", FormatText:
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		l.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("log format %q: %w", format, simerr.ErrInvalidInput)
	}
	l.SetLevel(lvl)
	l.SetOutput(out)
	return nil
}
