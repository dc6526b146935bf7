// Package logging provides component-scoped logrus loggers. All output goes to
// stderr because stdout carries responses to the host.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var root = newRoot()

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(os.Getenv("HAN_BRIDGE_LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	}
	return l
}

// NewLogger returns a logger tagged with the given component name.
func NewLogger(component string) *logrus.Entry {
	return root.WithField("component", component)
}

// Configure applies the level and format to every component logger.
func Configure(level, format string) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		root.SetLevel(lvl)
	}

	switch format {
	case "", "text":
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}

// SetOutput redirects all component loggers.
func SetOutput(w io.Writer) {
	root.SetOutput(w)
}
