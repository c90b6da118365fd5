// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stderr. Unknown levels fall back to info;
// format "json" selects the JSON formatter, anything else text.
func New(level, format string) *logrus.Logger {
	return newTo(os.Stderr, level, format)
}

func newTo(w io.Writer, level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// FromEnv reads LOG_LEVEL (default info) and LOG_FORMAT (json|text).
func FromEnv() *logrus.Logger {
	level, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		level = "info"
	}
	return New(level, os.Getenv("LOG_FORMAT"))
}
