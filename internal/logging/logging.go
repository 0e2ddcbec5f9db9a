// Package logging builds the process logger.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/bit-cook/ZSWatch/internal/config"
)

// New returns a logger writing to out at level ("debug", "info", "warn",
// "error") in format ("text" or "json").
func New(level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(config.ParseLogLevel(level))

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
			DisableColors:    true,
		})
	}
	return l
}
