package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logger writing to stdout with the given level and format
// ("text" or "json"). Unknown levels fall back to info.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(level, format, os.Stdout)
}

// NewWithOutput is New with an explicit writer.
func NewWithOutput(level, format string, out io.Writer) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	logger.SetOutput(out)

	return logger
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *logrus.Logger {
	return NewWithOutput("panic", "text", io.Discard)
}

// Component returns an entry tagged with the emitting component.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}
