package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type Field struct {
	Key   string
	Value interface{}
}

// New builds the process logger. Unknown levels fall back to info, unknown formats to text.
func New(level string, format string) *logrus.Logger {
	log := logrus.New()

	parsedLevel, err := logrus.ParseLevel(level)
	if err != nil {
		parsedLevel = logrus.InfoLevel
	}
	log.SetLevel(parsedLevel)

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		})
	}

	log.SetOutput(os.Stdout)

	return log
}

// Discard returns a logger that drops everything; handy in tests and library callers without logging.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// With attaches structured fields in the Field form used across the services.
func With(log *logrus.Logger, fields ...Field) *logrus.Entry {
	logrusFields := logrus.Fields{}
	for _, f := range fields {
		logrusFields[f.Key] = f.Value
	}
	return log.WithFields(logrusFields)
}
