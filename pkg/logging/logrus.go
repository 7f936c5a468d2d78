package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logrus represents the logrus logger
type Logrus struct {
	level  string
	format string
	output io.Writer
	fields logrus.Fields
}

// NewLogrus creates a new logrus instance
func NewLogrus(level string, output io.Writer) *Logrus {
	return &Logrus{level: level, format: "text", output: output, fields: logrus.Fields{}}
}

// WithFormat switches between the "text" and "json" formatters.
func (l *Logrus) WithFormat(format string) *Logrus {
	l.format = format
	return l
}

// WithField adds a field to every entry handed out by Get, e.g. the serial number.
func (l *Logrus) WithField(key string, value interface{}) *Logrus {
	l.fields[key] = value
	return l
}

// Get returns a logrus instance based on the specific context
func (l *Logrus) Get(context string) *logrus.Entry {
	log := logrus.New()
	level, err := logrus.ParseLevel(l.level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if l.format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetOutput(l.output)
	fields := logrus.Fields{"Context": context}
	for key, value := range l.fields {
		fields[key] = value
	}

	return log.WithFields(fields)
}
