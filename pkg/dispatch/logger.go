package dispatch

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// watermillLogger adapts a logrus.FieldLogger to watermill's LoggerAdapter.
type watermillLogger struct {
	log logrus.FieldLogger
}

func newWatermillLogger(log logrus.FieldLogger) watermill.LoggerAdapter {
	return &watermillLogger{log: log.WithField("component", "watermill")}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.withFields(fields).WithError(err).Error(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.withFields(fields).Info(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.withFields(fields).Debug(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	// logrus.FieldLogger has no trace level; debug is the closest match.
	l.withFields(fields).Debug(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.withFields(fields)}
}

func (l *watermillLogger) withFields(fields watermill.LogFields) logrus.FieldLogger {
	log := l.log
	for k, v := range fields {
		log = log.WithField(k, v)
	}

	return log
}
