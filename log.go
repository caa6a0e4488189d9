package zeroconf

import (
	"github.com/sirupsen/logrus"
)

// Logger is the logging facade used by the adapters and the backends.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Trace(args ...interface{})
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	WithField(key string, value interface{}) Logger
	WithError(err error) Logger
}

// NullLogger discards everything.
type NullLogger struct{}

func (l *NullLogger) Tracef(string, ...interface{}) {}
func (l *NullLogger) Debugf(string, ...interface{}) {}
func (l *NullLogger) Infof(string, ...interface{})  {}
func (l *NullLogger) Warnf(string, ...interface{})  {}
func (l *NullLogger) Errorf(string, ...interface{}) {}

func (l *NullLogger) Trace(...interface{}) {}
func (l *NullLogger) Debug(...interface{}) {}
func (l *NullLogger) Info(...interface{})  {}
func (l *NullLogger) Warn(...interface{})  {}
func (l *NullLogger) Error(...interface{}) {}

func (l *NullLogger) WithField(string, interface{}) Logger { return l }
func (l *NullLogger) WithError(error) Logger               { return l }

// LogrusAdapter implements Logger on top of a logrus entry.
type LogrusAdapter struct {
	Log *logrus.Entry
}

// NewLogrusLogger wraps entry, a nil entry uses the standard logger.
func NewLogrusLogger(entry *logrus.Entry) Logger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return LogrusAdapter{Log: entry}
}

func defaultLogger() Logger {
	return NewLogrusLogger(logrus.WithField("module", "zeroconf"))
}

// loggerOrNull turns a nil logger into a NullLogger.
func loggerOrNull(log Logger) Logger {
	if log == nil {
		return &NullLogger{}
	}
	return log
}

func (l LogrusAdapter) Tracef(format string, args ...interface{}) { l.Log.Tracef(format, args...) }
func (l LogrusAdapter) Debugf(format string, args ...interface{}) { l.Log.Debugf(format, args...) }
func (l LogrusAdapter) Infof(format string, args ...interface{})  { l.Log.Infof(format, args...) }
func (l LogrusAdapter) Warnf(format string, args ...interface{})  { l.Log.Warnf(format, args...) }
func (l LogrusAdapter) Errorf(format string, args ...interface{}) { l.Log.Errorf(format, args...) }

func (l LogrusAdapter) Trace(args ...interface{}) { l.Log.Trace(args...) }
func (l LogrusAdapter) Debug(args ...interface{}) { l.Log.Debug(args...) }
func (l LogrusAdapter) Info(args ...interface{})  { l.Log.Info(args...) }
func (l LogrusAdapter) Warn(args ...interface{})  { l.Log.Warn(args...) }
func (l LogrusAdapter) Error(args ...interface{}) { l.Log.Error(args...) }

func (l LogrusAdapter) WithField(key string, value interface{}) Logger {
	return LogrusAdapter{l.Log.WithField(key, value)}
}

func (l LogrusAdapter) WithError(err error) Logger {
	return LogrusAdapter{l.Log.WithError(err)}
}
