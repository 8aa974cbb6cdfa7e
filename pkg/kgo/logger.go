package kgo

import "github.com/sirupsen/logrus"

// LogLevel mirrors the teacher client's injectable logging levels.
type LogLevel int8

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// Logger is the injectable logging interface every internal component
// logs through; the only concrete logging library this package imports
// is logrus, used solely by the NewLogrusLogger adapter below.
type Logger interface {
	Level() LogLevel
	// Log emits one structured line at level with msg and an even-length
	// list of alternating key/value pairs, mirroring the teacher's
	// logger.Log(level, msg, "key", val, ...) call sites.
	Log(level LogLevel, msg string, keyvals ...any)
}

// nopLogger discards everything; it's the default when no Logger is
// configured.
type nopLogger struct{}

func (nopLogger) Level() LogLevel                        { return LogLevelNone }
func (nopLogger) Log(LogLevel, string, ...any) {}

// NewLogrusLogger adapts a *logrus.Logger to the Logger interface, at the
// given maximum level.
func NewLogrusLogger(l *logrus.Logger, level LogLevel) Logger {
	return &logrusLogger{l: l, level: level}
}

type logrusLogger struct {
	l     *logrus.Logger
	level LogLevel
}

func (lg *logrusLogger) Level() LogLevel { return lg.level }

func (lg *logrusLogger) Log(level LogLevel, msg string, keyvals ...any) {
	if level > lg.level {
		return
	}
	fields := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyvals[i+1]
	}
	entry := lg.l.WithFields(fields)
	switch level {
	case LogLevelError:
		entry.Error(msg)
	case LogLevelWarn:
		entry.Warn(msg)
	case LogLevelInfo:
		entry.Info(msg)
	case LogLevelDebug:
		entry.Debug(msg)
	}
}
