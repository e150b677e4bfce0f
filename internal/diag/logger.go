package diag

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the process-wide logger. It is a no-op logger unless
// SetLogger was called first.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger replaces the process-wide logger. Call it before any resolution work.
func SetLogger(l *zap.Logger) {
	logger = l
}

type logSink struct {
	log *zap.Logger
}

// LogSink writes each diagnostic to log at a level matching its severity.
func LogSink(log *zap.Logger) Sink {
	if log == nil {
		log = Logger()
	}
	return logSink{log: log}
}

func (s logSink) Report(d Diagnostic) {
	fields := []zap.Field{zap.String("code", d.Code)}
	if d.Span.File != "" {
		fields = append(fields, zap.String("file", d.Span.File), zap.Int("line", d.Span.Line), zap.Int("column", d.Span.Column))
	}
	if d.Hint != "" {
		fields = append(fields, zap.String("hint", d.Hint))
	}
	if ce := s.log.Check(levelFor(d.Severity), d.Message); ce != nil {
		ce.Write(fields...)
	}
}

func levelFor(severity Severity) zapcore.Level {
	switch severity {
	case SeverityError:
		return zapcore.ErrorLevel
	case SeverityWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
