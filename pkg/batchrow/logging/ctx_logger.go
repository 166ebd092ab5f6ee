package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type loggerWithSkip interface {
	logfWithSkip(skip int, level Level, format string, args ...any)
}

// ContextLogger wraps a base Logger and adds the OpenTelemetry trace ID found in the context, if any, to every entry.
type ContextLogger struct {
	base    Logger
	traceID string
}

// NewContextLogger creates a ContextLogger for the span carried by ctx.
func NewContextLogger(ctx context.Context, base Logger) *ContextLogger {
	var traceID string

	sc := trace.SpanFromContext(ctx).SpanContext()

	if sc.IsValid() {
		traceID = sc.TraceID().String()
	}

	return &ContextLogger{base: base, traceID: traceID}
}

func (l *ContextLogger) withTraceInfo(args ...any) []any {
	if l.traceID != "" {
		return append(args, map[string]any{traceIDKey: l.traceID})
	}

	return args
}

func (l *ContextLogger) logWithSkip(level Level, format string, args ...any) {
	if ls, ok := l.base.(loggerWithSkip); ok {
		// skip=3: logfWithSkip(0) -> logWithSkip(1) -> Debug/Info(2) -> user code(3)
		ls.logfWithSkip(3, level, format, l.withTraceInfo(args...)...)

		return
	}

	args = l.withTraceInfo(args...)

	switch level {
	case DEBUG:
		if format == "" {
			l.base.Debug(args...)
		} else {
			l.base.Debugf(format, args...)
		}
	case INFO:
		if format == "" {
			l.base.Info(args...)
		} else {
			l.base.Infof(format, args...)
		}
	case NOTICE:
		if format == "" {
			l.base.Notice(args...)
		} else {
			l.base.Noticef(format, args...)
		}
	case WARN:
		if format == "" {
			l.base.Warn(args...)
		} else {
			l.base.Warnf(format, args...)
		}
	case ERROR:
		if format == "" {
			l.base.Error(args...)
		} else {
			l.base.Errorf(format, args...)
		}
	}
}

func (l *ContextLogger) Debug(args ...any)             { l.logWithSkip(DEBUG, "", args...) }
func (l *ContextLogger) Debugf(f string, args ...any)  { l.logWithSkip(DEBUG, f, args...) }
func (l *ContextLogger) Log(args ...any)               { l.logWithSkip(INFO, "", args...) }
func (l *ContextLogger) Logf(f string, args ...any)    { l.logWithSkip(INFO, f, args...) }
func (l *ContextLogger) Info(args ...any)              { l.logWithSkip(INFO, "", args...) }
func (l *ContextLogger) Infof(f string, args ...any)   { l.logWithSkip(INFO, f, args...) }
func (l *ContextLogger) Notice(args ...any)            { l.logWithSkip(NOTICE, "", args...) }
func (l *ContextLogger) Noticef(f string, args ...any) { l.logWithSkip(NOTICE, f, args...) }
func (l *ContextLogger) Warn(args ...any)              { l.logWithSkip(WARN, "", args...) }
func (l *ContextLogger) Warnf(f string, args ...any)   { l.logWithSkip(WARN, f, args...) }
func (l *ContextLogger) Error(args ...any)             { l.logWithSkip(ERROR, "", args...) }
func (l *ContextLogger) Errorf(f string, args ...any)  { l.logWithSkip(ERROR, f, args...) }
func (l *ContextLogger) ChangeLevel(level Level)       { l.base.ChangeLevel(level) }
