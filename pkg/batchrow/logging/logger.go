// Package logging provides the leveled logger used across batchrow. Entries are written as JSON lines, or as
// colored text when the output is a terminal.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/term"
)

const traceIDKey = "__trace_id__"

// PrettyPrint is implemented by log messages that know how to render themselves on a terminal.
type PrettyPrint interface {
	PrettyPrint(writer io.Writer)
}

// Logger is the logging interface used by every batchrow component.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Log(args ...any)
	Logf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Notice(args ...any)
	Noticef(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	ChangeLevel(level Level)
}

type logEntry struct {
	Level   Level     `json:"level"`
	Time    time.Time `json:"time"`
	Message any       `json:"message"`
	TraceID string    `json:"trace_id,omitempty"`
	Caller  string    `json:"caller,omitempty"`
}

type logger struct {
	level      Level
	normalOut  io.Writer
	errorOut   io.Writer
	isTerminal bool
	lock       chan struct{}
}

// NewLogger returns a Logger writing to stdout, and to stderr for ERROR entries.
func NewLogger(level Level) Logger {
	return newLogger(level, os.Stdout, os.Stderr)
}

func newLogger(level Level, out, errOut io.Writer) *logger {
	return &logger{
		level:      level,
		normalOut:  out,
		errorOut:   errOut,
		isTerminal: checkIfTerminal(out),
		lock:       make(chan struct{}, 1),
	}
}

func checkIfTerminal(w io.Writer) bool {
	switch v := w.(type) {
	case *os.File:
		return term.IsTerminal(int(v.Fd()))
	default:
		return false
	}
}

func (l *logger) logf(level Level, format string, args ...any) {
	l.logfWithSkip(3, level, format, args...)
}

func (l *logger) logfWithSkip(skip int, level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	out := l.normalOut
	if level >= ERROR {
		out = l.errorOut
	}

	entry := logEntry{
		Level: level,
		Time:  time.Now(),
	}

	if _, file, line, ok := runtime.Caller(skip); ok {
		entry.Caller = filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	args, entry.TraceID = extractTraceID(args)

	switch {
	case format != "":
		entry.Message = fmt.Sprintf(format, args...)
	case len(args) == 1:
		entry.Message = args[0]
	default:
		entry.Message = fmt.Sprint(args...)
	}

	l.lock <- struct{}{}
	defer func() { <-l.lock }()

	if l.isTerminal {
		l.prettyPrint(&entry, out)

		return
	}

	_ = json.NewEncoder(out).Encode(entry)
}

func extractTraceID(args []any) (rest []any, traceID string) {
	if len(args) == 0 {
		return args, ""
	}

	m, ok := args[len(args)-1].(map[string]any)
	if !ok {
		return args, ""
	}

	id, ok := m[traceIDKey].(string)
	if !ok {
		return args, ""
	}

	return args[:len(args)-1], id
}

func (*logger) prettyPrint(e *logEntry, out io.Writer) {
	fmt.Fprintf(out, "\u001B[38;5;%dm%s\u001B[0m [%s] ", e.Level.color(), e.Level.String()[0:4],
		e.Time.Format(time.TimeOnly))

	if e.TraceID != "" {
		fmt.Fprintf(out, "\u001B[38;5;8m%s\u001B[0m ", e.TraceID)
	}

	if fn, ok := e.Message.(PrettyPrint); ok {
		fn.PrettyPrint(out)

		return
	}

	fmt.Fprintf(out, "%v\n", e.Message)
}

func (l *logger) Debug(args ...any)                  { l.logf(DEBUG, "", args...) }
func (l *logger) Debugf(format string, args ...any)  { l.logf(DEBUG, format, args...) }
func (l *logger) Log(args ...any)                    { l.logf(INFO, "", args...) }
func (l *logger) Logf(format string, args ...any)    { l.logf(INFO, format, args...) }
func (l *logger) Info(args ...any)                   { l.logf(INFO, "", args...) }
func (l *logger) Infof(format string, args ...any)   { l.logf(INFO, format, args...) }
func (l *logger) Notice(args ...any)                 { l.logf(NOTICE, "", args...) }
func (l *logger) Noticef(format string, args ...any) { l.logf(NOTICE, format, args...) }
func (l *logger) Warn(args ...any)                   { l.logf(WARN, "", args...) }
func (l *logger) Warnf(format string, args ...any)   { l.logf(WARN, format, args...) }
func (l *logger) Error(args ...any)                  { l.logf(ERROR, "", args...) }
func (l *logger) Errorf(format string, args ...any)  { l.logf(ERROR, format, args...) }

// ChangeLevel updates the minimum level that gets written.
func (l *logger) ChangeLevel(level Level) {
	l.level = level
}
