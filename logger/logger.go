// Package logger provides the ambient structured logging used by the
// pool and driver layers: reaper sweep results, return-time rollback
// failures, partial-fill warnings, and slow-operation reports.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Level is the minimum severity that will be emitted.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

// Format is the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Logger is the interface the pool and driver adapters log through.
type Logger interface {
	SetLevel(level Level)
	SetFormat(format Format)
	SetOutput(w io.Writer)
	WithFields(fields map[string]any) Logger
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	// Op logs a pool/connection operation and its duration, e.g. an
	// execute, prepare or commit on a connection.
	Op(op string, duration time.Duration, detail string)
}

type baseLogger struct {
	level  Level
	format Format
	writer io.Writer
	fields map[string]any
}

func (l *baseLogger) SetLevel(level Level)   { l.level = level }
func (l *baseLogger) SetFormat(format Format) { l.format = format }
func (l *baseLogger) SetOutput(w io.Writer)   { l.writer = w }

func (l *baseLogger) clone() *baseLogger {
	fields := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &baseLogger{level: l.level, format: l.format, writer: l.writer, fields: fields}
}

// stdLogger is the default Logger implementation.
type stdLogger struct {
	baseLogger
}

// New creates a logger that writes text-formatted lines to os.Stderr at
// LevelInfo, matching the teacher's default logger posture.
func New() Logger {
	return &stdLogger{baseLogger: baseLogger{
		level:  LevelInfo,
		format: FormatText,
		writer: os.Stderr,
		fields: make(map[string]any),
	}}
}

// Discard is a Logger that drops everything. Useful as a pool default
// when the caller hasn't configured logging and doesn't want stderr
// noise from the reaper.
func Discard() Logger {
	l := New().(*stdLogger)
	l.SetLevel(LevelSilent)
	return l
}

func (l *stdLogger) WithFields(fields map[string]any) Logger {
	nl := &stdLogger{baseLogger: *l.clone()}
	for k, v := range fields {
		nl.fields[k] = v
	}
	return nl
}

func (l *stdLogger) Debug(format string, args ...any) {
	if l.level >= LevelDebug {
		l.log("DEBUG", format, args...)
	}
}

func (l *stdLogger) Info(format string, args ...any) {
	if l.level >= LevelInfo {
		l.log("INFO", format, args...)
	}
}

func (l *stdLogger) Warn(format string, args ...any) {
	if l.level >= LevelWarn {
		l.log("WARN", format, args...)
	}
}

func (l *stdLogger) Error(format string, args ...any) {
	if l.level >= LevelError {
		l.log("ERROR", format, args...)
	}
}

func (l *stdLogger) Op(op string, duration time.Duration, detail string) {
	if l.level < LevelInfo {
		return
	}
	if l.format == FormatJSON {
		l.logFields("OP", map[string]any{"op": op, "duration": duration.String(), "detail": detail})
		return
	}
	l.log("OP", "[%v] %s | %s", duration, op, detail)
}

func (l *stdLogger) log(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.format == FormatJSON {
		l.logFields(level, map[string]any{"msg": msg})
		return
	}
	fieldStr := ""
	if len(l.fields) > 0 {
		fieldStr = fmt.Sprintf(" fields=%v", l.fields)
	}
	fmt.Fprintf(l.writer, "[libzdb] %s %s: %s%s\n", time.Now().Format("2006-01-02 15:04:05"), level, msg, fieldStr)
}

func (l *stdLogger) logFields(level string, extra map[string]any) {
	data := make(map[string]any, len(l.fields)+len(extra)+2)
	for k, v := range l.fields {
		data[k] = v
	}
	for k, v := range extra {
		data[k] = v
	}
	data["time"] = time.Now().Format(time.RFC3339)
	data["level"] = level
	_ = json.NewEncoder(l.writer).Encode(data)
}
