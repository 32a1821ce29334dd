// Package logging provides structured logging for blackopt. Entries are
// written as JSON lines or as human readable text, and a zap core is provided
// for packages that log through zap.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	// DebugLevel logs per-iteration statistics and failed evaluations.
	DebugLevel LogLevel = "DEBUG"
	// InfoLevel is the default logging priority.
	InfoLevel LogLevel = "INFO"
	// WarnLevel logs runs that stopped early.
	WarnLevel LogLevel = "WARN"
	// ErrorLevel logs are high-priority.
	ErrorLevel LogLevel = "ERROR"
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
	FatalLevel: 4,
}

// Format selects how entries are encoded
type Format string

const (
	JSONFormat Format = "json"
	TextFormat Format = "text"
)

// sink is shared by a logger and everything derived from it so that
// concurrent writers never interleave lines.
type sink struct {
	mu     sync.Mutex
	output io.Writer
	format Format
	now    func() time.Time
}

// Logger represents an active logging object.
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	sink   *sink
}

// New creates a new Logger with the specified log level and output, writing
// JSON lines.
func New(level LogLevel, output io.Writer) *Logger {
	return NewWithFormat(level, output, JSONFormat)
}

// NewWithFormat creates a new Logger using the given encoding.
func NewWithFormat(level LogLevel, output io.Writer, format Format) *Logger {
	if format != TextFormat {
		format = JSONFormat
	}
	return &Logger{
		level:  level,
		fields: make(map[string]interface{}),
		sink:   &sink{output: output, format: format, now: time.Now},
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(FatalLevel, io.Discard)
}

// Level returns the minimum level the logger writes.
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) derive(name string, fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &Logger{
		level:  l.level,
		name:   name,
		fields: newFields,
		sink:   l.sink,
	}
}

// WithFields returns a new Logger with the specified fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(l.name, fields)
}

// WithField returns a new Logger with the specified key-value pair.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithError returns a new Logger with the error field set.
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

// Named returns a new Logger whose entries carry name. Nested names are
// joined with a dot.
func (l *Logger) Named(name string) *Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return l.derive(name, nil)
}

// log writes a log entry with the given level and message.
func (l *Logger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "???"
		line = 0
	} else {
		// Only keep the last two parts of the file path
		parts := strings.Split(file, "/")
		if len(parts) > 2 {
			file = strings.Join(parts[len(parts)-2:], "/")
		}
	}

	allFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		allFields[k] = sanitize(v)
	}
	for k, v := range fields {
		allFields[k] = sanitize(v)
	}

	l.sink.write(level, l.name, msg, fmt.Sprintf("%s:%d", file, line), allFields)

	if level == FatalLevel {
		os.Exit(1)
	}
}

func (s *sink) write(level LogLevel, name, msg, caller string, fields map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	if s.format == TextFormat {
		_, _ = io.WriteString(s.output, formatText(ts, level, name, msg, fields))
		return
	}

	entry := map[string]interface{}{
		"timestamp": ts.Format(time.RFC3339Nano),
		"level":     level,
		"message":   msg,
		"caller":    caller,
	}
	if name != "" {
		entry["logger"] = name
	}
	for k, v := range fields {
		entry[k] = v
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		// Fallback to simple log if JSON encoding fails
		fmt.Fprintf(s.output, "%s [%s] %s: %+v\n", ts.Format(time.RFC3339), level, msg, fields)
		return
	}
	jsonData = append(jsonData, '\n')
	_, _ = s.output.Write(jsonData)
}

// formatText renders "ts LEVEL name: msg k=v k=v" with keys sorted.
func formatText(ts time.Time, level LogLevel, name, msg string, fields map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(ts.Format("2006-01-02T15:04:05.000Z"))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s ", level)
	if name != "" {
		b.WriteString(name)
		b.WriteString(": ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	b.WriteByte('\n')
	return b.String()
}

// sanitize turns values JSON cannot encode into strings.
func sanitize(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return fmt.Sprint(x)
		}
	case time.Duration:
		return x.String()
	case error:
		return x.Error()
	}
	return v
}

// shouldLog returns true if the given level should be logged.
func (l *Logger) shouldLog(level LogLevel) bool {
	rank, exists := levelRank[level]
	if !exists {
		return false
	}
	current, exists := levelRank[l.level]
	if !exists {
		return false
	}
	return rank >= current
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(DebugLevel, msg, first(fields))
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(InfoLevel, msg, first(fields))
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(WarnLevel, msg, first(fields))
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(ErrorLevel, msg, first(fields))
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...map[string]interface{}) {
	l.log(FatalLevel, msg, first(fields))
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// CtxLogger is a logger that can be used with context.
type CtxLogger struct {
	*Logger
}

// FromContext returns a logger from the context or a new one if none exists.
func FromContext(ctx context.Context) *CtxLogger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*CtxLogger); ok {
		return logger
	}
	return &CtxLogger{New(InfoLevel, os.Stderr)}
}

// WithContext returns a new context with the logger.
func (l *CtxLogger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, l)
}

type ctxLoggerKey struct{}
