package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

// Logger provides structured JSON logging with correlation ID support.
type Logger struct {
	mu      sync.Mutex
	output  io.Writer
	level   LogLevel
	service string
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithOutput sets the output writer.
func WithOutput(w io.Writer) LoggerOption {
	return func(l *Logger) {
		l.output = w
	}
}

// WithLevel sets the minimum level that gets emitted.
func WithLevel(level LogLevel) LoggerOption {
	return func(l *Logger) {
		l.level = level
	}
}

// WithService sets the service name stamped on every entry.
func WithService(service string) LoggerOption {
	return func(l *Logger) {
		l.service = service
	}
}

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return LogLevel(s)
	default:
		return LevelInfo
	}
}

// NewLogger creates a Logger writing JSON lines to stdout unless configured
// otherwise.
func NewLogger(opts ...LoggerOption) *Logger {
	logger := &Logger{
		output:  os.Stdout,
		level:   LevelInfo,
		service: "dealguard",
	}
	for _, opt := range opts {
		opt(logger)
	}
	return logger
}

type logEntry struct {
	Timestamp     string         `json:"timestamp"`
	Level         LogLevel       `json:"level"`
	Service       string         `json:"service"`
	Message       string         `json:"message"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

func (l *Logger) emit(level LogLevel, message, correlationID string, fields map[string]any) {
	if levelRank[level] < levelRank[l.level] {
		return
	}

	entry := logEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Service:       l.service,
		Message:       message,
		CorrelationID: correlationID,
		Fields:        fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}

	l.mu.Lock()
	fmt.Fprintln(l.output, string(data))
	l.mu.Unlock()

	if level == LevelFatal {
		os.Exit(1)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields ...any) {
	cid, m := collectFields(fields)
	l.emit(LevelDebug, message, cid, m)
}

// Info logs an info message.
func (l *Logger) Info(message string, fields ...any) {
	cid, m := collectFields(fields)
	l.emit(LevelInfo, message, cid, m)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields ...any) {
	cid, m := collectFields(fields)
	l.emit(LevelWarn, message, cid, m)
}

// Error logs an error message.
func (l *Logger) Error(message string, fields ...any) {
	cid, m := collectFields(fields)
	l.emit(LevelError, message, cid, m)
}

// Fatal logs a fatal message and exits the process.
func (l *Logger) Fatal(message string, fields ...any) {
	cid, m := collectFields(fields)
	l.emit(LevelFatal, message, cid, m)
}

// DebugWithContext logs a debug message with the correlation ID from ctx.
func (l *Logger) DebugWithContext(ctx context.Context, message string, fields ...any) {
	_, m := collectFields(fields)
	l.emit(LevelDebug, message, GetCorrelationID(ctx), m)
}

// InfoWithContext logs an info message with the correlation ID from ctx.
func (l *Logger) InfoWithContext(ctx context.Context, message string, fields ...any) {
	_, m := collectFields(fields)
	l.emit(LevelInfo, message, GetCorrelationID(ctx), m)
}

// WarnWithContext logs a warning message with the correlation ID from ctx.
func (l *Logger) WarnWithContext(ctx context.Context, message string, fields ...any) {
	_, m := collectFields(fields)
	l.emit(LevelWarn, message, GetCorrelationID(ctx), m)
}

// ErrorWithContext logs an error message with the correlation ID from ctx.
func (l *Logger) ErrorWithContext(ctx context.Context, message string, fields ...any) {
	_, m := collectFields(fields)
	l.emit(LevelError, message, GetCorrelationID(ctx), m)
}

// collectFields turns a flat key1, value1, key2, value2 list into a map.
// A "correlation_id" pair is pulled out of the map and returned separately.
func collectFields(fields []any) (string, map[string]any) {
	correlationID := ""
	m := make(map[string]any, len(fields)/2)

	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if key == "correlation_id" {
			if id, ok := fields[i+1].(string); ok {
				correlationID = id
			}
			continue
		}
		m[key] = fields[i+1]
	}

	if len(m) == 0 {
		m = nil
	}
	return correlationID, m
}
