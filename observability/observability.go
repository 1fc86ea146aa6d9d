// Package observability defines the logging and tracing seams used by the
// scan pipeline. The interfaces are deliberately small so callers can plug in
// their own structured logger without the library taking a logging dependency.
package observability

import (
	"context"
	"fmt"
	"log"
	"os"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type float64Field struct {
	key string
	val float64
}

func (f float64Field) Key() string        { return f.key }
func (f float64Field) Value() interface{} { return f.val }

type boolField struct {
	key string
	val bool
}

func (f boolField) Key() string        { return f.key }
func (f boolField) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

func String(key, value string) Field          { return stringField{key, value} }
func Int(key string, value int) Field         { return intField{key, value} }
func Float64(key string, value float64) Field { return float64Field{key, value} }
func Bool(key string, value bool) Field       { return boolField{key, value} }
func Error(key string, err error) Field       { return errorField{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// stderrLogger is a minimal text logger for the CLI and tests.
type stderrLogger struct {
	l      *log.Logger
	fields []Field
}

// NewStderr returns a Logger writing single-line key=value records to stderr.
func NewStderr() Logger {
	return &stderrLogger{l: log.New(os.Stderr, "", log.LstdFlags)}
}

func (s *stderrLogger) emit(level, msg string, fields []Field) {
	line := level + " " + msg
	for _, f := range append(s.fields, fields...) {
		line += fmt.Sprintf(" %s=%v", f.Key(), f.Value())
	}
	s.l.Println(line)
}

func (s *stderrLogger) Debug(msg string, fields ...Field) { s.emit("DEBUG", msg, fields) }
func (s *stderrLogger) Info(msg string, fields ...Field)  { s.emit("INFO", msg, fields) }
func (s *stderrLogger) Warn(msg string, fields ...Field)  { s.emit("WARN", msg, fields) }
func (s *stderrLogger) Error(msg string, fields ...Field) { s.emit("ERROR", msg, fields) }

func (s *stderrLogger) With(fields ...Field) Logger {
	return &stderrLogger{l: s.l, fields: append(append([]Field(nil), s.fields...), fields...)}
}

// Tracer provides tracing hooks for pipeline stages.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Standard metric names emitted by the library.
const (
	MetricScanTime       = "scan.duration"
	MetricTokenCount     = "scan.tokens.count"
	MetricDetectionCount = "scan.detections.count"
	MetricOCRAttemptTime = "scan.ocr.attempt.duration"
	MetricOCRFailures    = "scan.ocr.failures"
	MetricVerifyTime     = "scan.verify.duration"
	MetricRedactionBoxes = "scan.redaction.boxes"
)
