package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin structured wrapper over zerolog that can mirror error
// entries into a LogCollector.
type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	return &Logger{zl: zl}, nil
}

// Nop returns a logger that discards everything; handy for tests and the CLI.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger tagged with a component name. The collector is shared.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		collector: l.collector,
	}
}

func (l *Logger) collect(level, msg string, fields []Field) {
	if l.collector == nil {
		return
	}

	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		parts := strings.Split(file, "MacroPanel")
		caller = fmt.Sprintf("%s:%d", parts[len(parts)-1], line)
	}

	values := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		key, value := field.GetKeyValue()
		values[key] = value
	}

	l.collector.AddLog(level, msg, values, caller)
}

// --- Logger methods ---

func (l *Logger) Debug(msg string, fields ...Field) {
	emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...Field) {
	emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	emit(l.zl.Error(), msg, fields)
	l.collect("error", msg, fields)
}

func (l *Logger) Fatal(msg string, fields ...Field) {
	emit(l.zl.Fatal(), msg, fields)
}

func emit(event *zerolog.Event, msg string, fields []Field) {
	if event == nil {
		return
	}
	for _, field := range fields {
		field.AddTo(event)
	}
	event.Msg(msg)
}

// AddCollector attaches a collector, replacing and closing any previous one.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(config)
}

func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

// Field is a typed key/value attached to a log event.
type Field interface {
	AddTo(event *zerolog.Event)
	GetKeyValue() (string, interface{})
}

type field[T any] struct {
	key   string
	value T
	add   func(e *zerolog.Event, key string, v T)
}

func (f field[T]) AddTo(event *zerolog.Event) { f.add(event, f.key, f.value) }

func (f field[T]) GetKeyValue() (string, interface{}) { return f.key, f.value }

type errorField struct{ err error }

func (f errorField) AddTo(event *zerolog.Event) { event.Err(f.err) }

func (f errorField) GetKeyValue() (string, interface{}) {
	if f.err == nil {
		return "error", nil
	}
	return "error", f.err.Error()
}

// --- Field constructors ---

func String(key, value string) Field {
	return field[string]{key, value, func(e *zerolog.Event, k string, v string) { e.Str(k, v) }}
}

func Strings(key string, value []string) Field {
	return field[[]string]{key, value, func(e *zerolog.Event, k string, v []string) { e.Strs(k, v) }}
}

func Int(key string, value int) Field {
	return field[int]{key, value, func(e *zerolog.Event, k string, v int) { e.Int(k, v) }}
}

func Int64(key string, value int64) Field {
	return field[int64]{key, value, func(e *zerolog.Event, k string, v int64) { e.Int64(k, v) }}
}

func Float64(key string, value float64) Field {
	return field[float64]{key, value, func(e *zerolog.Event, k string, v float64) { e.Float64(k, v) }}
}

func Bool(key string, value bool) Field {
	return field[bool]{key, value, func(e *zerolog.Event, k string, v bool) { e.Bool(k, v) }}
}

// Duration is logged in milliseconds.
func Duration(key string, value time.Duration) Field {
	return Int64(key, value.Milliseconds())
}

func Time(key string, value time.Time) Field {
	return field[time.Time]{key, value, func(e *zerolog.Event, k string, v time.Time) { e.Time(k, v) }}
}

func Any(key string, value interface{}) Field {
	return field[interface{}]{key, value, func(e *zerolog.Event, k string, v interface{}) { e.Interface(k, v) }}
}

func Error(err error) Field {
	return errorField{err: err}
}
