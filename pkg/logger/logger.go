package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a zerolog wrapper. Loggers derived with With share the error
// collector of their root.
type Logger struct {
	zl        zerolog.Logger
	collector *atomic.Pointer[LogCollector]
	fields    []Field
}

type Config struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"` // stdout, stderr, or file path
	TimeFormat string `yaml:"time_format"`

	// Rotation settings, only used when Output is a file path.
	MaxSizeMB  int  `yaml:"max_size_mb" default:"100"`
	MaxBackups int  `yaml:"max_backups" default:"5"`
	MaxAgeDays int  `yaml:"max_age_days" default:"14"`
	Compress   bool `yaml:"compress"`
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
		output = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			Compress:   cfg.Compress,
		}
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

	return &Logger{zl: zl, collector: new(atomic.Pointer[LogCollector])}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), collector: new(atomic.Pointer[LogCollector])}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// With returns a child logger that attaches fields to every event.
// The child shares the parent's collector.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		k, v := f.GetKeyValue()
		ctx = ctx.Interface(k, v)
	}
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{zl: ctx.Logger(), collector: l.collector, fields: merged}
}

func (l *Logger) collect(level, msg string, fields []Field) {
	c := l.collector.Load()
	if c == nil {
		return
	}

	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		if idx := strings.LastIndex(file, "/internal/"); idx >= 0 {
			file = file[idx+1:]
		} else if idx := strings.LastIndex(file, "/pkg/"); idx >= 0 {
			file = file[idx+1:]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	kv := make(map[string]interface{}, len(l.fields)+len(fields))
	for _, f := range l.fields {
		k, v := f.GetKeyValue()
		kv[k] = v
	}
	for _, f := range fields {
		k, v := f.GetKeyValue()
		kv[k] = v
	}
	c.AddLog(level, msg, kv, caller)
}

func emit(event *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.AddTo(event)
	}
	event.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { emit(l.zl.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) { emit(l.zl.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) {
	emit(l.zl.Error(), msg, fields)
	l.collect("error", msg, fields)
}

// AddCollector starts aggregating error logs into cfg.Publisher.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if prev := l.collector.Swap(NewLogCollector(cfg)); prev != nil {
		prev.Close()
	}
}

// RemoveCollector flushes and detaches the collector. It is safe to call
// more than once.
func (l *Logger) RemoveCollector() {
	if prev := l.collector.Swap(nil); prev != nil {
		prev.Close()
	}
}

// Field types for structured logging.
type Field interface {
	AddTo(event *zerolog.Event)
	GetKeyValue() (string, interface{})
}

type StringField struct {
	Key   string
	Value string
}

func (f StringField) AddTo(event *zerolog.Event)        { event.Str(f.Key, f.Value) }
func (f StringField) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

type Int64Field struct {
	Key   string
	Value int64
}

func (f Int64Field) AddTo(event *zerolog.Event)        { event.Int64(f.Key, f.Value) }
func (f Int64Field) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

type Float64Field struct {
	Key   string
	Value float64
}

func (f Float64Field) AddTo(event *zerolog.Event)        { event.Float64(f.Key, f.Value) }
func (f Float64Field) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

type ErrorField struct {
	Key   string
	Value error
}

func (f ErrorField) AddTo(event *zerolog.Event) { event.Err(f.Value) }

func (f ErrorField) GetKeyValue() (string, interface{}) {
	if f.Value == nil {
		return f.Key, nil
	}
	return f.Key, f.Value.Error()
}

type AnyField struct {
	Key   string
	Value interface{}
}

func (f AnyField) AddTo(event *zerolog.Event)        { event.Interface(f.Key, f.Value) }
func (f AnyField) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

type BoolField struct {
	Key   string
	Value bool
}

func (f BoolField) AddTo(event *zerolog.Event)        { event.Bool(f.Key, f.Value) }
func (f BoolField) GetKeyValue() (string, interface{}) { return f.Key, f.Value }

// --- Field constructors ---

func String(key, value string) Field { return StringField{Key: key, Value: value} }

func Int(key string, value int) Field { return Int64Field{Key: key, Value: int64(value)} }

func Int64(key string, value int64) Field { return Int64Field{Key: key, Value: value} }

func Float64(key string, value float64) Field { return Float64Field{Key: key, Value: value} }

func Error(err error) Field { return ErrorField{Key: "error", Value: err} }

func Any(key string, value interface{}) Field { return AnyField{Key: key, Value: value} }

func Bool(key string, value bool) Field { return BoolField{Key: key, Value: value} }

// Duration logs in milliseconds.
func Duration(key string, value time.Duration) Field {
	return Int64Field{Key: key, Value: value.Milliseconds()}
}

func Strings(key string, value []string) Field {
	return String(key, strings.Join(value, ","))
}
