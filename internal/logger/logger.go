// Package logger puts zerolog behind the key/value interface the proxy, the
// replay runner and the CLI log through.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/funnyzak/reqtape/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger logging interface. Fields are alternating keys and values; a
// trailing key without a value is dropped.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	// Fatal logs and exits the process.
	Fatal(msg string, fields ...interface{})
}

type zlog struct {
	zl zerolog.Logger
}

func (l *zlog) Debug(msg string, fields ...interface{}) { emit(l.zl.Debug(), msg, fields) }
func (l *zlog) Info(msg string, fields ...interface{})  { emit(l.zl.Info(), msg, fields) }
func (l *zlog) Warn(msg string, fields ...interface{})  { emit(l.zl.Warn(), msg, fields) }
func (l *zlog) Error(msg string, fields ...interface{}) { emit(l.zl.Error(), msg, fields) }
func (l *zlog) Fatal(msg string, fields ...interface{}) { emit(l.zl.Fatal(), msg, fields) }

func emit(e *zerolog.Event, msg string, fields []interface{}) {
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			e = field(e, key, fields[i+1])
		}
	}
	e.Msg(msg)
}

// field picks the zerolog encoder for one value
func field(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case []string:
		return e.Strs(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case uint64:
		return e.Uint64(key, v)
	case float64:
		return e.Float64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Duration:
		return e.Dur(key, v)
	case time.Time:
		return e.Time(key, v)
	case error:
		return e.AnErr(key, v)
	case fmt.Stringer:
		return e.Stringer(key, v)
	default:
		return e.Interface(key, v)
	}
}

// NewLogger logs to stderr, leaving stdout to recorded exchanges and replay
// results.
func NewLogger(cfg *config.LogConfig, outputMode string) Logger {
	return New(os.Stderr, cfg, outputMode)
}

// New creates a logger writing to out and, when enabled, to a rotating
// JSON log file.
func New(out io.Writer, cfg *config.LogConfig, outputMode string) Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	sinks := []io.Writer{terminalSink(out, outputMode)}
	if cfg.FileLogging.Enable {
		sinks = append(sinks, rotatingFile(&cfg.FileLogging))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).Level(level).With().Timestamp().Logger()
	return &zlog{zl: zl}
}

// terminalSink renders human readable lines in console mode. The json and
// yaml modes keep machine readable JSON lines.
func terminalSink(out io.Writer, outputMode string) io.Writer {
	switch strings.ToLower(outputMode) {
	case "json", "yaml":
		return out
	default:
		return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
}

func rotatingFile(cfg *config.FileLogConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return &zlog{zl: zerolog.Nop()}
}
