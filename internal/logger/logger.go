package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 5
)

var log = zerolog.New(io.Discard)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Options controls where and how the global logger writes.
type Options struct {
	Level     string
	File      string
	IsService bool
}

// Init initializes the global logger based on the given options
func Init(opts Options) {
	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if opts.IsService {
		console.TimeFormat = ""
		console.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	var output io.Writer = console
	if opts.File != "" {
		output = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
		})
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(ParseLevel(opts.Level))
}

// ParseLevel maps a configured level name to a LogLevel, defaulting to info.
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return DebugLevel
	case "warning", "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// component is a Logger bound to a component name. The zero value logs
// through the global logger without a component field.
type component struct {
	name string
}

// Default returns a Logger writing through the global logger.
func Default() Logger {
	return component{}
}

// For returns a Logger that tags every event with the component name.
func For(name string) Logger {
	return component{name: name}
}

func (c component) tag(e *zerolog.Event) *LogEvent {
	if c.name != "" {
		e = e.Str("component", c.name)
	}
	return &LogEvent{e}
}

func (c component) Debug() *LogEvent { return c.tag(log.Debug()) }
func (c component) Info() *LogEvent  { return c.tag(log.Info()) }
func (c component) Warn() *LogEvent  { return c.tag(log.Warn()) }
func (c component) Error() *LogEvent { return c.tag(log.Error()) }

func (c component) ErrorWithCode(err errors.Error) *LogEvent {
	ev := withCode(log.Error(), err)
	return c.tag(ev.Event)
}

func (c component) With(name string) Logger {
	if c.name != "" {
		name = c.name + "." + name
	}
	return component{name: name}
}

// writerLogger logs to a dedicated zerolog instance, used by tests.
type writerLogger struct {
	z zerolog.Logger
}

// New returns a Logger that writes JSON lines to w at debug level.
func New(w io.Writer) Logger {
	return writerLogger{z: zerolog.New(w).Level(zerolog.DebugLevel)}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return writerLogger{z: zerolog.Nop()}
}

func (l writerLogger) Debug() *LogEvent { return &LogEvent{l.z.Debug()} }
func (l writerLogger) Info() *LogEvent  { return &LogEvent{l.z.Info()} }
func (l writerLogger) Warn() *LogEvent  { return &LogEvent{l.z.Warn()} }
func (l writerLogger) Error() *LogEvent { return &LogEvent{l.z.Error()} }

func (l writerLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(l.z.Error(), err)
}

func (l writerLogger) With(name string) Logger {
	return writerLogger{z: l.z.With().Str("component", name).Logger()}
}

// ErrorFrom starts an error event on l, tagged with the error code when err
// carries one.
func ErrorFrom(l Logger, err error) *LogEvent {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		return l.ErrorWithCode(appErr)
	}
	return &LogEvent{l.Error().Err(err)}
}
