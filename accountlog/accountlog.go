// Package accountlog adapts github.com/op/go-logging to auth.Logger
package accountlog

import (
	"io"
	"os"
	"strings"

	auth "github.com/goliatone/go-account"
	"github.com/op/go-logging"
)

const defaultFormat = `%{time:2006/01/02 15:04:05} %{level:.4s} %{module} - %{message}`

var _ auth.Logger = (*Logger)(nil)

// Logger forwards to a go-logging logger with its own leveled backend
type Logger struct {
	log *logging.Logger
}

// Option customizes New
type Option func(*settings)

type settings struct {
	out    io.Writer
	format string
	level  logging.Level
}

// WithOutput sets the writer, stderr by default
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.out = w
		}
	}
}

// WithFormat sets a go-logging format string
func WithFormat(format string) Option {
	return func(s *settings) {
		if format != "" {
			s.format = format
		}
	}
}

// WithLevel sets the minimum level by name (debug, info, warning, error).
// Unknown names keep the default INFO.
func WithLevel(level string) Option {
	return func(s *settings) {
		if lvl, err := ParseLevel(level); err == nil {
			s.level = lvl
		}
	}
}

// ParseLevel maps a level name to a go-logging level. "warn" is accepted
// for WARNING.
func ParseLevel(level string) (logging.Level, error) {
	name := strings.ToUpper(strings.TrimSpace(level))
	if name == "WARN" {
		name = "WARNING"
	}
	return logging.LogLevel(name)
}

// New returns a Logger for module
func New(module string, opts ...Option) *Logger {
	s := &settings{
		out:    os.Stderr,
		format: defaultFormat,
		level:  logging.INFO,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	backend := logging.NewLogBackend(s.out, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(s.format))
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(s.level, module)

	l := logging.MustGetLogger(module)
	l.SetBackend(leveled)
	return &Logger{log: l}
}

func (l *Logger) Debug(format string, args ...any) {
	l.log.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log.Warningf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log.Errorf(format, args...)
}
