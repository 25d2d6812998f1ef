package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var (
	programLevel = new(slog.LevelVar) // Info by default

	defaultLogger = NewLogger(os.Stderr)
)

// Logger is the logging surface handed to every component. Structured calls
// take slog-style key/value pairs, the *f variants format their message.
type Logger interface {
	Info(msg string, args ...any)
	Infof(format string, v ...any)
	Warn(msg string, args ...any)
	Warnf(format string, v ...any)
	Error(msg string, args ...any)
	Errorf(format string, v ...any)
	Debug(msg string, args ...any)
	Debugf(format string, v ...any)
	Fatalf(format string, v ...any)

	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// NewDefaultLogger returns a text logger on stderr sharing the program level.
func NewDefaultLogger() Logger {
	return NewLogger(os.Stderr)
}

// NewLogger returns a text logger writing to w sharing the program level.
func NewLogger(w io.Writer) Logger {
	return &slogLogger{
		l: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: programLevel})),
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() Logger {
	return NewLogger(io.Discard)
}

func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// SetDebug switches the program level between debug and info.
func SetDebug(debug bool) {
	if debug {
		programLevel.Set(slog.LevelDebug)
		return
	}
	programLevel.Set(slog.LevelInfo)
}

func (s *slogLogger) Info(msg string, args ...any) { s.l.Info(msg, args...) }

func (s *slogLogger) Infof(format string, v ...any) { s.l.Info(fmt.Sprintf(format, v...)) }

func (s *slogLogger) Warn(msg string, args ...any) { s.l.Warn(msg, args...) }

func (s *slogLogger) Warnf(format string, v ...any) { s.l.Warn(fmt.Sprintf(format, v...)) }

func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) Errorf(format string, v ...any) { s.l.Error(fmt.Sprintf(format, v...)) }

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }

func (s *slogLogger) Debugf(format string, v ...any) { s.l.Debug(fmt.Sprintf(format, v...)) }

func (s *slogLogger) Fatalf(format string, v ...any) {
	s.l.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

// Package level helpers log through the default logger.

func Info(a ...any) {
	defaultLogger.Info(fmt.Sprint(a...))
}

func Infof(format string, v ...interface{}) {
	defaultLogger.Infof(format, v...)
}

func Error(a ...any) {
	defaultLogger.Error(fmt.Sprint(a...))
}

func Errorf(format string, v ...interface{}) {
	defaultLogger.Errorf(format, v...)
}

func Debug(a ...any) {
	defaultLogger.Debug(fmt.Sprint(a...))
}

func Debugf(format string, v ...interface{}) {
	defaultLogger.Debugf(format, v...)
}
