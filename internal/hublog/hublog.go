// Package hublog is a small leveled wrapper around the standard logger,
// matching the bare log.Printf register the rest of this codebase uses.
package hublog

import (
	"fmt"
	"log"
	"os"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel reads a level name, defaulting to Info on anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a leveled shim around *log.Logger.
type Logger struct {
	level Level
	name  string
	out   *log.Logger
}

// New creates a Logger writing to stderr, named for the component it serves
// (e.g. "hub", "devmon") so multiplexed output stays readable.
func New(name string, level Level) *Logger {
	return &Logger{
		level: level,
		name:  name,
		out:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

// WithName returns a derived logger sharing the level but tagged differently.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{level: l.level, name: name, out: l.out}
}

func (l *Logger) log(level Level, tag, format string, args ...any) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%s [%s] %s", tag, l.name, msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, "DEBUG", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, "INFO", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, "WARN", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, "ERROR", format, args...) }

// Fatalf logs at error level and exits the process, mirroring log.Fatalln
// use in the original cmd/xwiimap and cmd/xwiipointer entrypoints.
func (l *Logger) Fatalf(format string, args ...any) {
	l.log(LevelError, "FATAL", format, args...)
	os.Exit(1)
}
