// Package logging configures structured logging for tracefabric.
//
// Loggers are plain *slog.Logger values. Each component tags its logger
// with a "component" attribute and the filtering handler applies the
// level configured for that component.
package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is a log level that extends slog with a trace level.
// Values match slog.Level constants for debug through error.
type Level int

const (
	// LevelTrace is used for register-level detail.
	LevelTrace Level = -8
	// LevelDebug matches slog.LevelDebug.
	LevelDebug Level = -4
	// LevelInfo matches slog.LevelInfo.
	LevelInfo Level = 0
	// LevelWarn matches slog.LevelWarn.
	LevelWarn Level = 4
	// LevelError matches slog.LevelError.
	LevelError Level = 8
)

// ParseLevel parses a string into a Level.
// Supported values: trace, debug, info, warn, error (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "err":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// ToSlog converts Level to slog.Level.
func (l Level) ToSlog() slog.Level {
	return slog.Level(l)
}

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", l)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
