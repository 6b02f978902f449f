package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar is the environment variable holding a log spec.
const EnvVar = "TRACEFABRIC_LOG"

// Format is the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses a format string into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %q", s)
	}
}

// Options configures the logger factory.
type Options struct {
	// EnvSpec is the log spec from the environment.
	EnvSpec string
	// CLISpec is the log spec from the command line.
	CLISpec string
	// ConfigSpec is the log spec from the config file.
	ConfigSpec string
	// Format is the output format (text or json).
	Format Format
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a logger with component-level filtering.
// Precedence: CLISpec > EnvSpec > ConfigSpec > defaults.
func New(opts Options) (*slog.Logger, error) {
	specStr := ""
	switch {
	case opts.CLISpec != "":
		specStr = opts.CLISpec
	case opts.EnvSpec != "":
		specStr = opts.EnvSpec
	case opts.ConfigSpec != "":
		specStr = opts.ConfigSpec
	}

	spec, err := ParseSpec(specStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log spec: %w", err)
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	// The inner handler accepts everything; filtering happens above it.
	handlerOpts := &slog.HandlerOptions{
		Level:       LevelTrace.ToSlog(),
		ReplaceAttr: replaceLevel,
	}

	var inner slog.Handler
	switch opts.Format {
	case FormatJSON:
		inner = slog.NewJSONHandler(output, handlerOpts)
	default:
		inner = slog.NewTextHandler(output, handlerOpts)
	}

	return slog.New(NewFilteringHandler(inner, &spec)), nil
}

// replaceLevel renders the trace level by name instead of "DEBUG-4".
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace.ToSlog() {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// Default creates a logger with default settings (info, text, stderr).
func Default() *slog.Logger {
	logger, _ := New(Options{})
	return logger
}

// FromEnv creates a logger from the TRACEFABRIC_LOG environment variable.
func FromEnv() (*slog.Logger, error) {
	return New(Options{
		EnvSpec: os.Getenv(EnvVar),
	})
}
