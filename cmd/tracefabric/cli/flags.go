package cli

import (
	"time"

	"github.com/frobware/go-tracefabric"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	OutputFormatTable    OutputFormat = "table"
	OutputFormatJSON     OutputFormat = "json"
	OutputFormatJSONPath OutputFormat = "jsonpath"
)

// OutputFlags provides output formatting flags.
type OutputFlags struct {
	Output string `short:"o" help:"Output format: table, json, jsonpath=EXPR." default:"table"`
}

// Format returns the base format type.
func (f *OutputFlags) Format() OutputFormat {
	switch {
	case f.Output == "table":
		return OutputFormatTable
	case f.Output == "json":
		return OutputFormatJSON
	case len(f.Output) > 9 && f.Output[:9] == "jsonpath=":
		return OutputFormatJSONPath
	default:
		return OutputFormatTable
	}
}

// JSONPathExpr returns the JSONPath expression if format is jsonpath=EXPR.
func (f *OutputFlags) JSONPathExpr() string {
	if len(f.Output) > 9 && f.Output[:9] == "jsonpath=" {
		return f.Output[9:]
	}
	return ""
}

// PathFlags select a trace path.
type PathFlags struct {
	Source tracefabric.DeviceID `arg:"" help:"Trace source device."`
	Sink   tracefabric.DeviceID `arg:"" optional:"" help:"Trace sink device. Defaults to the enabled or preferred sink."`
	Mode   tracefabric.Mode     `short:"m" help:"Trace mode (sysfs, perf)." default:"sysfs"`
	Agent  string               `help:"Agent identity recorded as claim owner. Defaults to the mode name."`
}

// WaitFlags bound how long a command holds a path.
type WaitFlags struct {
	Duration time.Duration `short:"d" help:"Disable the path after this long. Zero waits for a signal."`
}
