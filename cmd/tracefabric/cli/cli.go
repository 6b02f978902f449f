package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/config"
	"github.com/frobware/go-tracefabric/logging"
)

// CLI is the root command structure for tracefabric.
type CLI struct {
	Config     string `name:"config" help:"Config file path." default:"${default_config_path}"`
	Log        string `name:"log" help:"Log spec (e.g., 'info,manager=debug')." env:"TRACEFABRIC_LOG"`
	Topology   string `name:"topology" short:"t" help:"Topology file, overriding the config."`
	RuntimeDir string `name:"runtime-dir" help:"Runtime directory for the ledger and writer lock." default:"${default_runtime_dir}"`
	Backend    string `name:"backend" help:"Register backend (sim, mmio), overriding the config."`

	Topo     TopologyCmd `cmd:"" name:"topology" help:"Show the trace topology."`
	Route    RouteCmd    `cmd:"" help:"Compute the path from a source to a sink without enabling it."`
	Enable   EnableCmd   `cmd:"" help:"Enable a trace path and hold it until interrupted."`
	Status   StatusCmd   `cmd:"" help:"Show device state."`
	Regs     RegsCmd     `cmd:"" help:"Read device registers."`
	Barrier  BarrierCmd  `cmd:"" help:"Write a barrier packet into an enabled sink."`
	History  HistoryCmd  `cmd:"" help:"Inspect the session ledger."`
	GC       GCCmd       `cmd:"" name:"gc" help:"Collect sessions and claim tags left behind by exited processes."`
	CSR      CSRCmd      `cmd:"" name:"csr" help:"Coresight control and status register operations."`
	Shell    ShellCmd    `cmd:"" help:"Interactive shell over a single fabric instance."`

	// Out receives command output. Nil means os.Stdout.
	Out io.Writer `kong:"-"`
}

// KongOptions returns the Kong configuration options for the CLI.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("tracefabric"),
		kong.Description("Trace fabric path manager."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.TypeMapper(reflect.TypeOf(tracefabric.Mode(0)), modeMapper()),
		kong.TypeMapper(reflect.TypeOf(Address(0)), addressMapper()),
		kong.TypeMapper(reflect.TypeOf(tracefabric.DeviceID("")), deviceIDMapper()),
		kong.Vars{
			"default_config_path": config.DefaultConfigPath,
			"default_runtime_dir": config.DefaultRuntimeDirs().Base(),
		},
	}
}

// LoadConfig loads the configuration and applies command line overrides.
func (c *CLI) LoadConfig() (config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return config.Config{}, err
	}
	if c.Topology != "" {
		cfg.Topology.Path = c.Topology
	}
	if c.Backend != "" {
		cfg.Hardware.Backend = config.Backend(c.Backend)
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// RuntimeDirs returns the runtime directories selected by --runtime-dir.
func (c *CLI) RuntimeDirs() (config.RuntimeDirs, error) {
	return config.NewRuntimeDirs(c.RuntimeDir)
}

// Logger creates a logger for CLI commands.
// CLI commands default to WARN level for quieter output.
// Use LoggerFromConfig for long-running commands like enable.
func (c *CLI) Logger() (*slog.Logger, error) {
	spec := c.Log
	if spec == "" {
		spec = "warn"
	}
	return c.logger(spec)
}

// LoggerFromConfig creates a logger using config file settings.
func (c *CLI) LoggerFromConfig() (*slog.Logger, error) {
	return c.logger(c.Log)
}

func (c *CLI) logger(cliSpec string) (*slog.Logger, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}

	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	return logging.New(logging.Options{
		CLISpec:    cliSpec,
		ConfigSpec: cfg.Logging.ToSpec(),
		Format:     format,
		Output:     os.Stderr,
	})
}

func (c *CLI) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// WriteOut writes b to the command output. A short write without an
// error is reported as io.ErrShortWrite.
func (c *CLI) WriteOut(b []byte) error {
	n, err := c.out().Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

// PrintOut writes s to the command output.
func (c *CLI) PrintOut(s string) error {
	return c.WriteOut([]byte(s))
}

// PrintOutf formats according to format and writes to the command output.
func (c *CLI) PrintOutf(format string, args ...any) error {
	return c.PrintOut(fmt.Sprintf(format, args...))
}
