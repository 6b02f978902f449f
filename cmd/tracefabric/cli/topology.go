package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/compute"
)

// TopologyCmd shows the trace topology.
type TopologyCmd struct {
	Show   TopologyShowCmd   `cmd:"" default:"withargs" help:"List devices and connections."`
	Export TopologyExportCmd `cmd:"" help:"Print the topology as YAML."`
	Sinks  TopologySinksCmd  `cmd:"" help:"List sinks reachable from a source."`
}

// TopologyShowCmd lists devices and connections.
type TopologyShowCmd struct {
	OutputFlags
}

// Run executes the topology show command.
func (c *TopologyShowCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	output, err := FormatTopology(NewTopologyView(rt.Manager.Graph()), &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

// TopologyExportCmd prints the topology in its on-disk form.
type TopologyExportCmd struct{}

// Run executes the topology export command.
func (c *TopologyExportCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	data, err := rt.Manager.Graph().Marshal()
	if err != nil {
		return fmt.Errorf("marshal topology: %w", err)
	}
	return cli.WriteOut(data)
}

// TopologySinksCmd lists the sinks a source can reach.
type TopologySinksCmd struct {
	Source tracefabric.DeviceID `arg:"" help:"Trace source device."`
	Mode   tracefabric.Mode     `short:"m" help:"Trace mode (sysfs, perf)." default:"sysfs"`
}

// Run executes the topology sinks command.
func (c *TopologySinksCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sinks, err := compute.ReachableSinks(rt.Manager.Graph(), rt.Manager, c.Source, c.Mode)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		return cli.PrintOutf("No sinks reachable from %s\n", c.Source)
	}
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = string(s)
	}
	return cli.PrintOut(strings.Join(names, "\n") + "\n")
}
