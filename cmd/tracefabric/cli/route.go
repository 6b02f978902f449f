package cli

import (
	"context"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/manager"
)

// RouteCmd computes a path without enabling it.
type RouteCmd struct {
	PathFlags
	OutputFlags
}

// Run executes the route command.
func (c *RouteCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := c.build(ctx, rt.Manager)
	if err != nil {
		return err
	}
	output, err := FormatPath(NewPathView(p), &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

// build runs BuildPath for the selected source, sink and mode.
func (f *PathFlags) build(ctx context.Context, m *manager.Manager) (*manager.Path, error) {
	var opts []manager.PathOption
	if f.Agent != "" {
		opts = append(opts, manager.WithAgent(tracefabric.AgentID(f.Agent)))
	}
	return m.BuildPath(ctx, f.Source, f.Sink, f.Mode, opts...)
}
