package cli

import (
	"context"
)

// StatusCmd shows the state of every device known to this process.
type StatusCmd struct {
	OutputFlags
}

// Run executes the status command.
func (c *StatusCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sink, _ := rt.Manager.GetEnabledSink(false)
	output, err := FormatStatus(rt.Manager.Status(), sink, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}
