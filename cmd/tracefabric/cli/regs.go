package cli

import (
	"context"
	"fmt"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/manager"
	"github.com/frobware/go-tracefabric/regs"
)

// RegsCmd reads the registers a device's driver exposes.
type RegsCmd struct {
	Device tracefabric.DeviceID `arg:"" help:"Device to read."`
	Names  []string             `short:"r" name:"reg" help:"Register name to read (can be repeated). Defaults to all."`
	OutputFlags
}

// Run executes the regs command.
func (c *RegsCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	values, err := readRegisters(ctx, rt.Manager, c.Device, c.Names)
	if err != nil {
		return err
	}
	output, err := FormatRegisters(c.Device, values, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

// readRegisters reads the named registers of id, or all of them when
// names is empty.
func readRegisters(ctx context.Context, m *manager.Manager, id tracefabric.DeviceID, names []string) ([]regs.Value, error) {
	table, err := m.Registers(id)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		selected := make(regs.Table, 0, len(names))
		for _, name := range names {
			v, ok := table.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("device %s has no register %q", id, name)
			}
			selected = append(selected, v)
		}
		table = selected
	}
	return m.ReadRegisters(ctx, id, table)
}
