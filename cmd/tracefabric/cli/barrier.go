package cli

import (
	"context"
	"errors"

	"github.com/frobware/go-tracefabric/lock"
)

// BarrierCmd enables a path, writes a barrier packet into its sink and
// disables the path again.
type BarrierCmd struct {
	PathFlags
	Count int `short:"n" help:"Number of barrier packets to write." default:"1"`
}

// Run executes the barrier command.
func (c *BarrierCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	return lock.Run(ctx, rt.Dirs.Lock(), func(ctx context.Context, _ lock.WriterScope) error {
		p, err := c.build(ctx, rt.Manager)
		if err != nil {
			return err
		}
		if err := rt.Manager.EnablePath(ctx, p); err != nil {
			return err
		}

		for i := 0; i < c.Count && err == nil; i++ {
			err = rt.Manager.WriteBarrier(ctx, p.Sink())
		}
		if err == nil {
			err = cli.PrintOutf("%d barrier packet(s) written to %s\n", c.Count, p.Sink())
		}
		return errors.Join(err, rt.Manager.ReleasePath(context.WithoutCancel(ctx), p))
	})
}
