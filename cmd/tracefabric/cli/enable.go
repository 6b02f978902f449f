package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/frobware/go-tracefabric/lock"
)

// EnableCmd enables a trace path and holds it until a signal arrives
// or the duration elapses, then disables it.
type EnableCmd struct {
	PathFlags
	WaitFlags
	OutputFlags
}

// Run executes the enable command.
func (c *EnableCmd) Run(cli *CLI, ctx context.Context) error {
	logger, err := cli.LoggerFromConfig()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := cli.newRuntime(ctx, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	return lock.TryRun(ctx, rt.Dirs.Lock(), func(ctx context.Context, _ lock.WriterScope) error {
		p, err := c.build(ctx, rt.Manager)
		if err != nil {
			return err
		}
		if err := rt.Manager.EnablePath(ctx, p); err != nil {
			return err
		}

		output, err := FormatPath(NewPathView(p), &c.OutputFlags)
		if err == nil {
			err = cli.PrintOut(output)
		}

		c.wait(ctx)
		logger.Info("disabling path", "path", p.ID, "source", p.Source(), "sink", p.Sink())

		// Teardown must complete even after the signal cancelled ctx.
		return errors.Join(err, rt.Manager.ReleasePath(context.WithoutCancel(ctx), p))
	})
}

// wait blocks until ctx is done or the configured duration elapses.
func (f *WaitFlags) wait(ctx context.Context) {
	if f.Duration <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTimer(f.Duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
