package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/frobware/go-tracefabric/lock"
	"github.com/frobware/go-tracefabric/manager"
)

// GCCmd collects state left behind by processes that exited without
// disabling their paths.
type GCCmd struct {
	Prune  bool `help:"Actually apply (default: dry-run)."`
	Claims bool `help:"Also clear self-hosted claim tags no agent owns. Do not use while a kernel trace driver shares the hardware."`
}

// Run executes the gc command.
func (c *GCCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := manager.DefaultGCConfig()
	cfg.IncludeClaims = c.Claims
	if c.Prune {
		cfg.DryRun = false
	}

	// The lock keeps enable and shell processes, whose paths this
	// process cannot see, from running concurrently.
	return lock.TryRun(ctx, rt.Dirs.Lock(), func(ctx context.Context, _ lock.WriterScope) error {
		return runGC(ctx, rt.Manager, cfg, cli.out())
	})
}

// runGC plans a collection, prints it grouped by reason and applies it
// unless cfg is a dry run.
func runGC(ctx context.Context, mgr *manager.Manager, cfg manager.GCConfig, w io.Writer) error {
	plan, err := mgr.PlanGC(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to plan GC: %w", err)
	}

	if len(plan.Items) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to clean up.")
		return err
	}

	counts := plan.CountByReason()

	if counts[manager.GCAbandonedSession] > 0 {
		fmt.Fprintf(w, "Abandoned sessions (%d):\n", counts[manager.GCAbandonedSession])
		for _, item := range plan.Items {
			if item.Reason == manager.GCAbandonedSession {
				fmt.Fprintf(w, "  session=%s  source=%s  age=%s\n", item.Session, item.Device, item.Age.Truncate(time.Second))
			}
		}
		fmt.Fprintln(w)
	}

	if counts[manager.GCStaleClaim] > 0 {
		fmt.Fprintf(w, "Stale claim tags (%d):\n", counts[manager.GCStaleClaim])
		for _, item := range plan.Items {
			if item.Reason == manager.GCStaleClaim {
				fmt.Fprintf(w, "  device=%s  tags=0x%x\n", item.Device, item.Tags)
			}
		}
		fmt.Fprintln(w)
	}

	if cfg.DryRun {
		_, err := fmt.Fprintf(w, "Total: %d items. Run with --prune to apply.\n", len(plan.Items))
		return err
	}

	result, err := mgr.ApplyGC(ctx, plan)
	if err != nil {
		return fmt.Errorf("failed to apply GC: %w", err)
	}

	fmt.Fprintf(w, "GC complete: %d applied, %d failed, %d skipped\n",
		result.Applied, result.Failed, result.Skipped)

	for _, item := range result.Items {
		if item.Error != nil {
			fmt.Fprintf(w, "  FAILED: device=%s (%s): %v\n", item.Item.Device, item.Item.Reason, item.Error)
		}
	}
	return nil
}
