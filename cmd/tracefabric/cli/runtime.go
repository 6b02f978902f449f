package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frobware/go-tracefabric/config"
	"github.com/frobware/go-tracefabric/driver"
	"github.com/frobware/go-tracefabric/manager"
	"github.com/frobware/go-tracefabric/regs"
	"github.com/frobware/go-tracefabric/store"
	"github.com/frobware/go-tracefabric/store/sqlite"
	"github.com/frobware/go-tracefabric/topology"
)

// CLIRuntime provides manager access for CLI commands.
// It ties together the topology, register backend, ledger and
// manager described by the CLI configuration.
type CLIRuntime struct {
	Manager *manager.Manager
	Config  config.Config
	Dirs    config.RuntimeDirs
	Logger  *slog.Logger

	hw    *hardware
	store store.Store
}

// NewCLIRuntime creates a runtime environment for CLI commands. The
// returned runtime must be closed when no longer needed.
func (c *CLI) NewCLIRuntime(ctx context.Context) (*CLIRuntime, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return c.newRuntime(ctx, logger)
}

func (c *CLI) newRuntime(ctx context.Context, logger *slog.Logger) (*CLIRuntime, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dirs, err := c.RuntimeDirs()
	if err != nil {
		return nil, err
	}

	graph, err := topology.FileDiscoverer{Path: cfg.Topology.Path}.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover topology: %w", err)
	}

	hw, err := openHardware(cfg, graph, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Hardware.Backend, err)
	}

	rt := &CLIRuntime{Config: cfg, Dirs: dirs, Logger: logger, hw: hw}

	if cfg.Ledger.Enabled {
		if err := dirs.EnsureDirectories(); err != nil {
			return nil, errors.Join(err, rt.Close())
		}
		st, err := sqlite.New(ctx, dirs.DBPath(), logger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("open ledger: %w", err), rt.Close())
		}
		rt.store = st
	}

	drivers := driver.Default(logger)
	etm := driver.NewETM(logger)
	etm.ExcludeKernel = cfg.ETM.ExcludeKernel
	etm.ExcludeUser = cfg.ETM.ExcludeUser
	drivers.Register("etm", etm)

	poller := regs.DefaultPoller()
	poller.Timeout = cfg.Hardware.PollTimeout

	mgr, err := manager.New(manager.Config{
		Graph:         graph,
		Blocks:        hw.blocks,
		Drivers:       drivers,
		Poller:        poller,
		PreferredSink: cfg.Hardware.PreferredSink,
		CSR:           hw.csrs,
		Store:         rt.store,
	}, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create manager: %w", err), rt.Close())
	}
	rt.Manager = mgr

	logger.Debug("runtime ready",
		"backend", cfg.Hardware.Backend,
		"topology", cfg.Topology.Path,
		"devices", len(graph.Nodes()),
		"ledger", rt.store != nil)
	return rt, nil
}

// Store returns the session ledger, or an error when it is disabled.
func (r *CLIRuntime) Store() (store.Store, error) {
	if r.store == nil {
		return nil, fmt.Errorf("session ledger is disabled in the configuration")
	}
	return r.store, nil
}

// Close releases resources held by the CLI runtime.
func (r *CLIRuntime) Close() error {
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
		r.store = nil
	}
	if r.hw != nil {
		errs = append(errs, r.hw.Close())
		r.hw = nil
	}
	return errors.Join(errs...)
}
