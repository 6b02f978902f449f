package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/lock"
	"github.com/frobware/go-tracefabric/manager"
	"github.com/frobware/go-tracefabric/store"
)

// ShellCmd runs an interactive shell. Paths enabled in the shell stay
// enabled until disabled or the shell exits.
type ShellCmd struct{}

// Run executes the shell command.
func (c *ShellCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	return lock.TryRun(ctx, rt.Dirs.Lock(), func(ctx context.Context, _ lock.WriterScope) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "fabric> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		sh := newShell(rt.Manager, rl.Stdout())
		defer func() {
			if err := sh.releaseAll(context.WithoutCancel(ctx)); err != nil {
				rt.Logger.Warn("failed to release paths on exit", "error", err)
			}
		}()

		sh.printHelp()
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			line, err := rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt {
					continue
				}
				return nil
			}
			quit, err := sh.exec(ctx, line)
			if err != nil {
				fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	})
}

// shell holds the paths enabled during an interactive session. Path
// handles are 1-based indexes into paths; released slots are nil.
type shell struct {
	mgr   *manager.Manager
	out   io.Writer
	paths []*manager.Path
	table OutputFlags
}

func newShell(mgr *manager.Manager, out io.Writer) *shell {
	return &shell{mgr: mgr, out: out, table: OutputFlags{Output: "table"}}
}

func (s *shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  topology                        list devices and connections
  sinks <source> [mode]           sinks reachable from a source
  route <source> [sink] [mode]    compute a path without enabling it
  enable <source> [sink] [mode]   enable a path and print its handle
  disable <handle>                disable and release a path
  paths                           list paths enabled in this shell
  status                          device state
  regs <device> [reg...]          read registers
  barrier [sink]                  write a barrier packet
  history [n]                     recent ledger sessions
  gc [prune] [claims]             collect abandoned sessions and claim tags
  help                            this message
  quit                            release all paths and exit
`)
}

// exec runs one command line. It reports quit when the shell should
// exit.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	ctx = manager.ContextWithOpID(ctx, manager.NextOpID())

	switch cmd {
	case "help", "?":
		s.printHelp()
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	case "topology", "topo":
		return false, s.print(FormatTopology(NewTopologyView(s.mgr.Graph()), &s.table))
	case "sinks":
		return false, s.cmdSinks(args)
	case "route":
		return false, s.cmdRoute(ctx, args)
	case "enable", "en":
		return false, s.cmdEnable(ctx, args)
	case "disable", "dis":
		return false, s.cmdDisable(ctx, args)
	case "paths":
		return false, s.cmdPaths()
	case "status", "st":
		sink, _ := s.mgr.GetEnabledSink(false)
		return false, s.print(FormatStatus(s.mgr.Status(), sink, &s.table))
	case "regs":
		return false, s.cmdRegs(ctx, args)
	case "barrier":
		return false, s.cmdBarrier(ctx, args)
	case "history":
		return false, s.cmdHistory(ctx, args)
	case "gc":
		return false, s.cmdGC(ctx, args)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (s *shell) print(output string, err error) error {
	if err != nil {
		return err
	}
	_, err = io.WriteString(s.out, output)
	return err
}

// parsePathArgs reads "<source> [sink] [mode]". An argument that
// parses as a mode is taken as the mode.
func parsePathArgs(args []string) (source, sink tracefabric.DeviceID, mode tracefabric.Mode, err error) {
	if len(args) == 0 || len(args) > 3 {
		return "", "", 0, errors.New("usage: <source> [sink] [mode]")
	}
	mode = tracefabric.ModeSysfs
	if source, err = ParseDeviceID(args[0]); err != nil {
		return "", "", 0, err
	}
	for _, a := range args[1:] {
		if m, perr := tracefabric.ParseMode(a); perr == nil {
			mode = m
			continue
		}
		if sink != "" {
			return "", "", 0, fmt.Errorf("unexpected argument %q", a)
		}
		if sink, err = ParseDeviceID(a); err != nil {
			return "", "", 0, err
		}
	}
	return source, sink, mode, nil
}

func (s *shell) cmdSinks(args []string) error {
	source, _, mode, err := parsePathArgs(args)
	if err != nil {
		return err
	}
	sinks, err := compute.ReachableSinks(s.mgr.Graph(), s.mgr, source, mode)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		fmt.Fprintf(s.out, "No sinks reachable from %s\n", source)
		return nil
	}
	for _, id := range sinks {
		fmt.Fprintln(s.out, id)
	}
	return nil
}

func (s *shell) cmdRoute(ctx context.Context, args []string) error {
	source, sink, mode, err := parsePathArgs(args)
	if err != nil {
		return err
	}
	p, err := s.mgr.BuildPath(ctx, source, sink, mode)
	if err != nil {
		return err
	}
	return s.print(FormatPath(NewPathView(p), &s.table))
}

func (s *shell) cmdEnable(ctx context.Context, args []string) error {
	source, sink, mode, err := parsePathArgs(args)
	if err != nil {
		return err
	}
	p, err := s.mgr.BuildPath(ctx, source, sink, mode)
	if err != nil {
		return err
	}
	if err := s.mgr.EnablePath(ctx, p); err != nil {
		return err
	}
	s.paths = append(s.paths, p)
	fmt.Fprintf(s.out, "[%d] %s\n", len(s.paths), p)
	return nil
}

func (s *shell) lookup(arg string) (int, *manager.Path, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.paths) || s.paths[n-1] == nil {
		return 0, nil, fmt.Errorf("no path with handle %q", arg)
	}
	return n, s.paths[n-1], nil
}

func (s *shell) cmdDisable(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: disable <handle>")
	}
	n, p, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	s.paths[n-1] = nil
	if err := s.mgr.ReleasePath(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "[%d] disabled\n", n)
	return nil
}

func (s *shell) cmdPaths() error {
	found := false
	for i, p := range s.paths {
		if p == nil {
			continue
		}
		found = true
		fmt.Fprintf(s.out, "[%d] %s\n", i+1, p)
	}
	if !found {
		fmt.Fprintln(s.out, "No enabled paths")
	}
	return nil
}

func (s *shell) cmdRegs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: regs <device> [reg...]")
	}
	id, err := ParseDeviceID(args[0])
	if err != nil {
		return err
	}
	values, err := readRegisters(ctx, s.mgr, id, args[1:])
	if err != nil {
		return err
	}
	return s.print(FormatRegisters(id, values, &s.table))
}

func (s *shell) cmdBarrier(ctx context.Context, args []string) error {
	var sink tracefabric.DeviceID
	if len(args) > 0 {
		id, err := ParseDeviceID(args[0])
		if err != nil {
			return err
		}
		sink = id
	}
	if err := s.mgr.WriteBarrier(ctx, sink); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "barrier written")
	return nil
}

func (s *shell) cmdHistory(ctx context.Context, args []string) error {
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid count %q", args[0])
		}
		limit = n
	}
	sessions, err := s.mgr.History(ctx, store.Filter{Limit: limit})
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(s.out, "No sessions found")
		return nil
	}
	return s.print(FormatSessionList(sessions, &s.table))
}

func (s *shell) cmdGC(ctx context.Context, args []string) error {
	cfg := manager.DefaultGCConfig()
	for _, a := range args {
		switch a {
		case "prune":
			cfg.DryRun = false
		case "claims":
			cfg.IncludeClaims = true
		default:
			return errors.New("usage: gc [prune] [claims]")
		}
	}
	return runGC(ctx, s.mgr, cfg, s.out)
}

// releaseAll disables every path still held by the shell.
func (s *shell) releaseAll(ctx context.Context) error {
	var errs []error
	for i := len(s.paths) - 1; i >= 0; i-- {
		if p := s.paths[i]; p != nil {
			errs = append(errs, s.mgr.ReleasePath(ctx, p))
			s.paths[i] = nil
		}
	}
	return errors.Join(errs...)
}
