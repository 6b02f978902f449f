package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/lock"
	"github.com/frobware/go-tracefabric/store"
)

// HistoryCmd inspects the session ledger.
type HistoryCmd struct {
	List  HistoryListCmd  `cmd:"" default:"withargs" help:"List recorded sessions, newest first."`
	Get   HistoryGetCmd   `cmd:"" help:"Show a session and its device events."`
	Prune HistoryPruneCmd `cmd:"" help:"Delete finished sessions older than a cutoff."`
}

// HistoryListCmd lists sessions.
type HistoryListCmd struct {
	OutputFlags
	Status string               `help:"Filter by status (active, closed, failed)."`
	Source tracefabric.DeviceID `help:"Filter by source device."`
	Limit  int                  `short:"n" help:"Maximum number of sessions. Zero lists all." default:"20"`
}

// Run executes the history list command.
func (c *HistoryListCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	st, err := rt.Store()
	if err != nil {
		return err
	}

	filter := store.Filter{Source: c.Source, Limit: c.Limit}
	if c.Status != "" {
		if filter.Status, err = store.ParseStatus(c.Status); err != nil {
			return err
		}
	}

	sessions, err := st.ListSessions(ctx, filter)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return cli.PrintOut("No sessions found\n")
	}

	output, err := FormatSessionList(sessions, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

// HistoryGetCmd shows one session.
type HistoryGetCmd struct {
	ID string `arg:"" help:"Session UUID."`
	OutputFlags
}

// Run executes the history get command.
func (c *HistoryGetCmd) Run(cli *CLI, ctx context.Context) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", c.ID, err)
	}

	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	st, err := rt.Store()
	if err != nil {
		return err
	}

	sess, err := st.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return err
	}
	events, err := st.ListEvents(ctx, id)
	if err != nil {
		return err
	}

	output, err := FormatSessionDetail(SessionDetail{Session: sess, Events: events}, &c.OutputFlags)
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

// HistoryPruneCmd removes old sessions.
type HistoryPruneCmd struct {
	OlderThan time.Duration `name:"older-than" help:"Prune sessions that ended longer ago than this." default:"168h"`
}

// Run executes the history prune command.
func (c *HistoryPruneCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	st, err := rt.Store()
	if err != nil {
		return err
	}

	return lock.Run(ctx, rt.Dirs.Lock(), func(ctx context.Context, _ lock.WriterScope) error {
		n, err := st.Prune(ctx, time.Now().Add(-c.OlderThan))
		if err != nil {
			return err
		}
		return cli.PrintOutf("Pruned %d session(s)\n", n)
	})
}
