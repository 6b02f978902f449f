//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/store"
)

func TestMain(m *testing.M) {
	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "e2e tests require root privileges")
		os.Exit(1)
	}

	cleanupStaleTestDirs()

	os.Exit(m.Run())
}

// TestEverySourceToEverySink enables and disables each route the
// topology allows.
//
// Given a clean fabric,
// When each source is routed to each reachable sink in turn,
// Then every activation succeeds, a barrier can be written to typed
// sinks, and the fabric is clean afterwards.
func TestEverySourceToEverySink(t *testing.T) {
	RequireRoot(t)
	RequireDevMem(t)

	env := NewTestEnv(t)
	m := env.Manager()
	ctx := context.Background()

	env.AssertCleanState()

	for _, source := range m.Graph().Sources() {
		sinks, err := compute.ReachableSinks(m.Graph(), m, source, tracefabric.ModeSysfs)
		require.NoError(t, err)

		for _, sink := range sinks {
			t.Run(fmt.Sprintf("%s-%s", source, sink), func(t *testing.T) {
				p, err := m.BuildPath(ctx, source, sink, tracefabric.ModeSysfs)
				require.NoError(t, err)
				require.NoError(t, m.EnablePath(ctx, p))

				if n, _ := m.Graph().Node(sink); n.Type != "" {
					require.NoError(t, m.WriteBarrier(ctx, sink))
				}

				require.NoError(t, m.ReleasePath(ctx, p))
				env.AssertCleanState()
			})
		}
	}
}

// TestPerfSourceIsExclusive verifies that a source enabled for perf
// cannot be enabled a second time.
func TestPerfSourceIsExclusive(t *testing.T) {
	RequireRoot(t)
	RequireDevMem(t)

	env := NewTestEnv(t)
	m := env.Manager()
	ctx := context.Background()

	sources := m.Graph().Sources()
	require.NotEmpty(t, sources)

	first, err := m.BuildPath(ctx, sources[0], "", tracefabric.ModePerf)
	require.NoError(t, err)
	require.NoError(t, m.EnablePath(ctx, first))

	second, err := m.BuildPath(ctx, sources[0], first.Sink(), tracefabric.ModePerf)
	require.NoError(t, err)
	var busy tracefabric.ErrDeviceBusy
	require.ErrorAs(t, m.EnablePath(ctx, second), &busy)

	require.NoError(t, m.ReleasePath(ctx, first))
	env.AssertCleanState()

	if _, err := env.Runtime.Store(); err != nil {
		return
	}
	failed, err := m.History(ctx, store.Filter{Status: store.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1, "the rejected activation is recorded")
}
