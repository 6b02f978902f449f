package manager_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/driver"
	"github.com/frobware/go-tracefabric/manager"
	"github.com/frobware/go-tracefabric/regs"
	"github.com/frobware/go-tracefabric/topology"
)

const junoTopology = `
devices:
  - {id: etm0, kind: source, type: etm, base: 0x22040000}
  - {id: etm1, kind: source, type: etm, base: 0x22140000}
  - {id: funnel0, kind: link, type: funnel, base: 0x20040000}
  - {id: etf0, kind: sink, type: tmc, base: 0x20010000}
connections:
  - {from: etm0, out: 0, to: funnel0, in: 0}
  - {from: etm1, out: 0, to: funnel0, in: 1}
  - {from: funnel0, out: 0, to: etf0, in: 0}
`

// TestReferenceDrivers runs an activation through the reference
// drivers against simulated register blocks.
func TestReferenceDrivers(t *testing.T) {
	g, err := topology.Parse([]byte(junoTopology))
	require.NoError(t, err)

	sims := make(map[tracefabric.DeviceID]*regs.SimBlock)
	blocks := make(map[tracefabric.DeviceID]regs.Block)
	for _, n := range g.Nodes() {
		b := regs.NewSimBlock()
		driver.Simulate(n.Type, b)
		sims[n.ID] = b
		blocks[n.ID] = b
	}

	m, err := manager.New(manager.Config{
		Graph:  g,
		Blocks: blocks,
		Poller: &regs.Poller{Clock: regs.NewManualClock(time.Unix(0, 0))},
	}, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	p, err := m.BuildPath(ctx, "etm1", "", tracefabric.ModeSysfs)
	require.NoError(t, err)
	require.NoError(t, m.EnablePath(ctx, p))

	assert.Equal(t, uint32(1<<1), sims["funnel0"].Get(driver.FunnelCTRL)&0xff, "funnel input 1 enabled")
	assert.Equal(t, uint32(1), sims["etf0"].Get(driver.TMCCTL), "capture enabled")
	assert.Equal(t, uint32(1), sims["etm1"].Get(driver.TRCPRGCTLR), "trace unit enabled")
	assert.Zero(t, sims["etm0"].Get(driver.TRCPRGCTLR))

	require.NoError(t, m.WriteBarrier(ctx, ""))
	assert.Equal(t, tracefabric.Barrier(), sims["etf0"].Writes(driver.TMCRWD))

	values, err := m.ReadRegisters(ctx, "etf0", nil)
	require.NoError(t, err)
	var names []string
	for _, v := range values {
		names = append(names, v.Name)
	}
	assert.Contains(t, names, "ctl")
	assert.Contains(t, names, "claimset")

	require.NoError(t, m.ReleasePath(ctx, p))
	assert.Zero(t, sims["funnel0"].Get(driver.FunnelCTRL)&0xff)
	assert.Zero(t, sims["etf0"].Get(driver.TMCCTL))
	assert.Zero(t, sims["etm1"].Get(driver.TRCPRGCTLR))
	for id, b := range sims {
		assert.Zero(t, b.DroppedWrites(), "%s: write while locked", id)
		assert.True(t, b.Locked(), "%s left unlocked", id)
		assert.Zero(t, b.Get(regs.CLAIMCLR), "%s claim tag", id)
	}
}
