package manager_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/driver"
	"github.com/frobware/go-tracefabric/manager"
	"github.com/frobware/go-tracefabric/power"
	"github.com/frobware/go-tracefabric/regs"
	"github.com/frobware/go-tracefabric/store"
	"github.com/frobware/go-tracefabric/store/sqlite"
	"github.com/frobware/go-tracefabric/topology"
)

// testLogger returns a logger for tests. By default it discards all output.
// Set TRACEFABRIC_TEST_VERBOSE=1 to enable logging.
func testLogger() *slog.Logger {
	if os.Getenv("TRACEFABRIC_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testGraph is the fabric used by most tests:
//
//	etm0 ─in0─┐
//	          funnel0 ── replicator0 ─out0─ etr0
//	etm1 ─in1─┘                     └out1─ tpiu0
//
//	etm2 ── funnel1 ── etf1
//
// tpiu0 has no type and no registers.
func testGraph(t *testing.T) *topology.Graph {
	t.Helper()
	g, err := topology.NewBuilder().
		Add("etm0", tracefabric.KindSource, "src").
		Add("etm1", tracefabric.KindSource, "src").
		Add("etm2", tracefabric.KindSource, "src").
		Add("funnel0", tracefabric.KindLink, "link").
		Add("funnel1", tracefabric.KindLink, "link").
		Add("replicator0", tracefabric.KindLink, "link").
		Add("etr0", tracefabric.KindSink, "sink").
		Add("etf1", tracefabric.KindSink, "sink").
		Add("tpiu0", tracefabric.KindSink, "").
		Connect("etm0", 0, "funnel0", 0).
		Connect("etm1", 0, "funnel0", 1).
		Connect("funnel0", 0, "replicator0", 0).
		Connect("replicator0", 0, "etr0", 0).
		Connect("replicator0", 1, "tpiu0", 0).
		Connect("etm2", 0, "funnel1", 0).
		Connect("funnel1", 0, "etf1", 0).
		Build()
	require.NoError(t, err)
	return g
}

// fakeDriver records Program and Quiesce calls and fails on request.
type fakeDriver struct {
	mu          sync.Mutex
	ops         []string
	failProgram map[tracefabric.DeviceID]error
	failQuiesce map[tracefabric.DeviceID]error
	barriers    map[tracefabric.DeviceID][][]uint32
	gates       map[tracefabric.DeviceID]chan struct{}
	onProgram   map[tracefabric.DeviceID]func()
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		failProgram: make(map[tracefabric.DeviceID]error),
		failQuiesce: make(map[tracefabric.DeviceID]error),
		barriers:    make(map[tracefabric.DeviceID][][]uint32),
		gates:       make(map[tracefabric.DeviceID]chan struct{}),
		onProgram:   make(map[tracefabric.DeviceID]func()),
	}
}

// Program fails with ctx's error if ctx is done by the time the device
// would be written.
func (f *fakeDriver) Program(ctx context.Context, t driver.Target) error {
	f.mu.Lock()
	gate := f.gates[t.ID()]
	hook := f.onProgram[t.ID()]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failProgram[t.ID()]
	if err == nil {
		err = ctx.Err()
	}
	f.ops = append(f.ops, opString("program", t, err))
	return err
}

func (f *fakeDriver) Quiesce(_ context.Context, t driver.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failQuiesce[t.ID()]
	f.ops = append(f.ops, opString("quiesce", t, err))
	return err
}

func (f *fakeDriver) WriteBarrier(_ context.Context, t driver.Target, words []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barriers[t.ID()] = append(f.barriers[t.ID()], words)
	return nil
}

func opString(op string, t driver.Target, err error) string {
	if err != nil {
		return fmt.Sprintf("%s:%s:error", op, t.ID())
	}
	return fmt.Sprintf("%s:%s:ok", op, t.ID())
}

// Gate makes Program block for id until the returned channel is closed.
func (f *fakeDriver) Gate(id tracefabric.DeviceID) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[id] = gate
	return gate
}

// OnProgram calls fn when Program is entered for id.
func (f *fakeDriver) OnProgram(id tracefabric.DeviceID, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onProgram[id] = fn
}

// Barriers returns the barrier packets written to id.
func (f *fakeDriver) Barriers(id tracefabric.DeviceID) [][]uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.barriers[id]
}

// FailProgram makes Program fail for id.
func (f *fakeDriver) FailProgram(id tracefabric.DeviceID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failProgram[id] = err
}

// FailQuiesce makes Quiesce fail for id.
func (f *fakeDriver) FailQuiesce(id tracefabric.DeviceID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failQuiesce[id] = err
}

// Ops returns the recorded operations and clears the log.
func (f *fakeDriver) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := f.ops
	f.ops = nil
	return ops
}

// testFixture provides access to all components for verification.
type testFixture struct {
	Manager *manager.Manager
	Driver  *fakeDriver
	Power   *power.Refcounted
	Blocks  map[tracefabric.DeviceID]*regs.SimBlock
	Store   store.Store
	t       *testing.T
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	powerOn func(context.Context, tracefabric.DeviceID) error
}

// withPowerOn installs fn as the power-up hook of the fixture's
// power controller.
func withPowerOn(fn func(context.Context, tracefabric.DeviceID) error) fixtureOption {
	return func(c *fixtureConfig) { c.powerOn = fn }
}

// newTestFixture creates a Manager over testGraph with simulated
// register blocks, a recording driver and an in-memory ledger.
func newTestFixture(t *testing.T, opts ...fixtureOption) *testFixture {
	t.Helper()
	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	g := testGraph(t)

	st, err := sqlite.NewInMemory(context.Background(), testLogger())
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() { st.Close() })

	sims := make(map[tracefabric.DeviceID]*regs.SimBlock)
	blocks := make(map[tracefabric.DeviceID]regs.Block)
	for _, n := range g.Nodes() {
		if n.ID == "tpiu0" {
			continue
		}
		b := regs.NewSimBlock()
		sims[n.ID] = b
		blocks[n.ID] = b
	}

	drv := newFakeDriver()
	drivers := driver.NewRegistry()
	for _, typ := range []string{"src", "link", "sink"} {
		drivers.Register(typ, drv)
	}

	pwr := power.NewRefcounted(cfg.powerOn, nil, testLogger())
	clock := regs.NewManualClock(time.Unix(0, 0))

	m, err := manager.New(manager.Config{
		Graph:   g,
		Blocks:  blocks,
		Drivers: drivers,
		Power:   pwr,
		Poller:  &regs.Poller{Timeout: regs.DefaultTimeout, Interval: regs.DefaultInterval, Clock: clock},
		Store:   st,
	}, testLogger())
	require.NoError(t, err)

	return &testFixture{
		Manager: m,
		Driver:  drv,
		Power:   pwr,
		Blocks:  sims,
		Store:   st,
		t:       t,
	}
}

// Build builds a sysfs path and fails the test on error.
func (f *testFixture) Build(source, sink tracefabric.DeviceID) *manager.Path {
	f.t.Helper()
	p, err := f.Manager.BuildPath(context.Background(), source, sink, tracefabric.ModeSysfs)
	require.NoError(f.t, err)
	return p
}

// Refs returns the reference count of every device with a non-zero count.
func (f *testFixture) Refs() map[tracefabric.DeviceID]int {
	out := make(map[tracefabric.DeviceID]int)
	for _, s := range f.Manager.Status() {
		if s.Refs != 0 {
			out[s.ID] = s.Refs
		}
	}
	return out
}

// AssertIdle verifies no device is enabled, claimed, powered or holding
// its hardware claim tag.
func (f *testFixture) AssertIdle() {
	f.t.Helper()
	for _, s := range f.Manager.Status() {
		assert.Zero(f.t, s.Refs, "%s refs", s.ID)
		assert.Equal(f.t, tracefabric.ModeDisabled, s.Mode, "%s mode", s.ID)
		assert.False(f.t, s.Pending, "%s pending", s.ID)
		assert.Empty(f.t, s.Owner, "%s owner", s.ID)
	}
	for id, b := range f.Blocks {
		assert.Zero(f.t, b.Get(regs.CLAIMCLR)&0x1, "%s self-hosted claim tag", id)
		assert.True(f.t, b.Locked(), "%s left unlocked", id)
	}
	assert.Zero(f.t, f.Power.Outstanding(), "outstanding power references")
}
