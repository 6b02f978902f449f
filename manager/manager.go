// Package manager activates and tears down trace paths using the
// fetch/compute/execute pattern.
//
// # Activation Model
//
// A path is enabled sink-first and disabled source-first. Each device
// has its own lock, held only while that device is being admitted,
// programmed or torn down; no two device locks are ever held at once,
// so overlapping paths cannot deadlock.
//
// EnablePath works in two phases:
//  1. Admit every hop: raise the reference count of devices already
//     enabled for an identical use, claim free ones (marked pending).
//  2. Program the newly claimed devices through their drivers.
//
// Every step pushes its inverse onto an undo stack. If any step fails
// the stack is unwound in reverse order and the originating error is
// returned, so a failed activation leaves no claims, references or
// programmed hardware behind.
//
// # Ledger
//
// When a store is configured each activation is recorded as a session
// together with its per-device steps. The ledger is an audit trail:
// a failure to write it is logged and never undoes hardware state.
//
// # Garbage Collection
//
// PlanGC compares the ledger and the hardware claim tags with the paths
// this Manager holds and returns reified actions; ApplyGC executes them.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/claim"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/csr"
	"github.com/frobware/go-tracefabric/driver"
	"github.com/frobware/go-tracefabric/power"
	"github.com/frobware/go-tracefabric/regs"
	"github.com/frobware/go-tracefabric/sink"
	"github.com/frobware/go-tracefabric/store"
	"github.com/frobware/go-tracefabric/topology"
)

// Config holds the collaborators of a Manager. Only Graph is required.
type Config struct {
	Graph *topology.Graph
	// Blocks maps devices to their register windows. Devices without
	// an entry are unmapped and tracked in software only.
	Blocks map[tracefabric.DeviceID]regs.Block
	// Drivers programs devices by type. Defaults to driver.Default.
	Drivers *driver.Registry
	// Power defaults to power.AlwaysOn.
	Power power.Controller
	// Poller bounds hardware waits. Defaults to regs.DefaultPoller.
	Poller *regs.Poller
	// PreferredSink is tried before discovery order when a request
	// names no sink.
	PreferredSink tracefabric.DeviceID
	// CSR defaults to csr.Absent.
	CSR csr.Provider
	// Store, if set, receives a session record per activation.
	Store store.Store
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager owns the mutable state of every device in a topology.
type Manager struct {
	graph   *topology.Graph
	arbiter *claim.Arbiter
	drivers *driver.Registry
	power   power.Controller
	poller  *regs.Poller
	sinks   *sink.Policy
	csr     csr.Provider
	store   store.Store
	now     func() time.Time
	logger  *slog.Logger

	// devices is populated by New and never modified afterwards.
	devices map[tracefabric.DeviceID]*device

	liveMu sync.Mutex
	live   map[uuid.UUID]struct{}
}

// New creates a Manager for cfg.Graph.
func New(cfg Config, logger *slog.Logger) (*Manager, error) {
	if cfg.Graph == nil {
		return nil, errors.New("manager: topology graph is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = WithOpIDHandler(logger)

	for id := range cfg.Blocks {
		if !cfg.Graph.Has(id) {
			return nil, fmt.Errorf("register block for %w", tracefabric.ErrDeviceNotFound{Device: id})
		}
	}

	m := &Manager{
		graph:   cfg.Graph,
		drivers: cfg.Drivers,
		power:   cfg.Power,
		poller:  cfg.Poller,
		csr:     cfg.CSR,
		store:   cfg.Store,
		now:     cfg.Now,
		logger:  logger.With("component", "manager"),
		devices: make(map[tracefabric.DeviceID]*device),
		live:    make(map[uuid.UUID]struct{}),
	}
	if m.drivers == nil {
		m.drivers = driver.Default(logger)
	}
	if m.power == nil {
		m.power = power.AlwaysOn{}
	}
	if m.poller == nil {
		m.poller = regs.DefaultPoller()
	}
	if m.csr == nil {
		m.csr = csr.Absent{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.sinks = sink.NewPolicy(cfg.PreferredSink, logger)
	m.arbiter = claim.New(logger, claim.WithPoller(m.poller), claim.WithPower(m.power))

	for _, n := range cfg.Graph.Nodes() {
		block := cfg.Blocks[n.ID]
		m.devices[n.ID] = &device{node: n, block: block}
		m.arbiter.Register(n.ID, block)
	}
	return m, nil
}

// Graph returns the topology the Manager was built for.
func (m *Manager) Graph() *topology.Graph {
	return m.graph
}

// CSR returns the CSR provider.
func (m *Manager) CSR() csr.Provider {
	return m.csr
}

// Store returns the session ledger, or nil if none is configured.
func (m *Manager) Store() store.Store {
	return m.store
}

func (m *Manager) device(id tracefabric.DeviceID) (*device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, tracefabric.ErrDeviceNotFound{Device: id}
	}
	return d, nil
}

// State implements compute.View. Each device is read under its own
// lock, so the view is not a consistent snapshot across devices.
func (m *Manager) State(id tracefabric.DeviceID) compute.DeviceState {
	d, ok := m.devices[id]
	if !ok {
		return compute.DeviceState{}
	}
	return d.snapshot()
}

// GetEnabledSink returns the system-wide enabled sink. With reset the
// designation is cleared; the sink itself stays enabled.
func (m *Manager) GetEnabledSink(reset bool) (tracefabric.DeviceID, bool) {
	return m.sinks.GetEnabled(reset)
}

// trackSession records whether a ledger session belongs to a path this
// Manager has enabled.
func (m *Manager) trackSession(id uuid.UUID, live bool) {
	m.liveMu.Lock()
	defer m.liveMu.Unlock()
	if live {
		m.live[id] = struct{}{}
	} else {
		delete(m.live, id)
	}
}

// ownsSession reports whether id is the session of a path this Manager
// holds enabled.
func (m *Manager) ownsSession(id uuid.UUID) bool {
	m.liveMu.Lock()
	defer m.liveMu.Unlock()
	_, ok := m.live[id]
	return ok
}
