// Package driver defines the contract between the path engine and the
// per-kind register programming of trace components, and provides
// reference drivers for the common component types.
package driver

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/regs"
	"github.com/frobware/go-tracefabric/topology"
)

// Target is the device a driver operates on, together with the ports
// the path uses.
type Target struct {
	Hop    tracefabric.Hop
	Node   topology.Node
	Block  regs.Block
	Mode   tracefabric.Mode
	Poller *regs.Poller
}

// ID returns the device ID.
func (t Target) ID() tracefabric.DeviceID { return t.Hop.Device }

func (t Target) poller() *regs.Poller {
	if t.Poller == nil {
		return regs.DefaultPoller()
	}
	return t.Poller
}

// Driver programs and quiesces one kind of device. Program is called
// once per activation, after the device is claimed and powered; Quiesce
// undoes it.
type Driver interface {
	Program(ctx context.Context, t Target) error
	Quiesce(ctx context.Context, t Target) error
}

// BarrierWriter is implemented by sink drivers that accept a barrier
// packet into their data stream.
type BarrierWriter interface {
	WriteBarrier(ctx context.Context, t Target, words []uint32) error
}

// Describer is implemented by drivers that expose named registers.
type Describer interface {
	Registers() regs.Table
}

// Registry maps device types to drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register installs d for typ, replacing any previous driver.
func (r *Registry) Register(typ string, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[typ] = d
}

// Lookup returns the driver for typ.
func (r *Registry) Lookup(typ string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[typ]
	if !ok {
		return nil, tracefabric.ErrUnsupported{Feature: "driver for device type " + typ}
	}
	return d, nil
}

// Types returns the registered device types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.drivers))
	for typ := range r.drivers {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Default returns a Registry holding the reference drivers.
func Default(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry()
	r.Register("etm", NewETM(logger))
	r.Register("funnel", NewFunnel(logger))
	r.Register("replicator", NewReplicator(logger))
	r.Register("tmc", NewTMC(logger))
	return r
}

// locked runs fn with the component unlocked and relocks it afterwards.
func locked(ctx context.Context, t Target, fn func(b regs.Block) error) error {
	if t.Block == nil {
		return nil
	}
	if err := t.poller().Unlock(ctx, t.ID(), t.Block); err != nil {
		return err
	}
	defer regs.Lock(t.Block)
	return fn(t.Block)
}
