// Package power provides the power collaborator consumed by the path
// engine. Every register access happens inside a scoped power-up
// reference that is released immediately afterwards.
package power

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/logging"
)

// Controller powers devices up and down. Calls nest: implementations
// are expected to reference-count them.
type Controller interface {
	PowerUp(ctx context.Context, id tracefabric.DeviceID) error
	PowerDown(ctx context.Context, id tracefabric.DeviceID)
}

// Scoped runs fn with a power reference held on id. The reference is
// dropped when fn returns, including on error.
func Scoped(ctx context.Context, c Controller, id tracefabric.DeviceID, fn func() error) error {
	if c == nil {
		return fn()
	}
	if err := c.PowerUp(ctx, id); err != nil {
		return fmt.Errorf("power up %s: %w", id, err)
	}
	defer c.PowerDown(ctx, id)
	return fn()
}

// AlwaysOn is a Controller for hardware with no power management.
type AlwaysOn struct{}

// PowerUp implements Controller.
func (AlwaysOn) PowerUp(context.Context, tracefabric.DeviceID) error { return nil }

// PowerDown implements Controller.
func (AlwaysOn) PowerDown(context.Context, tracefabric.DeviceID) {}

// Refcounted turns nested power references into a single on/off
// transition per device.
type Refcounted struct {
	on     func(ctx context.Context, id tracefabric.DeviceID) error
	off    func(ctx context.Context, id tracefabric.DeviceID)
	logger *slog.Logger

	mu     sync.Mutex
	counts map[tracefabric.DeviceID]int
}

// NewRefcounted returns a Refcounted controller. Either callback may be
// nil.
func NewRefcounted(
	on func(ctx context.Context, id tracefabric.DeviceID) error,
	off func(ctx context.Context, id tracefabric.DeviceID),
	logger *slog.Logger,
) *Refcounted {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refcounted{
		on:     on,
		off:    off,
		logger: logger.With("component", "power"),
		counts: make(map[tracefabric.DeviceID]int),
	}
}

// PowerUp implements Controller. The on callback runs only for the
// first reference.
func (r *Refcounted) PowerUp(ctx context.Context, id tracefabric.DeviceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.counts[id] == 0 && r.on != nil {
		if err := r.on(ctx, id); err != nil {
			return err
		}
		r.logger.Log(ctx, logging.LevelTrace.ToSlog(), "powered up", "device", id)
	}
	r.counts[id]++
	return nil
}

// PowerDown implements Controller. The off callback runs when the last
// reference is dropped. Unbalanced calls are logged and ignored.
func (r *Refcounted) PowerDown(ctx context.Context, id tracefabric.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.counts[id]
	if n == 0 {
		r.logger.WarnContext(ctx, "unbalanced power down", "device", id)
		return
	}
	if n == 1 {
		delete(r.counts, id)
		if r.off != nil {
			r.off(ctx, id)
		}
		r.logger.Log(ctx, logging.LevelTrace.ToSlog(), "powered down", "device", id)
		return
	}
	r.counts[id] = n - 1
}

// Count returns the number of outstanding references on id.
func (r *Refcounted) Count(id tracefabric.DeviceID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id]
}

// Outstanding returns the total number of references held across all
// devices.
func (r *Refcounted) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.counts {
		total += n
	}
	return total
}
