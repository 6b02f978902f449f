// Package claim arbitrates ownership of trace components between
// software agents using the CLAIMSET/CLAIMCLR tag registers.
//
// Each device has its own lock, so claims on unrelated devices never
// contend. Bit 0 of the claim tag is the self-hosted tag used by this
// package; bit 1 belongs to an external debugger and, when set, makes
// the device unclaimable.
package claim

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/logging"
	"github.com/frobware/go-tracefabric/power"
	"github.com/frobware/go-tracefabric/regs"
)

// Claim tag bits.
const (
	SelfHosted uint32 = 1 << 0
	External   uint32 = 1 << 1

	tagMask = SelfHosted | External
)

type tag struct {
	mu    sync.Mutex
	block regs.Block
	owner tracefabric.AgentID
}

// Arbiter holds the claim state of every registered device.
type Arbiter struct {
	power  power.Controller
	poller *regs.Poller
	logger *slog.Logger

	mu   sync.RWMutex
	tags map[tracefabric.DeviceID]*tag
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithPoller sets the poller used to confirm unlocks.
func WithPoller(p *regs.Poller) Option {
	return func(a *Arbiter) { a.poller = p }
}

// WithPower sets the power controller wrapped around register access.
func WithPower(c power.Controller) Option {
	return func(a *Arbiter) { a.power = c }
}

// New returns an empty Arbiter.
func New(logger *slog.Logger, opts ...Option) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Arbiter{
		power:  power.AlwaysOn{},
		poller: regs.DefaultPoller(),
		logger: logger.With("component", "claim"),
		tags:   make(map[tracefabric.DeviceID]*tag),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds a device. A nil block registers a device with no
// mapped registers; its claims are tracked in software only.
func (a *Arbiter) Register(id tracefabric.DeviceID, block regs.Block) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tags[id] = &tag{block: block}
}

func (a *Arbiter) lookup(id tracefabric.DeviceID) (*tag, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tags[id]
	if !ok {
		return nil, tracefabric.ErrDeviceNotFound{Device: id}
	}
	return t, nil
}

// Claim takes ownership of id for agent. It fails with
// ErrAlreadyClaimed if any agent, including an external debugger,
// already holds the device.
func (a *Arbiter) Claim(ctx context.Context, id tracefabric.DeviceID, agent tracefabric.AgentID) error {
	t, err := a.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owner != "" {
		return tracefabric.ErrAlreadyClaimed{Device: id, Owner: t.owner}
	}

	err = power.Scoped(ctx, a.power, id, func() error {
		return a.claimHardware(ctx, id, t.block)
	})
	if err != nil {
		return err
	}

	t.owner = agent
	a.logger.DebugContext(ctx, "claimed", "device", id, "agent", agent)
	return nil
}

// claimHardware sets the self-hosted tag and reads it back. Devices that
// do not implement the self-hosted tag are trivially claimable.
func (a *Arbiter) claimHardware(ctx context.Context, id tracefabric.DeviceID, b regs.Block) error {
	if b == nil || b.Read32(regs.CLAIMSET)&SelfHosted == 0 {
		return nil
	}
	if err := a.poller.Unlock(ctx, id, b); err != nil {
		return err
	}
	defer regs.Lock(b)

	if held := b.Read32(regs.CLAIMCLR) & tagMask; held != 0 {
		a.logger.Log(ctx, logging.LevelTrace.ToSlog(), "claim tag already set", "device", id, "tags", held)
		return tracefabric.ErrAlreadyClaimed{Device: id}
	}

	b.Write32(regs.CLAIMSET, SelfHosted)
	if got := b.Read32(regs.CLAIMCLR) & tagMask; got != SelfHosted {
		// Lost a race with an external agent.
		b.Write32(regs.CLAIMCLR, SelfHosted)
		return tracefabric.ErrAlreadyClaimed{Device: id}
	}
	return nil
}

// Release drops agent's claim on id. It fails with ErrNotOwner if agent
// does not hold the claim.
func (a *Arbiter) Release(ctx context.Context, id tracefabric.DeviceID, agent tracefabric.AgentID) error {
	t, err := a.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owner != agent || agent == "" {
		return tracefabric.ErrNotOwner{Device: id, Agent: agent, Owner: t.owner}
	}

	// The software claim is dropped even if the hardware write fails so
	// that a device whose registers have become inaccessible is not
	// stranded.
	err = power.Scoped(ctx, a.power, id, func() error {
		return a.releaseHardware(ctx, id, t.block)
	})
	t.owner = ""
	if err != nil {
		a.logger.WarnContext(ctx, "claim tag clear failed", "device", id, "error", err)
		return err
	}

	a.logger.DebugContext(ctx, "released", "device", id, "agent", agent)
	return nil
}

func (a *Arbiter) releaseHardware(ctx context.Context, id tracefabric.DeviceID, b regs.Block) error {
	if b == nil || b.Read32(regs.CLAIMSET)&SelfHosted == 0 {
		return nil
	}
	if err := a.poller.Unlock(ctx, id, b); err != nil {
		return err
	}
	b.Write32(regs.CLAIMCLR, SelfHosted)
	regs.Lock(b)
	return nil
}

// Owner returns the agent holding id, if any.
func (a *Arbiter) Owner(id tracefabric.DeviceID) (tracefabric.AgentID, bool) {
	t, err := a.lookup(id)
	if err != nil {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner, t.owner != ""
}

// Claimed returns the sorted IDs of every claimed device.
func (a *Arbiter) Claimed() []tracefabric.DeviceID {
	a.mu.RLock()
	ids := make([]tracefabric.DeviceID, 0, len(a.tags))
	tags := make([]*tag, 0, len(a.tags))
	for id, t := range a.tags {
		ids = append(ids, id)
		tags = append(tags, t)
	}
	a.mu.RUnlock()

	var out []tracefabric.DeviceID
	for i, t := range tags {
		t.mu.Lock()
		if t.owner != "" {
			out = append(out, ids[i])
		}
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Unowned returns the claim tags set in hardware on devices that no
// agent holds in software. Tags left behind by a process that exited
// without releasing show up here, as do external debugger claims.
func (a *Arbiter) Unowned(ctx context.Context) map[tracefabric.DeviceID]uint32 {
	a.mu.RLock()
	ids := make([]tracefabric.DeviceID, 0, len(a.tags))
	tags := make([]*tag, 0, len(a.tags))
	for id, t := range a.tags {
		ids = append(ids, id)
		tags = append(tags, t)
	}
	a.mu.RUnlock()

	out := make(map[tracefabric.DeviceID]uint32)
	for i, t := range tags {
		t.mu.Lock()
		if t.owner == "" && t.block != nil {
			var held uint32
			err := power.Scoped(ctx, a.power, ids[i], func() error {
				if t.block.Read32(regs.CLAIMSET)&SelfHosted != 0 {
					held = t.block.Read32(regs.CLAIMCLR) & tagMask
				}
				return nil
			})
			if err != nil {
				a.logger.WarnContext(ctx, "claim tag read failed", "device", ids[i], "error", err)
			} else if held != 0 {
				out[ids[i]] = held
			}
		}
		t.mu.Unlock()
	}
	return out
}

// ClearStale clears a self-hosted claim tag that no agent holds. It
// refuses with ErrAlreadyClaimed while the device is owned. External
// tags are never touched.
func (a *Arbiter) ClearStale(ctx context.Context, id tracefabric.DeviceID) error {
	t, err := a.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owner != "" {
		return tracefabric.ErrAlreadyClaimed{Device: id, Owner: t.owner}
	}
	if t.block == nil {
		return nil
	}

	err = power.Scoped(ctx, a.power, id, func() error {
		return a.releaseHardware(ctx, id, t.block)
	})
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "cleared stale claim tag", "device", id)
	return nil
}
