package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/driver"
	"github.com/frobware/go-tracefabric/power"
	"github.com/frobware/go-tracefabric/regs"
	"github.com/frobware/go-tracefabric/store"
)

// EnablePath claims and programs every device of p, sink first.
//
// Devices already enabled by another path in the same mode, for the
// same agent and through the same ports are shared rather than
// reprogrammed. Any other use makes the activation fail with
// ErrDeviceBusy. On failure every completed step is undone.
func (m *Manager) EnablePath(ctx context.Context, p *Path) error {
	if err := m.checkPath(p); err != nil {
		return err
	}
	if p.enabled {
		return tracefabric.ErrPathState{Path: p.ID.String(), Reason: "already enabled"}
	}
	ctx = withOpID(ctx)

	act := &activation{
		m:       m,
		path:    p,
		session: uuid.New(),
		start:   m.now(),
	}
	if err := act.run(ctx); err != nil {
		return act.fail(ctx, err)
	}

	p.enabled = true
	p.session = act.session
	m.trackSession(act.session, true)
	if m.sinks.SetIfEmpty(p.Sink()) {
		m.logger.DebugContext(ctx, "enabled sink", "sink", p.Sink())
	}
	m.recordOpen(ctx, act.sessionRecord(store.StatusActive, nil), act.events)

	m.logger.InfoContext(ctx, "enabled path",
		"path", p.ID,
		"route", p.Devices(),
		"mode", p.Mode,
		"programmed", len(act.claimed))
	return nil
}

func (m *Manager) checkPath(p *Path) error {
	if p == nil || len(p.Hops) == 0 {
		return errors.New("empty path")
	}
	if p.released {
		return tracefabric.ErrPathState{Path: p.ID.String(), Reason: "released"}
	}
	return nil
}

// activation carries the state of one EnablePath call.
type activation struct {
	m       *Manager
	path    *Path
	session uuid.UUID
	start   time.Time

	undo    undoStack
	claimed []int
	events  []store.Event
}

func (a *activation) record(dev tracefabric.DeviceID, action store.Action, err error) {
	e := store.Event{Session: a.session, Device: dev, Action: action, At: a.m.now()}
	if err != nil {
		e.Error = err.Error()
	}
	a.events = append(a.events, e)
}

// run performs both phases. Hops are walked sink-first.
func (a *activation) run(ctx context.Context) error {
	p := a.path

	// COMPUTE + EXECUTE: admit each hop.
	for i := len(p.Hops) - 1; i >= 0; i-- {
		if err := a.admit(ctx, i); err != nil {
			return err
		}
	}

	// EXECUTE: program the devices claimed above, sink first.
	for _, i := range a.claimed {
		if err := a.program(ctx, i); err != nil {
			return err
		}
	}

	for _, i := range a.claimed {
		d := a.m.devices[p.Hops[i].Device]
		d.mu.Lock()
		d.state.Pending = false
		d.mu.Unlock()
	}
	return nil
}

func (a *activation) admit(ctx context.Context, i int) error {
	m, p := a.m, a.path
	hop := p.Hops[i]
	d, err := m.device(hop.Device)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	decision, reason := compute.Admit(d.state, d.node.Kind, hop, p.Mode, p.Agent)
	m.logger.DebugContext(ctx, "admit", "device", hop.Device, "decision", decision)

	switch decision {
	case compute.AdmitShare:
		d.state.Refs++
		a.record(hop.Device, store.ActionShare, nil)
		a.undo.push(hop.Device, store.ActionShare, func(context.Context) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.state.Refs--
			return nil
		})
		return nil

	case compute.AdmitClaim:
		if d.node.Kind == tracefabric.KindSource {
			if err := m.checkAuth(ctx, d); err != nil {
				return err
			}
		}
		if err := m.arbiter.Claim(ctx, hop.Device, p.Agent); err != nil {
			a.record(hop.Device, store.ActionClaim, err)
			var held tracefabric.ErrAlreadyClaimed
			if errors.As(err, &held) {
				return tracefabric.ErrDeviceBusy{Device: hop.Device, Reason: held.Error(), Err: err}
			}
			return fmt.Errorf("claim %s: %w", hop.Device, err)
		}
		d.state = compute.DeviceState{
			Mode:    p.Mode,
			Agent:   p.Agent,
			Refs:    1,
			InPort:  hop.InPort,
			OutPort: hop.OutPort,
			Pending: true,
		}
		a.claimed = append(a.claimed, i)
		a.record(hop.Device, store.ActionClaim, nil)
		a.undo.push(hop.Device, store.ActionClaim, func(ctx context.Context) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.state = compute.DeviceState{}
			return m.arbiter.Release(ctx, hop.Device, p.Agent)
		})
		return nil

	default:
		err := tracefabric.ErrDeviceBusy{Device: hop.Device, Reason: reason}
		a.record(hop.Device, store.ActionClaim, err)
		return err
	}
}

// checkAuth fails if the source's authentication status forbids the
// kind of tracing this engine performs.
func (m *Manager) checkAuth(ctx context.Context, d *device) error {
	var blocked bool
	err := power.Scoped(ctx, m.power, d.node.ID, func() error {
		blocked = regs.IsTraceBlocked(d.block)
		return nil
	})
	if err != nil {
		return err
	}
	if blocked {
		return tracefabric.ErrTraceBlocked{Device: d.node.ID}
	}
	return nil
}

func (a *activation) program(ctx context.Context, i int) error {
	m, p := a.m, a.path
	hop := p.Hops[i]
	d := m.devices[hop.Device]

	drv, err := m.driverFor(d)
	if err != nil {
		a.record(hop.Device, store.ActionProgram, err)
		return err
	}
	if drv == nil {
		return nil
	}

	t := m.target(d, hop, p.Mode)
	err = power.Scoped(ctx, m.power, hop.Device, func() error {
		return drv.Program(ctx, t)
	})
	a.record(hop.Device, store.ActionProgram, err)
	if err != nil {
		return fmt.Errorf("program %s: %w", hop.Device, err)
	}

	a.undo.push(hop.Device, store.ActionQuiesce, func(ctx context.Context) error {
		return power.Scoped(ctx, m.power, hop.Device, func() error {
			return drv.Quiesce(ctx, t)
		})
	})
	return nil
}

// driverFor returns the driver of d. Devices without a type are
// passive and have no driver.
func (m *Manager) driverFor(d *device) (driver.Driver, error) {
	if d.node.Type == "" {
		return nil, nil
	}
	return m.drivers.Lookup(d.node.Type)
}

func (m *Manager) target(d *device, hop tracefabric.Hop, mode tracefabric.Mode) driver.Target {
	return driver.Target{
		Hop:    hop,
		Node:   d.node,
		Block:  d.block,
		Mode:   mode,
		Poller: m.poller,
	}
}

// fail unwinds the activation and returns the originating error,
// joined with any rollback failures. The rollback runs even if ctx has
// been cancelled; claims must not outlive a failed activation.
func (a *activation) fail(ctx context.Context, err error) error {
	m := a.m
	ctx = context.WithoutCancel(ctx)
	m.logger.WarnContext(ctx, "enable failed, rolling back", "path", a.path.ID, "steps", len(a.undo), "error", err)

	rbErr := a.undo.rollback(ctx, m.logger, func(step undoStep, stepErr error) {
		a.record(step.device, store.ActionRollback, stepErr)
	})
	m.recordOpen(ctx, a.sessionRecord(store.StatusFailed, err), a.events)

	if rbErr != nil {
		return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
	}
	return err
}
