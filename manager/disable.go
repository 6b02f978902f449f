package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/power"
	"github.com/frobware/go-tracefabric/store"
)

// DisablePath drops p's reference on each device, source first. A
// device whose last reference goes is quiesced and its claim released.
//
// Teardown continues past failures so that no claim is leaked; the
// errors are returned joined.
func (m *Manager) DisablePath(ctx context.Context, p *Path) error {
	if err := m.checkPath(p); err != nil {
		return err
	}
	if !p.enabled {
		return tracefabric.ErrPathState{Path: p.ID.String(), Reason: "not enabled"}
	}
	ctx = withOpID(ctx)

	var (
		errs    []error
		events  []store.Event
		stopped int
	)
	record := func(dev tracefabric.DeviceID, action store.Action, err error) {
		e := store.Event{Session: p.session, Device: dev, Action: action, At: m.now()}
		if err != nil {
			e.Error = err.Error()
		}
		events = append(events, e)
	}

	for _, hop := range p.Hops {
		last, err := m.disableHop(ctx, hop, record)
		if err != nil {
			errs = append(errs, err)
		}
		if last {
			stopped++
		}
	}

	err := errors.Join(errs...)
	status, errText := store.StatusClosed, ""
	if err != nil {
		status, errText = store.StatusFailed, err.Error()
	}
	m.recordClose(ctx, p.session, status, errText, m.now(), events)
	m.trackSession(p.session, false)

	p.enabled = false
	p.session = uuid.Nil

	if err != nil {
		m.logger.WarnContext(ctx, "disabled path with errors", "path", p.ID, "error", err)
		return err
	}
	m.logger.InfoContext(ctx, "disabled path", "path", p.ID, "route", p.Devices(), "stopped", stopped)
	return nil
}

// disableHop drops one reference and tears the device down when it was
// the last. It reports whether the device was torn down.
func (m *Manager) disableHop(ctx context.Context, hop tracefabric.Hop, record func(tracefabric.DeviceID, store.Action, error)) (bool, error) {
	d, err := m.device(hop.Device)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.Active() {
		return false, fmt.Errorf("device %s: not enabled", hop.Device)
	}
	d.state.Refs--
	if d.state.Refs > 0 {
		m.logger.DebugContext(ctx, "dropped reference", "device", hop.Device, "refs", d.state.Refs)
		return false, nil
	}

	var errs []error
	if drv, err := m.driverFor(d); err != nil {
		errs = append(errs, err)
	} else if drv != nil {
		t := m.target(d, hop, d.state.Mode)
		err := power.Scoped(ctx, m.power, hop.Device, func() error {
			return drv.Quiesce(ctx, t)
		})
		record(hop.Device, store.ActionQuiesce, err)
		if err != nil {
			m.logger.WarnContext(ctx, "quiesce failed", "device", hop.Device, "error", err)
			errs = append(errs, fmt.Errorf("quiesce %s: %w", hop.Device, err))
		}
	}

	agent := d.state.Agent
	d.state = compute.DeviceState{}
	err = m.arbiter.Release(ctx, hop.Device, agent)
	record(hop.Device, store.ActionRelease, err)
	if err != nil {
		errs = append(errs, fmt.Errorf("release %s: %w", hop.Device, err))
	}

	if d.node.Kind == tracefabric.KindSink && m.sinks.ClearIf(hop.Device) {
		m.logger.DebugContext(ctx, "enabled sink cleared", "sink", hop.Device)
	}
	return true, errors.Join(errs...)
}

// ReleasePath disables p if it is enabled and invalidates it. Releasing
// a released path is a no-op.
func (m *Manager) ReleasePath(ctx context.Context, p *Path) error {
	if p == nil || p.released {
		return nil
	}
	var err error
	if p.enabled {
		err = m.DisablePath(ctx, p)
	}
	p.released = true
	return err
}
