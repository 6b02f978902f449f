package regs

import (
	"context"
	"time"

	"github.com/frobware/go-tracefabric"
)

// Default poll bounds.
const (
	DefaultTimeout     = 100 * time.Microsecond
	DefaultInterval    = 1 * time.Microsecond
	DefaultMaxInterval = 20 * time.Microsecond
)

// Clock abstracts time so polling can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Poller waits for register bits with a hard upper bound. Exceeding the
// bound is a failure, never a retry.
type Poller struct {
	Timeout     time.Duration
	Interval    time.Duration
	MaxInterval time.Duration
	Clock       Clock
}

// DefaultPoller returns a Poller with the standard bounds and wall clock.
func DefaultPoller() *Poller {
	return &Poller{
		Timeout:     DefaultTimeout,
		Interval:    DefaultInterval,
		MaxInterval: DefaultMaxInterval,
		Clock:       RealClock(),
	}
}

func (p *Poller) normalised() Poller {
	out := Poller{}
	if p != nil {
		out = *p
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Interval <= 0 {
		out.Interval = DefaultInterval
	}
	if out.MaxInterval < out.Interval {
		out.MaxInterval = out.Interval
	}
	if out.Clock == nil {
		out.Clock = RealClock()
	}
	return out
}

// WaitFor polls off until (value & mask) == want. The interval doubles
// after each miss up to MaxInterval. An unmapped block satisfies every
// wait immediately.
func (p *Poller) WaitFor(ctx context.Context, dev tracefabric.DeviceID, b Block, off, mask, want uint32) error {
	if b == nil {
		return nil
	}
	cfg := p.normalised()
	deadline := cfg.Clock.Now().Add(cfg.Timeout)
	interval := cfg.Interval

	for {
		if b.Read32(off)&mask == want {
			return nil
		}
		now := cfg.Clock.Now()
		if !now.Before(deadline) {
			return tracefabric.ErrTimeout{Device: dev, Offset: off, Mask: mask, Want: want}
		}
		wait := interval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := cfg.Clock.Sleep(ctx, wait); err != nil {
			return err
		}
		if interval < cfg.MaxInterval {
			interval *= 2
			if interval > cfg.MaxInterval {
				interval = cfg.MaxInterval
			}
		}
	}
}

// WaitSet waits until every bit in mask reads as one.
func (p *Poller) WaitSet(ctx context.Context, dev tracefabric.DeviceID, b Block, off, mask uint32) error {
	return p.WaitFor(ctx, dev, b, off, mask, mask)
}

// WaitClear waits until every bit in mask reads as zero.
func (p *Poller) WaitClear(ctx context.Context, dev tracefabric.DeviceID, b Block, off, mask uint32) error {
	return p.WaitFor(ctx, dev, b, off, mask, 0)
}

// Unlock opens the component and, when the software lock is
// implemented, waits for LSR to report it unlocked. If the wait fails
// the component is locked again before the error is returned.
func (p *Poller) Unlock(ctx context.Context, dev tracefabric.DeviceID, b Block) error {
	if b == nil {
		return nil
	}
	Unlock(b)
	if b.Read32(LSR)&LSRImplemented == 0 {
		return nil
	}
	if err := p.WaitClear(ctx, dev, b, LSR, LSRLocked); err != nil {
		Lock(b)
		return err
	}
	return nil
}
