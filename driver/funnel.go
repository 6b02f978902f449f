package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/regs"
)

// Funnel control register and its fields.
const (
	FunnelCTRL uint32 = 0x000

	funnelHoldTimeShift = 8
	funnelHoldTimeMask  = 0xf << funnelHoldTimeShift
	funnelHoldTime      = 0x3 << funnelHoldTimeShift
	funnelMaxPorts      = 8
)

// Funnel merges up to eight trace inputs into one output.
type Funnel struct {
	logger *slog.Logger
}

// NewFunnel returns a Funnel driver.
func NewFunnel(logger *slog.Logger) *Funnel {
	return &Funnel{logger: logger.With("component", "driver.funnel")}
}

func funnelPort(t Target) (uint32, error) {
	if t.Hop.InPort < 0 || t.Hop.InPort >= funnelMaxPorts {
		return 0, tracefabric.ErrUnsupported{Feature: fmt.Sprintf("funnel input port %d", t.Hop.InPort)}
	}
	return 1 << uint(t.Hop.InPort), nil
}

// Program implements Driver by enabling the path's input port.
func (f *Funnel) Program(ctx context.Context, t Target) error {
	bit, err := funnelPort(t)
	if err != nil {
		return err
	}
	return locked(ctx, t, func(b regs.Block) error {
		ctrl := b.Read32(FunnelCTRL)
		ctrl = ctrl&^funnelHoldTimeMask | funnelHoldTime | bit
		b.Write32(FunnelCTRL, ctrl)
		f.logger.DebugContext(ctx, "funnel port enabled", "device", t.ID(), "port", t.Hop.InPort)
		return nil
	})
}

// Quiesce implements Driver by disabling the path's input port.
func (f *Funnel) Quiesce(ctx context.Context, t Target) error {
	bit, err := funnelPort(t)
	if err != nil {
		return err
	}
	return locked(ctx, t, func(b regs.Block) error {
		b.Write32(FunnelCTRL, b.Read32(FunnelCTRL)&^bit)
		f.logger.DebugContext(ctx, "funnel port disabled", "device", t.ID(), "port", t.Hop.InPort)
		return nil
	})
}

// Registers implements Describer.
func (f *Funnel) Registers() regs.Table {
	return regs.ManagementTable.With(regs.Reg32("funnel_ctrl", FunnelCTRL))
}
