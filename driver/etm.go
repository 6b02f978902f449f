package driver

import (
	"context"
	"log/slog"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/logging"
	"github.com/frobware/go-tracefabric/regs"
)

// ETMv4 registers.
const (
	TRCPRGCTLR uint32 = 0x004
	TRCSTATR   uint32 = 0x00c
	TRCCONFIGR uint32 = 0x010
	TRCVICTLR  uint32 = 0x080
	TRCOSLAR   uint32 = 0x300
)

const (
	trcPrgEnable  uint32 = 1 << 0
	trcStatIdle   uint32 = 1 << 0
	trcVIEnable   uint32 = 1 << 0
	trcVIExclUser uint32 = 1 << 20
	trcVIExclKern uint32 = 1 << 21
)

// ETM drives an embedded trace macrocell.
type ETM struct {
	// ExcludeKernel and ExcludeUser filter instruction trace by
	// exception level for perf sessions.
	ExcludeKernel bool
	ExcludeUser   bool

	logger *slog.Logger
}

// NewETM returns an ETM driver.
func NewETM(logger *slog.Logger) *ETM {
	return &ETM{logger: logger.With("component", "driver.etm")}
}

func (e *ETM) viewInst(mode tracefabric.Mode) uint32 {
	val := trcVIEnable
	if mode != tracefabric.ModePerf {
		return val
	}
	if e.ExcludeKernel {
		val |= trcVIExclKern
	}
	if e.ExcludeUser {
		val |= trcVIExclUser
	}
	return val
}

// Program implements Driver. The trace unit is stopped and idle before
// it is configured, then started.
func (e *ETM) Program(ctx context.Context, t Target) error {
	return locked(ctx, t, func(b regs.Block) error {
		p := t.poller()
		b.Write32(TRCOSLAR, 0)
		b.Write32(TRCPRGCTLR, 0)
		if err := p.WaitSet(ctx, t.ID(), b, TRCSTATR, trcStatIdle); err != nil {
			return err
		}
		b.Write32(TRCCONFIGR, 0)
		b.Write32(TRCVICTLR, e.viewInst(t.Mode))
		b.Write32(TRCPRGCTLR, trcPrgEnable)
		if err := p.WaitClear(ctx, t.ID(), b, TRCSTATR, trcStatIdle); err != nil {
			return err
		}
		e.logger.Log(ctx, logging.LevelTrace.ToSlog(), "trace unit enabled", "device", t.ID(), "mode", t.Mode)
		return nil
	})
}

// Quiesce implements Driver.
func (e *ETM) Quiesce(ctx context.Context, t Target) error {
	return locked(ctx, t, func(b regs.Block) error {
		b.Write32(TRCPRGCTLR, 0)
		if err := t.poller().WaitSet(ctx, t.ID(), b, TRCSTATR, trcStatIdle); err != nil {
			return err
		}
		e.logger.Log(ctx, logging.LevelTrace.ToSlog(), "trace unit idle", "device", t.ID())
		return nil
	})
}

// Registers implements Describer.
func (e *ETM) Registers() regs.Table {
	return regs.ManagementTable.With(
		regs.Reg32("trcprgctlr", TRCPRGCTLR),
		regs.Reg32("trcstatr", TRCSTATR),
		regs.Reg32("trcconfigr", TRCCONFIGR),
		regs.Reg32("trcvictlr", TRCVICTLR),
	)
}
