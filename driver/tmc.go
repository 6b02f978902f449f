package driver

import (
	"context"
	"log/slog"

	"github.com/frobware/go-tracefabric/regs"
)

// Trace memory controller registers.
const (
	TMCRSZ  uint32 = 0x004
	TMCSTS  uint32 = 0x00c
	TMCRRD  uint32 = 0x010
	TMCRRP  uint32 = 0x014
	TMCRWP  uint32 = 0x018
	TMCCTL  uint32 = 0x020
	TMCRWD  uint32 = 0x024
	TMCMODE uint32 = 0x028
	TMCFFSR uint32 = 0x300
	TMCFFCR uint32 = 0x304
)

const (
	tmcCtlCaptureEn uint32 = 1 << 0
	tmcStsReady     uint32 = 1 << 2
	tmcModeCircular uint32 = 0x0
	tmcFFCREnFmt    uint32 = 1 << 0
	tmcFFCREnTI     uint32 = 1 << 1
	tmcFFCRStopFl   uint32 = 1 << 12
)

// TMC drives a trace memory controller used as an embedded trace
// buffer or FIFO.
type TMC struct {
	logger *slog.Logger
}

// NewTMC returns a TMC driver.
func NewTMC(logger *slog.Logger) *TMC {
	return &TMC{logger: logger.With("component", "driver.tmc")}
}

// Program implements Driver by starting capture in circular buffer
// mode.
func (m *TMC) Program(ctx context.Context, t Target) error {
	return locked(ctx, t, func(b regs.Block) error {
		if err := t.poller().WaitSet(ctx, t.ID(), b, TMCSTS, tmcStsReady); err != nil {
			return err
		}
		b.Write32(TMCMODE, tmcModeCircular)
		b.Write32(TMCFFCR, tmcFFCREnFmt|tmcFFCREnTI|tmcFFCRStopFl)
		b.Write32(TMCCTL, tmcCtlCaptureEn)
		m.logger.DebugContext(ctx, "capture started", "device", t.ID())
		return nil
	})
}

// Quiesce implements Driver by stopping capture and waiting for the
// controller to drain.
func (m *TMC) Quiesce(ctx context.Context, t Target) error {
	return locked(ctx, t, func(b regs.Block) error {
		b.Write32(TMCCTL, 0)
		if err := t.poller().WaitSet(ctx, t.ID(), b, TMCSTS, tmcStsReady); err != nil {
			return err
		}
		m.logger.DebugContext(ctx, "capture stopped", "device", t.ID())
		return nil
	})
}

// WriteBarrier implements BarrierWriter.
func (m *TMC) WriteBarrier(ctx context.Context, t Target, words []uint32) error {
	return locked(ctx, t, func(b regs.Block) error {
		for _, w := range words {
			b.Write32(TMCRWD, w)
		}
		return nil
	})
}

// Registers implements Describer.
func (m *TMC) Registers() regs.Table {
	return regs.ManagementTable.With(
		regs.Reg32("rsz", TMCRSZ),
		regs.Reg32("sts", TMCSTS),
		regs.Reg32("rrp", TMCRRP),
		regs.Reg32("rwp", TMCRWP),
		regs.Reg32("ctl", TMCCTL),
		regs.Reg32("mode", TMCMODE),
		regs.Reg32("ffsr", TMCFFSR),
		regs.Reg32("ffcr", TMCFFCR),
	)
}
