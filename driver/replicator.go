package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/regs"
)

// Replicator ID filter registers, one per output.
const (
	IDFILTER0 uint32 = 0x000
	IDFILTER1 uint32 = 0x004

	filterPass  uint32 = 0x00
	filterBlock uint32 = 0xff
)

// Replicator copies its input to two outputs, each gated by an ID
// filter.
type Replicator struct {
	logger *slog.Logger
}

// NewReplicator returns a Replicator driver.
func NewReplicator(logger *slog.Logger) *Replicator {
	return &Replicator{logger: logger.With("component", "driver.replicator")}
}

func replicatorFilter(t Target) (uint32, error) {
	switch t.Hop.OutPort {
	case 0:
		return IDFILTER0, nil
	case 1:
		return IDFILTER1, nil
	default:
		return 0, tracefabric.ErrUnsupported{Feature: fmt.Sprintf("replicator output port %d", t.Hop.OutPort)}
	}
}

// Program implements Driver by opening the path's output.
func (r *Replicator) Program(ctx context.Context, t Target) error {
	off, err := replicatorFilter(t)
	if err != nil {
		return err
	}
	return locked(ctx, t, func(b regs.Block) error {
		b.Write32(off, filterPass)
		r.logger.DebugContext(ctx, "replicator output enabled", "device", t.ID(), "port", t.Hop.OutPort)
		return nil
	})
}

// Quiesce implements Driver by blocking the path's output.
func (r *Replicator) Quiesce(ctx context.Context, t Target) error {
	off, err := replicatorFilter(t)
	if err != nil {
		return err
	}
	return locked(ctx, t, func(b regs.Block) error {
		b.Write32(off, filterBlock)
		return nil
	})
}

// Registers implements Describer.
func (r *Replicator) Registers() regs.Table {
	return regs.ManagementTable.With(
		regs.Reg32("idfilter0", IDFILTER0),
		regs.Reg32("idfilter1", IDFILTER1),
	)
}
