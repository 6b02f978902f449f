package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/config"
	"github.com/frobware/go-tracefabric/csr"
	"github.com/frobware/go-tracefabric/driver"
	"github.com/frobware/go-tracefabric/regs"
	"github.com/frobware/go-tracefabric/topology"
)

// hardware is the set of register blocks a runtime drives.
type hardware struct {
	blocks  map[tracefabric.DeviceID]regs.Block
	csrs    csr.Provider
	closers []io.Closer
}

func (h *hardware) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i].Close())
	}
	h.closers = nil
	return errors.Join(errs...)
}

// openHardware maps a register block for every device with a driver
// type. The sim backend models each block in memory; the mmio backend
// maps the device's base address through devmem and skips devices
// without one.
func openHardware(cfg config.Config, g *topology.Graph, logger *slog.Logger) (*hardware, error) {
	h := &hardware{blocks: make(map[tracefabric.DeviceID]regs.Block)}

	open := func(base uint64) (regs.Block, error) {
		block, closer, err := mapBlock(cfg.Hardware.DevMem, base)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, closer)
		return block, nil
	}

	for _, n := range g.Nodes() {
		if n.Type == "" {
			continue
		}
		switch cfg.Hardware.Backend {
		case config.BackendSim:
			sim := regs.NewSimBlock()
			driver.Simulate(n.Type, sim)
			h.blocks[n.ID] = sim
		case config.BackendMMIO:
			if n.Base == 0 {
				logger.Warn("device has no register base, leaving unmapped", "device", n.ID)
				continue
			}
			block, err := open(n.Base)
			if err != nil {
				return nil, errors.Join(fmt.Errorf("device %s: %w", n.ID, err), h.Close())
			}
			h.blocks[n.ID] = block
		default:
			return nil, fmt.Errorf("unknown backend %q", cfg.Hardware.Backend)
		}
	}

	if len(cfg.CSR) == 0 {
		h.csrs = csr.Absent{}
		return h, nil
	}
	reg := csr.NewRegistry(logger)
	for _, c := range cfg.CSR {
		var block regs.Block
		if cfg.Hardware.Backend == config.BackendSim {
			block = regs.NewSimBlock()
		} else {
			b, err := open(c.Base)
			if err != nil {
				return nil, errors.Join(fmt.Errorf("csr %s: %w", c.Name, err), h.Close())
			}
			block = b
		}
		reg.Add(csr.New(c.Name, c.Base, block))
	}
	h.csrs = reg
	return h, nil
}
