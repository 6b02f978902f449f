package manager

import (
	"context"
	"fmt"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/driver"
	"github.com/frobware/go-tracefabric/power"
	"github.com/frobware/go-tracefabric/regs"
)

// DeviceStatus is the observable state of one device.
type DeviceStatus struct {
	ID     tracefabric.DeviceID `json:"id"`
	Kind   tracefabric.Kind     `json:"kind"`
	Type   string               `json:"type,omitempty"`
	Mapped bool                 `json:"mapped"`
	compute.DeviceState
	Owner tracefabric.AgentID `json:"owner,omitempty"`
}

// Status returns every device in ID order.
func (m *Manager) Status() []DeviceStatus {
	nodes := m.graph.Nodes()
	out := make([]DeviceStatus, 0, len(nodes))
	for _, n := range nodes {
		d := m.devices[n.ID]
		owner, _ := m.arbiter.Owner(n.ID)
		out = append(out, DeviceStatus{
			ID:          n.ID,
			Kind:        n.Kind,
			Type:        n.Type,
			Mapped:      d.block != nil,
			DeviceState: d.snapshot(),
			Owner:       owner,
		})
	}
	return out
}

// WriteBarrier inserts the barrier packet into the data stream of an
// enabled sink. An empty sinkID means the system-wide enabled sink.
func (m *Manager) WriteBarrier(ctx context.Context, sinkID tracefabric.DeviceID) error {
	if sinkID == "" {
		current, ok := m.sinks.Current()
		if !ok {
			return fmt.Errorf("write barrier: no enabled sink")
		}
		sinkID = current
	}
	d, err := m.device(sinkID)
	if err != nil {
		return err
	}
	if d.node.Kind != tracefabric.KindSink {
		return fmt.Errorf("write barrier: device %s is not a trace sink", sinkID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.Active() || d.state.Pending {
		return fmt.Errorf("write barrier: sink %s not enabled", sinkID)
	}
	drv, err := m.driverFor(d)
	if err != nil {
		return err
	}
	bw, ok := drv.(driver.BarrierWriter)
	if !ok {
		return tracefabric.ErrUnsupported{Feature: fmt.Sprintf("barrier on %s (type %q)", sinkID, d.node.Type)}
	}

	t := m.target(d, tracefabric.Hop{Device: sinkID, InPort: d.state.InPort, OutPort: tracefabric.NoPort}, d.state.Mode)
	err = power.Scoped(ctx, m.power, sinkID, func() error {
		return bw.WriteBarrier(ctx, t, tracefabric.Barrier())
	})
	if err != nil {
		return fmt.Errorf("write barrier to %s: %w", sinkID, err)
	}
	m.logger.DebugContext(ctx, "wrote barrier", "sink", sinkID)
	return nil
}

// Registers returns the register table of id: the table its driver
// describes, or the management registers.
func (m *Manager) Registers(id tracefabric.DeviceID) (regs.Table, error) {
	d, err := m.device(id)
	if err != nil {
		return nil, err
	}
	drv, err := m.driverFor(d)
	if err != nil {
		return regs.ManagementTable, nil
	}
	if desc, ok := drv.(driver.Describer); ok {
		return desc.Registers(), nil
	}
	return regs.ManagementTable, nil
}

// ReadRegisters reads id's registers through table. A nil table means
// the device's full table.
func (m *Manager) ReadRegisters(ctx context.Context, id tracefabric.DeviceID, table regs.Table) ([]regs.Value, error) {
	d, err := m.device(id)
	if err != nil {
		return nil, err
	}
	if d.block == nil {
		return nil, tracefabric.ErrUnsupported{Feature: fmt.Sprintf("register access on unmapped device %s", id)}
	}
	if table == nil {
		if table, err = m.Registers(id); err != nil {
			return nil, err
		}
	}

	var values []regs.Value
	err = power.Scoped(ctx, m.power, id, func() error {
		values = table.Read(d.block)
		return nil
	})
	return values, err
}
