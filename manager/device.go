package manager

import (
	"sync"

	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/regs"
	"github.com/frobware/go-tracefabric/topology"
)

// device is the Manager's view of one component: its immutable node,
// its register window and its activation state.
type device struct {
	node  topology.Node
	block regs.Block

	mu    sync.Mutex
	state compute.DeviceState
}

func (d *device) snapshot() compute.DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
