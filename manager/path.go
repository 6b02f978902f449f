package manager

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/sink"
)

// Path is an ordered route from a source to a sink. A Path belongs to
// the caller that built it and must not be enabled or disabled from
// more than one goroutine at a time.
type Path struct {
	ID    uuid.UUID           `json:"id"`
	Mode  tracefabric.Mode    `json:"mode"`
	Agent tracefabric.AgentID `json:"agent"`
	Hops  []tracefabric.Hop   `json:"hops"`

	enabled  bool
	released bool
	session  uuid.UUID
}

// Source returns the first device of the path.
func (p *Path) Source() tracefabric.DeviceID {
	return p.Hops[0].Device
}

// Sink returns the last device of the path.
func (p *Path) Sink() tracefabric.DeviceID {
	return p.Hops[len(p.Hops)-1].Device
}

// Devices returns the device IDs from source to sink.
func (p *Path) Devices() []tracefabric.DeviceID {
	ids := make([]tracefabric.DeviceID, len(p.Hops))
	for i, h := range p.Hops {
		ids[i] = h.Device
	}
	return ids
}

// Enabled reports whether the path is currently enabled.
func (p *Path) Enabled() bool { return p.enabled }

// Released reports whether the path has been released.
func (p *Path) Released() bool { return p.released }

// Session returns the ledger session of the current activation, or
// uuid.Nil when the path is not enabled.
func (p *Path) Session() uuid.UUID { return p.session }

func (p *Path) String() string {
	return fmt.Sprintf("%s->%s(%s)", p.Source(), p.Sink(), p.Mode)
}

// PathOption customises BuildPath.
type PathOption func(*Path)

// WithAgent sets the agent the path's devices are claimed for. The
// default is the mode's agent, which makes paths built in the same
// mode able to share links.
func WithAgent(agent tracefabric.AgentID) PathOption {
	return func(p *Path) { p.Agent = agent }
}

// BuildPath computes a route from source to sinkID for mode. An empty
// sinkID selects one through the sink policy. BuildPath never claims or
// programs hardware.
func (m *Manager) BuildPath(ctx context.Context, source, sinkID tracefabric.DeviceID, mode tracefabric.Mode, opts ...PathOption) (*Path, error) {
	if mode == tracefabric.ModeDisabled {
		return nil, fmt.Errorf("build path from %s: mode must be sysfs or perf", source)
	}

	if sinkID == "" {
		selected, err := m.selectSink(source, mode)
		if err != nil {
			return nil, err
		}
		sinkID = selected
	}

	hops, err := compute.FindRoute(m.graph, m, source, sinkID, mode)
	if err != nil {
		return nil, err
	}

	p := &Path{
		ID:    uuid.New(),
		Mode:  mode,
		Agent: tracefabric.DefaultAgent(mode),
		Hops:  hops,
	}
	for _, opt := range opts {
		opt(p)
	}
	m.logger.DebugContext(ctx, "built path", "path", p.ID, "route", p.Devices(), "mode", mode, "agent", p.Agent)
	return p, nil
}

func (m *Manager) selectSink(source tracefabric.DeviceID, mode tracefabric.Mode) (tracefabric.DeviceID, error) {
	reachable, err := compute.ReachableSinks(m.graph, m, source, mode)
	if err != nil {
		return "", err
	}
	candidates := make([]sink.Candidate, len(reachable))
	for i, id := range reachable {
		candidates[i] = sink.Candidate{ID: id, Free: !m.State(id).Active()}
	}
	selected, ok := m.sinks.Select(candidates)
	if !ok {
		return "", tracefabric.ErrNoRoute{Source: source}
	}
	return selected, nil
}
