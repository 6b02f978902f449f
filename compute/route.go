// Package compute contains pure functions for path decisions.
// Functions in this package perform no I/O and never touch hardware.
package compute

import (
	"fmt"
	"sort"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/topology"
)

// DeviceState is the mutable activation state of one device as seen
// by the path engine.
type DeviceState struct {
	Mode    tracefabric.Mode    `json:"mode"`
	Agent   tracefabric.AgentID `json:"agent,omitempty"`
	Refs    int                 `json:"refs"`
	InPort  int                 `json:"in_port"`
	OutPort int                 `json:"out_port"`
	// Pending is set while the device is claimed by an activation that
	// has not finished programming.
	Pending bool `json:"pending,omitempty"`
}

// Active reports whether the device is enabled by at least one path.
func (s DeviceState) Active() bool { return s.Refs > 0 }

// View gives read access to device state. Devices without state are
// reported as the zero DeviceState (disabled, unreferenced).
type View interface {
	State(id tracefabric.DeviceID) DeviceState
}

// MapView is a View backed by a map.
type MapView map[tracefabric.DeviceID]DeviceState

// State implements View.
func (m MapView) State(id tracefabric.DeviceID) DeviceState { return m[id] }

type search struct {
	graph   *topology.Graph
	view    View
	mode    tracefabric.Mode
	visited map[tracefabric.DeviceID]bool
}

func newSearch(g *topology.Graph, view View, mode tracefabric.Mode) *search {
	if view == nil {
		view = MapView(nil)
	}
	return &search{
		graph:   g,
		view:    view,
		mode:    mode,
		visited: make(map[tracefabric.DeviceID]bool),
	}
}

func (s *search) eligible(id tracefabric.DeviceID) bool {
	return s.view.State(id).Mode.Compatible(s.mode)
}

// edges returns id's outgoing connections with branches that are
// already active in the requested mode first, then by device ID.
func (s *search) edges(id tracefabric.DeviceID) []topology.Connection {
	n, _ := s.graph.Node(id)
	out := n.Out()
	active := func(c topology.Connection) bool {
		st := s.view.State(c.To)
		return st.Active() && st.Mode == s.mode
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := active(out[i]), active(out[j])
		if ai != aj {
			return ai
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].OutPort < out[j].OutPort
	})
	return out
}

// walk extends hops depth-first until target is reached. The visited
// set is never unwound, which bounds the search on cyclic wiring.
func (s *search) walk(hops []tracefabric.Hop, id tracefabric.DeviceID, inPort int, target tracefabric.DeviceID) ([]tracefabric.Hop, bool) {
	s.visited[id] = true
	hops = append(hops, tracefabric.Hop{Device: id, InPort: inPort, OutPort: tracefabric.NoPort})
	if id == target {
		return hops, true
	}
	last := len(hops) - 1
	for _, c := range s.edges(id) {
		if s.visited[c.To] || !s.eligible(c.To) {
			continue
		}
		hops[last].OutPort = c.OutPort
		if found, ok := s.walk(hops, c.To, c.InPort, target); ok {
			return found, true
		}
	}
	return hops[:last], false
}

func checkEndpoints(g *topology.Graph, view View, source tracefabric.DeviceID, mode tracefabric.Mode) error {
	if !g.Has(source) {
		return tracefabric.ErrDeviceNotFound{Device: source}
	}
	if !g.IsSource(source) {
		return fmt.Errorf("device %s is not a trace source", source)
	}
	if view == nil {
		return nil
	}
	if st := view.State(source); !st.Mode.Compatible(mode) {
		return tracefabric.ErrDeviceBusy{Device: source, Reason: fmt.Sprintf("enabled in %s mode", st.Mode)}
	}
	return nil
}

// FindRoute returns the ordered hops [source, link..., sink] connecting
// source to sink through devices eligible for mode. Every adjacent pair
// of hops is a Connection in g.
func FindRoute(g *topology.Graph, view View, source, sink tracefabric.DeviceID, mode tracefabric.Mode) ([]tracefabric.Hop, error) {
	if err := checkEndpoints(g, view, source, mode); err != nil {
		return nil, err
	}
	if !g.Has(sink) {
		return nil, tracefabric.ErrDeviceNotFound{Device: sink}
	}
	if !g.IsSink(sink) {
		return nil, fmt.Errorf("device %s is not a trace sink", sink)
	}

	s := newSearch(g, view, mode)
	if st := s.view.State(sink); !st.Mode.Compatible(mode) {
		return nil, tracefabric.ErrSinkUnavailable{Sink: sink, Mode: st.Mode}
	}

	hops, ok := s.walk(nil, source, tracefabric.NoPort, sink)
	if !ok {
		return nil, tracefabric.ErrNoRoute{Source: source, Sink: sink}
	}
	return hops, nil
}

// ReachableSinks returns the sinks reachable from source through
// devices eligible for mode, in depth-first discovery order.
func ReachableSinks(g *topology.Graph, view View, source tracefabric.DeviceID, mode tracefabric.Mode) ([]tracefabric.DeviceID, error) {
	if err := checkEndpoints(g, view, source, mode); err != nil {
		return nil, err
	}

	s := newSearch(g, view, mode)
	var sinks []tracefabric.DeviceID
	var visit func(id tracefabric.DeviceID)
	visit = func(id tracefabric.DeviceID) {
		s.visited[id] = true
		if g.IsSink(id) {
			sinks = append(sinks, id)
			return
		}
		for _, c := range s.edges(id) {
			if !s.visited[c.To] && s.eligible(c.To) {
				visit(c.To)
			}
		}
	}
	visit(source)
	return sinks, nil
}
