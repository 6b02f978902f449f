// Package topology holds the static graph of trace components and the
// fixed wiring between them. A Graph is built once at discovery and is
// read-only thereafter, so it is safe for concurrent use.
package topology

import (
	"errors"
	"fmt"
	"sort"

	"github.com/frobware/go-tracefabric"
)

// Connection is a directed trace-bus link from an output port of one
// device to an input port of another.
type Connection struct {
	From    tracefabric.DeviceID `json:"from" yaml:"from"`
	OutPort int                  `json:"out_port" yaml:"out"`
	To      tracefabric.DeviceID `json:"to" yaml:"to"`
	InPort  int                  `json:"in_port" yaml:"in"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", c.From, c.OutPort, c.To, c.InPort)
}

// Node is the immutable description of a device.
type Node struct {
	ID   tracefabric.DeviceID `json:"id"`
	Kind tracefabric.Kind     `json:"kind"`
	// Type selects the driver, e.g. "etm", "funnel", "tmc".
	Type string `json:"type"`
	// Base is the physical address of the register window; zero means
	// the device has no mapped registers.
	Base uint64 `json:"base,omitempty"`
	// CSR names the sideband control block associated with a sink.
	CSR string `json:"csr,omitempty"`

	in  []Connection
	out []Connection
}

// In returns the connections feeding the device, ordered by input port.
func (n Node) In() []Connection { return append([]Connection(nil), n.in...) }

// Out returns the connections leaving the device, ordered by output port.
func (n Node) Out() []Connection { return append([]Connection(nil), n.out...) }

// Graph is an immutable trace topology.
type Graph struct {
	nodes map[tracefabric.DeviceID]*Node
	order []tracefabric.DeviceID
}

// Node returns the device with the given ID.
func (g *Graph) Node(id tracefabric.DeviceID) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Has reports whether id is in the graph.
func (g *Graph) Has(id tracefabric.DeviceID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns every device sorted by ID.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// NeighborsOut returns the devices id feeds, ordered by output port.
func (g *Graph) NeighborsOut(id tracefabric.DeviceID) []tracefabric.DeviceID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]tracefabric.DeviceID, 0, len(n.out))
	for _, c := range n.out {
		out = append(out, c.To)
	}
	return out
}

// NeighborsIn returns the devices feeding id, ordered by input port.
func (g *Graph) NeighborsIn(id tracefabric.DeviceID) []tracefabric.DeviceID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]tracefabric.DeviceID, 0, len(n.in))
	for _, c := range n.in {
		out = append(out, c.From)
	}
	return out
}

// Connection returns the link from one device to another. When two
// devices are wired more than once the lowest output port wins.
func (g *Graph) Connection(from, to tracefabric.DeviceID) (Connection, bool) {
	n, ok := g.nodes[from]
	if !ok {
		return Connection{}, false
	}
	for _, c := range n.out {
		if c.To == to {
			return c, true
		}
	}
	return Connection{}, false
}

// IsSource reports whether id is a trace source.
func (g *Graph) IsSource(id tracefabric.DeviceID) bool {
	n, ok := g.nodes[id]
	return ok && n.Kind == tracefabric.KindSource
}

// IsSink reports whether id is a trace sink.
func (g *Graph) IsSink(id tracefabric.DeviceID) bool {
	n, ok := g.nodes[id]
	return ok && n.Kind == tracefabric.KindSink
}

func (g *Graph) ofKind(kind tracefabric.Kind) []tracefabric.DeviceID {
	var out []tracefabric.DeviceID
	for _, id := range g.order {
		if g.nodes[id].Kind == kind {
			out = append(out, id)
		}
	}
	return out
}

// Sources returns every source sorted by ID.
func (g *Graph) Sources() []tracefabric.DeviceID { return g.ofKind(tracefabric.KindSource) }

// Sinks returns every sink sorted by ID.
func (g *Graph) Sinks() []tracefabric.DeviceID { return g.ofKind(tracefabric.KindSink) }

// Connections returns every link ordered by source device then port.
func (g *Graph) Connections() []Connection {
	var out []Connection
	for _, id := range g.order {
		out = append(out, g.nodes[id].out...)
	}
	return out
}

// Builder accumulates devices and connections and validates them into
// a Graph.
type Builder struct {
	nodes []Node
	conns []Connection
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNode adds a device.
func (b *Builder) AddNode(n Node) *Builder {
	n.in, n.out = nil, nil
	b.nodes = append(b.nodes, n)
	return b
}

// Add is shorthand for AddNode with no base address.
func (b *Builder) Add(id tracefabric.DeviceID, kind tracefabric.Kind, typ string) *Builder {
	return b.AddNode(Node{ID: id, Kind: kind, Type: typ})
}

// Connect wires from's output port to to's input port.
func (b *Builder) Connect(from tracefabric.DeviceID, outPort int, to tracefabric.DeviceID, inPort int) *Builder {
	b.conns = append(b.conns, Connection{From: from, OutPort: outPort, To: to, InPort: inPort})
	return b
}

type portKey struct {
	id   tracefabric.DeviceID
	port int
}

// Build validates the description and returns the Graph. All problems
// are reported together.
func (b *Builder) Build() (*Graph, error) {
	var errs []error
	g := &Graph{nodes: make(map[tracefabric.DeviceID]*Node, len(b.nodes))}

	for _, n := range b.nodes {
		switch {
		case n.ID == "":
			errs = append(errs, errors.New("device with empty id"))
			continue
		case n.Kind == tracefabric.KindUnknown:
			errs = append(errs, fmt.Errorf("device %s: kind not set", n.ID))
		}
		if _, dup := g.nodes[n.ID]; dup {
			errs = append(errs, fmt.Errorf("device %s: duplicate id", n.ID))
			continue
		}
		node := n
		g.nodes[n.ID] = &node
		g.order = append(g.order, n.ID)
	}

	outs := make(map[portKey]Connection)
	ins := make(map[portKey]Connection)
	for _, c := range b.conns {
		from, okFrom := g.nodes[c.From]
		to, okTo := g.nodes[c.To]
		if !okFrom {
			errs = append(errs, fmt.Errorf("connection %s: unknown device %s", c, c.From))
		}
		if !okTo {
			errs = append(errs, fmt.Errorf("connection %s: unknown device %s", c, c.To))
		}
		if !okFrom || !okTo {
			continue
		}
		if c.OutPort < 0 || c.InPort < 0 {
			errs = append(errs, fmt.Errorf("connection %s: negative port", c))
			continue
		}
		if from.Kind == tracefabric.KindSink {
			errs = append(errs, fmt.Errorf("connection %s: sink %s cannot have outputs", c, c.From))
			continue
		}
		if to.Kind == tracefabric.KindSource {
			errs = append(errs, fmt.Errorf("connection %s: source %s cannot have inputs", c, c.To))
			continue
		}
		if prev, dup := outs[portKey{c.From, c.OutPort}]; dup {
			errs = append(errs, fmt.Errorf("connection %s: output port already used by %s", c, prev))
			continue
		}
		if prev, dup := ins[portKey{c.To, c.InPort}]; dup {
			errs = append(errs, fmt.Errorf("connection %s: input port already used by %s", c, prev))
			continue
		}
		outs[portKey{c.From, c.OutPort}] = c
		ins[portKey{c.To, c.InPort}] = c
		from.out = append(from.out, c)
		to.in = append(to.in, c)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}

	sort.Slice(g.order, func(i, j int) bool { return g.order[i] < g.order[j] })
	for _, n := range g.nodes {
		sort.Slice(n.out, func(i, j int) bool { return n.out[i].OutPort < n.out[j].OutPort })
		sort.Slice(n.in, func(i, j int) bool { return n.in[i].InPort < n.in[j].InPort })
	}
	return g, nil
}
