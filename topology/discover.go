package topology

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/frobware/go-tracefabric"
)

// Discoverer supplies the topology before any path operation runs.
type Discoverer interface {
	Discover(ctx context.Context) (*Graph, error)
}

// Static is a Discoverer that returns a prebuilt Graph.
type Static struct {
	Graph *Graph
}

// Discover implements Discoverer.
func (s Static) Discover(context.Context) (*Graph, error) {
	if s.Graph == nil {
		return nil, fmt.Errorf("static topology: no graph")
	}
	return s.Graph, nil
}

// FileDiscoverer reads a YAML topology description from disk.
type FileDiscoverer struct {
	Path string
}

// Discover implements Discoverer.
func (f FileDiscoverer) Discover(context.Context) (*Graph, error) {
	return Load(f.Path)
}

// Description is the on-disk form of a topology.
//
//	devices:
//	  - id: etm0
//	    kind: source
//	    type: etm
//	    base: 0x22040000
//	connections:
//	  - {from: etm0, out: 0, to: funnel0, in: 0}
type Description struct {
	Devices     []DeviceDescription `yaml:"devices"`
	Connections []Connection        `yaml:"connections"`
}

// DeviceDescription describes one device.
type DeviceDescription struct {
	ID   tracefabric.DeviceID `yaml:"id"`
	Kind tracefabric.Kind     `yaml:"kind"`
	Type string               `yaml:"type"`
	Base uint64               `yaml:"base,omitempty"`
	CSR  string               `yaml:"csr,omitempty"`
}

// Parse builds a Graph from YAML.
func Parse(data []byte) (*Graph, error) {
	var desc Description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	return desc.Build()
}

// Load reads and parses a topology file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Build validates the description into a Graph.
func (d Description) Build() (*Graph, error) {
	b := NewBuilder()
	for _, dev := range d.Devices {
		b.AddNode(Node{ID: dev.ID, Kind: dev.Kind, Type: dev.Type, Base: dev.Base, CSR: dev.CSR})
	}
	for _, c := range d.Connections {
		b.Connect(c.From, c.OutPort, c.To, c.InPort)
	}
	return b.Build()
}

// Describe returns the on-disk form of g.
func (g *Graph) Describe() Description {
	var d Description
	for _, n := range g.Nodes() {
		d.Devices = append(d.Devices, DeviceDescription{
			ID: n.ID, Kind: n.Kind, Type: n.Type, Base: n.Base, CSR: n.CSR,
		})
	}
	d.Connections = g.Connections()
	return d
}

// Marshal renders g as YAML.
func (g *Graph) Marshal() ([]byte, error) {
	return yaml.Marshal(g.Describe())
}
