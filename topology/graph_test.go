package topology_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/topology"
)

func sharedLink(t *testing.T) *topology.Graph {
	t.Helper()
	g, err := topology.NewBuilder().
		Add("A", tracefabric.KindSource, "etm").
		Add("A2", tracefabric.KindSource, "etm").
		Add("B", tracefabric.KindLink, "funnel").
		Add("C", tracefabric.KindSink, "tmc").
		Add("D", tracefabric.KindSink, "tmc").
		Connect("A", 0, "B", 0).
		Connect("A2", 0, "B", 1).
		Connect("B", 0, "C", 0).
		Build()
	require.NoError(t, err)
	return g
}

func TestGraphQueries(t *testing.T) {
	g := sharedLink(t)

	assert.Equal(t, []tracefabric.DeviceID{"B"}, g.NeighborsOut("A"))
	assert.Equal(t, []tracefabric.DeviceID{"A", "A2"}, g.NeighborsIn("B"))
	assert.Empty(t, g.NeighborsOut("C"))
	assert.Nil(t, g.NeighborsOut("nope"))

	assert.True(t, g.IsSource("A"))
	assert.False(t, g.IsSource("B"))
	assert.True(t, g.IsSink("D"))
	assert.False(t, g.IsSink("nope"))

	assert.Equal(t, []tracefabric.DeviceID{"A", "A2"}, g.Sources())
	assert.Equal(t, []tracefabric.DeviceID{"C", "D"}, g.Sinks())

	c, ok := g.Connection("A2", "B")
	require.True(t, ok)
	assert.Equal(t, 1, c.InPort)
	_, ok = g.Connection("A", "C")
	assert.False(t, ok)

	n, ok := g.Node("B")
	require.True(t, ok)
	assert.Len(t, n.In(), 2)
	assert.Len(t, n.Out(), 1)
	assert.Len(t, g.Connections(), 3)
}

func TestBuilderRejects(t *testing.T) {
	tests := []struct {
		name    string
		build   func(*topology.Builder)
		wantErr string
	}{
		{
			name:    "duplicate id",
			build:   func(b *topology.Builder) { b.Add("A", tracefabric.KindSource, "etm").Add("A", tracefabric.KindSink, "tmc") },
			wantErr: "duplicate id",
		},
		{
			name:    "unknown endpoint",
			build:   func(b *topology.Builder) { b.Add("A", tracefabric.KindSource, "etm").Connect("A", 0, "Z", 0) },
			wantErr: "unknown device Z",
		},
		{
			name: "sink with output",
			build: func(b *topology.Builder) {
				b.Add("C", tracefabric.KindSink, "tmc").Add("L", tracefabric.KindLink, "funnel").Connect("C", 0, "L", 0)
			},
			wantErr: "cannot have outputs",
		},
		{
			name: "source with input",
			build: func(b *topology.Builder) {
				b.Add("L", tracefabric.KindLink, "funnel").Add("A", tracefabric.KindSource, "etm").Connect("L", 0, "A", 0)
			},
			wantErr: "cannot have inputs",
		},
		{
			name: "input port reused",
			build: func(b *topology.Builder) {
				b.Add("A", tracefabric.KindSource, "etm").
					Add("A2", tracefabric.KindSource, "etm").
					Add("B", tracefabric.KindLink, "funnel").
					Connect("A", 0, "B", 0).
					Connect("A2", 0, "B", 0)
			},
			wantErr: "input port already used",
		},
		{
			name:    "missing kind",
			build:   func(b *topology.Builder) { b.AddNode(topology.Node{ID: "X"}) },
			wantErr: "kind not set",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := topology.NewBuilder()
			tt.build(b)
			_, err := b.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestBuilderAllowsCycles verifies that:
//
//	Given wiring with a loop between two links,
//	When the graph is built,
//	Then the builder accepts it and leaves termination to the search.
func TestBuilderAllowsCycles(t *testing.T) {
	_, err := topology.NewBuilder().
		Add("L1", tracefabric.KindLink, "funnel").
		Add("L2", tracefabric.KindLink, "funnel").
		Connect("L1", 0, "L2", 0).
		Connect("L2", 0, "L1", 0).
		Build()
	assert.NoError(t, err)
}

const juno = `
devices:
  - {id: etm0, kind: source, type: etm, base: 0x22040000}
  - {id: etm1, kind: source, type: etm, base: 0x22140000}
  - {id: funnel0, kind: link, type: funnel, base: 0x20040000}
  - {id: etf0, kind: sink, type: tmc, base: 0x20010000, csr: csr0}
connections:
  - {from: etm0, out: 0, to: funnel0, in: 0}
  - {from: etm1, out: 0, to: funnel0, in: 1}
  - {from: funnel0, out: 0, to: etf0, in: 0}
`

func TestParse(t *testing.T) {
	g, err := topology.Parse([]byte(juno))
	require.NoError(t, err)

	n, ok := g.Node("etm0")
	require.True(t, ok)
	assert.Equal(t, tracefabric.KindSource, n.Kind)
	assert.Equal(t, uint64(0x22040000), n.Base)

	sink, _ := g.Node("etf0")
	assert.Equal(t, "csr0", sink.CSR)
	assert.Equal(t, []tracefabric.DeviceID{"etm0", "etm1"}, g.NeighborsIn("funnel0"))
}

func TestParseBadKind(t *testing.T) {
	_, err := topology.Parse([]byte("devices:\n  - {id: x, kind: bridge}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown device kind")
}

func TestMarshalRoundTrip(t *testing.T) {
	g, err := topology.Parse([]byte(juno))
	require.NoError(t, err)

	data, err := g.Marshal()
	require.NoError(t, err)

	again, err := topology.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, g.Describe(), again.Describe())
}

func TestFileDiscoverer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(juno), 0o644))

	g, err := topology.FileDiscoverer{Path: path}.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, g.Nodes(), 4)

	_, err = topology.FileDiscoverer{Path: filepath.Join(t.TempDir(), "missing.yaml")}.Discover(context.Background())
	assert.Error(t, err)

	_, err = topology.Static{}.Discover(context.Background())
	assert.Error(t, err)
}
