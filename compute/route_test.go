package compute_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/topology"
)

const (
	sysfs = tracefabric.ModeSysfs
	perf  = tracefabric.ModePerf
)

// sharedLink is A -> B <- A2, B -> C, plus an unconnected sink D.
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

func devices(hops []tracefabric.Hop) []tracefabric.DeviceID {
	out := make([]tracefabric.DeviceID, len(hops))
	for i, h := range hops {
		out[i] = h.Device
	}
	return out
}

func TestFindRouteExplicitSink(t *testing.T) {
	g := sharedLink(t)

	hops, err := compute.FindRoute(g, nil, "A", "C", sysfs)
	require.NoError(t, err)
	assert.Equal(t, []tracefabric.Hop{
		{Device: "A", InPort: tracefabric.NoPort, OutPort: 0},
		{Device: "B", InPort: 0, OutPort: 0},
		{Device: "C", InPort: 0, OutPort: tracefabric.NoPort},
	}, hops)

	hops, err = compute.FindRoute(g, nil, "A2", "C", sysfs)
	require.NoError(t, err)
	assert.Equal(t, 1, hops[1].InPort)
}

func TestFindRouteUnreachableSink(t *testing.T) {
	g := sharedLink(t)

	_, err := compute.FindRoute(g, nil, "A", "D", sysfs)
	var noRoute tracefabric.ErrNoRoute
	require.True(t, errors.As(err, &noRoute), "got %v", err)
	assert.Equal(t, tracefabric.DeviceID("D"), noRoute.Sink)
}

func TestFindRouteSinkUnavailable(t *testing.T) {
	g := sharedLink(t)
	view := compute.MapView{"C": {Mode: perf, Refs: 1, InPort: 0, OutPort: tracefabric.NoPort}}

	_, err := compute.FindRoute(g, view, "A", "C", sysfs)
	var unavailable tracefabric.ErrSinkUnavailable
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, perf, unavailable.Mode)

	_, err = compute.FindRoute(g, view, "A", "C", perf)
	assert.NoError(t, err, "same mode should stay eligible")
}

func TestFindRouteLinkInOtherMode(t *testing.T) {
	g := sharedLink(t)
	view := compute.MapView{"B": {Mode: perf, Refs: 1}}

	_, err := compute.FindRoute(g, view, "A", "C", sysfs)
	assert.True(t, errors.As(err, new(tracefabric.ErrNoRoute)))
}

// TestFindRouteThroughActiveLink verifies that:
//
//	Given A2 -> B -> C active in sysfs mode,
//	When a sysfs route from A to C is built,
//	Then the builder still returns [A, B, C] and leaves the port
//	conflict on B to activation.
func TestFindRouteThroughActiveLink(t *testing.T) {
	g := sharedLink(t)
	view := compute.MapView{
		"A2": {Mode: sysfs, Agent: "sysfs", Refs: 1, InPort: tracefabric.NoPort, OutPort: 0},
		"B":  {Mode: sysfs, Agent: "sysfs", Refs: 1, InPort: 1, OutPort: 0},
		"C":  {Mode: sysfs, Agent: "sysfs", Refs: 1, InPort: 0, OutPort: tracefabric.NoPort},
	}

	hops, err := compute.FindRoute(g, view, "A", "C", sysfs)
	require.NoError(t, err)
	assert.Equal(t, []tracefabric.DeviceID{"A", "B", "C"}, devices(hops))
}

func TestFindRouteBadEndpoints(t *testing.T) {
	g := sharedLink(t)

	_, err := compute.FindRoute(g, nil, "Z", "C", sysfs)
	assert.True(t, errors.As(err, new(tracefabric.ErrDeviceNotFound)))

	_, err = compute.FindRoute(g, nil, "B", "C", sysfs)
	assert.ErrorContains(t, err, "not a trace source")

	_, err = compute.FindRoute(g, nil, "A", "B", sysfs)
	assert.ErrorContains(t, err, "not a trace sink")

	view := compute.MapView{"A": {Mode: perf, Refs: 1}}
	_, err = compute.FindRoute(g, view, "A", "C", sysfs)
	assert.True(t, errors.As(err, new(tracefabric.ErrDeviceBusy)))
}

// replicated is S -> R, R:0 -> S0, R:1 -> S1 with a cycle L1 <-> L2
// hanging off R:2.
func replicated(t *testing.T) *topology.Graph {
	t.Helper()
	g, err := topology.NewBuilder().
		Add("S", tracefabric.KindSource, "etm").
		Add("R", tracefabric.KindLink, "replicator").
		Add("L1", tracefabric.KindLink, "funnel").
		Add("L2", tracefabric.KindLink, "funnel").
		Add("S0", tracefabric.KindSink, "tmc").
		Add("S1", tracefabric.KindSink, "tmc").
		Connect("S", 0, "R", 0).
		Connect("R", 0, "S1", 0).
		Connect("R", 1, "S0", 0).
		Connect("R", 2, "L1", 0).
		Connect("L1", 0, "L2", 0).
		Connect("L2", 0, "L1", 1).
		Build()
	require.NoError(t, err)
	return g
}

func TestReachableSinksOrder(t *testing.T) {
	g := replicated(t)

	sinks, err := compute.ReachableSinks(g, nil, "S", sysfs)
	require.NoError(t, err)
	assert.Equal(t, []tracefabric.DeviceID{"S0", "S1"}, sinks, "ordered by device ID")

	view := compute.MapView{"S1": {Mode: sysfs, Refs: 1}}
	sinks, err = compute.ReachableSinks(g, view, "S", sysfs)
	require.NoError(t, err)
	assert.Equal(t, []tracefabric.DeviceID{"S1", "S0"}, sinks, "active branch first")

	view = compute.MapView{"S1": {Mode: perf, Refs: 1}}
	sinks, err = compute.ReachableSinks(g, view, "S", sysfs)
	require.NoError(t, err)
	assert.Equal(t, []tracefabric.DeviceID{"S0"}, sinks)
}

func TestFindRouteTerminatesOnCycle(t *testing.T) {
	g := replicated(t)
	g2, err := topology.NewBuilder().
		Add("S", tracefabric.KindSource, "etm").
		Add("L1", tracefabric.KindLink, "funnel").
		Add("L2", tracefabric.KindLink, "funnel").
		Add("K", tracefabric.KindSink, "tmc").
		Connect("S", 0, "L1", 0).
		Connect("L1", 0, "L2", 0).
		Connect("L2", 0, "L1", 1).
		Build()
	require.NoError(t, err)

	_, err = compute.FindRoute(g2, nil, "S", "K", sysfs)
	assert.True(t, errors.As(err, new(tracefabric.ErrNoRoute)))

	hops, err := compute.FindRoute(g, nil, "S", "S1", sysfs)
	require.NoError(t, err)
	assert.Equal(t, []tracefabric.DeviceID{"S", "R", "S1"}, devices(hops))
	assert.Equal(t, 0, hops[1].OutPort)
}

// TestFindRouteNoFabricatedEdges builds random layered topologies and
// checks that every adjacent pair in every route found is wired, with
// matching ports.
func TestFindRouteNoFabricatedEdges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for iter := 0; iter < 50; iter++ {
		b := topology.NewBuilder()
		var layers [][]tracefabric.DeviceID
		kinds := []tracefabric.Kind{tracefabric.KindSource, tracefabric.KindLink, tracefabric.KindLink, tracefabric.KindSink}
		for l, kind := range kinds {
			var layer []tracefabric.DeviceID
			n := 1 + rng.Intn(4)
			for i := 0; i < n; i++ {
				id := tracefabric.DeviceID(fmt.Sprintf("L%d-%d", l, i))
				b.Add(id, kind, kind.String())
				layer = append(layer, id)
			}
			layers = append(layers, layer)
		}
		inPorts := map[tracefabric.DeviceID]int{}
		for l := 0; l+1 < len(layers); l++ {
			for _, from := range layers[l] {
				out := 0
				for _, to := range layers[l+1] {
					if rng.Intn(2) == 0 {
						continue
					}
					b.Connect(from, out, to, inPorts[to])
					out++
					inPorts[to]++
				}
			}
		}
		g, err := b.Build()
		require.NoError(t, err)

		for _, src := range g.Sources() {
			for _, sink := range g.Sinks() {
				hops, err := compute.FindRoute(g, nil, src, sink, sysfs)
				if err != nil {
					assert.True(t, errors.As(err, new(tracefabric.ErrNoRoute)), "unexpected error %v", err)
					continue
				}
				require.Equal(t, src, hops[0].Device)
				require.Equal(t, sink, hops[len(hops)-1].Device)
				for i := 0; i+1 < len(hops); i++ {
					c, ok := g.Connection(hops[i].Device, hops[i+1].Device)
					require.True(t, ok, "fabricated edge %s -> %s", hops[i].Device, hops[i+1].Device)
					assert.Equal(t, c.OutPort, hops[i].OutPort)
					assert.Equal(t, c.InPort, hops[i+1].InPort)
				}
			}
		}
	}
}
