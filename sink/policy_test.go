package sink_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/sink"
)

func newPolicy(preferred tracefabric.DeviceID) *sink.Policy {
	return sink.NewPolicy(preferred, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPolicyLifecycle(t *testing.T) {
	p := newPolicy("")

	_, ok := p.Current()
	assert.False(t, ok, "policy starts empty")

	assert.True(t, p.SetIfEmpty("etf0"))
	assert.False(t, p.SetIfEmpty("etr0"), "second sink must not replace the first")
	id, ok := p.Current()
	assert.True(t, ok)
	assert.Equal(t, tracefabric.DeviceID("etf0"), id)

	assert.False(t, p.ClearIf("etr0"))
	assert.True(t, p.ClearIf("etf0"))
	_, ok = p.Current()
	assert.False(t, ok)
}

func TestPolicyGetEnabledReset(t *testing.T) {
	p := newPolicy("")
	p.SetIfEmpty("etf0")

	id, ok := p.GetEnabled(false)
	assert.True(t, ok)
	assert.Equal(t, tracefabric.DeviceID("etf0"), id)

	id, ok = p.GetEnabled(true)
	assert.True(t, ok)
	assert.Equal(t, tracefabric.DeviceID("etf0"), id)

	_, ok = p.GetEnabled(false)
	assert.False(t, ok)
}

func TestPolicySelect(t *testing.T) {
	candidates := []sink.Candidate{
		{ID: "etf0", Free: false},
		{ID: "etr0", Free: true},
		{ID: "tpiu0", Free: true},
	}

	tests := []struct {
		name      string
		preferred tracefabric.DeviceID
		current   tracefabric.DeviceID
		cands     []sink.Candidate
		want      tracefabric.DeviceID
		wantOK    bool
	}{
		{name: "first free", cands: candidates, want: "etr0", wantOK: true},
		{name: "current wins even if busy", current: "etf0", cands: candidates, want: "etf0", wantOK: true},
		{name: "current unreachable", current: "other", cands: candidates, want: "etr0", wantOK: true},
		{name: "preferred free", preferred: "tpiu0", cands: candidates, want: "tpiu0", wantOK: true},
		{name: "preferred busy", preferred: "etf0", cands: candidates, want: "etr0", wantOK: true},
		{name: "nothing free", cands: []sink.Candidate{{ID: "etf0"}}, wantOK: false},
		{name: "nothing reachable", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPolicy(tt.preferred)
			if tt.current != "" {
				p.SetIfEmpty(tt.current)
			}
			got, ok := p.Select(tt.cands)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyConcurrentSetIfEmpty(t *testing.T) {
	p := newPolicy("")
	ids := []tracefabric.DeviceID{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	winners := make(chan tracefabric.DeviceID, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id tracefabric.DeviceID) {
			defer wg.Done()
			if p.SetIfEmpty(id) {
				winners <- id
			}
		}(id)
	}
	wg.Wait()
	close(winners)

	var got []tracefabric.DeviceID
	for id := range winners {
		got = append(got, id)
	}
	assert.Len(t, got, 1, "exactly one sink becomes the default")
}
