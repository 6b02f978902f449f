// Package sink tracks the system-wide default sink used by requests
// that do not name one.
//
// The Policy starts empty. A successful activation sets it if nothing
// is set; the teardown of the last path using that sink clears it.
// Other sinks may be driven by explicit paths at the same time.
package sink

import (
	"log/slog"
	"sync"

	"github.com/frobware/go-tracefabric"
)

// Candidate is a sink reachable from the requesting source.
type Candidate struct {
	ID tracefabric.DeviceID
	// Free is true when no path currently uses the sink.
	Free bool
}

// Policy holds the currently enabled sink.
type Policy struct {
	preferred tracefabric.DeviceID
	logger    *slog.Logger

	mu      sync.Mutex
	current tracefabric.DeviceID
}

// NewPolicy returns an empty Policy. preferred, if not empty, is tried
// before falling back to discovery order.
func NewPolicy(preferred tracefabric.DeviceID, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		preferred: preferred,
		logger:    logger.With("component", "sink"),
	}
}

// Preferred returns the configured preferred sink.
func (p *Policy) Preferred() tracefabric.DeviceID {
	return p.preferred
}

// Current returns the enabled sink, if any.
func (p *Policy) Current() (tracefabric.DeviceID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != ""
}

// GetEnabled returns the enabled sink and, if reset is set, clears the
// designation.
func (p *Policy) GetEnabled(reset bool) (tracefabric.DeviceID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.current
	if reset && id != "" {
		p.current = ""
		p.logger.Debug("enabled sink reset", "sink", id)
	}
	return id, id != ""
}

// SetIfEmpty makes id the enabled sink unless one is already set. It
// reports whether id is now the enabled sink.
func (p *Policy) SetIfEmpty(id tracefabric.DeviceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		p.current = id
		p.logger.Debug("enabled sink set", "sink", id)
	}
	return p.current == id
}

// ClearIf clears the designation if it is id.
func (p *Policy) ClearIf(id tracefabric.DeviceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != id || id == "" {
		return false
	}
	p.current = ""
	p.logger.Debug("enabled sink cleared", "sink", id)
	return true
}

// Select picks a sink from candidates, which are in discovery order:
// the enabled sink if reachable, then the preferred sink if free, then
// the first free candidate.
func (p *Policy) Select(candidates []Candidate) (tracefabric.DeviceID, bool) {
	current, _ := p.Current()

	if current != "" {
		for _, c := range candidates {
			if c.ID == current {
				return current, true
			}
		}
	}
	if p.preferred != "" {
		for _, c := range candidates {
			if c.ID == p.preferred && c.Free {
				return c.ID, true
			}
		}
	}
	for _, c := range candidates {
		if c.Free {
			return c.ID, true
		}
	}
	return "", false
}
