package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/action"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/store"
)

// GCConfig configures garbage collection behaviour.
//
// Garbage is judged against the paths held by this Manager, so a
// caller must hold the runtime lock to keep other processes from
// enabling paths while a plan is computed and applied.
type GCConfig struct {
	// Now is the reference time for ages and for closing sessions.
	// If zero, the Manager's clock is used.
	Now time.Time

	// IncludeSessions controls whether active ledger sessions with no
	// holder are collected.
	IncludeSessions bool

	// IncludeClaims controls whether self-hosted claim tags with no
	// owner are collected. A kernel trace driver sharing the hardware
	// uses the same tag, so this is off by default.
	IncludeClaims bool

	// DryRun prevents any modifications when true.
	DryRun bool
}

// DefaultGCConfig returns a GCConfig that reports abandoned sessions
// without changing anything.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		IncludeSessions: true,
		DryRun:          true,
	}
}

// GCReason describes why an item is considered garbage.
type GCReason string

const (
	// GCAbandonedSession is an active ledger session whose path no
	// process holds, typically because the process that enabled it
	// was killed.
	GCAbandonedSession GCReason = "abandoned_session"

	// GCStaleClaim is a self-hosted claim tag set in hardware on a
	// device no agent owns.
	GCStaleClaim GCReason = "stale_claim"
)

// GCItem is a single item identified for garbage collection.
type GCItem struct {
	Reason  GCReason             `json:"reason"`
	Session uuid.UUID            `json:"session,omitempty"`
	Device  tracefabric.DeviceID `json:"device"`
	Tags    uint32               `json:"tags,omitempty"`
	Age     time.Duration        `json:"age,omitempty"`

	action action.Action
}

// GCPlan contains the items identified for garbage collection.
type GCPlan struct {
	Items    []GCItem  `json:"items"`
	Config   GCConfig  `json:"-"`
	PlanTime time.Time `json:"plan_time"`
}

// CountByReason returns counts grouped by reason.
func (p GCPlan) CountByReason() map[GCReason]int {
	counts := make(map[GCReason]int)
	for _, item := range p.Items {
		counts[item.Reason]++
	}
	return counts
}

// GCItemResult records the outcome of attempting to clean up an item.
type GCItemResult struct {
	Item    GCItem `json:"item"`
	Applied bool   `json:"applied"`
	Error   error  `json:"-"`
}

// GCResult summarises the outcome of applying a GC plan.
type GCResult struct {
	Attempted int            `json:"attempted"`
	Applied   int            `json:"applied"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Items     []GCItemResult `json:"items"`
}

// PlanGC discovers what would be cleaned and why, without side effects.
//
// FETCH reads active ledger sessions and the claim tags of unowned
// devices; COMPUTE turns them into actions.
func (m *Manager) PlanGC(ctx context.Context, cfg GCConfig) (GCPlan, error) {
	if cfg.Now.IsZero() {
		cfg.Now = m.now()
	}
	plan := GCPlan{
		Config:   cfg,
		PlanTime: cfg.Now,
	}

	if cfg.IncludeSessions && m.store != nil {
		active, err := m.store.ListSessions(ctx, store.Filter{Status: store.StatusActive})
		if err != nil {
			return plan, fmt.Errorf("plan abandoned sessions: %w", err)
		}
		enabledAt := make(map[uuid.UUID]time.Time, len(active))
		for _, s := range active {
			enabledAt[s.ID] = s.EnabledAt
		}
		for _, a := range compute.ReconcileSessions(active, m.ownsSession) {
			abandon := a.(action.AbandonSession)
			plan.Items = append(plan.Items, GCItem{
				Reason:  GCAbandonedSession,
				Session: abandon.Session,
				Device:  abandon.Source,
				Age:     cfg.Now.Sub(enabledAt[abandon.Session]),
				action:  a,
			})
		}
	}

	if cfg.IncludeClaims {
		for _, a := range compute.ReconcileClaims(m.arbiter.Unowned(ctx)) {
			ct := a.(action.ClearClaimTag)
			plan.Items = append(plan.Items, GCItem{
				Reason: GCStaleClaim,
				Device: ct.Device,
				Tags:   ct.Tags,
				action: a,
			})
		}
	}

	m.logger.DebugContext(ctx, "gc planned", "items", len(plan.Items))
	return plan, nil
}

// ApplyGC executes a GC plan, returning per-item results.
func (m *Manager) ApplyGC(ctx context.Context, plan GCPlan) (GCResult, error) {
	result := GCResult{
		Items: make([]GCItemResult, 0, len(plan.Items)),
	}

	if plan.Config.DryRun {
		for _, item := range plan.Items {
			result.Items = append(result.Items, GCItemResult{Item: item})
		}
		result.Skipped = len(plan.Items)
		return result, nil
	}

	now := plan.Config.Now
	if now.IsZero() {
		now = m.now()
	}

	for _, item := range plan.Items {
		if item.action == nil {
			result.Skipped++
			result.Items = append(result.Items, GCItemResult{Item: item})
			continue
		}

		result.Attempted++
		itemResult := GCItemResult{Item: item}
		if err := m.execute(ctx, item.action, now); err != nil {
			itemResult.Error = err
			result.Failed++
			m.logger.WarnContext(ctx, "gc item failed", "reason", item.Reason, "device", item.Device, "error", err)
		} else {
			itemResult.Applied = true
			result.Applied++
		}
		result.Items = append(result.Items, itemResult)
	}

	return result, nil
}

// execute performs a single reified action.
func (m *Manager) execute(ctx context.Context, a action.Action, now time.Time) error {
	switch a := a.(type) {
	case action.AbandonSession:
		if m.store == nil {
			return fmt.Errorf("abandon session %s: no ledger configured", a.Session)
		}
		return m.store.RunInTransaction(ctx, func(tx store.Store) error {
			return tx.CloseSession(ctx, a.Session, store.StatusFailed, a.Reason, now)
		})
	case action.ClearClaimTag:
		return m.arbiter.ClearStale(ctx, a.Device)
	default:
		return fmt.Errorf("unknown action type: %T", a)
	}
}
