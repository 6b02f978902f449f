package compute

import (
	"sort"

	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/action"
	"github.com/frobware/go-tracefabric/claim"
	"github.com/frobware/go-tracefabric/store"
)

// ReconcileSessions computes the actions needed to reconcile ledger
// sessions with the paths actually held. An active session that live
// does not recognise was left behind by a process that exited without
// disabling its path. Pure function - no I/O.
//
// Actions follow the order of active.
func ReconcileSessions(active []store.Session, live func(uuid.UUID) bool) []action.Action {
	var actions []action.Action
	for _, s := range active {
		if s.Status != store.StatusActive || live(s.ID) {
			continue
		}
		actions = append(actions, action.AbandonSession{
			Session: s.ID,
			Source:  s.Source,
			Sink:    s.Sink,
			Reason:  "abandoned: no process holds the path",
		})
	}
	return actions
}

// ReconcileClaims computes the actions needed to clear self-hosted
// claim tags that no agent owns. Tags maps devices to the tag bits
// read from hardware. A device held only by an external debugger is
// left alone. Pure function - no I/O.
//
// Actions are sorted by device ID.
func ReconcileClaims(tags map[tracefabric.DeviceID]uint32) []action.Action {
	ids := make([]tracefabric.DeviceID, 0, len(tags))
	for id, t := range tags {
		if t&claim.SelfHosted != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	actions := make([]action.Action, 0, len(ids))
	for _, id := range ids {
		actions = append(actions, action.ClearClaimTag{Device: id, Tags: tags[id]})
	}
	return actions
}
