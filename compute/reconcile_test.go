package compute_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/action"
	"github.com/frobware/go-tracefabric/claim"
	"github.com/frobware/go-tracefabric/compute"
	"github.com/frobware/go-tracefabric/store"
)

func TestReconcileSessions_AbandonsSessionsNobodyHolds(t *testing.T) {
	held := uuid.New()
	gone := uuid.New()
	active := []store.Session{
		{ID: gone, Source: "etm0", Sink: "etr0", Status: store.StatusActive},
		{ID: held, Source: "etm1", Sink: "etr0", Status: store.StatusActive},
	}

	actions := compute.ReconcileSessions(active, func(id uuid.UUID) bool { return id == held })

	require.Len(t, actions, 1)
	a, ok := actions[0].(action.AbandonSession)
	require.True(t, ok, "expected AbandonSession action, got %T", actions[0])
	assert.Equal(t, gone, a.Session)
	assert.Equal(t, tracefabric.DeviceID("etm0"), a.Source)
	assert.Equal(t, tracefabric.DeviceID("etr0"), a.Sink)
	assert.NotEmpty(t, a.Reason)
}

func TestReconcileSessions_IgnoresFinishedSessions(t *testing.T) {
	active := []store.Session{
		{ID: uuid.New(), Status: store.StatusClosed},
		{ID: uuid.New(), Status: store.StatusFailed},
	}

	actions := compute.ReconcileSessions(active, func(uuid.UUID) bool { return false })
	assert.Empty(t, actions)
}

func TestReconcileSessions_Empty(t *testing.T) {
	assert.Empty(t, compute.ReconcileSessions(nil, func(uuid.UUID) bool { return false }))
}

func TestReconcileClaims_SelfHostedOnly(t *testing.T) {
	tags := map[tracefabric.DeviceID]uint32{
		"replicator0": claim.SelfHosted,
		"etm1":        claim.External,
		"funnel0":     claim.SelfHosted | claim.External,
	}

	actions := compute.ReconcileClaims(tags)

	require.Len(t, actions, 2)
	assert.Equal(t, action.ClearClaimTag{Device: "funnel0", Tags: claim.SelfHosted | claim.External}, actions[0])
	assert.Equal(t, action.ClearClaimTag{Device: "replicator0", Tags: claim.SelfHosted}, actions[1])
}

func TestReconcileClaims_Empty(t *testing.T) {
	assert.Empty(t, compute.ReconcileClaims(nil))
}
