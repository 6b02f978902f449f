package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestUndoStack_ReverseOrder(t *testing.T) {
	var order []tracefabric.DeviceID
	var undo undoStack
	for _, id := range []tracefabric.DeviceID{"etf0", "funnel0", "etm0"} {
		undo.push(id, store.ActionClaim, func(context.Context) error {
			order = append(order, id)
			return nil
		})
	}
	require.NoError(t, undo.rollback(context.Background(), discard, nil))
	assert.Equal(t, []tracefabric.DeviceID{"etm0", "funnel0", "etf0"}, order)
}

func TestUndoStack_CollectsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	var undo undoStack
	undo.push("etf0", store.ActionClaim, func(context.Context) error { return errA })
	undo.push("funnel0", store.ActionShare, func(context.Context) error { return nil })
	undo.push("etm0", store.ActionProgram, func(context.Context) error { return errB })

	var seen []string
	err := undo.rollback(context.Background(), discard, func(s undoStep, err error) {
		if err != nil {
			seen = append(seen, string(s.device)+":error")
		} else {
			seen = append(seen, string(s.device)+":ok")
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, []string{"etm0:error", "funnel0:ok", "etf0:error"}, seen, "every step runs despite failures")
}

func TestUndoStack_EmptyIsNoop(t *testing.T) {
	var undo undoStack
	assert.NoError(t, undo.rollback(context.Background(), discard, nil))
}

type ctxKey struct{}

func TestUndoStack_StepsRunOnRollbackContext(t *testing.T) {
	stale, cancel := context.WithCancel(context.Background())
	cancel()

	var undo undoStack
	var got []error
	for _, id := range []tracefabric.DeviceID{"etf0", "etm0"} {
		undo.push(id, store.ActionClaim, func(ctx context.Context) error {
			got = append(got, ctx.Err())
			assert.Equal(t, "op1", ctx.Value(ctxKey{}))
			return ctx.Err()
		})
	}

	ctx := context.WithoutCancel(context.WithValue(stale, ctxKey{}, "op1"))
	require.NoError(t, undo.rollback(ctx, discard, nil))
	assert.Equal(t, []error{nil, nil}, got)
}
