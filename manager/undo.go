package manager

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/store"
)

// undoStep reverses one device step of a partially completed
// activation.
type undoStep struct {
	device tracefabric.DeviceID
	action store.Action
	fn     func(context.Context) error
}

// undoStack accumulates rollback steps that are executed in reverse
// order when an activation fails partway through.
type undoStack []undoStep

// push records how to reverse action on device.
func (u *undoStack) push(device tracefabric.DeviceID, action store.Action, fn func(context.Context) error) {
	*u = append(*u, undoStep{device: device, action: action, fn: fn})
}

// rollback executes all steps in reverse order on ctx, logging and
// collecting any errors. done, if not nil, is called after each step. Returns nil
// if every step succeeds.
func (u undoStack) rollback(ctx context.Context, logger *slog.Logger, done func(undoStep, error)) error {
	var errs []error
	for i := len(u) - 1; i >= 0; i-- {
		step := u[i]
		err := step.fn(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "rollback step failed", "step", i, "device", step.device, "action", step.action, "error", err)
			errs = append(errs, err)
		}
		if done != nil {
			done(step, err)
		}
	}
	return errors.Join(errs...)
}
