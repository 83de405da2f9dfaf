package command

import (
	"context"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/goliatone/go-errors"
	"golang.org/x/sync/semaphore"
)

// ErrRunInProgress is returned when a run is requested while another one holds
// the lock.
var ErrRunInProgress = snapshot.NewError(snapshot.KindConflict, "snapshot run already in progress", nil)

// Runner executes a snapshot run.
type Runner interface {
	Run(ctx context.Context, req snapshot.RunRequest) (snapshot.RunResult, error)
}

// RunSnapshotHandler runs snapshots one at a time. Requests arriving while a
// run is active fail with ErrRunInProgress instead of queueing.
type RunSnapshotHandler struct {
	Runner Runner
	lock   *semaphore.Weighted
}

func NewRunSnapshotHandler(runner Runner) *RunSnapshotHandler {
	return &RunSnapshotHandler{Runner: runner, lock: semaphore.NewWeighted(1)}
}

func (h *RunSnapshotHandler) Execute(ctx context.Context, msg RunSnapshot) error {
	if h == nil || h.Runner == nil {
		return errors.New("snapshot runner is required", errors.CategoryInternal).
			WithTextCode("RUNNER_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if h.lock == nil {
		h.lock = semaphore.NewWeighted(1)
	}
	if !h.lock.TryAcquire(1) {
		return ErrRunInProgress
	}
	defer h.lock.Release(1)

	result, err := h.Runner.Run(ctx, snapshot.RunRequest{Format: msg.Format, Directory: msg.Directory})
	if msg.Result != nil {
		*msg.Result = result
	}
	if res := gcmd.ResultFromContext[snapshot.RunResult](ctx); res != nil {
		res.Store(result)
	}
	return err
}
