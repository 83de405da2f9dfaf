package query

import (
	"context"

	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/goliatone/go-errors"
)

// RunStatusHandler returns a single run record.
type RunStatusHandler struct {
	Tracker snapshot.RunTracker
}

func NewRunStatusHandler(tracker snapshot.RunTracker) *RunStatusHandler {
	return &RunStatusHandler{Tracker: tracker}
}

func (h *RunStatusHandler) Query(ctx context.Context, msg RunStatus) (snapshot.RunRecord, error) {
	if h == nil || h.Tracker == nil {
		return snapshot.RunRecord{}, errors.New("run tracker is required", errors.CategoryInternal).
			WithTextCode("TRACKER_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return snapshot.RunRecord{}, err
	}
	return h.Tracker.Status(ctx, msg.RunID)
}

// RunHistoryHandler returns past runs, newest first.
type RunHistoryHandler struct {
	Tracker snapshot.RunTracker
}

func NewRunHistoryHandler(tracker snapshot.RunTracker) *RunHistoryHandler {
	return &RunHistoryHandler{Tracker: tracker}
}

func (h *RunHistoryHandler) Query(ctx context.Context, msg RunHistory) ([]snapshot.RunRecord, error) {
	if h == nil || h.Tracker == nil {
		return nil, errors.New("run tracker is required", errors.CategoryInternal).
			WithTextCode("TRACKER_REQUIRED")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return h.Tracker.List(ctx, msg.Filter)
}
