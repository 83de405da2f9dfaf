package query

import (
	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/goliatone/go-errors"
)

// RunStatus requests a single run record.
type RunStatus struct {
	RunID string
}

func (RunStatus) Type() string { return "snapshot:status" }

func (msg RunStatus) Validate() error {
	if msg.RunID == "" {
		return errors.New("run ID is required", errors.CategoryValidation).
			WithTextCode("RUN_ID_REQUIRED")
	}
	return nil
}

// RunHistory requests past runs.
type RunHistory struct {
	Filter snapshot.RunFilter
}

func (RunHistory) Type() string { return "snapshot:history" }

func (msg RunHistory) Validate() error {
	if msg.Filter.Limit < 0 {
		return errors.New("limit must not be negative", errors.CategoryValidation).
			WithTextCode("LIMIT_INVALID")
	}
	if !msg.Filter.Since.IsZero() && !msg.Filter.Until.IsZero() && msg.Filter.Until.Before(msg.Filter.Since) {
		return errors.New("until must not be before since", errors.CategoryValidation).
			WithTextCode("RANGE_INVALID")
	}
	if msg.Filter.State != "" && !knownState(msg.Filter.State) {
		return errors.New("unknown run state", errors.CategoryValidation).
			WithTextCode("STATE_INVALID")
	}
	return nil
}

func knownState(state snapshot.RunState) bool {
	switch state {
	case snapshot.StateStarted, snapshot.StateTablesListed, snapshot.StateColumnsDescribed,
		snapshot.StateHeadersWritten, snapshot.StateDataRead, snapshot.StateDataWritten,
		snapshot.StateDone, snapshot.StateAborted:
		return true
	}
	return false
}
