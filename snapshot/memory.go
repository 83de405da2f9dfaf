package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryTracker stores run records in memory (test/dev only).
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[string]RunRecord
	Now     func() time.Time
}

// NewMemoryTracker creates an in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{records: make(map[string]RunRecord), Now: time.Now}
}

// Start creates a new record.
func (t *MemoryTracker) Start(ctx context.Context, record RunRecord) (string, error) {
	_ = ctx
	if record.ID == "" {
		return "", NewError(KindValidation, "run ID is required", nil)
	}
	if record.State == "" {
		record.State = StateStarted
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = record.CreatedAt
	}

	t.mu.Lock()
	t.records[record.ID] = record
	t.mu.Unlock()
	return record.ID, nil
}

// SetState updates the record state.
func (t *MemoryTracker) SetState(ctx context.Context, id string, state RunState) error {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[id]
	if !ok {
		return NewError(KindNotFound, fmt.Sprintf("run %q not found", id), nil)
	}
	if record.State.IsTerminal() {
		return NewError(KindConflict, fmt.Sprintf("run %q already %s", id, record.State), nil)
	}
	record.State = state
	t.records[id] = record
	return nil
}

// Fail marks the run as aborted.
func (t *MemoryTracker) Fail(ctx context.Context, id string, err error, summary RunRecord) error {
	return t.finish(ctx, id, StateAborted, err, summary)
}

// Complete marks the run as done.
func (t *MemoryTracker) Complete(ctx context.Context, id string, summary RunRecord) error {
	return t.finish(ctx, id, StateDone, nil, summary)
}

func (t *MemoryTracker) finish(ctx context.Context, id string, state RunState, err error, summary RunRecord) error {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[id]
	if !ok {
		return NewError(KindNotFound, fmt.Sprintf("run %q not found", id), nil)
	}
	record.State = state
	record.Path = summary.Path
	record.Tables = summary.Tables
	record.Rows = summary.Rows
	record.Skipped = append([]TableName(nil), summary.Skipped...)
	if err != nil {
		record.Error = err.Error()
	}
	record.CompletedAt = t.now()
	t.records[id] = record
	return nil
}

// Status returns a record by ID.
func (t *MemoryTracker) Status(ctx context.Context, id string) (RunRecord, error) {
	_ = ctx
	t.mu.RLock()
	record, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return RunRecord{}, NewError(KindNotFound, fmt.Sprintf("run %q not found", id), nil)
	}
	return record, nil
}

// List returns records matching a filter, newest first.
func (t *MemoryTracker) List(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	_ = ctx
	result := []RunRecord{}

	t.mu.RLock()
	for _, record := range t.records {
		if filter.State != "" && record.State != filter.State {
			continue
		}
		if !filter.Since.IsZero() && record.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && record.CreatedAt.After(filter.Until) {
			continue
		}
		result = append(result, record)
	}
	t.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (t *MemoryTracker) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}
