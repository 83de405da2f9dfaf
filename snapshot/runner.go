package snapshot

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Runner sequences a full export: list tables, describe columns, write
// headers, read rows, write data. Each step runs once; a failed run is not
// resumed, the next trigger starts over.
type Runner struct {
	Catalog     Catalog
	Tracker     RunTracker
	Logger      Logger
	Now         func() time.Time
	IDGenerator func() string
	MaxDuration time.Duration
}

// NewRunner creates a runner with default collaborators.
func NewRunner(catalog Catalog) *Runner {
	return &Runner{
		Catalog:     catalog,
		Logger:      NopLogger{},
		Now:         time.Now,
		IDGenerator: uuid.NewString,
	}
}

// Run executes one export. An empty database aborts with a logged notice and
// no error; configuration, catalog and I/O failures abort with an error.
func (r *Runner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if r == nil || r.Catalog == nil {
		return RunResult{State: StateAborted}, NewError(KindInternal, "runner catalog is not configured", nil)
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	logger := r.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	newID := r.IDGenerator
	if newID == nil {
		newID = uuid.NewString
	}

	format, err := ParseFormat(string(req.Format))
	if err != nil {
		logger.Errorf("snapshot run rejected: %v", err)
		return RunResult{State: StateAborted}, err
	}
	req.Format = format

	ctx, cancel := applyMaxDuration(ctx, now, r.MaxDuration)
	if cancel != nil {
		defer cancel()
	}

	run := r.start(ctx, req, newID(), now, logger)

	tables := r.Catalog.ListTables(ctx)
	if len(tables) == 0 {
		logger.Infof("snapshot run %s: no tables found, check the database connection", run.id)
		return r.abort(ctx, run, nil)
	}
	r.transition(ctx, run, StateTablesListed)

	schema := make(SchemaMap, len(tables))
	for _, result := range r.Catalog.DescribeColumns(ctx, tables) {
		if result.Err != nil {
			logger.Errorf("snapshot run %s: skipping table %q, describe failed: %v", run.id, result.Table, result.Err)
			run.skipped = append(run.skipped, result.Table)
			continue
		}
		schema[result.Table] = result.Value
	}
	if len(schema) == 0 {
		return r.abort(ctx, run, NewError(KindCatalog, "no table could be described", nil))
	}
	r.transition(ctx, run, StateColumnsDescribed)

	headers, err := run.workbook.WriteHeaders(schema, string(req.Format), req.Directory)
	run.path = headers.Path
	if err != nil {
		return r.abort(ctx, run, err)
	}
	// tables without a sheet are not read
	for _, table := range headers.Skipped {
		delete(schema, table)
		run.skipped = append(run.skipped, table)
	}
	run.tables = len(headers.Written)
	r.transition(ctx, run, StateHeadersWritten)

	results, err := r.Catalog.ReadRows(ctx, schema)
	if err != nil {
		return r.abort(ctx, run, err)
	}
	dataset := make(ExportDataset, len(results))
	for _, result := range results {
		if result.Err != nil {
			logger.Errorf("snapshot run %s: skipping rows of %q, query failed: %v", run.id, result.Table, result.Err)
			run.skipped = append(run.skipped, result.Table)
			continue
		}
		dataset[result.Table] = result.Value
	}
	r.transition(ctx, run, StateDataRead)

	written, err := run.workbook.WriteData(dataset, string(req.Format), req.Directory)
	if err != nil {
		return r.abort(ctx, run, err)
	}
	run.skipped = append(run.skipped, written.Skipped...)
	run.rows = written.Rows
	r.transition(ctx, run, StateDataWritten)

	return r.complete(ctx, run)
}

type runState struct {
	id       string
	request  RunRequest
	started  time.Time
	now      func() time.Time
	logger   Logger
	workbook *Workbook
	path     string
	tables   int
	rows     int64
	skipped  []TableName
}

func (r *Runner) start(ctx context.Context, req RunRequest, id string, now func() time.Time, logger Logger) *runState {
	started := now()
	run := &runState{
		id:      id,
		request: req,
		started: started,
		now:     now,
		logger:  logger,
		// the whole run targets the file of the day it started on
		workbook: &Workbook{Logger: logger, Now: func() time.Time { return started }},
	}

	if r.Tracker != nil {
		id, err := r.Tracker.Start(ctx, RunRecord{
			ID:        run.id,
			Format:    req.Format,
			Directory: req.Directory,
			State:     StateStarted,
			CreatedAt: started,
			StartedAt: started,
		})
		if err != nil {
			logger.Errorf("snapshot run %s: tracker start failed: %v", run.id, err)
		} else if id != "" {
			run.id = id
		}
	}
	logger.Debugf("snapshot run %s started: format=%s dir=%s", run.id, req.Format, req.Directory)
	return run
}

func (r *Runner) transition(ctx context.Context, run *runState, state RunState) {
	run.logger.Debugf("snapshot run %s: %s", run.id, state)
	if r.Tracker == nil {
		return
	}
	if err := r.Tracker.SetState(ctx, run.id, state); err != nil {
		run.logger.Errorf("snapshot run %s: tracker state %s failed: %v", run.id, state, err)
	}
}

func (r *Runner) abort(ctx context.Context, run *runState, cause error) (RunResult, error) {
	result := run.result(StateAborted, run.now())
	if cause != nil {
		run.logger.Errorf("snapshot run %s failed: %v", run.id, cause)
	} else {
		run.logger.Infof("snapshot run %s aborted", run.id)
	}
	if r.Tracker != nil {
		if err := r.Tracker.Fail(context.WithoutCancel(ctx), run.id, cause, run.summary()); err != nil {
			run.logger.Errorf("snapshot run %s: tracker fail failed: %v", run.id, err)
		}
	}
	return result, cause
}

func (r *Runner) complete(ctx context.Context, run *runState) (RunResult, error) {
	result := run.result(StateDone, run.now())
	if r.Tracker != nil {
		if err := r.Tracker.Complete(ctx, run.id, run.summary()); err != nil {
			run.logger.Errorf("snapshot run %s: tracker complete failed: %v", run.id, err)
		}
	}
	run.logger.Infof("snapshot run %s succeeded: %s (%d tables, %d rows, %d skipped) in %s",
		run.id, run.path, run.tables, run.rows, len(run.skipped), result.Elapsed)
	return result, nil
}

func (run *runState) result(state RunState, now time.Time) RunResult {
	return RunResult{
		ID:      run.id,
		State:   state,
		Path:    run.path,
		Tables:  run.tables,
		Rows:    run.rows,
		Skipped: run.skipped,
		Elapsed: now.Sub(run.started),
	}
}

func (run *runState) summary() RunRecord {
	return RunRecord{
		ID:        run.id,
		Format:    run.request.Format,
		Directory: run.request.Directory,
		Path:      run.path,
		Tables:    run.tables,
		Rows:      run.rows,
		Skipped:   run.skipped,
	}
}

func applyMaxDuration(ctx context.Context, nowFn func() time.Time, limit time.Duration) (context.Context, context.CancelFunc) {
	if limit <= 0 {
		return ctx, nil
	}
	now := time.Now
	if nowFn != nil {
		now = nowFn
	}
	deadline := now().Add(limit)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadline) {
		return ctx, nil
	}
	return context.WithDeadline(ctx, deadline)
}
