package trackerbun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tracker stores snapshot runs in a Bun-backed database.
type Tracker struct {
	DB          *bun.DB
	Now         func() time.Time
	IDGenerator func() string
}

var _ snapshot.RunTracker = (*Tracker)(nil)

// NewTracker creates a Bun-backed tracker.
func NewTracker(db *bun.DB) *Tracker {
	return &Tracker{DB: db, Now: time.Now, IDGenerator: uuid.NewString}
}

// CreateSchema creates the runs table when missing.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return snapshot.NewError(snapshot.KindConfig, "tracker database not configured", nil)
	}
	_, err := db.NewCreateTable().Model((*runModel)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return snapshot.NewError(snapshot.KindIO, "tracker schema create failed", err)
	}
	return nil
}

// Start inserts a new run record.
func (t *Tracker) Start(ctx context.Context, record snapshot.RunRecord) (string, error) {
	if t == nil || t.DB == nil {
		return "", snapshot.NewError(snapshot.KindConfig, "tracker database not configured", nil)
	}
	if record.ID == "" {
		record.ID = t.nextID()
	}
	if record.State == "" {
		record.State = snapshot.StateStarted
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = record.CreatedAt
	}

	model, err := modelFromRecord(record)
	if err != nil {
		return "", err
	}
	if _, err := t.DB.NewInsert().Model(&model).Exec(ctx); err != nil {
		return "", snapshot.NewError(snapshot.KindIO, "run insert failed", err)
	}
	return record.ID, nil
}

// SetState moves a running record to state. Finished runs are not updated.
func (t *Tracker) SetState(ctx context.Context, id string, state snapshot.RunState) error {
	if t == nil || t.DB == nil {
		return snapshot.NewError(snapshot.KindConfig, "tracker database not configured", nil)
	}
	if id == "" {
		return snapshot.NewError(snapshot.KindValidation, "run ID is required", nil)
	}

	res, err := t.DB.NewUpdate().Model((*runModel)(nil)).
		Set("state = ?", state).
		Where("id = ?", id).
		Where("state NOT IN (?)", bun.In([]string{string(snapshot.StateDone), string(snapshot.StateAborted)})).
		Exec(ctx)
	if err != nil {
		return snapshot.NewError(snapshot.KindIO, "run update failed", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		return nil
	}

	current, err := t.Status(ctx, id)
	if err != nil {
		return err
	}
	return snapshot.NewError(snapshot.KindConflict, fmt.Sprintf("run %q already %s", id, current.State), nil)
}

// Fail marks the run as aborted and stores the summary and cause.
func (t *Tracker) Fail(ctx context.Context, id string, err error, summary snapshot.RunRecord) error {
	return t.finish(ctx, id, snapshot.StateAborted, err, summary)
}

// Complete marks the run as done and stores the summary.
func (t *Tracker) Complete(ctx context.Context, id string, summary snapshot.RunRecord) error {
	return t.finish(ctx, id, snapshot.StateDone, nil, summary)
}

func (t *Tracker) finish(ctx context.Context, id string, state snapshot.RunState, cause error, summary snapshot.RunRecord) error {
	if t == nil || t.DB == nil {
		return snapshot.NewError(snapshot.KindConfig, "tracker database not configured", nil)
	}
	if id == "" {
		return snapshot.NewError(snapshot.KindValidation, "run ID is required", nil)
	}

	skipped, err := json.Marshal(summary.Skipped)
	if err != nil {
		return snapshot.NewError(snapshot.KindInternal, "skipped tables encode failed", err)
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	res, err := t.DB.NewUpdate().Model((*runModel)(nil)).
		Set("state = ?", state).
		Set("path = ?", summary.Path).
		Set("table_count = ?", summary.Tables).
		Set("row_count = ?", summary.Rows).
		Set("skipped = ?", skipped).
		Set("error_message = ?", message).
		Set("completed_at = COALESCE(completed_at, ?)", t.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return snapshot.NewError(snapshot.KindIO, "run update failed", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return snapshot.NewError(snapshot.KindNotFound, fmt.Sprintf("run %q not found", id), nil)
	}
	return nil
}

// Status returns a record by ID.
func (t *Tracker) Status(ctx context.Context, id string) (snapshot.RunRecord, error) {
	if t == nil || t.DB == nil {
		return snapshot.RunRecord{}, snapshot.NewError(snapshot.KindConfig, "tracker database not configured", nil)
	}
	if id == "" {
		return snapshot.RunRecord{}, snapshot.NewError(snapshot.KindValidation, "run ID is required", nil)
	}

	model := new(runModel)
	err := t.DB.NewSelect().Model(model).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snapshot.RunRecord{}, snapshot.NewError(snapshot.KindNotFound, fmt.Sprintf("run %q not found", id), nil)
		}
		return snapshot.RunRecord{}, snapshot.NewError(snapshot.KindIO, "run select failed", err)
	}
	return model.toRecord()
}

// List returns records matching a filter, newest first.
func (t *Tracker) List(ctx context.Context, filter snapshot.RunFilter) ([]snapshot.RunRecord, error) {
	if t == nil || t.DB == nil {
		return nil, snapshot.NewError(snapshot.KindConfig, "tracker database not configured", nil)
	}

	models := make([]runModel, 0)
	query := t.DB.NewSelect().Model(&models)
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}
	query = query.Order("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, snapshot.NewError(snapshot.KindIO, "run list failed", err)
	}

	records := make([]snapshot.RunRecord, 0, len(models))
	for _, model := range models {
		record, err := model.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

type runModel struct {
	bun.BaseModel `bun:"table:snapshot_runs,alias:snapshot_runs"`

	ID          string    `bun:",pk"`
	Format      string    `bun:",notnull"`
	Directory   string    `bun:"directory"`
	Path        string    `bun:"path"`
	State       string    `bun:",notnull"`
	Tables      int       `bun:"table_count"`
	Rows        int64     `bun:"row_count"`
	Skipped     []byte    `bun:"skipped"`
	Error       string    `bun:"error_message"`
	CreatedAt   time.Time `bun:"created_at"`
	StartedAt   time.Time `bun:"started_at,nullzero"`
	CompletedAt time.Time `bun:"completed_at,nullzero"`
}

func modelFromRecord(record snapshot.RunRecord) (runModel, error) {
	skipped, err := json.Marshal(record.Skipped)
	if err != nil {
		return runModel{}, snapshot.NewError(snapshot.KindInternal, "skipped tables encode failed", err)
	}
	return runModel{
		ID:          record.ID,
		Format:      string(record.Format),
		Directory:   record.Directory,
		Path:        record.Path,
		State:       string(record.State),
		Tables:      record.Tables,
		Rows:        record.Rows,
		Skipped:     skipped,
		Error:       record.Error,
		CreatedAt:   record.CreatedAt,
		StartedAt:   record.StartedAt,
		CompletedAt: record.CompletedAt,
	}, nil
}

func (m runModel) toRecord() (snapshot.RunRecord, error) {
	record := snapshot.RunRecord{
		ID:          m.ID,
		Format:      snapshot.Format(m.Format),
		Directory:   m.Directory,
		Path:        m.Path,
		State:       snapshot.RunState(m.State),
		Tables:      m.Tables,
		Rows:        m.Rows,
		Error:       m.Error,
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
	if len(m.Skipped) > 0 {
		if err := json.Unmarshal(m.Skipped, &record.Skipped); err != nil {
			return snapshot.RunRecord{}, snapshot.NewError(snapshot.KindInternal, "skipped tables decode failed", err)
		}
	}
	return record, nil
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tracker) nextID() string {
	if t.IDGenerator != nil {
		return t.IDGenerator()
	}
	return uuid.NewString()
}
