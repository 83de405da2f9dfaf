package snapshot

import (
	"context"
	"sort"
	"time"
)

// Format is the workbook output format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// TableName identifies a base table in the source database.
type TableName = string

// ColumnList is the ordered set of column names for one table.
type ColumnList []string

// SchemaMap maps each exported table to its columns.
type SchemaMap map[TableName]ColumnList

// Tables returns the table names in sheet order.
func (s SchemaMap) Tables() []TableName {
	tables := make([]TableName, 0, len(s))
	for table := range s {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// RowRecord holds one stringified value per column. NULL values are stored
// as the empty string, so NULL and "" are indistinguishable after export.
type RowRecord []string

// TableData holds the rows read from one table in result order.
type TableData []RowRecord

// Row returns the record at the 1-based row index.
func (d TableData) Row(index int) (RowRecord, bool) {
	if index < 1 || index > len(d) {
		return nil, false
	}
	return d[index-1], true
}

// ExportDataset maps each read table to its rows.
type ExportDataset map[TableName]TableData

// Tables returns the dataset table names in sheet order.
func (d ExportDataset) Tables() []TableName {
	tables := make([]TableName, 0, len(d))
	for table := range d {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// Rows returns the total row count across tables.
func (d ExportDataset) Rows() int64 {
	var total int64
	for _, data := range d {
		total += int64(len(data))
	}
	return total
}

// TableResult is the per-table outcome of a best-effort step.
type TableResult[T any] struct {
	Table TableName
	Value T
	Err   error
}

// Catalog reads schema and rows from the source database.
type Catalog interface {
	ListTables(ctx context.Context) []TableName
	DescribeColumns(ctx context.Context, tables []TableName) []TableResult[ColumnList]
	ReadRows(ctx context.Context, schema SchemaMap) ([]TableResult[TableData], error)
}

// RunState captures pipeline progress.
type RunState string

const (
	StateStarted          RunState = "started"
	StateTablesListed     RunState = "tables_listed"
	StateColumnsDescribed RunState = "columns_described"
	StateHeadersWritten   RunState = "headers_written"
	StateDataRead         RunState = "data_read"
	StateDataWritten      RunState = "data_written"
	StateDone             RunState = "done"
	StateAborted          RunState = "aborted"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunState) IsTerminal() bool {
	return s == StateDone || s == StateAborted
}

// RunRequest describes a single export run.
type RunRequest struct {
	Format    Format `json:"format"`
	Directory string `json:"directory"`
}

// RunResult summarizes a finished run.
type RunResult struct {
	ID      string        `json:"id"`
	State   RunState      `json:"state"`
	Path    string        `json:"path,omitempty"`
	Tables  int           `json:"tables"`
	Rows    int64         `json:"rows"`
	Skipped []TableName   `json:"skipped,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// RunRecord is the tracked state of a run.
type RunRecord struct {
	ID          string      `json:"id"`
	Format      Format      `json:"format"`
	Directory   string      `json:"directory"`
	Path        string      `json:"path,omitempty"`
	State       RunState    `json:"state"`
	Tables      int         `json:"tables"`
	Rows        int64       `json:"rows"`
	Skipped     []TableName `json:"skipped,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   time.Time   `json:"started_at,omitempty"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
}

// RunFilter filters tracker lists.
type RunFilter struct {
	State RunState
	Since time.Time
	Until time.Time
	Limit int
}

// RunTracker records run progress.
type RunTracker interface {
	Start(ctx context.Context, record RunRecord) (string, error)
	SetState(ctx context.Context, id string, state RunState) error
	Fail(ctx context.Context, id string, err error, record RunRecord) error
	Complete(ctx context.Context, id string, record RunRecord) error
	Status(ctx context.Context, id string) (RunRecord, error)
	List(ctx context.Context, filter RunFilter) ([]RunRecord, error)
}

// Logger provides logging hooks.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
