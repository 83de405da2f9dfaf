package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

type stubCatalog struct {
	tables       []TableName
	columns      map[TableName]ColumnList
	describeErrs map[TableName]error
	rows         map[TableName]TableData
	readErrs     map[TableName]error
	readErr      error
	readCalls    int
	readTables   []TableName
}

func (c *stubCatalog) ListTables(ctx context.Context) []TableName {
	_ = ctx
	return c.tables
}

func (c *stubCatalog) DescribeColumns(ctx context.Context, tables []TableName) []TableResult[ColumnList] {
	_ = ctx
	results := make([]TableResult[ColumnList], 0, len(tables))
	for _, table := range tables {
		if err := c.describeErrs[table]; err != nil {
			results = append(results, TableResult[ColumnList]{Table: table, Err: err})
			continue
		}
		results = append(results, TableResult[ColumnList]{Table: table, Value: c.columns[table]})
	}
	return results
}

func (c *stubCatalog) ReadRows(ctx context.Context, schema SchemaMap) ([]TableResult[TableData], error) {
	_ = ctx
	c.readCalls++
	c.readTables = append(c.readTables, schema.Tables()...)
	if c.readErr != nil {
		return nil, c.readErr
	}
	results := make([]TableResult[TableData], 0, len(schema))
	for _, table := range schema.Tables() {
		if err := c.readErrs[table]; err != nil {
			results = append(results, TableResult[TableData]{Table: table, Err: err})
			continue
		}
		results = append(results, TableResult[TableData]{Table: table, Value: c.rows[table]})
	}
	return results, nil
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Debugf(format string, args ...any) {}

func (l *captureLogger) Infof(format string, args ...any) {
	l.record(fmt.Sprintf(format, args...))
}

func (l *captureLogger) Errorf(format string, args ...any) {
	l.record(fmt.Sprintf(format, args...))
}

func (l *captureLogger) record(line string) {
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
}

func (l *captureLogger) contains(fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func usersAndOrders() *stubCatalog {
	return &stubCatalog{
		tables: []TableName{"orders", "users"},
		columns: map[TableName]ColumnList{
			"users":  {"id", "name"},
			"orders": {"id"},
		},
		rows: map[TableName]TableData{
			"users": {{"1", "a"}, {"2", ""}},
		},
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 5, 10, 30, 0, 0, time.Local)
}

func newTestRunner(catalog Catalog) (*Runner, *MemoryTracker, *captureLogger) {
	tracker := NewMemoryTracker()
	logger := &captureLogger{}
	runner := NewRunner(catalog)
	runner.Tracker = tracker
	runner.Logger = logger
	runner.Now = fixedNow
	runner.IDGenerator = func() string { return "run-1" }
	return runner, tracker, logger
}

func TestRunner_ExportsUsersAndOrders(t *testing.T) {
	dir := t.TempDir()
	runner, tracker, _ := newTestRunner(usersAndOrders())

	result, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("expected done, got %s", result.State)
	}
	wantPath := filepath.Join(dir, "2024-03-05.xlsx")
	if result.Path != wantPath {
		t.Fatalf("expected path %s, got %s", wantPath, result.Path)
	}
	if result.Tables != 2 || result.Rows != 2 {
		t.Fatalf("expected 2 tables and 2 rows, got %d/%d", result.Tables, result.Rows)
	}

	file, err := excelize.OpenFile(wantPath)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer file.Close()

	if sheets := file.GetSheetList(); len(sheets) != 2 || sheets[0] != "orders" || sheets[1] != "users" {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	users, err := file.GetRows("users")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(users))
	}
	if strings.Join(users[0], ",") != "id,name" {
		t.Fatalf("unexpected header %v", users[0])
	}
	assertCell(t, file, "users", "A2", "1")
	assertCell(t, file, "users", "B2", "a")
	assertCell(t, file, "users", "A3", "2")
	assertCell(t, file, "users", "B3", "")

	orders, err := file.GetRows("orders")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(orders) != 1 || len(orders[0]) != 1 || orders[0][0] != "id" {
		t.Fatalf("expected header only for orders, got %v", orders)
	}

	record, err := tracker.Status(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if record.State != StateDone || record.Rows != 2 || record.Path != wantPath {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestRunner_NoTablesAbortsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	runner, tracker, logger := newTestRunner(&stubCatalog{})

	result, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.State != StateAborted {
		t.Fatalf("expected aborted, got %s", result.State)
	}
	assertEmptyDir(t, dir)
	if !logger.contains("no tables found") {
		t.Fatalf("expected no tables notice, got %v", logger.lines)
	}
	record, err := tracker.Status(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if record.State != StateAborted {
		t.Fatalf("expected aborted record, got %s", record.State)
	}
}

func TestRunner_UnknownFormatCreatesNoFile(t *testing.T) {
	dir := t.TempDir()
	catalog := usersAndOrders()
	runner, _, _ := newTestRunner(catalog)

	result, err := runner.Run(context.Background(), RunRequest{Format: "csv", Directory: dir})
	if err == nil {
		t.Fatalf("expected config error")
	}
	if KindFromError(err) != KindConfig {
		t.Fatalf("expected config kind, got %s", KindFromError(err))
	}
	if result.State != StateAborted {
		t.Fatalf("expected aborted, got %s", result.State)
	}
	if catalog.readCalls != 0 {
		t.Fatalf("expected no reads")
	}
	assertEmptyDir(t, dir)
}

func TestRunner_DropsTablesThatFailToDescribe(t *testing.T) {
	dir := t.TempDir()
	catalog := usersAndOrders()
	catalog.describeErrs = map[TableName]error{"orders": errors.New("permission denied")}
	runner, _, logger := newTestRunner(catalog)

	result, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "orders" {
		t.Fatalf("expected orders skipped, got %v", result.Skipped)
	}
	if !logger.contains("describe failed") {
		t.Fatalf("expected describe failure logged")
	}

	file, err := excelize.OpenFile(result.Path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer file.Close()
	if sheets := file.GetSheetList(); len(sheets) != 1 || sheets[0] != "users" {
		t.Fatalf("expected only users sheet, got %v", sheets)
	}
}

func TestRunner_TablesWithoutSheetAreSkipped(t *testing.T) {
	dir := t.TempDir()
	catalog := &stubCatalog{
		tables: []TableName{"a/b", "users"},
		columns: map[TableName]ColumnList{
			"a/b":   {"id"},
			"users": {"id"},
		},
		rows: map[TableName]TableData{
			"a/b":   {{"1"}, {"2"}, {"3"}},
			"users": {{"1"}},
		},
	}
	runner, tracker, _ := newTestRunner(catalog)

	result, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Tables != 1 || result.Rows != 1 {
		t.Fatalf("expected 1 table and 1 row, got %d/%d", result.Tables, result.Rows)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "a/b" {
		t.Fatalf("expected a/b skipped, got %v", result.Skipped)
	}
	if strings.Join(catalog.readTables, ",") != "users" {
		t.Fatalf("expected only users to be read, got %v", catalog.readTables)
	}

	record, err := tracker.Status(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if record.Tables != 1 || record.Rows != 1 || len(record.Skipped) != 1 {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestRunner_RowsSkippedByDataPhaseAreReported(t *testing.T) {
	dir := t.TempDir()
	catalog := usersAndOrders()
	catalog.rows["users"] = TableData{{"1", strings.Repeat("x", excelize.TotalCellChars+1)}}
	catalog.rows["orders"] = TableData{{"10"}}
	runner, _, _ := newTestRunner(catalog)

	result, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Tables != 2 || result.Rows != 1 {
		t.Fatalf("expected 2 tables and 1 row, got %d/%d", result.Tables, result.Rows)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "users" {
		t.Fatalf("expected users skipped, got %v", result.Skipped)
	}
	if rows := readSheet(t, result.Path, "users"); len(rows) != 1 {
		t.Fatalf("expected header only for users, got %d rows", len(rows))
	}
}

func TestRunner_RunLeavesDefaultsUnset(t *testing.T) {
	runner := &Runner{Catalog: usersAndOrders()}

	if _, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: t.TempDir()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if runner.Now != nil || runner.Logger != nil || runner.IDGenerator != nil {
		t.Fatalf("expected runner fields to stay unset")
	}
}

func TestRunner_AllDescribeFailuresAbort(t *testing.T) {
	dir := t.TempDir()
	catalog := usersAndOrders()
	catalog.describeErrs = map[TableName]error{
		"orders": errors.New("boom"),
		"users":  errors.New("boom"),
	}
	runner, _, _ := newTestRunner(catalog)

	_, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if KindFromError(err) != KindCatalog {
		t.Fatalf("expected catalog error, got %v", err)
	}
	assertEmptyDir(t, dir)
}

func TestRunner_QueryFailureKeepsHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	catalog := usersAndOrders()
	catalog.readErrs = map[TableName]error{"users": errors.New("relation locked")}
	runner, _, _ := newTestRunner(catalog)

	result, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Rows != 0 {
		t.Fatalf("expected no rows, got %d", result.Rows)
	}

	file, err := excelize.OpenFile(result.Path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer file.Close()
	rows, err := file.GetRows("users")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %v", rows)
	}
}

func TestRunner_ReadAbortSkipsDataPhase(t *testing.T) {
	dir := t.TempDir()
	catalog := usersAndOrders()
	catalog.readErr = NewError(KindQuery, "connection lost", nil)
	runner, tracker, _ := newTestRunner(catalog)

	result, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if KindFromError(err) != KindQuery {
		t.Fatalf("expected query error, got %v", err)
	}
	if result.State != StateAborted {
		t.Fatalf("expected aborted, got %s", result.State)
	}

	file, err := excelize.OpenFile(filepath.Join(dir, "2024-03-05.xlsx"))
	if err != nil {
		t.Fatalf("expected header file to remain: %v", err)
	}
	defer file.Close()
	rows, _ := file.GetRows("users")
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %v", rows)
	}

	record, _ := tracker.Status(context.Background(), "run-1")
	if record.State != StateAborted || record.Error == "" {
		t.Fatalf("expected failed record, got %+v", record)
	}
}

func TestRunner_SameDayRerunKeepsShape(t *testing.T) {
	dir := t.TempDir()
	runner, _, _ := newTestRunner(usersAndOrders())

	first, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstRows := readSheet(t, first.Path, "users")

	second, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir + "/"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Path != first.Path {
		t.Fatalf("expected same path, got %s and %s", first.Path, second.Path)
	}
	secondRows := readSheet(t, second.Path, "users")

	if strings.Join(firstRows[0], ",") != strings.Join(secondRows[0], ",") {
		t.Fatalf("headers differ: %v vs %v", firstRows[0], secondRows[0])
	}
	// the header phase recreates the file, so rows are rewritten, not appended
	if len(firstRows) != len(secondRows) {
		t.Fatalf("expected %d rows after rerun, got %d", len(firstRows), len(secondRows))
	}
}

func TestRunner_XLSFormatUsesXLSExtension(t *testing.T) {
	dir := t.TempDir()
	runner, _, _ := newTestRunner(usersAndOrders())

	result, err := runner.Run(context.Background(), RunRequest{Format: "XLS", Directory: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if filepath.Base(result.Path) != "2024-03-05.xls" {
		t.Fatalf("unexpected path %s", result.Path)
	}
	rows := readSheet(t, result.Path, "users")
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
}

func TestRunner_MissingDirectoryFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	runner, _, _ := newTestRunner(usersAndOrders())

	_, err := runner.Run(context.Background(), RunRequest{Format: FormatXLSX, Directory: dir})
	if KindFromError(err) != KindIO {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestApplyMaxDuration(t *testing.T) {
	ctx, cancel := applyMaxDuration(context.Background(), fixedNow, 0)
	if cancel != nil {
		t.Fatalf("expected no cancel for zero limit")
	}
	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("expected no deadline")
	}

	ctx, cancel = applyMaxDuration(context.Background(), time.Now, time.Minute)
	if cancel == nil {
		t.Fatalf("expected cancel func")
	}
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected deadline")
	}
}

func assertCell(t *testing.T, file *excelize.File, sheet, cell, want string) {
	t.Helper()
	got, err := file.GetCellValue(sheet, cell)
	if err != nil {
		t.Fatalf("get %s!%s: %v", sheet, cell, err)
	}
	if got != want {
		t.Fatalf("expected %s!%s = %q, got %q", sheet, cell, want, got)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files, found %d", len(entries))
	}
}

func readSheet(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	in, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer in.Close()
	file, err := excelize.OpenReader(in)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer file.Close()
	rows, err := file.GetRows(sheet)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	return rows
}
