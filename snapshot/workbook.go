package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	excelMaxRows    = 1048576
	headerRow       = 1
	workbookTempPat = ".dbsnapshot-*"
	// placeholder for the sheet excelize creates by default, so any table
	// name (including "Sheet1") goes through NewSheet
	placeholderSheet = "__dbsnapshot__"
)

// Workbook writes a snapshot into a date-stamped workbook in two phases:
// WriteHeaders creates the file with one sheet per table, WriteData reopens
// it and fills the rows below each header.
type Workbook struct {
	Logger Logger
	Now    func() time.Time
}

// NewWorkbook creates a workbook writer using the wall clock.
func NewWorkbook(logger Logger) *Workbook {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Workbook{Logger: logger, Now: time.Now}
}

// WriteReport lists what one write phase put into the workbook.
type WriteReport struct {
	Path    string
	Written []TableName
	Skipped []TableName
	Rows    int64
}

// Path returns the workbook path the writer targets for dir and format.
func (w *Workbook) Path(format Format, dir string) string {
	return WorkbookPath(dir, format, w.now())
}

// WriteHeaders creates the workbook with a styled header row per table and
// persists it, replacing any file written earlier the same day. Tables that
// cannot get a sheet are reported as skipped.
func (w *Workbook) WriteHeaders(schema SchemaMap, format, dir string) (WriteReport, error) {
	parsed, err := ParseFormat(format)
	if err != nil {
		return WriteReport{}, err
	}

	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	styleID, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return WriteReport{}, NewError(KindInternal, "header style create failed", err)
	}

	file.SetSheetName(file.GetSheetName(0), placeholderSheet)
	used := map[string]TableName{strings.ToLower(placeholderSheet): placeholderSheet}
	report := WriteReport{}

	for _, table := range schema.Tables() {
		columns := schema[table]
		if len(columns) == 0 {
			w.logger().Infof("table %q has no columns, skipping sheet", table)
			report.Skipped = append(report.Skipped, table)
			continue
		}
		key := strings.ToLower(table)
		if other, ok := used[key]; ok {
			w.logger().Errorf("sheet name for table %q collides with table %q, skipping", table, other)
			report.Skipped = append(report.Skipped, table)
			continue
		}
		if _, err := file.NewSheet(table); err != nil {
			w.logger().Errorf("table %q cannot be used as a sheet name, skipping: %v", table, err)
			report.Skipped = append(report.Skipped, table)
			continue
		}
		used[key] = table

		if err := writeHeaderRow(file, table, columns, styleID); err != nil {
			return report, err
		}
		report.Written = append(report.Written, table)
	}

	if len(report.Written) == 0 {
		return report, NewError(KindValidation, "no sheets to write", nil)
	}
	file.DeleteSheet(placeholderSheet)
	file.SetActiveSheet(0)

	report.Path = WorkbookPath(dir, parsed, w.now())
	if err := persistWorkbook(file, report.Path); err != nil {
		return report, err
	}
	w.logger().Debugf("wrote headers for %d sheets to %s", len(report.Written), report.Path)
	return report, nil
}

// WriteData reopens the workbook written by WriteHeaders and writes each
// table's rows starting right below its header. Tables without a sheet, with
// more rows than a sheet holds, or with a value longer than a cell holds are
// skipped and keep their header row only.
func (w *Workbook) WriteData(dataset ExportDataset, format, dir string) (WriteReport, error) {
	parsed, err := ParseFormat(format)
	if err != nil {
		return WriteReport{}, err
	}

	report := WriteReport{Path: WorkbookPath(dir, parsed, w.now())}
	file, err := openWorkbook(report.Path)
	if err != nil {
		return report, err
	}
	defer func() {
		_ = file.Close()
	}()

	sheets := make(map[string]struct{})
	for _, name := range file.GetSheetList() {
		sheets[name] = struct{}{}
	}

	for _, table := range dataset.Tables() {
		if _, ok := sheets[table]; !ok {
			w.logger().Errorf("sheet for table %q not found in %s, skipping rows", table, report.Path)
			report.Skipped = append(report.Skipped, table)
			continue
		}
		data := dataset[table]
		if len(data)+headerRow > excelMaxRows {
			w.logger().Errorf("table %q has %d rows, over the sheet row limit, skipping rows", table, len(data))
			report.Skipped = append(report.Skipped, table)
			continue
		}
		if row, col, length, ok := oversizedValue(data); ok {
			column, _ := file.GetCellValue(table, cellName(col, headerRow))
			w.logger().Errorf("table %q column %q row %d holds %d characters, over the cell limit of %d, skipping rows",
				table, column, row, length, excelize.TotalCellChars)
			report.Skipped = append(report.Skipped, table)
			continue
		}
		if err := writeDataRows(file, table, data); err != nil {
			return report, err
		}
		report.Written = append(report.Written, table)
		report.Rows += int64(len(data))
	}

	if err := persistWorkbook(file, report.Path); err != nil {
		return report, err
	}
	w.logger().Debugf("wrote %d rows to %s", report.Rows, report.Path)
	return report, nil
}

// oversizedValue finds the first value excelize would cut to fit a cell.
// Row and column are 1-based.
func oversizedValue(data TableData) (row, col, length int, ok bool) {
	for i, record := range data {
		for j, value := range record {
			if len(value) <= excelize.TotalCellChars {
				continue
			}
			if n := utf8.RuneCountInString(value); n > excelize.TotalCellChars {
				return i + 1, j + 1, n, true
			}
		}
	}
	return 0, 0, 0, false
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return ""
	}
	return name
}

func writeHeaderRow(file *excelize.File, sheet string, columns ColumnList, styleID int) error {
	cells := make([]any, len(columns))
	for i, name := range columns {
		cells[i] = name
	}
	if err := file.SetSheetRow(sheet, "A1", &cells); err != nil {
		return NewError(KindInternal, fmt.Sprintf("header row write failed for %q", sheet), err)
	}

	last, err := excelize.CoordinatesToCellName(len(columns), headerRow)
	if err != nil {
		return NewError(KindInternal, fmt.Sprintf("header range failed for %q", sheet), err)
	}
	if err := file.SetCellStyle(sheet, "A1", last, styleID); err != nil {
		return NewError(KindInternal, fmt.Sprintf("header style failed for %q", sheet), err)
	}
	return nil
}

func writeDataRows(file *excelize.File, sheet string, data TableData) error {
	for i, record := range data {
		cell, err := excelize.CoordinatesToCellName(1, headerRow+i+1)
		if err != nil {
			return NewError(KindInternal, fmt.Sprintf("row address failed for %q", sheet), err)
		}
		values := make([]any, len(record))
		for j, value := range record {
			values[j] = value
		}
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return NewError(KindInternal, fmt.Sprintf("row write failed for %q", sheet), err)
		}
	}
	return nil
}

func openWorkbook(path string) (*excelize.File, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, NewError(KindIO, "workbook open failed", err)
	}
	defer func() {
		_ = in.Close()
	}()

	file, err := excelize.OpenReader(in)
	if err != nil {
		return nil, NewError(KindIO, "workbook read failed", err)
	}
	return file, nil
}

// persistWorkbook writes to a temp file next to path and renames it into
// place, so a failed write leaves the previous file untouched.
func persistWorkbook(file *excelize.File, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), workbookTempPat)
	if err != nil {
		return NewError(KindIO, "workbook temp file create failed", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := file.WriteTo(tmp); err != nil {
		return NewError(KindIO, "workbook write failed", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return NewError(KindIO, "workbook chmod failed", err)
	}
	if err := tmp.Sync(); err != nil {
		return NewError(KindIO, "workbook sync failed", err)
	}
	if err := tmp.Close(); err != nil {
		return NewError(KindIO, "workbook close failed", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return NewError(KindIO, "workbook rename failed", err)
	}
	return nil
}

func (w *Workbook) now() time.Time {
	if w == nil || w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

func (w *Workbook) logger() Logger {
	if w == nil || w.Logger == nil {
		return NopLogger{}
	}
	return w.Logger
}
