package snapshotsql

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/jmoiron/sqlx"
)

// Catalog reads table names, column names and rows through a Connector.
// Every call opens its own connection and closes it before returning.
type Catalog struct {
	Connector Connector
	Logger    snapshot.Logger
}

var _ snapshot.Catalog = (*Catalog)(nil)

// NewCatalog creates a catalog over conn.
func NewCatalog(conn Connector, logger snapshot.Logger) *Catalog {
	if logger == nil {
		logger = snapshot.NopLogger{}
	}
	return &Catalog{Connector: conn, Logger: logger}
}

// ListTables returns the base table names in catalog order. It never fails:
// connection and query errors are logged and yield an empty list.
func (c *Catalog) ListTables(ctx context.Context) []snapshot.TableName {
	db, err := c.open(ctx)
	if err != nil {
		c.logger().Errorf("list tables: %v", err)
		return []snapshot.TableName{}
	}
	defer c.close(db)

	var tables []snapshot.TableName
	if err := db.SelectContext(ctx, &tables, c.Connector.Dialect().TablesQuery()); err != nil {
		c.logger().Errorf("list tables: %v", snapshot.NewError(snapshot.KindCatalog, "table list query failed", err))
		return []snapshot.TableName{}
	}
	if tables == nil {
		tables = []snapshot.TableName{}
	}
	c.logger().Debugf("listed %d tables", len(tables))
	return tables
}

// DescribeColumns returns one result per table, in input order. A table whose
// column query fails carries the error; if no connection can be opened every
// table fails.
func (c *Catalog) DescribeColumns(ctx context.Context, tables []snapshot.TableName) []snapshot.TableResult[snapshot.ColumnList] {
	results := make([]snapshot.TableResult[snapshot.ColumnList], 0, len(tables))
	if len(tables) == 0 {
		return results
	}

	db, err := c.open(ctx)
	if err != nil {
		for _, table := range tables {
			results = append(results, snapshot.TableResult[snapshot.ColumnList]{Table: table, Err: err})
		}
		return results
	}
	defer c.close(db)

	for _, table := range tables {
		columns, err := c.describe(ctx, db, table)
		results = append(results, snapshot.TableResult[snapshot.ColumnList]{Table: table, Value: columns, Err: err})
	}
	return results
}

func (c *Catalog) describe(ctx context.Context, db *sqlx.DB, table snapshot.TableName) (snapshot.ColumnList, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", c.Connector.Dialect().QuoteIdent(table))
	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return nil, snapshot.NewError(snapshot.KindCatalog, fmt.Sprintf("describe %q failed", table), err)
	}
	defer func() {
		_ = rows.Close()
	}()

	names, err := rows.Columns()
	if err != nil {
		return nil, snapshot.NewError(snapshot.KindCatalog, fmt.Sprintf("describe %q failed", table), err)
	}
	if len(names) == 0 {
		return nil, snapshot.NewError(snapshot.KindCatalog, fmt.Sprintf("table %q has no columns", table), nil)
	}
	return snapshot.ColumnList(names), nil
}

// ReadRows reads every row of every table in schema, selecting exactly the
// described columns in order. Values keep their stored text and NULL becomes
// "". A failed table query becomes a
// per-table error; a connection failure or a done context fails the call.
func (c *Catalog) ReadRows(ctx context.Context, schema snapshot.SchemaMap) ([]snapshot.TableResult[snapshot.TableData], error) {
	results := make([]snapshot.TableResult[snapshot.TableData], 0, len(schema))
	if len(schema) == 0 {
		return results, nil
	}

	db, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer c.close(db)

	for _, table := range schema.Tables() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := c.readTable(ctx, db, table, schema[table])
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		results = append(results, snapshot.TableResult[snapshot.TableData]{Table: table, Value: data, Err: err})
	}
	return results, nil
}

func (c *Catalog) readTable(ctx context.Context, db *sqlx.DB, table snapshot.TableName, columns snapshot.ColumnList) (snapshot.TableData, error) {
	dialect := c.Connector.Dialect()
	selected := make([]string, len(columns))
	for i, name := range columns {
		selected[i] = dialect.SelectColumn(name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selected, ", "), dialect.QuoteIdent(table))

	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return nil, snapshot.NewError(snapshot.KindQuery, fmt.Sprintf("read %q failed", table), err)
	}
	defer func() {
		_ = rows.Close()
	}()

	data := snapshot.TableData{}
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, snapshot.NewError(snapshot.KindQuery, fmt.Sprintf("scan %q failed", table), err)
		}
		record := make(snapshot.RowRecord, len(columns))
		for i, value := range values {
			record[i] = cellText(value)
		}
		data = append(data, record)
	}
	if err := rows.Err(); err != nil {
		return nil, snapshot.NewError(snapshot.KindQuery, fmt.Sprintf("read %q failed", table), err)
	}

	c.logger().Debugf("read %d rows from %q", len(data), table)
	return data, nil
}

// cellText renders a scanned driver value. Drivers that still hand back time
// values get a date for midnight and a space separated timestamp otherwise.
func cellText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return timeText(v)
	default:
		return fmt.Sprint(v)
	}
}

func timeText(t time.Time) string {
	_, offset := t.Zone()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 && offset == 0 {
		return t.Format(time.DateOnly)
	}
	layout := "2006-01-02 15:04:05.999999999"
	if offset != 0 {
		layout += "-07:00"
	}
	return t.Format(layout)
}

func (c *Catalog) open(ctx context.Context) (*sqlx.DB, error) {
	if c == nil || c.Connector == nil {
		return nil, snapshot.NewError(snapshot.KindConfig, "catalog connector is not configured", nil)
	}
	return c.Connector.Open(ctx)
}

func (c *Catalog) close(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		c.logger().Errorf("close database connection: %v", err)
	}
}

func (c *Catalog) logger() snapshot.Logger {
	if c == nil || c.Logger == nil {
		return snapshot.NopLogger{}
	}
	return c.Logger
}
