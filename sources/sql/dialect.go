package snapshotsql

import "strings"

const (
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverMySQL    = "mysql"
)

var driverAliases = map[string]string{
	"sqlite3":    DriverSQLite,
	"postgresql": DriverPostgres,
	"turso":      DriverLibSQL,
	"mariadb":    DriverMySQL,
}

// NormalizeDriver resolves driver aliases.
func NormalizeDriver(driver string) string {
	normalized := strings.ToLower(strings.TrimSpace(driver))
	if alias, ok := driverAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// SQLiteDialect reads sqlite_master. Also used for libsql.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) TablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`
}

func (SQLiteDialect) QuoteIdent(name string) string {
	return quoteIdentifier(name)
}

// SelectColumn casts to TEXT: the sqlite driver parses DATE, DATETIME and
// TIMESTAMP columns into time values, the cast keeps the stored text.
func (SQLiteDialect) SelectColumn(name string) string {
	return "CAST(" + quoteIdentifier(name) + " AS TEXT)"
}

// PostgresDialect reads information_schema for the current schema.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) TablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE' AND table_schema = current_schema() ORDER BY table_name`
}

func (PostgresDialect) QuoteIdent(name string) string {
	return quoteIdentifier(name)
}

// SelectColumn reads the server's text output for every type.
func (PostgresDialect) SelectColumn(name string) string {
	return quoteIdentifier(name) + "::text"
}

// MySQLDialect reads information_schema for the connected database. Plain
// queries use the text protocol, so values already arrive as stored text.
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) TablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE' AND table_schema = DATABASE() ORDER BY table_name`
}

func (MySQLDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d MySQLDialect) SelectColumn(name string) string {
	return d.QuoteIdent(name)
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
