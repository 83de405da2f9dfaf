package snapshotsql

import (
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-dbsnapshot/snapshot"
)

// Dialect describes how to read the catalog of one database engine.
type Dialect interface {
	Name() string
	// TablesQuery returns base table names, one per row, excluding views and
	// system tables.
	TablesQuery() string
	QuoteIdent(name string) string
	// SelectColumn returns the select expression that reads a column as the
	// text the database stores.
	SelectColumn(name string) string
}

// Registry maps database/sql driver names to dialects.
type Registry struct {
	mu       sync.RWMutex
	dialects map[string]Dialect
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{dialects: make(map[string]Dialect)}
}

// DefaultRegistry returns a registry with the bundled drivers registered.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	_ = reg.Register(DriverSQLite, SQLiteDialect{})
	_ = reg.Register(DriverLibSQL, SQLiteDialect{})
	_ = reg.Register(DriverPostgres, PostgresDialect{})
	_ = reg.Register(DriverPGX, PostgresDialect{})
	_ = reg.Register(DriverMySQL, MySQLDialect{})
	return reg
}

// Register adds a dialect for a driver name.
func (r *Registry) Register(driver string, dialect Dialect) error {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		return snapshot.NewError(snapshot.KindConfig, "driver name is required", nil)
	}
	if dialect == nil {
		return snapshot.NewError(snapshot.KindConfig, "dialect is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dialects[driver]; exists {
		return snapshot.NewError(snapshot.KindConfig, fmt.Sprintf("driver %q already registered", driver), nil)
	}
	r.dialects[driver] = dialect
	return nil
}

// Resolve returns the dialect for a driver name.
func (r *Registry) Resolve(driver string) (Dialect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dialect, ok := r.dialects[strings.ToLower(strings.TrimSpace(driver))]
	return dialect, ok
}
