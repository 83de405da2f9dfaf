package snapshotsql

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/goliatone/go-dbsnapshot/snapshot"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config holds the connection settings for the exported database.
type Config struct {
	Driver   string
	URL      string
	Username string
	Password string
}

// Connector opens a fresh connection for one phase of a run. Callers close it.
type Connector interface {
	Open(ctx context.Context) (*sqlx.DB, error)
	Dialect() Dialect
}

// Provider opens sqlx connections from Config.
type Provider struct {
	driver  string
	dsn     string
	dialect Dialect
}

// NewProvider validates cfg and resolves its dialect from reg. A nil registry
// uses DefaultRegistry.
func NewProvider(cfg Config, reg *Registry) (*Provider, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	driver := NormalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, snapshot.NewError(snapshot.KindConfig, "database driver is required", nil)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, snapshot.NewError(snapshot.KindConfig, "database url is required", nil)
	}
	dialect, ok := reg.Resolve(driver)
	if !ok {
		return nil, snapshot.NewError(snapshot.KindConfig, fmt.Sprintf("database driver %q not supported", cfg.Driver), nil)
	}
	dsn, err := buildDSN(driver, strings.TrimSpace(cfg.URL), cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}
	return &Provider{driver: driver, dsn: dsn, dialect: dialect}, nil
}

// Driver returns the normalized driver name.
func (p *Provider) Driver() string {
	return p.driver
}

// Dialect returns the catalog dialect for the driver.
func (p *Provider) Dialect() Dialect {
	return p.dialect
}

// Open connects and pings the database. The pool is capped at one
// connection, a phase never queries concurrently.
func (p *Provider) Open(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.Open(p.driver, p.dsn)
	if err != nil {
		return nil, snapshot.NewError(snapshot.KindCatalog, "database open failed", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, snapshot.NewError(snapshot.KindCatalog, "database ping failed", err)
	}
	return db, nil
}

func buildDSN(driver, raw, username, password string) (string, error) {
	if username == "" && password == "" {
		return raw, nil
	}

	switch driver {
	case DriverPostgres, DriverPGX:
		if strings.Contains(raw, "://") {
			return withURLCredentials(raw, username, password)
		}
		// key=value form
		var b strings.Builder
		b.WriteString(raw)
		if username != "" {
			fmt.Fprintf(&b, " user=%s", quoteDSNValue(username))
		}
		if password != "" {
			fmt.Fprintf(&b, " password=%s", quoteDSNValue(password))
		}
		return b.String(), nil
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(raw)
		if err != nil {
			return "", snapshot.NewError(snapshot.KindConfig, "database url is invalid", err)
		}
		if username != "" {
			cfg.User = username
		}
		if password != "" {
			cfg.Passwd = password
		}
		return cfg.FormatDSN(), nil
	case DriverLibSQL:
		if password == "" {
			return raw, nil
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", snapshot.NewError(snapshot.KindConfig, "database url is invalid", err)
		}
		query := parsed.Query()
		query.Set("authToken", password)
		parsed.RawQuery = query.Encode()
		return parsed.String(), nil
	default:
		// sqlite has no credentials
		return raw, nil
	}
}

func withURLCredentials(raw, username, password string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", snapshot.NewError(snapshot.KindConfig, "database url is invalid", err)
	}
	if username == "" && parsed.User != nil {
		username = parsed.User.Username()
	}
	if password != "" {
		parsed.User = url.UserPassword(username, password)
	} else {
		parsed.User = url.User(username)
	}
	return parsed.String(), nil
}

func quoteDSNValue(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}
