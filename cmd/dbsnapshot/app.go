package main

import (
	"context"
	"database/sql"
	"strings"
	"time"

	gcmd "github.com/goliatone/go-command"
	snapshothttp "github.com/goliatone/go-dbsnapshot/adapters/http"
	trackerbun "github.com/goliatone/go-dbsnapshot/adapters/tracker/bun"
	"github.com/goliatone/go-dbsnapshot/command"
	"github.com/goliatone/go-dbsnapshot/config"
	"github.com/goliatone/go-dbsnapshot/query"
	"github.com/goliatone/go-dbsnapshot/snapshot"
	snapshotsql "github.com/goliatone/go-dbsnapshot/sources/sql"
	"github.com/labstack/gommon/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// App holds the wired components of the binary.
type App struct {
	Config    config.Config
	Logger    snapshot.Logger
	Runner    *snapshot.Runner
	Tracker   snapshot.RunTracker
	Handler   *command.RunSnapshotHandler
	Command   *command.SnapshotCommand
	Prune     *command.PruneSnapshotsHandler
	HTTP      *snapshothttp.Handler
	trackerDB *bun.DB
}

// NewApp wires the catalog, runner, tracker, command and HTTP handler from
// cfg. Nothing connects to the exported database until a run starts.
func NewApp(ctx context.Context, cfg config.Config, logger snapshot.Logger) (*App, error) {
	if logger == nil {
		logger = snapshot.NopLogger{}
	}

	provider, err := snapshotsql.NewProvider(snapshotsql.Config{
		Driver:   cfg.Database.Driver,
		URL:      cfg.Database.URL,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	}, nil)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: logger}
	if err := app.openTracker(ctx); err != nil {
		return nil, err
	}

	runner := snapshot.NewRunner(snapshotsql.NewCatalog(provider, logger))
	runner.Logger = logger
	runner.Tracker = app.Tracker
	runner.MaxDuration = cfg.Snapshot.MaxDuration
	app.Runner = runner

	format := snapshot.Format(strings.ToLower(strings.TrimSpace(cfg.Snapshot.Format)))
	app.Handler = command.NewRunSnapshotHandler(runner)
	app.Command = command.NewSnapshotCommand(app.Handler, format, cfg.Snapshot.Directory,
		command.WithSnapshotLogger(logger),
		command.WithSnapshotCronConfig(gcmd.HandlerConfig{Expression: cfg.Snapshot.Schedule}),
		command.WithSnapshotCLIConfig(gcmd.CLIConfig{
			Path:        []string{"run"},
			Description: "Export every table into a dated workbook once",
			Group:       "snapshots",
		}),
	)
	app.Prune = command.NewPruneSnapshotsHandler(snapshot.Retention{
		Keep:   cfg.Snapshot.Retention,
		Logger: logger,
		Now:    time.Now,
	}, cfg.Snapshot.Directory)
	app.HTTP = snapshothttp.NewHandler(snapshothttp.Config{
		Trigger:   app.Handler,
		Status:    query.NewRunStatusHandler(app.Tracker),
		History:   query.NewRunHistoryHandler(app.Tracker),
		Format:    format,
		Directory: cfg.Snapshot.Directory,
	})
	return app, nil
}

func (a *App) openTracker(ctx context.Context) error {
	if strings.TrimSpace(a.Config.Tracker.DSN) == "" {
		a.Tracker = snapshot.NewMemoryTracker()
		return nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, a.Config.Tracker.DSN)
	if err != nil {
		return snapshot.NewError(snapshot.KindConfig, "tracker database open failed", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := trackerbun.CreateSchema(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	a.trackerDB = db
	a.Tracker = trackerbun.NewTracker(db)
	return nil
}

// Close releases the tracker database.
func (a *App) Close() error {
	if a == nil || a.trackerDB == nil {
		return nil
	}
	return a.trackerDB.Close()
}

func newLogger(level string) *log.Logger {
	logger := log.New("dbsnapshot")
	logger.SetHeader("${time_rfc3339} ${level} ${prefix}")
	logger.SetLevel(parseLevel(level))
	return logger
}

func parseLevel(level string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none":
		return log.OFF
	default:
		return log.INFO
	}
}
