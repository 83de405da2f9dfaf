package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-dbsnapshot/command"
	"github.com/goliatone/go-dbsnapshot/config"
)

const shutdownTimeout = 30 * time.Second

type serveCmd struct{}

func (serveCmd) Run(app *App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := command.NewScheduler(app.Logger)
	if _, err := scheduler.Register("snapshot", app.Command); err != nil {
		return err
	}
	if app.Config.Snapshot.Retention > 0 {
		if _, err := scheduler.Register("prune", app.Prune); err != nil {
			return err
		}
	}
	scheduler.Start()

	var server *fiber.App
	errCh := make(chan error, 1)
	if app.Config.Server.Enabled {
		server = fiber.New(fiber.Config{
			AppName:               "dbsnapshot",
			DisableStartupMessage: true,
		})
		server.Use(recover.New())
		server.Use(fiberlogger.New(fiberlogger.Config{
			Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		}))
		app.HTTP.RegisterRoutes(server)

		addr := app.Config.Server.Address()
		go func() {
			app.Logger.Infof("listening on http://%s", addr)
			if err := server.Listen(addr); err != nil {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		app.Logger.Infof("shutting down")
	case runErr = <-errCh:
		app.Logger.Errorf("server error: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if server != nil {
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			app.Logger.Errorf("server shutdown: %v", err)
		}
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		app.Logger.Errorf("scheduler shutdown: %v", err)
	}
	return runErr
}

type cli struct {
	Serve serveCmd `cmd:"" help:"Run scheduled snapshots and the HTTP API."`
}

func main() {
	cfg, err := config.Load(envFiles()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dbsnapshot: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log.Level)

	app, err := NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalf("failed to create app: %v", err)
	}
	defer func() {
		_ = app.Close()
	}()

	runOpts := app.Command.CLIOptions()
	pruneOpts := app.Prune.CLIOptions()
	var root cli
	parser := kong.Parse(&root,
		kong.Name("dbsnapshot"),
		kong.Description("Periodic full-database export to a dated spreadsheet workbook."),
		kong.UsageOnError(),
		kong.Bind(app),
		kong.DynamicCommand(strings.Join(runOpts.Path, " "), runOpts.Description, runOpts.Group, app.Command.CLIHandler()),
		kong.DynamicCommand(strings.Join(pruneOpts.Path, " "), pruneOpts.Description, pruneOpts.Group, app.Prune.CLIHandler()),
	)
	if err := parser.Run(); err != nil {
		_ = app.Close()
		parser.FatalIfErrorf(err)
	}
}

func envFiles() []string {
	if files := strings.TrimSpace(os.Getenv("DBSNAPSHOT_ENV_FILE")); files != "" {
		return strings.Split(files, ",")
	}
	return []string{".env"}
}
