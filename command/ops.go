package command

import (
	"context"
	"strings"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/goliatone/go-errors"
)

// DefaultSchedule runs a snapshot at second zero of every minute.
const DefaultSchedule = "0 * * * * *"

// SnapshotCommand wires CLI/Cron execution for snapshot runs.
type SnapshotCommand struct {
	handler    *RunSnapshotHandler
	format     snapshot.Format
	directory  string
	logger     snapshot.Logger
	cliConfig  gcmd.CLIConfig
	cronConfig gcmd.HandlerConfig
}

// SnapshotOption customizes snapshot commands.
type SnapshotOption func(*SnapshotCommand)

// WithSnapshotCLIConfig overrides CLI configuration.
func WithSnapshotCLIConfig(cfg gcmd.CLIConfig) SnapshotOption {
	return func(cmd *SnapshotCommand) {
		cmd.cliConfig = cfg
	}
}

// WithSnapshotCronConfig overrides cron configuration.
func WithSnapshotCronConfig(cfg gcmd.HandlerConfig) SnapshotOption {
	return func(cmd *SnapshotCommand) {
		cmd.cronConfig = cfg
	}
}

// WithSnapshotLogger sets the logger used for skipped cron ticks.
func WithSnapshotLogger(logger snapshot.Logger) SnapshotOption {
	return func(cmd *SnapshotCommand) {
		cmd.logger = logger
	}
}

// NewSnapshotCommand creates a snapshot CLI/Cron command that writes format
// workbooks into directory.
func NewSnapshotCommand(handler *RunSnapshotHandler, format snapshot.Format, directory string, opts ...SnapshotOption) *SnapshotCommand {
	cmd := &SnapshotCommand{
		handler:   handler,
		format:    format,
		directory: directory,
		logger:    snapshot.NopLogger{},
		cliConfig: gcmd.CLIConfig{
			Path:        []string{"snapshot-run"},
			Description: "Export every table into a dated workbook",
			Group:       "snapshots",
		},
		cronConfig: gcmd.HandlerConfig{Expression: DefaultSchedule},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cmd)
		}
	}
	return cmd
}

// Handler returns the handler shared by every trigger of this command.
func (c *SnapshotCommand) Handler() *RunSnapshotHandler {
	if c == nil {
		return nil
	}
	return c.handler
}

// CronHandler executes a scheduled snapshot. A tick that finds a run in
// progress is logged and skipped.
func (c *SnapshotCommand) CronHandler() func() error {
	return func() error {
		_, err := c.run(context.Background(), c.format, c.directory)
		if err != nil && snapshot.KindFromError(err) == snapshot.KindConflict {
			c.logger.Infof("scheduled snapshot skipped: %v", err)
			return nil
		}
		return err
	}
}

// CronOptions returns cron configuration.
func (c *SnapshotCommand) CronOptions() gcmd.HandlerConfig {
	if c == nil {
		return gcmd.HandlerConfig{}
	}
	return c.cronConfig
}

// CLIHandler exposes the CLI handler.
func (c *SnapshotCommand) CLIHandler() any {
	return &snapshotCLI{cmd: c}
}

// CLIOptions returns CLI configuration.
func (c *SnapshotCommand) CLIOptions() gcmd.CLIConfig {
	if c == nil {
		return gcmd.CLIConfig{}
	}
	return c.cliConfig
}

func (c *SnapshotCommand) run(ctx context.Context, format snapshot.Format, directory string) (snapshot.RunResult, error) {
	if c == nil || c.handler == nil {
		return snapshot.RunResult{}, errors.New("snapshot command is nil", errors.CategoryInternal).
			WithTextCode("SNAPSHOT_CMD_NIL")
	}
	if strings.TrimSpace(string(format)) == "" {
		format = c.format
	}
	if strings.TrimSpace(directory) == "" {
		directory = c.directory
	}

	var result snapshot.RunResult
	err := c.handler.Execute(ctx, RunSnapshot{Format: format, Directory: directory, Result: &result})
	return result, err
}

type snapshotCLI struct {
	cmd    *SnapshotCommand
	Format string `kong:"name='format',help='Workbook format: xlsx or xls'"`
	Dir    string `kong:"name='dir',help='Directory the workbook is written to'"`
}

func (c *snapshotCLI) Run() error {
	if c == nil || c.cmd == nil {
		return errors.New("snapshot command is required", errors.CategoryInternal).
			WithTextCode("SNAPSHOT_CMD_NIL")
	}
	_, err := c.cmd.run(context.Background(), snapshot.Format(c.Format), c.Dir)
	return err
}
