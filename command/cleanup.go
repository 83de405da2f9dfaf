package command

import (
	"context"
	"strings"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/goliatone/go-errors"
)

// DefaultCleanupSchedule prunes once a day shortly after midnight.
const DefaultCleanupSchedule = "0 30 0 * * *"

// PruneSnapshotsHandler removes expired workbooks.
type PruneSnapshotsHandler struct {
	Retention snapshot.Retention
	Directory string
	Config    gcmd.HandlerConfig
}

func NewPruneSnapshotsHandler(retention snapshot.Retention, directory string) *PruneSnapshotsHandler {
	return &PruneSnapshotsHandler{
		Retention: retention,
		Directory: directory,
		Config:    gcmd.HandlerConfig{Expression: DefaultCleanupSchedule},
	}
}

func (h *PruneSnapshotsHandler) Execute(ctx context.Context, msg PruneSnapshots) error {
	if h == nil {
		return errors.New("prune handler is required", errors.CategoryInternal).
			WithTextCode("PRUNE_HANDLER_REQUIRED")
	}
	dir := msg.Directory
	if strings.TrimSpace(dir) == "" {
		dir = h.Directory
	}
	removed, err := h.Retention.Prune(ctx, dir)
	if err != nil {
		return err
	}
	if msg.Result != nil {
		*msg.Result = removed
	}
	if res := gcmd.ResultFromContext[[]string](ctx); res != nil {
		res.Store(removed)
	}
	return nil
}

func (h *PruneSnapshotsHandler) CronHandler() func() error {
	return func() error {
		return h.Execute(context.Background(), PruneSnapshots{})
	}
}

func (h *PruneSnapshotsHandler) CronOptions() gcmd.HandlerConfig {
	if h == nil {
		return gcmd.HandlerConfig{}
	}
	return h.Config
}

// CLIHandler exposes pruning via CLI.
func (h *PruneSnapshotsHandler) CLIHandler() any {
	return &pruneCLI{handler: h}
}

// CLIOptions describes prune CLI metadata.
func (h *PruneSnapshotsHandler) CLIOptions() gcmd.CLIConfig {
	return gcmd.CLIConfig{
		Path:        []string{"prune"},
		Description: "Remove workbooks older than the retention window",
		Group:       "snapshots",
	}
}

type pruneCLI struct {
	handler *PruneSnapshotsHandler
	Dir     string `kong:"name='dir',help='Directory to prune'"`
}

func (c *pruneCLI) Run() error {
	if c == nil || c.handler == nil {
		return errors.New("prune handler is required", errors.CategoryInternal).
			WithTextCode("PRUNE_HANDLER_REQUIRED")
	}
	return c.handler.Execute(context.Background(), PruneSnapshots{Directory: c.Dir})
}
