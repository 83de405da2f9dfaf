package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dbsnapshot/snapshot"
)

func TestPruneSnapshotsHandler_RemovesExpired(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2024-01-01.xlsx", "2024-03-05.xlsx"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	handler := NewPruneSnapshotsHandler(snapshot.Retention{
		Keep: 24 * time.Hour,
		Now:  func() time.Time { return time.Date(2024, 3, 5, 8, 0, 0, 0, time.Local) },
	}, dir)

	result := gcmd.NewResult[[]string]()
	ctx := gcmd.ContextWithResult(context.Background(), result)
	var removed []string
	if err := handler.Execute(ctx, PruneSnapshots{Result: &removed}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(removed) != 1 || filepath.Base(removed[0]) != "2024-01-01.xlsx" {
		t.Fatalf("unexpected removed list: %v", removed)
	}
	stored, ok := result.Load()
	if !ok || len(stored) != 1 {
		t.Fatalf("expected context result, got %v", stored)
	}
	if handler.CronOptions().Expression != DefaultCleanupSchedule {
		t.Fatalf("unexpected cron expression %q", handler.CronOptions().Expression)
	}
}

func TestPruneSnapshotsHandler_CLIDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2020-01-01.xls")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	handler := NewPruneSnapshotsHandler(snapshot.Retention{Keep: time.Hour}, "/does/not/matter")

	cli, ok := handler.CLIHandler().(*pruneCLI)
	if !ok {
		t.Fatalf("unexpected CLI handler type %T", handler.CLIHandler())
	}
	cli.Dir = dir
	if err := cli.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected workbook to be removed, got %v", err)
	}
}
