package command

import (
	"github.com/goliatone/go-dbsnapshot/snapshot"
	"github.com/goliatone/go-errors"
)

// RunSnapshot requests one export of the whole database.
type RunSnapshot struct {
	Format    snapshot.Format
	Directory string
	Result    *snapshot.RunResult
}

func (RunSnapshot) Type() string { return "snapshot:run" }

func (msg RunSnapshot) Validate() error {
	if msg.Format == "" {
		return errors.New("format is required", errors.CategoryValidation).
			WithTextCode("FORMAT_REQUIRED")
	}
	_, err := snapshot.ParseFormat(string(msg.Format))
	return err
}

// PruneSnapshots removes workbooks older than the retention window.
type PruneSnapshots struct {
	Directory string
	Result    *[]string
}

func (PruneSnapshots) Type() string { return "snapshot:prune" }

func (msg PruneSnapshots) Validate() error {
	return nil
}
