package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Retention removes dated workbooks older than Keep from a directory. Only
// files named like the runner names them are considered.
type Retention struct {
	Keep   time.Duration
	Logger Logger
	Now    func() time.Time
}

// Prune deletes workbooks in dir whose date is before now minus Keep and
// returns the removed paths in date order. A zero Keep keeps everything.
func (r Retention) Prune(ctx context.Context, dir string) ([]string, error) {
	if r.Keep < 0 {
		return nil, NewError(KindConfig, "retention must not be negative", nil)
	}
	if r.Keep == 0 {
		return nil, nil
	}
	if dir == "" {
		dir = "."
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewError(KindIO, "workbook directory read failed", err)
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	cutoff := startOfDay(now.Add(-r.Keep))
	logger := r.Logger
	if logger == nil {
		logger = NopLogger{}
	}

	removed := []string{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		day, ok := workbookDate(entry.Name(), now.Location())
		if !ok || !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, NewError(KindIO, "workbook remove failed", err)
		}
		logger.Infof("removed expired workbook %s", path)
		removed = append(removed, path)
	}
	sort.Strings(removed)
	return removed, nil
}

func workbookDate(name string, loc *time.Location) (time.Time, bool) {
	ext := filepath.Ext(name)
	if _, err := ParseFormat(strings.TrimPrefix(ext, ".")); err != nil {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(workbookDateLayout, strings.TrimSuffix(name, ext), loc)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
