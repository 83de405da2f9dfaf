package snapshot

import (
	"os"
	"strings"
	"time"
)

const workbookDateLayout = "2006-01-02"

// WorkbookPath returns <dir>/<YYYY-MM-DD>.<ext> for the given day. A trailing
// separator on dir is not doubled.
func WorkbookPath(dir string, format Format, now time.Time) string {
	name := now.Format(workbookDateLayout) + "." + format.Extension()
	if dir == "" {
		return name
	}
	if strings.HasSuffix(dir, "/") || strings.HasSuffix(dir, string(os.PathSeparator)) {
		return dir + name
	}
	return dir + string(os.PathSeparator) + name
}
