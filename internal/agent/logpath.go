package agent

import (
	"fmt"
	"path/filepath"
	"time"
)

// timestampLayout renders an RFC 3339-ish timestamp with every
// separator that would otherwise collide with a shell or filesystem
// convention replaced by a dash.
const timestampLayout = "2006-01-02T15-04-05"

// NewLogPath returns a closure suitable for review.Config.NewLogPath:
// one JSONL path per plan run, computed once at call time and handed
// back unchanged for every subsequent agent invocation in that run —
// worker, reviewer, and every revision share the single log file a
// plan's run produces.
func NewLogPath(logsDir string, planID int64) func(Role) string {
	path := filepath.Join(logsDir, fmt.Sprintf("%d-%s.jsonl", planID, time.Now().UTC().Format(timestampLayout)))
	return func(Role) string { return path }
}
