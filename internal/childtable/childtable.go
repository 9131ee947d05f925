// Package childtable tracks the OS processes a claude-tracker binary
// has spawned (agent subprocesses) so that a SIGINT handler can decide
// whether it is safe to exit immediately or must warn the user that
// children are still running in the background.
package childtable

import (
	"sync"
	"time"
)

// Info describes one live child process.
type Info struct {
	PlanID    int64
	Role      string // "worker", "reviewer" or "planner"
	StartedAt time.Time
}

// Table is a process-wide registry of live agent subprocesses, safe
// for concurrent use by every goroutine spawning or reaping a child.
type Table struct {
	mu       sync.Mutex
	children map[int]Info
}

// New returns an empty Table.
func New() *Table {
	return &Table{children: make(map[int]Info)}
}

// Register records pid as alive. Call immediately after the process
// starts.
func (t *Table) Register(pid int, info Info) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children[pid] = info
}

// Unregister removes pid. Call once the process has been waited on,
// regardless of exit status.
func (t *Table) Unregister(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.children, pid)
}

// Len reports the number of live children.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children)
}

// PIDs returns the PIDs of every live child, in no particular order.
func (t *Table) PIDs() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pids := make([]int, 0, len(t.children))
	for pid := range t.children {
		pids = append(pids, pid)
	}
	return pids
}

// Snapshot returns a copy of the live-child set, keyed by PID.
func (t *Table) Snapshot() map[int]Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make(map[int]Info, len(t.children))
	for pid, info := range t.children {
		snapshot[pid] = info
	}
	return snapshot
}
