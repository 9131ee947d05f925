// Package store persists Plan records and their dependency edges in
// SQLite, via internal/sqlitepool. Every write is a single SQL
// statement run with sqlitex.Execute — there is no ORM, no query
// builder, and no explicit transaction.
//
// Schema evolution is additive only: Open introspects the table and
// adds any column present in the Go struct but missing on disk.
// Columns are never dropped or renamed online.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/sqlitepool"
)

// Status is one of the plan lifecycle states.
type Status string

const (
	StatusOpen Status = "open"
	InProgress Status = "in-progress"
	InReview   Status = "in-review"
	Completed  Status = "completed"
)

// Plan is a single row of the plans table. Nullable TEXT columns are
// represented as empty strings ("" means unset) rather than pointers;
// DependsOnID is the one column that is genuinely optional and so is
// a pointer.
type Plan struct {
	ID                int64     `json:"id"`
	PlanPath          string    `json:"planPath"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	ProjectPath       string    `json:"projectPath"`
	DisplayName       string    `json:"displayName"`
	Status            Status    `json:"status"`
	Branch            string    `json:"branch"`
	SessionID         string    `json:"sessionId"`
	PlanningSessionID string    `json:"planningSessionId"`
	WorktreePath      string    `json:"worktreePath"`
	DependsOnID       *int64    `json:"dependsOnId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Stats aggregates plan counts by status and by project.
type Stats struct {
	ByStatus  map[Status]int `json:"byStatus"`
	ByProject map[string]int `json:"byProject"`
	Total     int            `json:"total"`
}

// Store is the durable plan registry.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// column describes one table column for schema creation and additive
// migration.
type column struct {
	name string
	ddl  string // type + constraints, as they appear after the column name
}

var columns = []column{
	{"id", "INTEGER PRIMARY KEY"},
	{"plan_path", "TEXT NOT NULL DEFAULT ''"},
	{"title", "TEXT NOT NULL DEFAULT ''"},
	{"description", "TEXT NOT NULL DEFAULT ''"},
	{"project_path", "TEXT NOT NULL DEFAULT ''"},
	{"display_name", "TEXT NOT NULL DEFAULT ''"},
	{"status", "TEXT NOT NULL DEFAULT 'open'"},
	{"branch", "TEXT NOT NULL DEFAULT ''"},
	{"session_id", "TEXT NOT NULL DEFAULT ''"},
	{"planning_session_id", "TEXT NOT NULL DEFAULT ''"},
	{"worktree_path", "TEXT NOT NULL DEFAULT ''"},
	{"depends_on_id", "INTEGER"},
	{"created_at", "TEXT NOT NULL DEFAULT ''"},
	{"updated_at", "TEXT NOT NULL DEFAULT ''"},
}

// Open creates or opens the database at path, creating the schema (or
// migrating an older one additively) on first use.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, clierr.IOError("creating database directory: %w", err)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return migrate(conn)
		},
	})
	if err != nil {
		return nil, clierr.IOError("opening store: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func migrate(conn *sqlite.Conn) error {
	var ddl string
	for i, col := range columns {
		if i > 0 {
			ddl += ",\n\t\t"
		}
		ddl += col.name + " " + col.ddl
	}
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS plans (
		%s
		);
		CREATE INDEX IF NOT EXISTS idx_plans_project ON plans(project_path);
		CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
		CREATE INDEX IF NOT EXISTS idx_plans_depends_on ON plans(depends_on_id);
	`, ddl)
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}

	existing := make(map[string]bool)
	err := sqlitex.Execute(conn, "PRAGMA table_info(plans)", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			existing[stmt.ColumnText(1)] = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("store: introspecting schema: %w", err)
	}

	for _, col := range columns {
		if existing[col.name] {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE plans ADD COLUMN %s %s", col.name, col.ddl)
		if err := sqlitex.ExecuteTransient(conn, alter, nil); err != nil {
			return fmt.Errorf("store: adding column %s: %w", col.name, err)
		}
	}
	return nil
}

const planColumnList = `id, plan_path, title, description, project_path, display_name,
	status, branch, session_id, planning_session_id, worktree_path,
	depends_on_id, created_at, updated_at`

func scanPlan(stmt *sqlite.Stmt) Plan {
	plan := Plan{
		ID:                stmt.ColumnInt64(0),
		PlanPath:          stmt.ColumnText(1),
		Title:             stmt.ColumnText(2),
		Description:       stmt.ColumnText(3),
		ProjectPath:       stmt.ColumnText(4),
		DisplayName:       stmt.ColumnText(5),
		Status:            Status(stmt.ColumnText(6)),
		Branch:            stmt.ColumnText(7),
		SessionID:         stmt.ColumnText(8),
		PlanningSessionID: stmt.ColumnText(9),
		WorktreePath:      stmt.ColumnText(10),
	}
	if !stmt.ColumnIsNull(11) {
		id := stmt.ColumnInt64(11)
		plan.DependsOnID = &id
	}
	if t, err := time.Parse(time.RFC3339, stmt.ColumnText(12)); err == nil {
		plan.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, stmt.ColumnText(13)); err == nil {
		plan.UpdatedAt = t
	}
	return plan
}

func (s *Store) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, clierr.IOError("store: acquiring connection: %w", err)
	}
	return conn, nil
}

// AddPlan registers a plan backed by a plan file already on disk.
func (s *Store) AddPlan(ctx context.Context, planPath, projectPath, title string) (*Plan, error) {
	return s.insert(ctx, planPath, projectPath, title, "")
}

// CreateTask registers a plan with no plan file yet (empty plan_path);
// the title and description are supplied directly.
func (s *Store) CreateTask(ctx context.Context, projectPath, title, description string) (*Plan, error) {
	return s.insert(ctx, "", projectPath, title, description)
}

func (s *Store) insert(ctx context.Context, planPath, projectPath, title, description string) (*Plan, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	now := time.Now().UTC().Format(time.RFC3339)
	displayName := filepath.Base(projectPath)

	err = sqlitex.Execute(conn, `
		INSERT INTO plans (plan_path, title, description, project_path, display_name,
			status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{planPath, title, description, projectPath, displayName, string(StatusOpen), now, now},
		})
	if err != nil {
		return nil, clierr.IOError("store: inserting plan: %w", err)
	}

	id := conn.LastInsertRowID()
	return s.Get(ctx, id)
}

// Get fetches a single plan by id.
func (s *Store) Get(ctx context.Context, id int64) (*Plan, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var plan *Plan
	err = sqlitex.Execute(conn, "SELECT "+planColumnList+" FROM plans WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			p := scanPlan(stmt)
			plan = &p
			return nil
		},
	})
	if err != nil {
		return nil, clierr.IOError("store: fetching plan %d: %w", id, err)
	}
	if plan == nil {
		return nil, clierr.NotFound("plan %d not found", id)
	}
	return plan, nil
}

// List returns every plan ordered by project, then recency.
func (s *Store) List(ctx context.Context) ([]*Plan, error) {
	return s.query(ctx, "SELECT "+planColumnList+" FROM plans ORDER BY project_path ASC, updated_at DESC")
}

// ListByProject returns every plan for one project, same ordering.
func (s *Store) ListByProject(ctx context.Context, projectPath string) ([]*Plan, error) {
	return s.queryArgs(ctx,
		"SELECT "+planColumnList+" FROM plans WHERE project_path = ? ORDER BY updated_at DESC",
		projectPath)
}

// UnblockedOpenTasks returns open plans with no dependency, or whose
// predecessor is in-review or completed.
func (s *Store) UnblockedOpenTasks(ctx context.Context) ([]*Plan, error) {
	return s.query(ctx, `
		SELECT `+planColumnList+` FROM plans p
		WHERE p.status = 'open' AND (
			p.depends_on_id IS NULL
			OR EXISTS (
				SELECT 1 FROM plans d WHERE d.id = p.depends_on_id
				AND d.status IN ('in-review', 'completed')
			)
		)
		ORDER BY p.project_path ASC, p.updated_at DESC`)
}

// BlockedTasks returns open plans whose predecessor has not yet
// reached in-review.
func (s *Store) BlockedTasks(ctx context.Context) ([]*Plan, error) {
	return s.query(ctx, `
		SELECT `+planColumnList+` FROM plans p
		WHERE p.status = 'open' AND p.depends_on_id IS NOT NULL AND NOT EXISTS (
			SELECT 1 FROM plans d WHERE d.id = p.depends_on_id
			AND d.status IN ('in-review', 'completed')
		)
		ORDER BY p.project_path ASC, p.updated_at DESC`)
}

func (s *Store) query(ctx context.Context, query string) ([]*Plan, error) {
	return s.queryArgs(ctx, query)
}

func (s *Store) queryArgs(ctx context.Context, query string, args ...any) ([]*Plan, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var plans []*Plan
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			p := scanPlan(stmt)
			plans = append(plans, &p)
			return nil
		},
	})
	if err != nil {
		return nil, clierr.IOError("store: querying plans: %w", err)
	}
	return plans, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return clierr.IOError("store: %w", err)
	}
	return nil
}

func (s *Store) touchAnd(ctx context.Context, id int64, set string, args ...any) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := fmt.Sprintf("UPDATE plans SET %s, updated_at = ? WHERE id = ?", set)
	return s.exec(ctx, query, append(append([]any{}, args...), now, id)...)
}

// UpdateStatus sets status. Idempotent with the target value.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status Status) error {
	return s.touchAnd(ctx, id, "status = ?", string(status))
}

// UpdateBranch sets the branch name.
func (s *Store) UpdateBranch(ctx context.Context, id int64, branch string) error {
	return s.touchAnd(ctx, id, "branch = ?", branch)
}

// UpdateSession sets the agent session handle.
func (s *Store) UpdateSession(ctx context.Context, id int64, sessionID string) error {
	return s.touchAnd(ctx, id, "session_id = ?", sessionID)
}

// UpdatePlanningSession sets the planning (drafting) session handle.
func (s *Store) UpdatePlanningSession(ctx context.Context, id int64, planningSessionID string) error {
	return s.touchAnd(ctx, id, "planning_session_id = ?", planningSessionID)
}

// UpdatePlanPath sets the plan file path.
func (s *Store) UpdatePlanPath(ctx context.Context, id int64, planPath string) error {
	return s.touchAnd(ctx, id, "plan_path = ?", planPath)
}

// UpdateWorktreePath sets the isolated worktree path.
func (s *Store) UpdateWorktreePath(ctx context.Context, id int64, worktreePath string) error {
	return s.touchAnd(ctx, id, "worktree_path = ?", worktreePath)
}

// UpdateTitle sets the plan title.
func (s *Store) UpdateTitle(ctx context.Context, id int64, title string) error {
	return s.touchAnd(ctx, id, "title = ?", title)
}

// Touch bumps updated_at without changing any other field, recording
// a liveness heartbeat for a long-running plan.
func (s *Store) Touch(ctx context.Context, id int64) error {
	return s.touchAnd(ctx, id, "id = id")
}

// Delete removes a plan record. Forbidden while it has dependents.
func (s *Store) Delete(ctx context.Context, id int64) error {
	dependents, err := s.GetDependents(ctx, id)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return clierr.DependencyError("plan %d has %d dependent plan(s); clear their dependency first", id, len(dependents))
	}
	return s.exec(ctx, "DELETE FROM plans WHERE id = ?", id)
}

// GetDependency returns the plan's predecessor, or nil if it has none.
func (s *Store) GetDependency(ctx context.Context, id int64) (*Plan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.DependsOnID == nil {
		return nil, nil
	}
	return s.Get(ctx, *plan.DependsOnID)
}

// GetDependents returns every plan whose depends_on_id is id.
func (s *Store) GetDependents(ctx context.Context, id int64) ([]*Plan, error) {
	return s.queryArgs(ctx, "SELECT "+planColumnList+" FROM plans WHERE depends_on_id = ?", id)
}

// WouldCreateCycle reports whether setting id's dependency to
// candidate would create a cycle: true if a chain of dependency edges
// starting at candidate ever reaches id. SetDependency's cycle check
// is expressed via it.
func (s *Store) WouldCreateCycle(ctx context.Context, id, candidate int64) (bool, error) {
	visited := map[int64]bool{}
	current := candidate
	for {
		if current == id {
			return true, nil
		}
		if visited[current] {
			// Pre-existing cycle in stored data; stop rather than loop forever.
			return false, nil
		}
		visited[current] = true

		plan, err := s.Get(ctx, current)
		if err != nil {
			if kind, ok := clierr.KindOf(err); ok && kind == clierr.NotFoundKind {
				return false, nil // candidate chain ends at a missing plan; no cycle through id
			}
			return false, err
		}
		if plan.DependsOnID == nil {
			return false, nil
		}
		current = *plan.DependsOnID
	}
}

// SetDependency validates and sets id's dependency to dependsOn (nil
// clears it). Validation order: target exists, same project, not
// self, no cycle.
func (s *Store) SetDependency(ctx context.Context, id int64, dependsOn *int64) error {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if dependsOn == nil {
		return s.touchAnd(ctx, id, "depends_on_id = NULL")
	}

	target, err := s.Get(ctx, *dependsOn)
	if err != nil {
		return err
	}
	if target.ProjectPath != plan.ProjectPath {
		return clierr.DependencyError("plan %d is in a different project than plan %d", target.ID, id)
	}
	if target.ID == id {
		return clierr.DependencyError("plan %d cannot depend on itself", id)
	}
	cyclic, err := s.WouldCreateCycle(ctx, id, target.ID)
	if err != nil {
		return err
	}
	if cyclic {
		return clierr.DependencyError("setting plan %d to depend on %d would create a cycle", id, target.ID)
	}

	return s.touchAnd(ctx, id, "depends_on_id = ?", target.ID)
}

// GetDependencyChain walks id's dependency edges back to the root and
// returns the chain root-to-leaf (the root predecessor first, id last).
func (s *Store) GetDependencyChain(ctx context.Context, id int64) ([]*Plan, error) {
	var chain []*Plan
	visited := map[int64]bool{}
	current := id
	for {
		plan, err := s.Get(ctx, current)
		if err != nil {
			return nil, err
		}
		chain = append([]*Plan{plan}, chain...)
		if plan.DependsOnID == nil || visited[*plan.DependsOnID] {
			break
		}
		visited[current] = true
		current = *plan.DependsOnID
	}
	return chain, nil
}

// Stats aggregates plan counts by status and project.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	plans, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByStatus: map[Status]int{}, ByProject: map[string]int{}}
	for _, plan := range plans {
		stats.ByStatus[plan.Status]++
		stats.ByProject[plan.ProjectPath]++
		stats.Total++
	}
	return stats, nil
}
