package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ghiac/ledgermind/embedding"
	"github.com/ghiac/ledgermind/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements every repository on a single SQLite database.
// Embeddings are stored as JSON arrays.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewSQLiteStore opens (or creates) a SQLite database.
// If dbPath is empty, it uses ":memory:" for an in-memory database.
// The function automatically creates the directory if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory for database: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: every :memory: connection is its own database, and
	// file databases serialise writers anyway
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:   db,
		path: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL,
		memory_type TEXT NOT NULL,
		source_message_id TEXT DEFAULT '',
		importance REAL NOT NULL,
		created_at INTEGER NOT NULL,
		last_accessed_at INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
	CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);

	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		confidence REAL NOT NULL,
		source TEXT DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_actions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		category TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		input_summary TEXT DEFAULT '',
		output_summary TEXT DEFAULT '',
		success INTEGER NOT NULL,
		error_message TEXT DEFAULT '',
		execution_time_ms INTEGER NOT NULL DEFAULT 0,
		requires_review INTEGER NOT NULL DEFAULT 0,
		reviewed_at INTEGER,
		reviewed_by TEXT DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_session_id ON agent_actions(session_id);
	CREATE INDEX IF NOT EXISTS idx_actions_created_at ON agent_actions(created_at);
	CREATE INDEX IF NOT EXISTS idx_actions_review ON agent_actions(requires_review, reviewed_at);

	CREATE TABLE IF NOT EXISTS compliance_audit (
		id TEXT PRIMARY KEY,
		action_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		category TEXT NOT NULL,
		success INTEGER NOT NULL,
		summary TEXT DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_compliance_created_at ON compliance_audit(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// ==================== Memories ====================

const memoryColumns = `id, content, embedding, memory_type, source_message_id, importance, created_at, last_accessed_at, access_count`

// InsertMemory stores a new memory.
func (s *SQLiteStore) InsertMemory(ctx context.Context, m *model.Memory) error {
	if m == nil {
		return fmt.Errorf("memory cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (`+memoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Content,
		embedding.EncodeVector(m.Embedding),
		string(m.MemoryType),
		m.SourceMessageID,
		m.Importance,
		toMillis(m.CreatedAt),
		toMillis(m.LastAccessedAt),
		m.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}
	return nil
}

// GetMemory retrieves a memory by ID.
func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return m, nil
}

// ScanMemories returns memories of the given types, oldest first.
func (s *SQLiteStore) ScanMemories(ctx context.Context, types []model.MemoryType) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + memoryColumns + ` FROM memories`
	args := make([]any, 0, len(types))
	if len(types) > 0 {
		query += ` WHERE memory_type IN (` + placeholders(len(types)) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var memories []*model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	return memories, nil
}

// TouchMemories records one access on each id inside a transaction.
func (s *SQLiteStore) TouchMemories(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args := make([]any, 0, len(ids)+1)
	args = append(args, toMillis(at))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update memory access: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memory access: %w", err)
	}
	return nil
}

// DeleteMemories removes memories by id and returns how many were deleted.
func (s *SQLiteStore) DeleteMemories(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted memories: %w", err)
	}
	return int(n), nil
}

// CountMemories returns the total number of memories.
func (s *SQLiteStore) CountMemories(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return n, nil
}

// MemoryStats aggregates the memories table.
func (s *SQLiteStore) MemoryStats(ctx context.Context) (*model.MemoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.MemoryStats{ByType: make(map[model.MemoryType]int)}
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(importance), 0), MIN(created_at), MAX(created_at) FROM memories`,
	).Scan(&stats.Total, &stats.AvgImportance, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate memories: %w", err)
	}
	if oldest.Valid {
		t := fromMillis(oldest.Int64)
		stats.Oldest = &t
	}
	if newest.Valid {
		t := fromMillis(newest.Int64)
		stats.Newest = &t
	}

	rows, err := s.db.QueryContext(ctx, `SELECT memory_type, COUNT(*) FROM memories GROUP BY memory_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to group memories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mt string
		var n int
		if err := rows.Scan(&mt, &n); err != nil {
			return nil, fmt.Errorf("failed to scan memory group: %w", err)
		}
		stats.ByType[model.MemoryType(mt)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memory groups: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var (
		m                   model.Memory
		vec, memType        string
		created, lastAccess int64
	)
	if err := row.Scan(&m.ID, &m.Content, &vec, &memType, &m.SourceMessageID, &m.Importance, &created, &lastAccess, &m.AccessCount); err != nil {
		return nil, err
	}
	decoded, err := embedding.DecodeVector(vec)
	if err != nil {
		return nil, fmt.Errorf("memory %s: %w", m.ID, err)
	}
	m.Embedding = decoded
	m.MemoryType = model.MemoryType(memType)
	m.CreatedAt = fromMillis(created)
	m.LastAccessedAt = fromMillis(lastAccess)
	return &m, nil
}

// ==================== Preferences ====================

// UpsertPreference writes p unless the stored confidence is greater or equal.
func (s *SQLiteStore) UpsertPreference(ctx context.Context, p *model.UserPreference) (bool, error) {
	if p == nil || p.Key == "" {
		return false, fmt.Errorf("preference key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (key, value, confidence, source, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			confidence = excluded.confidence,
			source = excluded.source,
			updated_at = excluded.updated_at
		WHERE excluded.confidence > preferences.confidence`,
		p.Key, p.Value, p.Confidence, p.Source, toMillis(p.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert preference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read upsert result: %w", err)
	}
	return n > 0, nil
}

// GetPreference retrieves a preference by key.
func (s *SQLiteStore) GetPreference(ctx context.Context, key string) (*model.UserPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p model.UserPreference
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, confidence, source, updated_at FROM preferences WHERE key = ?`, key,
	).Scan(&p.Key, &p.Value, &p.Confidence, &p.Source, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preference %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// ListPreferences returns every preference ordered by key.
func (s *SQLiteStore) ListPreferences(ctx context.Context) ([]*model.UserPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value, confidence, source, updated_at FROM preferences ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*model.UserPreference
	for rows.Next() {
		var p model.UserPreference
		var updated int64
		if err := rows.Scan(&p.Key, &p.Value, &p.Confidence, &p.Source, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		p.UpdatedAt = fromMillis(updated)
		prefs = append(prefs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preferences: %w", err)
	}
	return prefs, nil
}

// ==================== Agent actions ====================

const actionColumns = `id, session_id, tool_name, category, risk_level, input_summary, output_summary, success, error_message, execution_time_ms, requires_review, reviewed_at, reviewed_by, created_at`

// InsertAction appends one action record.
func (s *SQLiteStore) InsertAction(ctx context.Context, a *model.AgentAction) error {
	if a == nil {
		return fmt.Errorf("action cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var reviewedAt sql.NullInt64
	if a.ReviewedAt != nil {
		reviewedAt = sql.NullInt64{Int64: toMillis(*a.ReviewedAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.SessionID,
		a.ToolName,
		string(a.Category),
		string(a.RiskLevel),
		a.InputSummary,
		a.OutputSummary,
		boolToInt(a.Success),
		a.ErrorMessage,
		a.ExecutionTimeMs,
		boolToInt(a.RequiresReview),
		reviewedAt,
		a.ReviewedBy,
		toMillis(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store action: %w", err)
	}
	return nil
}

// GetAction retrieves an action by ID.
func (s *SQLiteStore) GetAction(ctx context.Context, id string) (*model.AgentAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getActionUnsafe(ctx, id)
}

func (s *SQLiteStore) getActionUnsafe(ctx context.Context, id string) (*model.AgentAction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM agent_actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return a, nil
}

// ListActions returns recent actions, newest first.
func (s *SQLiteStore) ListActions(ctx context.Context, filter ActionFilter) ([]*model.AgentAction, error) {
	query := `SELECT ` + actionColumns + ` FROM agent_actions`
	var args []any
	if filter.SessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, filter.SessionID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryActions(ctx, query, args...)
}

// ListPendingReview returns unreviewed actions that require review, oldest first.
func (s *SQLiteStore) ListPendingReview(ctx context.Context, limit int) ([]*model.AgentAction, error) {
	query := `SELECT ` + actionColumns + ` FROM agent_actions
		WHERE requires_review = 1 AND reviewed_at IS NULL
		ORDER BY created_at ASC, rowid ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryActions(ctx, query, args...)
}

func (s *SQLiteStore) queryActions(ctx context.Context, query string, args ...any) ([]*model.AgentAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []*model.AgentAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return actions, nil
}

// MarkReviewed records the first review of an action.
func (s *SQLiteStore) MarkReviewed(ctx context.Context, id, reviewer string, at time.Time) (*model.AgentAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE agent_actions SET reviewed_at = ?, reviewed_by = ? WHERE id = ? AND reviewed_at IS NULL`,
		toMillis(at), reviewer, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark action reviewed: %w", err)
	}
	return s.getActionUnsafe(ctx, id)
}

// ActionStats aggregates actions created at or after from (all when nil).
func (s *SQLiteStore) ActionStats(ctx context.Context, from *time.Time, topN int) (*model.ActionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := ""
	var args []any
	if from != nil {
		where = ` WHERE created_at >= ?`
		args = append(args, toMillis(*from))
	}

	stats := &model.ActionStats{
		ByCategory: make(map[model.Category]int),
		ByRisk:     make(map[model.RiskLevel]int),
		TopTools:   []model.ToolUsage{},
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(success), 0),
			COALESCE(SUM(CASE WHEN requires_review = 1 AND reviewed_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(execution_time_ms), 0)
		FROM agent_actions`+where,
		args...,
	).Scan(&stats.Total, &stats.Successful, &stats.PendingReview, &stats.AvgExecutionMs)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate actions: %w", err)
	}
	stats.Failed = stats.Total - stats.Successful

	if err := s.groupCount(ctx, `SELECT category, COUNT(*) FROM agent_actions`+where+` GROUP BY category`, args, func(k string, n int) {
		stats.ByCategory[model.Category(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, `SELECT risk_level, COUNT(*) FROM agent_actions`+where+` GROUP BY risk_level`, args, func(k string, n int) {
		stats.ByRisk[model.RiskLevel(k)] = n
	}); err != nil {
		return nil, err
	}

	if topN > 0 {
		topArgs := append(append([]any{}, args...), topN)
		if err := s.groupCount(ctx,
			`SELECT tool_name, COUNT(*) AS n FROM agent_actions`+where+` GROUP BY tool_name ORDER BY n DESC, tool_name ASC LIMIT ?`,
			topArgs,
			func(k string, n int) {
				stats.TopTools = append(stats.TopTools, model.ToolUsage{ToolName: k, Count: n})
			},
		); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (s *SQLiteStore) groupCount(ctx context.Context, query string, args []any, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to group actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return fmt.Errorf("failed to scan action group: %w", err)
		}
		fn(k, n)
	}
	return rows.Err()
}

func scanAction(row rowScanner) (*model.AgentAction, error) {
	var (
		a                       model.AgentAction
		category, risk          string
		success, requiresReview int
		reviewedAt              sql.NullInt64
		created                 int64
	)
	err := row.Scan(&a.ID, &a.SessionID, &a.ToolName, &category, &risk, &a.InputSummary, &a.OutputSummary,
		&success, &a.ErrorMessage, &a.ExecutionTimeMs, &requiresReview, &reviewedAt, &a.ReviewedBy, &created)
	if err != nil {
		return nil, err
	}
	a.Category = model.Category(category)
	a.RiskLevel = model.RiskLevel(risk)
	a.Success = success == 1
	a.RequiresReview = requiresReview == 1
	if reviewedAt.Valid {
		t := fromMillis(reviewedAt.Int64)
		a.ReviewedAt = &t
	}
	a.CreatedAt = fromMillis(created)
	return &a, nil
}

// ==================== Compliance ====================

// InsertCompliance appends a compliance audit entry.
func (s *SQLiteStore) InsertCompliance(ctx context.Context, e *model.ComplianceEntry) error {
	if e == nil {
		return fmt.Errorf("compliance entry cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compliance_audit (id, action_id, session_id, tool_name, risk_level, category, success, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActionID, e.SessionID, e.ToolName, string(e.RiskLevel), string(e.Category),
		boolToInt(e.Success), e.Summary, toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store compliance entry: %w", err)
	}
	return nil
}

// ListCompliance returns compliance entries, newest first.
func (s *SQLiteStore) ListCompliance(ctx context.Context, limit int) ([]*model.ComplianceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, action_id, session_id, tool_name, risk_level, category, success, summary, created_at
		FROM compliance_audit ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query compliance entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.ComplianceEntry
	for rows.Next() {
		var (
			e              model.ComplianceEntry
			risk, category string
			success        int
			created        int64
		)
		if err := rows.Scan(&e.ID, &e.ActionID, &e.SessionID, &e.ToolName, &risk, &category, &success, &e.Summary, &created); err != nil {
			return nil, fmt.Errorf("failed to scan compliance entry: %w", err)
		}
		e.RiskLevel = model.RiskLevel(risk)
		e.Category = model.Category(category)
		e.Success = success == 1
		e.CreatedAt = fromMillis(created)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating compliance entries: %w", err)
	}
	return entries, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
