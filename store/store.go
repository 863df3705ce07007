// Package store persists memories, preferences and the action log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ghiac/ledgermind/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// MemoryRepository persists semantic memories.
type MemoryRepository interface {
	InsertMemory(ctx context.Context, m *model.Memory) error
	GetMemory(ctx context.Context, id string) (*model.Memory, error)
	// ScanMemories returns every memory of the given types (all types when
	// empty), oldest first. Rows with equal creation time keep insertion order.
	ScanMemories(ctx context.Context, types []model.MemoryType) ([]*model.Memory, error)
	// TouchMemories increments access_count and sets last_accessed_at for
	// ids in a single transaction.
	TouchMemories(ctx context.Context, ids []string, at time.Time) error
	DeleteMemories(ctx context.Context, ids []string) (int, error)
	CountMemories(ctx context.Context) (int, error)
	MemoryStats(ctx context.Context) (*model.MemoryStats, error)
}

// PreferenceRepository persists learned preferences.
type PreferenceRepository interface {
	// UpsertPreference inserts p or replaces the stored row only when
	// p.Confidence is strictly greater. It reports whether p was written.
	UpsertPreference(ctx context.Context, p *model.UserPreference) (bool, error)
	GetPreference(ctx context.Context, key string) (*model.UserPreference, error)
	ListPreferences(ctx context.Context) ([]*model.UserPreference, error)
}

// ActionFilter narrows ListActions.
type ActionFilter struct {
	SessionID string
	Limit     int
}

// ActionRepository persists the agent action log.
type ActionRepository interface {
	InsertAction(ctx context.Context, a *model.AgentAction) error
	GetAction(ctx context.Context, id string) (*model.AgentAction, error)
	// ListActions returns newest first.
	ListActions(ctx context.Context, filter ActionFilter) ([]*model.AgentAction, error)
	// ListPendingReview returns actions needing review that nobody has
	// reviewed yet, oldest first.
	ListPendingReview(ctx context.Context, limit int) ([]*model.AgentAction, error)
	// MarkReviewed sets reviewer metadata if not already set and returns
	// the resulting row. Repeated calls leave the first review in place.
	MarkReviewed(ctx context.Context, id, reviewer string, at time.Time) (*model.AgentAction, error)
	ActionStats(ctx context.Context, from *time.Time, topN int) (*model.ActionStats, error)
}

// ComplianceRepository persists compliance audit entries.
type ComplianceRepository interface {
	InsertCompliance(ctx context.Context, e *model.ComplianceEntry) error
	ListCompliance(ctx context.Context, limit int) ([]*model.ComplianceEntry, error)
}

// AuditStore is what the audit log needs from a backend.
type AuditStore interface {
	ActionRepository
	ComplianceRepository
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
