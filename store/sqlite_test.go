package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghiac/ledgermind/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testMemory(id string, mt model.MemoryType, created time.Time) *model.Memory {
	return &model.Memory{
		ID:             id,
		Content:        "content " + id,
		Embedding:      []float32{0.5, -0.25, 1},
		MemoryType:     mt,
		Importance:     0.5,
		CreatedAt:      created,
		LastAccessedAt: created,
	}
}

func TestSQLiteStore_FileDatabaseCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	require.NoError(t, s.InsertMemory(context.Background(), testMemory("m1", model.MemoryFact, time.Now())))
	n, err := s.CountMemories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_MemoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	m := testMemory("m1", model.MemoryPreference, now)
	m.SourceMessageID = "msg-7"
	require.NoError(t, s.InsertMemory(ctx, m))

	got, err := s.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.Embedding, got.Embedding)
	assert.Equal(t, model.MemoryPreference, got.MemoryType)
	assert.Equal(t, "msg-7", got.SourceMessageID)
	assert.True(t, now.Equal(got.CreatedAt))
	assert.Equal(t, 0, got.AccessCount)

	_, err = s.GetMemory(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.InsertMemory(ctx, m), "duplicate id")
}

func TestSQLiteStore_ScanMemoriesOrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.InsertMemory(ctx, testMemory("c", model.MemoryFact, base.Add(2*time.Second))))
	require.NoError(t, s.InsertMemory(ctx, testMemory("a", model.MemoryConversation, base)))
	require.NoError(t, s.InsertMemory(ctx, testMemory("b2", model.MemoryFact, base.Add(time.Second))))
	require.NoError(t, s.InsertMemory(ctx, testMemory("b1", model.MemoryTask, base.Add(time.Second))))

	all, err := s.ScanMemories(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b2", "b1", "c"}, ids(all), "oldest first, insertion order on ties")

	facts, err := s.ScanMemories(ctx, []model.MemoryType{model.MemoryFact, model.MemoryConversation})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b2", "c"}, ids(facts))
}

func TestSQLiteStore_TouchAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.InsertMemory(ctx, testMemory(id, model.MemoryFact, base)))
	}

	at := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.TouchMemories(ctx, []string{"m1", "m3"}, at))
	require.NoError(t, s.TouchMemories(ctx, []string{"m1"}, at))
	require.NoError(t, s.TouchMemories(ctx, nil, at))

	m1, _ := s.GetMemory(ctx, "m1")
	m2, _ := s.GetMemory(ctx, "m2")
	m3, _ := s.GetMemory(ctx, "m3")
	assert.Equal(t, 2, m1.AccessCount)
	assert.Equal(t, 0, m2.AccessCount)
	assert.Equal(t, 1, m3.AccessCount)
	assert.True(t, at.Equal(m1.LastAccessedAt))

	n, err := s.DeleteMemories(ctx, []string{"m1", "m2", "nope"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeleteMemories(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := s.CountMemories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_MemoryStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.MemoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Nil(t, empty.Oldest)
	assert.Nil(t, empty.Newest)

	base := time.Now().Truncate(time.Millisecond)
	m1 := testMemory("m1", model.MemoryFact, base)
	m1.Importance = 0.2
	m2 := testMemory("m2", model.MemoryFact, base.Add(time.Minute))
	m2.Importance = 0.6
	m3 := testMemory("m3", model.MemoryTask, base.Add(2*time.Minute))
	m3.Importance = 1.0
	for _, m := range []*model.Memory{m1, m2, m3} {
		require.NoError(t, s.InsertMemory(ctx, m))
	}

	stats, err := s.MemoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByType[model.MemoryFact])
	assert.Equal(t, 1, stats.ByType[model.MemoryTask])
	assert.InDelta(t, 0.6, stats.AvgImportance, 1e-9)
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
	assert.True(t, base.Equal(*stats.Oldest))
	assert.True(t, base.Add(2*time.Minute).Equal(*stats.Newest))
}

func TestSQLiteStore_PreferenceMonotonicUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	applied, err := s.UpsertPreference(ctx, &model.UserPreference{Key: "currency", Value: "EUR", Confidence: 0.6, Source: "chat", UpdatedAt: now})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.UpsertPreference(ctx, &model.UserPreference{Key: "currency", Value: "USD", Confidence: 0.6, UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, applied, "tie keeps existing")

	applied, err = s.UpsertPreference(ctx, &model.UserPreference{Key: "currency", Value: "GBP", Confidence: 0.4, UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, applied)

	p, err := s.GetPreference(ctx, "currency")
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.Value)

	applied, err = s.UpsertPreference(ctx, &model.UserPreference{Key: "currency", Value: "CHF", Confidence: 0.9, UpdatedAt: now})
	require.NoError(t, err)
	assert.True(t, applied)

	p, err = s.GetPreference(ctx, "currency")
	require.NoError(t, err)
	assert.Equal(t, "CHF", p.Value)
	assert.InDelta(t, 0.9, p.Confidence, 1e-9)

	_, err = s.GetPreference(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpsertPreference(ctx, &model.UserPreference{})
	assert.Error(t, err)

	prefs, err := s.ListPreferences(ctx)
	require.NoError(t, err)
	assert.Len(t, prefs, 1)
}

func testAction(id, session, tool string, created time.Time) *model.AgentAction {
	return &model.AgentAction{
		ID:              id,
		SessionID:       session,
		ToolName:        tool,
		Category:        model.CategoryRead,
		RiskLevel:       model.RiskLow,
		InputSummary:    "id: 1",
		OutputSummary:   "ok",
		Success:         true,
		ExecutionTimeMs: 10,
		CreatedAt:       created,
	}
}

func TestSQLiteStore_Actions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	a1 := testAction("a1", "s1", "list_invoices", base)
	a2 := testAction("a2", "s1", "delete_invoice", base.Add(time.Second))
	a2.Category = model.CategoryDelete
	a2.RiskLevel = model.RiskHigh
	a2.RequiresReview = true
	a2.Success = false
	a2.ErrorMessage = "boom"
	a2.ExecutionTimeMs = 30
	a3 := testAction("a3", "s2", "list_invoices", base.Add(2*time.Second))
	for _, a := range []*model.AgentAction{a1, a2, a3} {
		require.NoError(t, s.InsertAction(ctx, a))
	}

	got, err := s.GetAction(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, "boom", got.ErrorMessage)
	assert.False(t, got.Success)
	assert.True(t, got.RequiresReview)
	assert.Nil(t, got.ReviewedAt)

	_, err = s.GetAction(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	recent, err := s.ListActions(ctx, ActionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a3", "a2"}, actionIDs(recent))

	session, err := s.ListActions(ctx, ActionFilter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a1"}, actionIDs(session))

	pending, err := s.ListPendingReview(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, actionIDs(pending))

	firstAt := base.Add(time.Hour)
	reviewed, err := s.MarkReviewed(ctx, "a2", "alice", firstAt)
	require.NoError(t, err)
	require.NotNil(t, reviewed.ReviewedAt)
	assert.Equal(t, "alice", reviewed.ReviewedBy)

	again, err := s.MarkReviewed(ctx, "a2", "bob", firstAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "alice", again.ReviewedBy, "first review wins")
	assert.True(t, firstAt.Equal(*again.ReviewedAt))

	_, err = s.MarkReviewed(ctx, "zzz", "bob", firstAt)
	assert.ErrorIs(t, err, ErrNotFound)

	pending, err = s.ListPendingReview(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLiteStore_ActionStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	old := testAction("old", "s", "get_invoice", base.Add(-48*time.Hour))
	require.NoError(t, s.InsertAction(ctx, old))

	for i, tool := range []string{"list_invoices", "list_invoices", "create_invoice"} {
		a := testAction(tool+string(rune('a'+i)), "s", tool, base.Add(time.Duration(i)*time.Second))
		a.ExecutionTimeMs = int64(10 * (i + 1))
		if tool == "create_invoice" {
			a.Category = model.CategoryFinancial
			a.RiskLevel = model.RiskMedium
			a.Success = false
			a.RequiresReview = true
		}
		require.NoError(t, s.InsertAction(ctx, a))
	}

	all, err := s.ActionStats(ctx, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)

	from := base.Add(-time.Hour)
	stats, err := s.ActionStats(ctx, &from, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.PendingReview)
	assert.Equal(t, 2, stats.ByCategory[model.CategoryRead])
	assert.Equal(t, 1, stats.ByCategory[model.CategoryFinancial])
	assert.Equal(t, 1, stats.ByRisk[model.RiskMedium])
	assert.InDelta(t, 20, stats.AvgExecutionMs, 1e-9)
	assert.Equal(t, []model.ToolUsage{{ToolName: "list_invoices", Count: 2}}, stats.TopTools)

	empty, err := newTestStore(t).ActionStats(ctx, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.TopTools)
}

func TestSQLiteStore_Compliance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"c1", "c2"} {
		require.NoError(t, s.InsertCompliance(ctx, &model.ComplianceEntry{
			ID:        id,
			ActionID:  "a" + id,
			SessionID: "s",
			ToolName:  "submit_einvoice",
			RiskLevel: model.RiskHigh,
			Category:  model.CategoryExternal,
			Success:   true,
			Summary:   "submitted",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := s.ListCompliance(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c2", entries[0].ID)
	assert.Equal(t, model.RiskHigh, entries[0].RiskLevel)
	assert.True(t, entries[0].Success)
}

func ids(ms []*model.Memory) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func actionIDs(as []*model.AgentAction) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}
