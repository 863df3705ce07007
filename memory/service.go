// Package memory implements the semantic memory store: embedding-backed
// store and recall, best-effort fact and preference extraction, and the
// consolidate/forget maintenance passes.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghiac/ledgermind/embedding"
	"github.com/ghiac/ledgermind/llmutils"
	"github.com/ghiac/ledgermind/log"
	"github.com/ghiac/ledgermind/metrics"
	"github.com/ghiac/ledgermind/model"
	"github.com/ghiac/ledgermind/store"
)

var (
	// ErrInvalidMemoryType is returned by Store for an unknown memory type.
	ErrInvalidMemoryType = errors.New("invalid memory type")
	// ErrMaintenanceInProgress is returned when Consolidate or Forget is
	// called while another maintenance pass is running.
	ErrMaintenanceInProgress = errors.New("memory maintenance already in progress")
)

// Config holds recall and maintenance thresholds.
type Config struct {
	RecallLimit            int
	MinSimilarity          float64
	ConsolidationThreshold int
	DuplicateSimilarity    float64
	ForgetMaxAge           time.Duration
	ForgetMinImportance    float64
	ForgetMinAccessCount   int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		RecallLimit:            5,
		MinSimilarity:          0.7,
		ConsolidationThreshold: 100,
		DuplicateSimilarity:    0.95,
		ForgetMaxAge:           90 * 24 * time.Hour,
		ForgetMinImportance:    0.3,
		ForgetMinAccessCount:   3,
	}
}

// Repository is the persistence the service needs.
type Repository interface {
	store.MemoryRepository
	store.PreferenceRepository
}

// Extractor pulls facts and preferences out of conversation turns.
// *llmutils.Extractor implements it.
type Extractor interface {
	ExtractFacts(ctx context.Context, turns []model.Turn) ([]llmutils.Fact, error)
	ExtractPreferences(ctx context.Context, turns []model.Turn) ([]llmutils.Preference, error)
}

// StoreOptions are optional fields for Store.
type StoreOptions struct {
	Importance      *float64 // default 0.5, clamped to [0,1]
	SourceMessageID string
}

// RecallOptions narrow a recall. Zero values fall back to Config.
type RecallOptions struct {
	Limit         int
	MinSimilarity *float64
	Types         []model.MemoryType
}

// Service is the memory store.
type Service struct {
	repo      Repository
	embedder  embedding.Provider
	extractor Extractor
	config    Config
	now       func() time.Time

	maintenance sync.Mutex
}

// NewService creates a memory service. extractor may be nil, in which case
// ExtractFacts and LearnPreferences return nothing.
func NewService(repo Repository, embedder embedding.Provider, extractor Extractor, config Config) *Service {
	def := DefaultConfig()
	if config.RecallLimit <= 0 {
		config.RecallLimit = def.RecallLimit
	}
	if config.DuplicateSimilarity <= 0 {
		config.DuplicateSimilarity = def.DuplicateSimilarity
	}
	if config.ForgetMaxAge <= 0 {
		config.ForgetMaxAge = def.ForgetMaxAge
	}
	if config.ForgetMinAccessCount < 0 {
		config.ForgetMinAccessCount = def.ForgetMinAccessCount
	}
	return &Service{
		repo:      repo,
		embedder:  embedder,
		extractor: extractor,
		config:    config,
		now:       time.Now,
	}
}

// Store embeds content and persists it as a new memory.
// Blank content fails with embedding.ErrEmptyInput before anything is written.
func (s *Service) Store(ctx context.Context, content string, memoryType model.MemoryType, opts StoreOptions) (*model.Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("failed to store memory: %w", embedding.ErrEmptyInput)
	}
	if !memoryType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMemoryType, memoryType)
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed memory: %w", err)
	}
	if err := embedding.CheckDimension(vec, s.embedder.Dimension()); err != nil {
		return nil, err
	}

	importance := 0.5
	if opts.Importance != nil {
		importance = model.Clamp01(*opts.Importance)
	}

	now := s.now()
	m := &model.Memory{
		ID:              uuid.NewString(),
		Content:         content,
		Embedding:       vec,
		MemoryType:      memoryType,
		SourceMessageID: opts.SourceMessageID,
		Importance:      importance,
		CreatedAt:       now,
		LastAccessedAt:  now,
	}
	if err := s.repo.InsertMemory(ctx, m); err != nil {
		return nil, err
	}

	metrics.MemoriesStored.WithLabelValues(string(memoryType)).Inc()
	log.Log.Debugf("[Memory] 💾 Stored memory | ID: %s | Type: %s | Importance: %.2f", m.ID, memoryType, importance)
	return m, nil
}

// Recall returns the memories most similar to query, best first. Every
// returned memory has its access count incremented by one, and the returned
// values already reflect that.
func (s *Service) Recall(ctx context.Context, query string, opts RecallOptions) ([]model.MemoryWithScore, error) {
	start := time.Now()
	defer func() { metrics.RecallDuration.Observe(time.Since(start).Seconds()) }()

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("failed to recall: %w", embedding.ErrEmptyInput)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.config.RecallLimit
	}
	minSimilarity := s.config.MinSimilarity
	if opts.MinSimilarity != nil {
		minSimilarity = *opts.MinSimilarity
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := s.repo.ScanMemories(ctx, opts.Types)
	if err != nil {
		return nil, err
	}

	scored := make([]model.MemoryWithScore, 0)
	for _, m := range candidates {
		sim := embedding.CosineSimilarity(queryVec, m.Embedding)
		if sim >= minSimilarity {
			scored = append(scored, model.MemoryWithScore{Memory: *m, Similarity: sim})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	if len(scored) == 0 {
		return scored, nil
	}

	ids := make([]string, len(scored))
	for i := range scored {
		ids[i] = scored[i].ID
	}
	now := s.now()
	if err := s.repo.TouchMemories(ctx, ids, now); err != nil {
		return nil, err
	}
	for i := range scored {
		scored[i].AccessCount++
		scored[i].LastAccessedAt = now
	}

	log.Log.Debugf("[Memory] 🔍 Recall | Candidates: %d | Returned: %d | MinSimilarity: %.2f", len(candidates), len(scored), minSimilarity)
	return scored, nil
}

// ExtractFacts stores the facts found in turns as fact memories. Extraction is
// best effort: capability or parse failures are logged and yield nothing.
// Persistence failures are returned.
func (s *Service) ExtractFacts(ctx context.Context, turns []model.Turn) ([]*model.Memory, error) {
	if s.extractor == nil || len(turns) == 0 {
		return nil, nil
	}

	facts, err := s.extractor.ExtractFacts(ctx, turns)
	if err != nil {
		logExtractionFailure("facts", err)
		return nil, nil
	}

	sourceID := lastTurnID(turns)
	stored := make([]*model.Memory, 0, len(facts))
	for _, f := range facts {
		importance := f.Importance
		m, err := s.Store(ctx, f.Fact, model.MemoryFact, StoreOptions{Importance: &importance, SourceMessageID: sourceID})
		if err != nil {
			return stored, fmt.Errorf("failed to store extracted fact: %w", err)
		}
		stored = append(stored, m)
	}
	if len(stored) > 0 {
		log.Log.Infof("[Memory] 🧠 Extracted facts | Count: %d | Source: %s", len(stored), sourceID)
	}
	return stored, nil
}

// LearnPreferences upserts the preferences found in turns and returns the ones
// that were written. A stored preference is only replaced by one with
// strictly higher confidence.
func (s *Service) LearnPreferences(ctx context.Context, turns []model.Turn) ([]*model.UserPreference, error) {
	if s.extractor == nil || len(turns) == 0 {
		return nil, nil
	}

	prefs, err := s.extractor.ExtractPreferences(ctx, turns)
	if err != nil {
		logExtractionFailure("preferences", err)
		return nil, nil
	}

	source := "conversation"
	if id := lastTurnID(turns); id != "" {
		source = "conversation:" + id
	}
	learned := make([]*model.UserPreference, 0, len(prefs))
	for _, p := range prefs {
		pref := &model.UserPreference{
			Key:        p.Key,
			Value:      p.Value,
			Confidence: p.Confidence,
			Source:     source,
			UpdatedAt:  s.now(),
		}
		applied, err := s.repo.UpsertPreference(ctx, pref)
		if err != nil {
			return learned, fmt.Errorf("failed to store preference %s: %w", p.Key, err)
		}
		if applied {
			learned = append(learned, pref)
		}
	}
	return learned, nil
}

// Preferences lists every learned preference.
func (s *Service) Preferences(ctx context.Context) ([]*model.UserPreference, error) {
	return s.repo.ListPreferences(ctx)
}

// Consolidate removes near-duplicate fact and conversation memories once the
// store holds at least ConsolidationThreshold memories. Of a duplicate pair
// the higher-importance memory survives; on a tie the older one does.
func (s *Service) Consolidate(ctx context.Context) (int, error) {
	if !s.maintenance.TryLock() {
		return 0, ErrMaintenanceInProgress
	}
	defer s.maintenance.Unlock()

	total, err := s.repo.CountMemories(ctx)
	if err != nil {
		return 0, err
	}
	if total < s.config.ConsolidationThreshold {
		log.Log.Debugf("[Memory] ⏭️ Consolidation skipped | Total: %d | Threshold: %d", total, s.config.ConsolidationThreshold)
		return 0, nil
	}

	mems, err := s.repo.ScanMemories(ctx, []model.MemoryType{model.MemoryFact, model.MemoryConversation})
	if err != nil {
		return 0, err
	}

	removed := make([]bool, len(mems))
	var ids []string
	for i := range mems {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(mems); j++ {
			if removed[j] {
				continue
			}
			if embedding.CosineSimilarity(mems[i].Embedding, mems[j].Embedding) <= s.config.DuplicateSimilarity {
				continue
			}
			if mems[j].Importance > mems[i].Importance {
				removed[i] = true
				ids = append(ids, mems[i].ID)
				break
			}
			removed[j] = true
			ids = append(ids, mems[j].ID)
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}

	n, err := s.repo.DeleteMemories(ctx, ids)
	if err != nil {
		return 0, err
	}
	metrics.MaintenanceRemoved.WithLabelValues("consolidate").Add(float64(n))
	log.Log.Infof("[Memory] 🧹 Consolidation completed | Scanned: %d | Removed: %d", len(mems), n)
	return n, nil
}

// Forget deletes memories that are old, unimportant, rarely used and not
// accessed recently. All four must hold.
func (s *Service) Forget(ctx context.Context) (int, error) {
	if !s.maintenance.TryLock() {
		return 0, ErrMaintenanceInProgress
	}
	defer s.maintenance.Unlock()

	mems, err := s.repo.ScanMemories(ctx, nil)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var ids []string
	for _, m := range mems {
		if s.forgettable(m, now) {
			ids = append(ids, m.ID)
		}
	}

	n, err := s.repo.DeleteMemories(ctx, ids)
	if err != nil {
		return 0, err
	}
	metrics.MaintenanceRemoved.WithLabelValues("forget").Add(float64(n))
	log.Log.Infof("[Memory] 🗑️ Forget completed | Scanned: %d | Removed: %d", len(mems), n)
	return n, nil
}

func (s *Service) forgettable(m *model.Memory, now time.Time) bool {
	cutoff := now.Add(-s.config.ForgetMaxAge)
	return m.CreatedAt.Before(cutoff) &&
		m.Importance < s.config.ForgetMinImportance &&
		m.AccessCount < s.config.ForgetMinAccessCount &&
		m.LastAccessedAt.Before(cutoff)
}

// GetStats summarises the store.
func (s *Service) GetStats(ctx context.Context) (*model.MemoryStats, error) {
	return s.repo.MemoryStats(ctx)
}

func lastTurnID(turns []model.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].ID != "" {
			return turns[i].ID
		}
	}
	return ""
}

func logExtractionFailure(kind string, err error) {
	reason := "provider"
	if errors.Is(err, llmutils.ErrExtractionParse) {
		reason = "parse"
	}
	metrics.ExtractionFailures.WithLabelValues(kind).Inc()
	log.Log.Warnf("[Memory] ⚠️ Extraction of %s failed (%s), continuing without results: %v", kind, reason, err)
}
