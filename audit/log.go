// Package audit records every tool execution attempt and serves the
// review queue and statistics over that record.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ghiac/ledgermind/log"
	"github.com/ghiac/ledgermind/metrics"
	"github.com/ghiac/ledgermind/model"
	"github.com/ghiac/ledgermind/policy"
	"github.com/ghiac/ledgermind/store"
	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ErrReviewerRequired is returned by MarkReviewed without a reviewer.
var ErrReviewerRequired = errors.New("reviewer is required")

// Output is the outcome of one tool execution attempt.
type Output struct {
	Success bool
	Result  string
	Error   string
}

// Config bounds the stored summaries.
type Config struct {
	InputSummaryMax  int
	OutputSummaryMax int
	TopTools         int
}

// Log is the durable action log.
type Log struct {
	store      store.AuditStore
	classifier *policy.Classifier
	config     Config
	now        func() time.Time
}

// New creates an action log. Zero config values fall back to 500, 1000 and 10.
func New(s store.AuditStore, classifier *policy.Classifier, cfg Config) *Log {
	if cfg.InputSummaryMax <= 0 {
		cfg.InputSummaryMax = 500
	}
	if cfg.OutputSummaryMax <= 0 {
		cfg.OutputSummaryMax = 1000
	}
	if cfg.TopTools <= 0 {
		cfg.TopTools = 10
	}
	if classifier == nil {
		classifier = policy.NewClassifier()
	}
	return &Log{store: s, classifier: classifier, config: cfg, now: time.Now}
}

// Record writes one AgentAction for a tool execution attempt and, for high
// and critical risk tools, a compliance entry. Persistence errors are
// returned to the caller.
func (l *Log) Record(ctx context.Context, sessionID, toolName string, input map[string]any, out Output, executionTimeMs int64) (*model.AgentAction, error) {
	cl := l.classifier.Classify(toolName)

	output := out.Result
	if !out.Success && output == "" {
		output = out.Error
	}

	action := &model.AgentAction{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		ToolName:        toolName,
		Category:        cl.Category,
		RiskLevel:       cl.Risk,
		InputSummary:    SummarizeInput(input, l.config.InputSummaryMax),
		OutputSummary:   Truncate(output, l.config.OutputSummaryMax),
		Success:         out.Success,
		ErrorMessage:    Truncate(out.Error, l.config.OutputSummaryMax),
		ExecutionTimeMs: executionTimeMs,
		RequiresReview:  cl.RequiresReview,
		CreatedAt:       l.now(),
	}

	if err := l.store.InsertAction(ctx, action); err != nil {
		metrics.AuditRecordFailures.Inc()
		return nil, fmt.Errorf("failed to record action for %s: %w", toolName, err)
	}

	if cl.Risk.NeedsCompliance() {
		if err := l.recordCompliance(ctx, action); err != nil {
			metrics.AuditRecordFailures.Inc()
			return action, err
		}
	}

	log.Log.Debugf("[Audit] 📝 Recorded %s | Session: %s | Success: %v | Risk: %s | %dms",
		toolName, sessionID, out.Success, cl.Risk, executionTimeMs)
	return action, nil
}

func (l *Log) recordCompliance(ctx context.Context, action *model.AgentAction) error {
	status := "succeeded"
	if !action.Success {
		status = "failed"
	}
	entry := &model.ComplianceEntry{
		ID:        uuid.NewString(),
		ActionID:  action.ID,
		SessionID: action.SessionID,
		ToolName:  action.ToolName,
		RiskLevel: action.RiskLevel,
		Category:  action.Category,
		Success:   action.Success,
		Summary:   Truncate(fmt.Sprintf("%s %s (%s risk, %s): %s", action.ToolName, status, action.RiskLevel, action.Category, action.InputSummary), l.config.OutputSummaryMax),
		CreatedAt: action.CreatedAt,
	}
	if err := l.store.InsertCompliance(ctx, entry); err != nil {
		return fmt.Errorf("failed to record compliance entry for %s: %w", action.ToolName, err)
	}

	metrics.ComplianceEntries.WithLabelValues(string(action.RiskLevel)).Inc()
	log.Log.Warnw("compliance audit",
		"action_id", action.ID,
		"session_id", action.SessionID,
		"tool", action.ToolName,
		"risk", string(action.RiskLevel),
		"category", string(action.Category),
		"success", action.Success,
	)
	return nil
}

// Get returns one action.
func (l *Log) Get(ctx context.Context, id string) (*model.AgentAction, error) {
	return l.store.GetAction(ctx, id)
}

// ListRecent returns the newest actions, optionally for one session.
// limit defaults to 50 and is capped at 200.
func (l *Log) ListRecent(ctx context.Context, sessionID string, limit int) ([]*model.AgentAction, error) {
	return l.store.ListActions(ctx, store.ActionFilter{SessionID: sessionID, Limit: boundLimit(limit)})
}

// ListPendingReview returns actions that require review and have none yet.
func (l *Log) ListPendingReview(ctx context.Context, limit int) ([]*model.AgentAction, error) {
	return l.store.ListPendingReview(ctx, boundLimit(limit))
}

// MarkReviewed records a review. Reviewing an already reviewed action
// changes nothing and returns it as stored.
func (l *Log) MarkReviewed(ctx context.Context, id, reviewer string) (*model.AgentAction, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, ErrReviewerRequired
	}
	action, err := l.store.MarkReviewed(ctx, id, reviewer, l.now())
	if err != nil {
		return nil, err
	}
	log.Log.Infof("[Audit] ✅ Action %s reviewed by %s", id, action.ReviewedBy)
	return action, nil
}

// Stats aggregates actions since from (all when nil). topN <= 0 uses the
// configured default.
func (l *Log) Stats(ctx context.Context, from *time.Time, topN int) (*model.ActionStats, error) {
	if topN <= 0 {
		topN = l.config.TopTools
	}
	return l.store.ActionStats(ctx, from, topN)
}

// ListCompliance returns the newest compliance entries.
func (l *Log) ListCompliance(ctx context.Context, limit int) ([]*model.ComplianceEntry, error) {
	return l.store.ListCompliance(ctx, boundLimit(limit))
}

func boundLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
