package model

import "time"

// Category is the kind of effect a tool has.
type Category string

const (
	CategoryRead      Category = "read"
	CategoryCreate    Category = "create"
	CategoryUpdate    Category = "update"
	CategoryDelete    Category = "delete"
	CategoryExternal  Category = "external"
	CategoryFinancial Category = "financial"
)

// RiskLevel grades how dangerous a tool is.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// NeedsCompliance reports whether actions at this level get an extra
// compliance audit entry.
func (r RiskLevel) NeedsCompliance() bool {
	return r == RiskHigh || r == RiskCritical
}

// AgentAction is the audit record of one tool execution attempt.
type AgentAction struct {
	ID              string     `json:"id" bson:"_id"`
	SessionID       string     `json:"session_id" bson:"session_id"`
	ToolName        string     `json:"tool_name" bson:"tool_name"`
	Category        Category   `json:"category" bson:"category"`
	RiskLevel       RiskLevel  `json:"risk_level" bson:"risk_level"`
	InputSummary    string     `json:"input_summary" bson:"input_summary"`
	OutputSummary   string     `json:"output_summary" bson:"output_summary"`
	Success         bool       `json:"success" bson:"success"`
	ErrorMessage    string     `json:"error_message,omitempty" bson:"error_message,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms" bson:"execution_time_ms"`
	RequiresReview  bool       `json:"requires_review" bson:"requires_review"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty" bson:"reviewed_at,omitempty"`
	ReviewedBy      string     `json:"reviewed_by,omitempty" bson:"reviewed_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
}

// ComplianceEntry is the extra audit record written for high and
// critical risk actions.
type ComplianceEntry struct {
	ID        string    `json:"id" bson:"_id"`
	ActionID  string    `json:"action_id" bson:"action_id"`
	SessionID string    `json:"session_id" bson:"session_id"`
	ToolName  string    `json:"tool_name" bson:"tool_name"`
	RiskLevel RiskLevel `json:"risk_level" bson:"risk_level"`
	Category  Category  `json:"category" bson:"category"`
	Success   bool      `json:"success" bson:"success"`
	Summary   string    `json:"summary" bson:"summary"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ToolUsage counts executions of a single tool.
type ToolUsage struct {
	ToolName string `json:"tool_name" bson:"_id"`
	Count    int    `json:"count" bson:"count"`
}

// ActionStats aggregates the action log.
type ActionStats struct {
	Total          int               `json:"total"`
	Successful     int               `json:"successful"`
	Failed         int               `json:"failed"`
	PendingReview  int               `json:"pending_review"`
	ByCategory     map[Category]int  `json:"by_category"`
	ByRisk         map[RiskLevel]int `json:"by_risk"`
	AvgExecutionMs float64           `json:"avg_execution_ms"`
	TopTools       []ToolUsage       `json:"top_tools"`
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryRead, CategoryCreate, CategoryUpdate, CategoryDelete, CategoryExternal, CategoryFinancial:
		return true
	}
	return false
}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskNone, RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}
