package model

import "time"

// StepType classifies a reasoning step.
type StepType string

const (
	StepThought     StepType = "thought"
	StepAction      StepType = "action"
	StepObservation StepType = "observation"
	StepAnswer      StepType = "answer"
)

// ReasoningStep is one append-only entry of a reasoning trace.
// Tool fields are set on action and observation steps only.
type ReasoningStep struct {
	ID         int            `json:"id"`
	Type       StepType       `json:"type"`
	Content    string         `json:"content"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	ToolResult string         `json:"tool_result,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ReasoningResult is the outcome of one reasoning invocation.
type ReasoningResult struct {
	Steps          []ReasoningStep `json:"steps"`
	FinalAnswer    string          `json:"final_answer"`
	ToolsUsed      []string        `json:"tools_used"`
	IterationCount int             `json:"iteration_count"`
	Confidence     float64         `json:"confidence"`
	Sources        []string        `json:"sources"`
}

// Role of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one prior conversation message handed to the engine or to
// fact/preference extraction.
type Turn struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}
