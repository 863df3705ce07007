package engine

import (
	llminterface "github.com/ghiac/ledgermind/llm-interface"
	"github.com/ghiac/ledgermind/model"
)

// Transcript is the message history sent to the capability provider for one
// reasoning invocation.
type Transcript struct {
	messages []llminterface.Message
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{
		messages: make([]llminterface.Message, 0),
	}
}

// AddSystemMessage adds a system message; blank content is ignored
func (t *Transcript) AddSystemMessage(content string) {
	if content == "" {
		return
	}
	t.messages = append(t.messages, llminterface.Message{
		Role:    model.RoleSystem,
		Content: content,
	})
}

// AddTurn adds a prior conversation turn
func (t *Transcript) AddTurn(turn model.Turn) {
	if turn.Content == "" {
		return
	}
	role := turn.Role
	if role == "" {
		role = model.RoleUser
	}
	t.messages = append(t.messages, llminterface.Message{
		Role:    role,
		Content: turn.Content,
	})
}

// AddUserMessage adds a user message
func (t *Transcript) AddUserMessage(content string) {
	t.messages = append(t.messages, llminterface.Message{
		Role:    model.RoleUser,
		Content: content,
	})
}

// AddAssistantMessage adds a plain assistant reply
func (t *Transcript) AddAssistantMessage(content string) {
	t.messages = append(t.messages, llminterface.Message{
		Role:    model.RoleAssistant,
		Content: content,
	})
}

// AddAssistantWithToolCalls adds an assistant message requesting tool calls
func (t *Transcript) AddAssistantWithToolCalls(content string, toolCalls []llminterface.ToolCall) {
	t.messages = append(t.messages, llminterface.Message{
		Role:      model.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AddToolResult adds the result of one tool call
func (t *Transcript) AddToolResult(toolCallID, toolName, result string) {
	t.messages = append(t.messages, llminterface.Message{
		Role:       "tool",
		Content:    result,
		Name:       toolName,
		ToolCallID: toolCallID,
	})
}

// Messages returns a copy of the messages
func (t *Transcript) Messages() []llminterface.Message {
	out := make([]llminterface.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	return len(t.messages)
}
