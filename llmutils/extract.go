package llmutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	llminterface "github.com/ghiac/ledgermind/llm-interface"
	"github.com/ghiac/ledgermind/model"
)

// ErrExtractionParse is returned when the model output is not the expected JSON.
var ErrExtractionParse = errors.New("extraction output is not valid JSON")

// Fact is one durable statement extracted from a conversation.
type Fact struct {
	Fact       string  `json:"fact"`
	Importance float64 `json:"importance"`
}

// Preference is one user preference extracted from a conversation.
type Preference struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractorConfig holds configuration for extraction calls
type ExtractorConfig struct {
	Model        string // LLM model to use (default: gpt-4o-mini)
	MaxTurnChars int    // per-turn truncation before prompting (default: 500)
}

// DefaultExtractorConfig returns default configuration
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		Model:        "gpt-4o-mini",
		MaxTurnChars: 500,
	}
}

// Extractor asks a capability provider to pull facts and preferences out of
// conversation turns.
type Extractor struct {
	provider llminterface.Provider
	config   ExtractorConfig
}

// NewExtractor creates an Extractor.
func NewExtractor(provider llminterface.Provider, config ExtractorConfig) *Extractor {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTurnChars <= 0 {
		config.MaxTurnChars = 500
	}
	return &Extractor{provider: provider, config: config}
}

const factsPrompt = `You extract durable facts from a conversation between a small-business owner and their accounting assistant.

Return ONLY a JSON array, no prose and no code fences:
[{"fact": "<one self-contained sentence>", "importance": <number between 0 and 1>}]

Rules:
- Keep facts that stay true beyond this conversation: customers, suppliers, payment terms, tax settings, recurring amounts
- Do not include greetings, questions or one-off requests
- Importance 0.9+ for legal or tax obligations, 0.5 for ordinary business details, 0.2 for trivia
- Return [] when there is nothing worth remembering`

const preferencesPrompt = `You extract user preferences from a conversation between a small-business owner and their accounting assistant.

Return ONLY a JSON array, no prose and no code fences:
[{"key": "<snake_case key>", "value": "<value>", "confidence": <number between 0 and 1>}]

Rules:
- Preferences are how the user wants things done: default currency, invoice language, payment reminder tone, report format
- Use stable keys so the same preference maps to the same key next time (e.g. "default_currency", "invoice_language")
- Confidence 0.9+ only when the user stated it explicitly, lower when inferred
- Return [] when no preference is expressed`

// ExtractFacts returns the facts the provider found in turns.
func (e *Extractor) ExtractFacts(ctx context.Context, turns []model.Turn) ([]Fact, error) {
	raw, err := e.complete(ctx, factsPrompt, turns)
	if err != nil {
		return nil, err
	}
	return ParseFacts(raw)
}

// ExtractPreferences returns the preferences the provider found in turns.
func (e *Extractor) ExtractPreferences(ctx context.Context, turns []model.Turn) ([]Preference, error) {
	raw, err := e.complete(ctx, preferencesPrompt, turns)
	if err != nil {
		return nil, err
	}
	return ParsePreferences(raw)
}

func (e *Extractor) complete(ctx context.Context, systemPrompt string, turns []model.Turn) (string, error) {
	if e == nil || e.provider == nil {
		return "", fmt.Errorf("LLM provider is nil")
	}
	conversation := FormatTurns(turns, e.config.MaxTurnChars)
	if conversation == "" {
		return "[]", nil
	}

	resp, err := e.provider.ChatCompletion(ctx, e.config.Model, []llminterface.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: "Conversation:\n\n" + conversation},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("LLM request failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("no response from LLM")
	}
	return resp.Content, nil
}

// ParseFacts decodes a strict JSON array of facts. Entries with empty text are dropped
// and importance is clamped to [0,1].
func ParseFacts(raw string) ([]Fact, error) {
	var facts []Fact
	if err := decodeArray(raw, &facts); err != nil {
		return nil, err
	}
	out := facts[:0]
	for _, f := range facts {
		f.Fact = strings.TrimSpace(f.Fact)
		if f.Fact == "" {
			continue
		}
		f.Importance = model.Clamp01(f.Importance)
		out = append(out, f)
	}
	return out, nil
}

// ParsePreferences decodes a strict JSON array of preferences. Entries without a key
// are dropped and confidence is clamped to [0,1].
func ParsePreferences(raw string) ([]Preference, error) {
	var prefs []Preference
	if err := decodeArray(raw, &prefs); err != nil {
		return nil, err
	}
	out := prefs[:0]
	for _, p := range prefs {
		p.Key = strings.TrimSpace(p.Key)
		if p.Key == "" {
			continue
		}
		p.Confidence = model.Clamp01(p.Confidence)
		out = append(out, p)
	}
	return out, nil
}

func decodeArray(raw string, v any) error {
	body := stripCodeFence(strings.TrimSpace(raw))
	if body == "" {
		return fmt.Errorf("%w: empty output", ErrExtractionParse)
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionParse, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after array", ErrExtractionParse)
	}
	return nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// FormatTurns renders turns as "role: content" lines for prompting.
// Long turns are truncated to maxChars runes.
func FormatTurns(turns []model.Turn, maxChars int) string {
	var b strings.Builder
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" || t.Role == model.RoleSystem {
			continue
		}
		if maxChars > 0 {
			if r := []rune(content); len(r) > maxChars {
				content = string(r[:maxChars]) + "..."
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", t.Role, content)
	}
	return b.String()
}
