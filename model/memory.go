package model

import "time"

// MemoryType classifies a stored memory.
type MemoryType string

const (
	MemoryConversation MemoryType = "conversation"
	MemoryFact         MemoryType = "fact"
	MemoryPreference   MemoryType = "preference"
	MemoryTask         MemoryType = "task"
)

// Valid reports whether t is one of the known memory types.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryConversation, MemoryFact, MemoryPreference, MemoryTask:
		return true
	}
	return false
}

// Memory is a semantically searchable piece of knowledge. Content is
// immutable after creation; only access metadata changes.
type Memory struct {
	ID              string     `json:"id" bson:"_id"`
	Content         string     `json:"content" bson:"content"`
	Embedding       []float32  `json:"-" bson:"embedding"`
	MemoryType      MemoryType `json:"memory_type" bson:"memory_type"`
	SourceMessageID string     `json:"source_message_id,omitempty" bson:"source_message_id,omitempty"`
	Importance      float64    `json:"importance" bson:"importance"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	LastAccessedAt  time.Time  `json:"last_accessed_at" bson:"last_accessed_at"`
	AccessCount     int        `json:"access_count" bson:"access_count"`
}

// MemoryWithScore pairs a memory with its similarity to a recall query.
type MemoryWithScore struct {
	Memory
	Similarity float64 `json:"similarity"`
}

// UserPreference is a learned key/value preference. Key is unique.
type UserPreference struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MemoryStats summarises the memory store.
type MemoryStats struct {
	Total         int                `json:"total"`
	ByType        map[MemoryType]int `json:"by_type"`
	AvgImportance float64            `json:"avg_importance"`
	Oldest        *time.Time         `json:"oldest,omitempty"`
	Newest        *time.Time         `json:"newest,omitempty"`
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
