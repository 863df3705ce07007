// Package config loads ledgermind settings from an optional YAML file and
// LEDGERMIND_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "LEDGERMIND_"
	maxConfigFileSize = 1024 * 1024
)

// Config holds the application configuration
type Config struct {
	Reasoning   ReasoningConfig   `koanf:"reasoning"`
	Memory      MemoryConfig      `koanf:"memory"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Gate        GateConfig        `koanf:"gate"`
	Audit       AuditConfig       `koanf:"audit"`
	Storage     StorageConfig     `koanf:"storage"`
	LLM         LLMConfig         `koanf:"llm"`
	HTTP        HTTPConfig        `koanf:"http"`
	Log         LogConfig         `koanf:"log"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
}

// ReasoningConfig bounds the tool-calling loop.
type ReasoningConfig struct {
	MaxIterations    int           `koanf:"max_iterations"`
	ProviderTimeout  time.Duration `koanf:"provider_timeout"`
	ToolTimeout      time.Duration `koanf:"tool_timeout"`
	MaxParallelTools int           `koanf:"max_parallel_tools"`
	Model            string        `koanf:"model"`
	RecallContext    bool          `koanf:"recall_context"`
}

// MemoryConfig holds recall and maintenance thresholds.
type MemoryConfig struct {
	RecallLimit            int           `koanf:"recall_limit"`
	MinSimilarity          float64       `koanf:"min_similarity"`
	ConsolidationThreshold int           `koanf:"consolidation_threshold"`
	DuplicateSimilarity    float64       `koanf:"duplicate_similarity"`
	ForgetMaxAge           time.Duration `koanf:"forget_max_age"`
	ForgetMinImportance    float64       `koanf:"forget_min_importance"`
	ForgetMinAccessCount   int           `koanf:"forget_min_access_count"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider  string `koanf:"provider"` // openai or hash
	Model     string `koanf:"model"`
	Dimension int    `koanf:"dimension"`
}

// GateConfig holds confirmation thresholds.
type GateConfig struct {
	BatchThreshold     int     `koanf:"batch_threshold"`
	ValueThreshold     float64 `koanf:"value_threshold"`
	ClassificationFile string  `koanf:"classification_file"`
}

// AuditConfig controls summary sizes and the action log backend.
type AuditConfig struct {
	Backend          string `koanf:"backend"` // sqlite or mongodb
	InputSummaryMax  int    `koanf:"input_summary_max"`
	OutputSummaryMax int    `koanf:"output_summary_max"`
	TopTools         int    `koanf:"top_tools"`
}

// StorageConfig holds database locations.
type StorageConfig struct {
	SQLitePath    string `koanf:"sqlite_path"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`
}

// LLMConfig configures OpenAI-compatible endpoints.
type LLMConfig struct {
	APIKey          string        `koanf:"api_key"`
	BaseURL         string        `koanf:"base_url"`
	ExtractionModel string        `koanf:"extraction_model"`
	BackupBaseURLs  []string      `koanf:"backup_base_urls"`
	BackupCooldown  time.Duration `koanf:"backup_cooldown"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

// LogConfig selects level and encoding.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MaintenanceConfig schedules periodic consolidation and forgetting.
type MaintenanceConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := defaults()
	cfg.deriveModels()
	return cfg
}

// Load starts from the defaults, overlays configPath (if non-empty and
// present) and then LEDGERMIND_* environment variables, and validates.
// Keys that are set keep their value even when it is zero.
//
// Environment variables split on the first underscore after the prefix:
//
//	LEDGERMIND_REASONING_MAX_ITERATIONS -> reasoning.max_iterations
//	LEDGERMIND_MEMORY_MIN_SIMILARITY    -> memory.min_similarity
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.deriveModels()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func defaults() *Config {
	return &Config{
		Reasoning: ReasoningConfig{
			MaxIterations:    10,
			ProviderTimeout:  60 * time.Second,
			ToolTimeout:      30 * time.Second,
			MaxParallelTools: 4,
			Model:            "gpt-4o-mini",
		},
		Memory: MemoryConfig{
			RecallLimit:            5,
			MinSimilarity:          0.7,
			ConsolidationThreshold: 100,
			DuplicateSimilarity:    0.95,
			ForgetMaxAge:           90 * 24 * time.Hour,
			ForgetMinImportance:    0.3,
			ForgetMinAccessCount:   3,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Gate: GateConfig{
			BatchThreshold: 10,
			ValueThreshold: 10000,
		},
		Audit: AuditConfig{
			Backend:          "sqlite",
			InputSummaryMax:  500,
			OutputSummaryMax: 1000,
			TopTools:         10,
		},
		Storage: StorageConfig{
			SQLitePath:    "./ledgermind.db",
			MongoDatabase: "ledgermind",
		},
		LLM: LLMConfig{
			BackupCooldown: 5 * time.Minute,
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Maintenance: MaintenanceConfig{
			Interval: 6 * time.Hour,
		},
	}
}

// deriveModels fills settings that default to another setting's value.
func (c *Config) deriveModels() {
	if c.LLM.ExtractionModel == "" {
		c.LLM.ExtractionModel = c.Reasoning.Model
	}
}

// Validate checks ranges. Zero is accepted wherever it has a meaning.
func (c *Config) Validate() error {
	if c.Reasoning.MaxIterations < 1 {
		return fmt.Errorf("reasoning.max_iterations must be >= 1, got %d", c.Reasoning.MaxIterations)
	}
	if c.Reasoning.MaxParallelTools < 1 {
		return fmt.Errorf("reasoning.max_parallel_tools must be >= 1, got %d", c.Reasoning.MaxParallelTools)
	}
	if c.Reasoning.ProviderTimeout <= 0 || c.Reasoning.ToolTimeout <= 0 {
		return fmt.Errorf("reasoning timeouts must be positive, got provider=%v tool=%v", c.Reasoning.ProviderTimeout, c.Reasoning.ToolTimeout)
	}
	if c.Memory.RecallLimit < 1 {
		return fmt.Errorf("memory.recall_limit must be >= 1, got %d", c.Memory.RecallLimit)
	}
	if c.Memory.MinSimilarity < -1 || c.Memory.MinSimilarity > 1 {
		return fmt.Errorf("memory.min_similarity must be in [-1,1], got %v", c.Memory.MinSimilarity)
	}
	if c.Memory.DuplicateSimilarity <= 0 || c.Memory.DuplicateSimilarity > 1 {
		return fmt.Errorf("memory.duplicate_similarity must be in (0,1], got %v", c.Memory.DuplicateSimilarity)
	}
	if c.Memory.ForgetMinImportance < 0 || c.Memory.ForgetMinImportance > 1 {
		return fmt.Errorf("memory.forget_min_importance must be in [0,1], got %v", c.Memory.ForgetMinImportance)
	}
	if c.Memory.ForgetMaxAge <= 0 {
		return fmt.Errorf("memory.forget_max_age must be positive, got %v", c.Memory.ForgetMaxAge)
	}
	if c.Memory.ForgetMinAccessCount < 0 {
		return fmt.Errorf("memory.forget_min_access_count must be >= 0, got %d", c.Memory.ForgetMinAccessCount)
	}
	if c.Gate.BatchThreshold < 0 || c.Gate.ValueThreshold < 0 {
		return fmt.Errorf("gate thresholds must be >= 0, got batch=%d value=%v", c.Gate.BatchThreshold, c.Gate.ValueThreshold)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding.dimension must be >= 1, got %d", c.Embedding.Dimension)
	}
	switch c.Embedding.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("embedding.provider must be openai or hash, got %q", c.Embedding.Provider)
	}
	switch c.Audit.Backend {
	case "sqlite", "mongodb":
	default:
		return fmt.Errorf("audit.backend must be sqlite or mongodb, got %q", c.Audit.Backend)
	}
	if c.Audit.Backend == "mongodb" && c.Storage.MongoURI == "" {
		return errors.New("storage.mongo_uri is required when audit.backend is mongodb")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	return nil
}

// GetAddress returns the HTTP server address
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
