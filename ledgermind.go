// Package ledgermind wires the reasoning engine, confirmation gate, action
// log and memory store into one instance built from a config.Config.
package ledgermind

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/ledgermind/audit"
	"github.com/ghiac/ledgermind/config"
	"github.com/ghiac/ledgermind/embedding"
	"github.com/ghiac/ledgermind/engine"
	llminterface "github.com/ghiac/ledgermind/llm-interface"
	"github.com/ghiac/ledgermind/llmutils"
	"github.com/ghiac/ledgermind/log"
	"github.com/ghiac/ledgermind/memory"
	"github.com/ghiac/ledgermind/model"
	"github.com/ghiac/ledgermind/policy"
	"github.com/ghiac/ledgermind/server"
	"github.com/ghiac/ledgermind/store"
)

// LedgerMind is the main entry point for the library.
type LedgerMind struct {
	config *config.Config

	sqlite     *store.SQLiteStore
	mongo      *store.MongoDBStore
	tools      *model.FunctionRegistry
	classifier *policy.Classifier
	gate       *policy.Gate
	audit      *audit.Log
	memory     *memory.Service
	engine     *engine.Engine
	server     *server.Server

	schedulerMu sync.Mutex
	scheduler   *memory.Scheduler
}

// Options overrides components that New would otherwise build from config.
type Options struct {
	// Provider replaces the OpenAI primary and backup chain.
	Provider llminterface.Provider
	// Embedder replaces the configured embedding provider.
	Embedder embedding.Provider
	// Tools is the registry the engine executes. A new empty registry is
	// created when nil; register tools on it through Tools().
	Tools *model.FunctionRegistry
	// Confirmer approves gated calls. Without one every gated call is withheld.
	Confirmer engine.Confirmer
}

// New builds an instance from cfg.
func New(cfg *config.Config) (*LedgerMind, error) {
	return NewWithOptions(cfg, nil)
}

// NewWithOptions builds an instance from cfg with component overrides.
func NewWithOptions(cfg *config.Config, opts *Options) (*LedgerMind, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts == nil {
		opts = &Options{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := log.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}

	lm := &LedgerMind{config: cfg}

	sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	lm.sqlite = sqlite

	var auditStore store.AuditStore = sqlite
	if cfg.Audit.Backend == "mongodb" {
		mongo, err := store.NewMongoDBStore(store.MongoDBStoreConfig{
			URI:      cfg.Storage.MongoURI,
			Database: cfg.Storage.MongoDatabase,
		})
		if err != nil {
			_ = sqlite.Close()
			return nil, fmt.Errorf("failed to open mongodb audit store: %w", err)
		}
		lm.mongo = mongo
		auditStore = mongo
	}

	lm.classifier, err = newClassifier(cfg.Gate.ClassificationFile)
	if err != nil {
		_ = lm.Close()
		return nil, err
	}
	lm.gate = policy.NewGate(lm.classifier, policy.GateConfig{
		BatchThreshold: cfg.Gate.BatchThreshold,
		ValueThreshold: cfg.Gate.ValueThreshold,
	})
	lm.audit = audit.New(auditStore, lm.classifier, audit.Config{
		InputSummaryMax:  cfg.Audit.InputSummaryMax,
		OutputSummaryMax: cfg.Audit.OutputSummaryMax,
		TopTools:         cfg.Audit.TopTools,
	})

	provider := opts.Provider
	if provider == nil {
		provider = newProviderChain(cfg.LLM)
	}

	embedder := opts.Embedder
	if embedder == nil {
		embedder = newEmbedder(cfg)
	}

	extractor := llmutils.NewExtractor(provider, llmutils.ExtractorConfig{Model: cfg.LLM.ExtractionModel})
	lm.memory = memory.NewService(sqlite, embedder, extractor, memory.Config{
		RecallLimit:            cfg.Memory.RecallLimit,
		MinSimilarity:          cfg.Memory.MinSimilarity,
		ConsolidationThreshold: cfg.Memory.ConsolidationThreshold,
		DuplicateSimilarity:    cfg.Memory.DuplicateSimilarity,
		ForgetMaxAge:           cfg.Memory.ForgetMaxAge,
		ForgetMinImportance:    cfg.Memory.ForgetMinImportance,
		ForgetMinAccessCount:   cfg.Memory.ForgetMinAccessCount,
	})

	lm.tools = opts.Tools
	if lm.tools == nil {
		lm.tools = model.NewFunctionRegistry()
	}
	if unclassified := lm.UnclassifiedTools(); len(unclassified) > 0 {
		log.Log.Warnf("[LedgerMind] ⚠️  Tools without a risk classification are treated as low risk reads | Tools: %v", unclassified)
	}

	engineOpts := []engine.Option{engine.WithGate(lm.gate), engine.WithAuditor(lm.audit)}
	if cfg.Reasoning.RecallContext {
		engineOpts = append(engineOpts, engine.WithRecaller(lm.memory))
	}
	if opts.Confirmer != nil {
		engineOpts = append(engineOpts, engine.WithConfirmer(opts.Confirmer))
	}
	lm.engine = engine.New(provider, lm.tools, engine.Config{
		Model:            cfg.Reasoning.Model,
		MaxIterations:    cfg.Reasoning.MaxIterations,
		ProviderTimeout:  cfg.Reasoning.ProviderTimeout,
		ToolTimeout:      cfg.Reasoning.ToolTimeout,
		MaxParallelTools: cfg.Reasoning.MaxParallelTools,
		RecallLimit:      cfg.Memory.RecallLimit,
	}, engineOpts...)

	lm.server = server.New(lm.audit, lm.memory, cfg.GetAddress())

	log.Log.Infof("[LedgerMind] ✅ Initialized | Model: %s | Embedding: %s | Audit: %s | SQLite: %s",
		cfg.Reasoning.Model, cfg.Embedding.Provider, cfg.Audit.Backend, sqlite.Path())
	return lm, nil
}

func newClassifier(path string) (*policy.Classifier, error) {
	if path == "" {
		return policy.NewClassifier(), nil
	}
	table, err := policy.LoadTable(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load classification file: %w", err)
	}
	classifier := policy.NewClassifier(table)
	log.Log.Infof("[LedgerMind] 📋 Loaded %d tool classifications from %s | Classified tools: %d", len(table), path, len(classifier.Names()))
	return classifier, nil
}

// newProviderChain builds the OpenAI primary plus one backup per configured
// base URL. Requests carry the session ID header.
func newProviderChain(cfg config.LLMConfig) llminterface.Provider {
	httpClient := llmutils.NewHTTPClientWithSessionHeader(nil)
	primary := llminterface.NewOpenAIProvider(llminterface.OpenAIConfig{
		Name:       "primary",
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		HTTPClient: httpClient,
	})
	backups := make([]llminterface.Backup, 0, len(cfg.BackupBaseURLs))
	for i, baseURL := range cfg.BackupBaseURLs {
		name := fmt.Sprintf("backup-%d", i+1)
		backups = append(backups, llminterface.Backup{
			Provider: llminterface.NewOpenAIProvider(llminterface.OpenAIConfig{
				Name:       name,
				APIKey:     cfg.APIKey,
				BaseURL:    baseURL,
				HTTPClient: httpClient,
			}),
			Name: name,
		})
	}
	return llminterface.NewChain(primary, backups, cfg.BackupCooldown)
}

func newEmbedder(cfg *config.Config) embedding.Provider {
	if cfg.Embedding.Provider == "hash" {
		return embedding.NewHashProvider(cfg.Embedding.Dimension)
	}
	return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	})
}

// Config returns the configuration the instance was built from.
func (lm *LedgerMind) Config() *config.Config { return lm.config }

// Tools returns the tool registry the engine executes.
func (lm *LedgerMind) Tools() *model.FunctionRegistry { return lm.tools }

// UnclassifiedTools returns the registered tools missing from the risk
// classification table, sorted. The gate treats them as low risk reads.
func (lm *LedgerMind) UnclassifiedTools() []string {
	var missing []string
	for _, name := range lm.tools.GetAllRegistered() {
		if !lm.classifier.Known(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Engine returns the reasoning engine.
func (lm *LedgerMind) Engine() *engine.Engine { return lm.engine }

// Memory returns the memory service.
func (lm *LedgerMind) Memory() *memory.Service { return lm.memory }

// Audit returns the action log.
func (lm *LedgerMind) Audit() *audit.Log { return lm.audit }

// Gate returns the confirmation gate.
func (lm *LedgerMind) Gate() *policy.Gate { return lm.gate }

// Reason runs one reasoning invocation.
func (lm *LedgerMind) Reason(ctx context.Context, rc engine.RunContext) (*model.ReasoningResult, error) {
	return lm.engine.Reason(ctx, rc)
}

// ReasonStream runs one reasoning invocation and streams its steps.
func (lm *LedgerMind) ReasonStream(ctx context.Context, rc engine.RunContext) (<-chan model.ReasoningStep, *engine.Future) {
	return lm.engine.ReasonStream(ctx, rc)
}

// Learn extracts facts and preferences from a finished conversation.
// Extraction failures are logged by the memory service and yield nothing.
func (lm *LedgerMind) Learn(ctx context.Context, turns []model.Turn) ([]*model.Memory, []*model.UserPreference, error) {
	facts, err := lm.memory.ExtractFacts(ctx, turns)
	if err != nil {
		return nil, nil, err
	}
	prefs, err := lm.memory.LearnPreferences(ctx, turns)
	if err != nil {
		return facts, nil, err
	}
	return facts, prefs, nil
}

// RegisterRoutes registers the review, statistics and memory routes on router.
func (lm *LedgerMind) RegisterRoutes(router *gin.Engine) {
	lm.server.RegisterRoutes(router)
}

// Handler returns a standalone HTTP handler with every route registered.
func (lm *LedgerMind) Handler() http.Handler {
	return lm.server.Handler()
}

// Serve starts the HTTP server and blocks until it stops.
func (lm *LedgerMind) Serve() error {
	return lm.server.Start()
}

// Shutdown stops the HTTP server.
func (lm *LedgerMind) Shutdown(ctx context.Context) error {
	return lm.server.Shutdown(ctx)
}

// StartMaintenance starts periodic consolidation and forgetting. It is a
// no-op when maintenance is disabled or already running.
func (lm *LedgerMind) StartMaintenance(ctx context.Context) {
	if !lm.config.Maintenance.Enabled {
		log.Log.Infof("[LedgerMind] ℹ️  Memory maintenance disabled")
		return
	}

	lm.schedulerMu.Lock()
	defer lm.schedulerMu.Unlock()
	if lm.scheduler != nil {
		return
	}
	lm.scheduler = memory.NewScheduler(lm.memory, memory.SchedulerConfig{
		Interval:   lm.config.Maintenance.Interval,
		RunOnStart: true,
	})
	lm.scheduler.Start(ctx)
}

// StopMaintenance stops the maintenance scheduler if it is running.
func (lm *LedgerMind) StopMaintenance() {
	lm.schedulerMu.Lock()
	defer lm.schedulerMu.Unlock()
	if lm.scheduler != nil {
		lm.scheduler.Stop()
		lm.scheduler = nil
	}
}

// Close stops maintenance and closes the stores.
func (lm *LedgerMind) Close() error {
	lm.StopMaintenance()

	var errs []error
	if lm.mongo != nil {
		if err := lm.mongo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close mongodb store: %w", err))
		}
	}
	if lm.sqlite != nil {
		if err := lm.sqlite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sqlite store: %w", err))
		}
	}
	_ = log.Log.Sync()
	return errors.Join(errs...)
}
