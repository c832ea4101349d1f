// Package bootstrap assembles the pipeline from configuration. Every
// command builds its components here so the wiring stays in one place.
package bootstrap

import (
	"fmt"

	"github.com/traindiag/traindiag/internal/config"
	"github.com/traindiag/traindiag/internal/db"
	"github.com/traindiag/traindiag/internal/memory"
	"github.com/traindiag/traindiag/internal/services"
	"github.com/traindiag/traindiag/internal/store"
)

// Pipeline is the assembled diagnosis system.
type Pipeline struct {
	Config       *config.Config
	Rules        *store.RuleStore
	Memory       memory.Store
	LLM          *services.LLMService
	Orchestrator *services.Orchestrator
}

// Build validates the configuration, loads the rule store, opens the
// retrieval store and wires the services together.
func Build(cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rules := store.NewRuleStore(cfg.RulesDir)
	if err := rules.Load(); err != nil {
		return nil, err
	}

	llm := services.NewLLMService(cfg)

	mem, err := MemoryStore(cfg, llm)
	if err != nil {
		return nil, err
	}

	filter := services.NewLogFilter(rules, cfg.PatternBufferSize)
	diagnoser := services.NewRuleDiagnoser(rules)
	reasoner := services.NewFailureReasoner(llm, mem, cfg.RetrievalK, cfg.MaxParseRetries, cfg.SelfConsistency)
	patterns := services.NewPatternAgent(llm, cfg.MaxParseRetries, cfg.SelfConsistency)

	return &Pipeline{
		Config:       cfg,
		Rules:        rules,
		Memory:       mem,
		LLM:          llm,
		Orchestrator: services.NewOrchestrator(cfg, rules, mem, filter, diagnoser, reasoner, patterns),
	}, nil
}

// MemoryStore opens the configured retrieval store backend.
func MemoryStore(cfg *config.Config, embedder memory.Embedder) (memory.Store, error) {
	switch cfg.MemoryBackend {
	case config.MemoryBackendPostgres:
		database, err := db.Connect(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(database); err != nil {
			return nil, err
		}
		return memory.NewPostgresStore(database, embedder), nil
	case config.MemoryBackendLocal:
		return memory.NewLocalStore(cfg.MemoryPath, embedder)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.MemoryBackend)
	}
}
