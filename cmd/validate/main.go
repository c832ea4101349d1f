package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/traindiag/traindiag/internal/bootstrap"
	"github.com/traindiag/traindiag/internal/config"
	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/services"
	"github.com/traindiag/traindiag/internal/store"
)

// validate checks the configuration end to end and prints a report: config
// values, rule-file integrity, LLM reachability and model availability, and
// the retrieval store backend. Exits non-zero when anything fails.
func main() {
	logger.Initialize()
	cfg := config.Load()

	ok := true
	ok = checkConfig(cfg) && ok
	ok = checkRuleStore(cfg) && ok
	ok = checkLLM(cfg) && ok
	ok = checkMemory(cfg) && ok

	if !ok {
		fmt.Println("\nConfiguration validation FAILED.")
		os.Exit(1)
	}
	fmt.Println("\nConfiguration validation passed.")
}

func checkConfig(cfg *config.Config) bool {
	fmt.Println("Checking configuration...")
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  FAIL %v\n", err)
		return false
	}
	fmt.Printf("  ok   ollama=%s model=%s embed=%s\n", cfg.OllamaURL, cfg.LLMModel, cfg.EmbedModel)
	fmt.Printf("  ok   log=%s chunk=%d rules=%s memory=%s\n", cfg.LogFilePath, cfg.ChunkSize, cfg.RulesDir, cfg.MemoryBackend)

	if _, err := os.Stat(cfg.LogFilePath); err != nil {
		fmt.Printf("  FAIL log source %s: %v\n", cfg.LogFilePath, err)
		return false
	}
	fmt.Printf("  ok   log source readable\n")
	return true
}

func checkRuleStore(cfg *config.Config) bool {
	fmt.Println("Checking rule store...")
	rules := store.NewRuleStore(cfg.RulesDir)
	if err := rules.Load(); err != nil {
		fmt.Printf("  FAIL %v\n", err)
		return false
	}

	bad := 0
	for _, rule := range rules.FilterRules() {
		if err := rule.Validate(); err != nil {
			fmt.Printf("  FAIL filter rule %s: %v\n", rule.ID, err)
			bad++
		}
	}
	for _, rule := range rules.DiagnosisRules() {
		if err := rule.Validate(); err != nil {
			fmt.Printf("  FAIL diagnosis rule %s: %v\n", rule.ID, err)
			bad++
		}
	}
	if bad > 0 {
		return false
	}
	fmt.Printf("  ok   %d filter rule(s), %d diagnosis rule(s)\n",
		len(rules.FilterRules()), len(rules.DiagnosisRules()))
	return true
}

func checkLLM(cfg *config.Config) bool {
	fmt.Println("Checking language model boundary...")
	llm := services.NewLLMService(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := llm.CheckHealth(ctx); err != nil {
		fmt.Printf("  FAIL %v\n", err)
		fmt.Printf("       is Ollama running at %s?\n", cfg.OllamaURL)
		return false
	}
	fmt.Println("  ok   endpoint reachable")

	models, err := llm.AvailableModels(ctx)
	if err != nil {
		fmt.Printf("  FAIL listing models: %v\n", err)
		return false
	}
	ok := true
	for _, want := range []string{cfg.LLMModel, cfg.EmbedModel} {
		if containsModel(models, want) {
			fmt.Printf("  ok   model %s available\n", want)
		} else {
			fmt.Printf("  FAIL model %s not available (try: ollama pull %s)\n", want, want)
			ok = false
		}
	}
	return ok
}

func checkMemory(cfg *config.Config) bool {
	fmt.Println("Checking retrieval store...")
	llm := services.NewLLMService(cfg)
	mem, err := bootstrap.MemoryStore(cfg, llm)
	if err != nil {
		fmt.Printf("  FAIL %v\n", err)
		return false
	}
	defer mem.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	recent, err := mem.Recent(ctx, 1)
	if err != nil {
		fmt.Printf("  FAIL %v\n", err)
		return false
	}
	if len(recent) > 0 {
		fmt.Printf("  ok   backend %s reachable, memories present\n", cfg.MemoryBackend)
	} else {
		fmt.Printf("  ok   backend %s reachable, store empty\n", cfg.MemoryBackend)
	}
	return true
}

func containsModel(models []string, name string) bool {
	for _, m := range models {
		if m == name || m == name+":latest" {
			return true
		}
	}
	return false
}
