package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/traindiag/traindiag/internal/bootstrap"
	"github.com/traindiag/traindiag/internal/config"
	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/services"
	"github.com/traindiag/traindiag/internal/store"
)

// reset clears all learned state: the filter and diagnosis rule files and
// the retrieval store. Refuses to run without --yes.
func main() {
	yes := flag.Bool("yes", false, "confirm deletion of all learned rules and memories")
	flag.Parse()

	logger.Initialize()
	cfg := config.Load()

	if !*yes {
		fmt.Println("This deletes all learned filter rules, diagnosis rules and stored memories.")
		fmt.Println("Re-run with --yes to confirm.")
		os.Exit(1)
	}

	rules := store.NewRuleStore(cfg.RulesDir)
	if err := rules.Load(); err != nil {
		logger.Fatal("Failed to load rule store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	filterCount := len(rules.FilterRules())
	diagnosisCount := len(rules.DiagnosisRules())
	if err := rules.Reset(); err != nil {
		logger.Fatal("Failed to reset rule store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	fmt.Printf("Cleared %d filter rule(s) and %d diagnosis rule(s) under %s.\n",
		filterCount, diagnosisCount, cfg.RulesDir)

	llm := services.NewLLMService(cfg)
	mem, err := bootstrap.MemoryStore(cfg, llm)
	if err != nil {
		logger.Fatal("Failed to open retrieval store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer mem.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mem.Reset(ctx); err != nil {
		logger.Fatal("Failed to reset retrieval store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	fmt.Printf("Cleared retrieval store (backend %s).\n", cfg.MemoryBackend)
}
