package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/traindiag/traindiag/internal/bootstrap"
	"github.com/traindiag/traindiag/internal/config"
	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/models"
)

// runner streams the sample training log through the full diagnosis
// pipeline and prints every delivered diagnosis and recovery action.
func main() {
	logger.Initialize()
	cfg := config.Load()

	pipeline, err := bootstrap.Build(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline", map[string]interface{}{
			"error": err.Error(),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		logger.Warn("Received shutdown signal, stopping stream...", nil)
		cancel()
	}()

	logger.Info("Starting log stream simulation", map[string]interface{}{
		"log_file":   cfg.LogFilePath,
		"chunk_size": cfg.ChunkSize,
	})

	diagnoses, err := pipeline.Orchestrator.Run(ctx)
	if err != nil {
		logger.Error("Stream ended with error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if len(diagnoses) == 0 {
		fmt.Println("\nStream finished without failures.")
		return
	}

	for i, d := range diagnoses {
		fmt.Printf("\n--- Diagnosis %d ---\n", i+1)
		fmt.Printf("  Line:        %s\n", d.Line)
		fmt.Printf("  Root Cause:  %s\n", d.Record.RootCause)
		fmt.Printf("  Error Type:  %s\n", d.Record.ErrorType)
		fmt.Printf("  Source:      %s\n", d.Record.Source)
		fmt.Printf("  Provenance:  %s\n", d.Record.Provenance)
		fmt.Printf("  Recoverable: %t\n", d.Record.IsRecoverable)
		if d.Action.Kind == models.ActionAutoRecoverable {
			fmt.Printf("  Action:      [auto] %s\n", d.Action.Description)
		} else {
			fmt.Printf("  Action:      [manual] %s\n", d.Action.Description)
		}
	}
	fmt.Printf("\n%d failure(s) diagnosed. Learned rules persisted under %s.\n", len(diagnoses), cfg.RulesDir)
}
