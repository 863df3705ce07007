// Command example runs one reasoning turn against an OpenAI-compatible
// endpoint with a toy invoice book, asking on the terminal before any
// gated call.
//
//	OPENAI_API_KEY=... go run ./example "Invoice Acme 1500 for consulting"
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/ghiac/ledgermind"
	"github.com/ghiac/ledgermind/config"
	"github.com/ghiac/ledgermind/engine"
	"github.com/ghiac/ledgermind/model"
)

func main() {
	query := "Which invoices are still open?"
	if len(os.Args) > 1 {
		query = strings.Join(os.Args[1:], " ")
	}

	cfg, err := config.Load(os.Getenv("LEDGERMIND_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Reasoning.RecallContext = true

	registry := model.NewFunctionRegistry()
	newBooks().register(registry)

	// e-invoicing is switched off until the tax authority credentials are set up
	if err := registry.DisableToolTemporarily("submit_einvoice", "e-invoicing is not configured"); err != nil {
		log.Fatalf("Failed to disable tool: %v", err)
	}

	lm, err := ledgermind.NewWithOptions(cfg, &ledgermind.Options{
		Tools:     registry,
		Confirmer: terminalConfirmer(),
	})
	if err != nil {
		log.Fatalf("Failed to create LedgerMind: %v", err)
	}
	defer lm.Close()

	ctx := context.Background()
	steps, future := lm.ReasonStream(ctx, engine.RunContext{
		Query:        query,
		SystemPrompt: "You are a careful bookkeeping assistant for a small business.",
		SessionID:    "example",
	})
	for step := range steps {
		fmt.Printf("[%s] %s\n", step.Type, step.Content)
	}

	result, err := future.Wait(ctx)
	if err != nil {
		log.Fatalf("Reasoning failed: %v", err)
	}
	fmt.Printf("\nAnswer: %s\nConfidence: %.2f | Tools: %v | Sources: %v\n",
		result.FinalAnswer, result.Confidence, result.ToolsUsed, result.Sources)

	facts, prefs, err := lm.Learn(ctx, []model.Turn{
		{ID: "q", Role: model.RoleUser, Content: query},
		{ID: "a", Role: model.RoleAssistant, Content: result.FinalAnswer},
	})
	if err != nil {
		log.Fatalf("Learning failed: %v", err)
	}
	fmt.Printf("Learned %d facts and %d preferences\n", len(facts), len(prefs))
}

func terminalConfirmer() engine.Confirmer {
	in := bufio.NewReader(os.Stdin)
	var mu sync.Mutex
	return engine.ConfirmerFunc(func(ctx context.Context, req engine.ConfirmationRequest) (bool, error) {
		// one prompt at a time; gated calls of a turn arrive concurrently
		mu.Lock()
		defer mu.Unlock()
		fmt.Printf("\n%s wants to run %s(%v)\nReason: %s\nApprove? [y/N] ", req.SessionID, req.ToolName, req.Args, req.Reason)
		line, err := in.ReadString('\n')
		if err != nil {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}
