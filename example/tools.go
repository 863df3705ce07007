package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ghiac/ledgermind/model"
)

// books is a toy in-memory ledger the example tools operate on.
type books struct {
	mu       sync.Mutex
	invoices map[string]invoice
	next     int
}

type invoice struct {
	ID       string
	Customer string
	Amount   float64
	Status   string
}

func newBooks() *books {
	return &books{
		invoices: map[string]invoice{
			"INV-1": {ID: "INV-1", Customer: "Acme Ltd", Amount: 1200, Status: "open"},
			"INV-2": {ID: "INV-2", Customer: "Globex", Amount: 860, Status: "paid"},
		},
		next: 3,
	}
}

func (b *books) register(registry *model.FunctionRegistry) {
	registry.MustRegister(model.NewFuncTool("list_invoices", "List invoices, optionally filtered by status",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{"type": "string", "enum": []string{"open", "paid"}},
			},
		}, b.listInvoices))

	registry.MustRegister(model.NewFuncTool("create_invoice", "Create an invoice for a customer",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer": map[string]any{"type": "string"},
				"amount":   map[string]any{"type": "number"},
			},
			"required": []string{"customer", "amount"},
		}, b.createInvoice))

	registry.MustRegister(model.NewFuncTool("submit_einvoice", "Submit an invoice to the tax authority", nil,
		func(ctx context.Context, args map[string]any) (model.ToolResult, error) {
			return model.ToolResult{Success: true, Result: "submitted"}, nil
		}))
}

func (b *books) listInvoices(ctx context.Context, args map[string]any) (model.ToolResult, error) {
	status, _ := args["status"].(string)

	b.mu.Lock()
	defer b.mu.Unlock()

	var lines []string
	for _, inv := range b.invoices {
		if status != "" && inv.Status != status {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s %.2f %s", inv.ID, inv.Customer, inv.Amount, inv.Status))
	}
	if len(lines) == 0 {
		return model.ToolResult{Success: true, Result: "no invoices"}, nil
	}
	return model.ToolResult{Success: true, Result: strings.Join(lines, "\n")}, nil
}

func (b *books) createInvoice(ctx context.Context, args map[string]any) (model.ToolResult, error) {
	customer, _ := args["customer"].(string)
	amount, _ := args["amount"].(float64)
	if customer == "" || amount <= 0 {
		return model.ToolResult{Success: false, Result: "customer and a positive amount are required"}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("INV-%d", b.next)
	b.next++
	b.invoices[id] = invoice{ID: id, Customer: customer, Amount: amount, Status: "open"}
	return model.ToolResult{Success: true, Result: "created " + id, Data: map[string]any{"id": id}}, nil
}
