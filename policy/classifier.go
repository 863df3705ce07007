// Package policy classifies tools by risk and decides when a tool call must
// wait for human confirmation.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/ghiac/ledgermind/model"
	"gopkg.in/yaml.v3"
)

// Classification is the static risk metadata of a tool.
type Classification struct {
	Category       model.Category  `yaml:"category" json:"category"`
	Risk           model.RiskLevel `yaml:"risk" json:"risk"`
	RequiresReview bool            `yaml:"requires_review" json:"requires_review"`
}

// Unclassified is returned for tools missing from the table.
var Unclassified = Classification{Category: model.CategoryRead, Risk: model.RiskLow, RequiresReview: false}

// Table maps tool names to classifications.
type Table map[string]Classification

// DefaultTable returns the built-in classification of the accounting tool set.
func DefaultTable() Table {
	return Table{
		// reads
		"list_invoices":       {model.CategoryRead, model.RiskNone, false},
		"get_invoice":         {model.CategoryRead, model.RiskNone, false},
		"search_invoices":     {model.CategoryRead, model.RiskNone, false},
		"list_customers":      {model.CategoryRead, model.RiskNone, false},
		"get_customer":        {model.CategoryRead, model.RiskNone, false},
		"list_payments":       {model.CategoryRead, model.RiskNone, false},
		"list_expenses":       {model.CategoryRead, model.RiskNone, false},
		"get_account_balance": {model.CategoryRead, model.RiskLow, false},
		"generate_report":     {model.CategoryRead, model.RiskLow, false},
		"recall_memory":       {model.CategoryRead, model.RiskNone, false},

		// customers
		"create_customer": {model.CategoryCreate, model.RiskLow, false},
		"update_customer": {model.CategoryUpdate, model.RiskLow, false},
		"delete_customer": {model.CategoryDelete, model.RiskHigh, true},

		// invoices and money
		"create_invoice":       {model.CategoryFinancial, model.RiskMedium, false},
		"update_invoice":       {model.CategoryUpdate, model.RiskMedium, false},
		"delete_invoice":       {model.CategoryDelete, model.RiskHigh, true},
		"void_invoice":         {model.CategoryFinancial, model.RiskHigh, true},
		"bulk_delete_invoices": {model.CategoryDelete, model.RiskCritical, true},
		"record_payment":       {model.CategoryFinancial, model.RiskMedium, false},
		"refund_payment":       {model.CategoryFinancial, model.RiskHigh, true},
		"create_expense":       {model.CategoryFinancial, model.RiskLow, false},
		"close_fiscal_period":  {model.CategoryFinancial, model.RiskCritical, true},

		// leaves the building
		"send_invoice_email":    {model.CategoryExternal, model.RiskMedium, false},
		"send_payment_reminder": {model.CategoryExternal, model.RiskMedium, false},
		"export_data":           {model.CategoryExternal, model.RiskMedium, false},
		"submit_einvoice":       {model.CategoryExternal, model.RiskHigh, true},
		"cancel_einvoice":       {model.CategoryExternal, model.RiskCritical, true},
	}
}

// Classifier resolves tool names to classifications. Unknown names fall
// back to Unclassified.
type Classifier struct {
	mu    sync.RWMutex
	table Table
}

// NewClassifier builds a classifier from DefaultTable with each override
// table applied on top, in order.
func NewClassifier(overrides ...Table) *Classifier {
	table := DefaultTable()
	for _, o := range overrides {
		for name, c := range o {
			table[name] = c
		}
	}
	return &Classifier{table: table}
}

// Classify returns the classification for toolName.
func (c *Classifier) Classify(toolName string) Classification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if cl, ok := c.table[toolName]; ok {
		return cl
	}
	return Unclassified
}

// Known reports whether toolName has an explicit classification.
func (c *Classifier) Known(toolName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.table[toolName]
	return ok
}

// Set adds or replaces one classification.
func (c *Classifier) Set(toolName string, cl Classification) error {
	if err := cl.validate(); err != nil {
		return fmt.Errorf("invalid classification for %s: %w", toolName, err)
	}
	c.mu.Lock()
	c.table[toolName] = cl
	c.mu.Unlock()
	return nil
}

// Names returns the classified tool names, sorted.
func (c *Classifier) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.table))
	for name := range c.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrNoToolsSection is returned for a classification file without a tools: mapping.
var ErrNoToolsSection = errors.New("classification table has no tools section")

type tableFile struct {
	Tools Table `yaml:"tools"`
}

// ParseTable decodes a YAML classification table:
//
//	tools:
//	  submit_einvoice:
//	    category: external
//	    risk: high
//	    requires_review: true
func ParseTable(data []byte) (Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f tableFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoToolsSection
		}
		return nil, fmt.Errorf("failed to parse classification table: %w", err)
	}
	if f.Tools == nil {
		return nil, ErrNoToolsSection
	}
	for name, cl := range f.Tools {
		if err := cl.validate(); err != nil {
			return nil, fmt.Errorf("invalid classification for %s: %w", name, err)
		}
	}
	return f.Tools, nil
}

// LoadTable reads and parses a YAML classification table from path.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read classification table: %w", err)
	}
	return ParseTable(data)
}

func (c Classification) validate() error {
	if !c.Category.Valid() {
		return fmt.Errorf("unknown category %q", c.Category)
	}
	if !c.Risk.Valid() {
		return fmt.Errorf("unknown risk %q", c.Risk)
	}
	return nil
}
