package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ghiac/ledgermind/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyUnknownToolFailsOpen(t *testing.T) {
	c := NewClassifier()
	for _, name := range []string{"", "does_not_exist", "CREATE_INVOICE"} {
		assert.Equal(t, Classification{model.CategoryRead, model.RiskLow, false}, c.Classify(name), name)
		assert.False(t, c.Known(name))
	}
}

func TestClassifyCreateInvoiceDefault(t *testing.T) {
	c := NewClassifier()
	assert.Equal(t, Classification{
		Category:       model.CategoryFinancial,
		Risk:           model.RiskMedium,
		RequiresReview: false,
	}, c.Classify("create_invoice"))
}

func TestClassifierOverrides(t *testing.T) {
	c := NewClassifier(Table{
		"create_invoice": {model.CategoryFinancial, model.RiskHigh, true},
		"sync_bank":      {model.CategoryExternal, model.RiskMedium, false},
	})
	assert.Equal(t, model.RiskHigh, c.Classify("create_invoice").Risk)
	assert.True(t, c.Known("sync_bank"))

	require.NoError(t, c.Set("archive", Classification{model.CategoryUpdate, model.RiskLow, false}))
	assert.Error(t, c.Set("bad", Classification{"teleport", model.RiskLow, false}))
	assert.Contains(t, c.Names(), "archive")
}

func TestParseTable(t *testing.T) {
	data := []byte(`
tools:
  submit_einvoice:
    category: external
    risk: critical
    requires_review: true
  list_vendors:
    category: read
    risk: none
`)
	table, err := ParseTable(data)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, model.RiskCritical, table["submit_einvoice"].Risk)
	assert.False(t, table["list_vendors"].RequiresReview)

	_, err = ParseTable([]byte("tools:\n  x:\n    category: read\n    risk: extreme\n"))
	assert.Error(t, err)

	_, err = ParseTable([]byte("tools: [unclosed"))
	assert.Error(t, err)
}

func TestParseTable_RejectsMissingToolsSection(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bare tool map", "bulk_pay:\n  category: financial\n  risk: critical\n  requires_review: true\n"},
		{"empty file", ""},
		{"null tools", "tools:\n"},
		{"unknown top-level key", "tools:\n  x:\n    category: read\n    risk: low\nextra: 1\n"},
		{"unknown classification field", "tools:\n  x:\n    category: read\n    risk: low\n    riks: high\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseTable([]byte(tt.data))
			assert.Error(t, err)
			assert.Nil(t, table)
		})
	}

	_, err := ParseTable([]byte("bulk_pay:\n  category: financial\n  risk: critical\n"))
	assert.ErrorIs(t, err, ErrNoToolsSection)

	table, err := ParseTable([]byte("tools: {}\n"))
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestLoadTable_CriticalOverrideIsGated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools:\n  bulk_pay:\n    category: financial\n    risk: critical\n"), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	g := NewGate(NewClassifier(table), DefaultGateConfig())
	assert.True(t, g.RequiresConfirmation("bulk_pay", nil, nil).Required)
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools:\n  payroll_run:\n    category: financial\n    risk: critical\n"), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryFinancial, table["payroll_run"].Category)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCriticalAlwaysRequiresConfirmation(t *testing.T) {
	g := NewGate(NewClassifier(), DefaultGateConfig())

	inputs := []struct {
		args map[string]any
		gctx *GateContext
	}{
		{nil, nil},
		{map[string]any{}, &GateContext{}},
		{map[string]any{"id": "inv-1"}, &GateContext{BatchSize: 0, TotalValue: 0}},
		{map[string]any{"amount": 1.0}, &GateContext{BatchSize: 1, TotalValue: 1}},
	}
	for _, in := range inputs {
		d := g.RequiresConfirmation("close_fiscal_period", in.args, in.gctx)
		assert.True(t, d.Required)
		assert.Contains(t, d.Reason, "critical")
	}
}

func TestRequiresConfirmationPrecedence(t *testing.T) {
	g := NewGate(NewClassifier(Table{
		"high_internal": {model.CategoryUpdate, model.RiskHigh, false},
	}), GateConfig{BatchThreshold: 10, ValueThreshold: 5000})

	tests := []struct {
		name     string
		tool     string
		gctx     *GateContext
		required bool
		reason   string
	}{
		{"high external", "submit_einvoice", &GateContext{}, true, "high risk external"},
		{"high internal without review", "high_internal", &GateContext{}, false, ""},
		{"batch guard", "create_invoice", &GateContext{BatchSize: 11}, true, "batch of 11"},
		{"batch at limit", "create_invoice", &GateContext{BatchSize: 10}, false, ""},
		{"value guard", "record_payment", &GateContext{TotalValue: 5000.01}, true, "total value"},
		{"value at limit", "record_payment", &GateContext{TotalValue: 5000}, false, ""},
		{"batch wins over value", "create_invoice", &GateContext{BatchSize: 50, TotalValue: 1e9}, true, "batch"},
		{"review flag", "delete_invoice", &GateContext{}, true, "requires review"},
		{"plain read", "list_invoices", &GateContext{}, false, ""},
		{"unknown tool", "mystery", &GateContext{}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.RequiresConfirmation(tt.tool, nil, tt.gctx)
			assert.Equal(t, tt.required, d.Required)
			if tt.required {
				assert.Contains(t, d.Reason, tt.reason)
			} else {
				assert.Empty(t, d.Reason)
			}
		})
	}
}

func TestZeroThresholdsGateAnyBatchOrValue(t *testing.T) {
	g := NewGate(NewClassifier(), GateConfig{})

	assert.True(t, g.RequiresConfirmation("create_invoice", nil, &GateContext{BatchSize: 1}).Required)
	assert.True(t, g.RequiresConfirmation("record_payment", nil, &GateContext{TotalValue: 0.01}).Required)
	assert.False(t, g.RequiresConfirmation("record_payment", nil, &GateContext{}).Required)

	assert.False(t, NewGate(NewClassifier(), DefaultGateConfig()).RequiresConfirmation("create_invoice", nil, &GateContext{BatchSize: 1}).Required)
}

func TestRequiresConfirmationDerivesContextFromArgs(t *testing.T) {
	g := NewGate(NewClassifier(), DefaultGateConfig())

	items := make([]any, 12)
	for i := range items {
		items[i] = map[string]any{"amount": 10.0}
	}
	d := g.RequiresConfirmation("create_invoice", map[string]any{"lines": items}, nil)
	assert.True(t, d.Required)
	assert.Contains(t, d.Reason, "batch of 12")

	d = g.RequiresConfirmation("record_payment", map[string]any{"amount": 25000.0}, nil)
	assert.True(t, d.Required)

	d = g.RequiresConfirmation("record_payment", map[string]any{"amount": 250.0}, nil)
	assert.False(t, d.Required)
}

func TestGateContextFromArgs(t *testing.T) {
	gctx := GateContextFromArgs(map[string]any{
		"customer": "ACME",
		"total":    100.0,
		"lines": []any{
			map[string]any{"amount": 40.0},
			map[string]any{"amount": 60.0},
			"not an object",
		},
		"tags": []any{"a"},
	})
	assert.Equal(t, 3, gctx.BatchSize)
	assert.InDelta(t, 200, gctx.TotalValue, 1e-9)

	assert.Equal(t, GateContext{}, GateContextFromArgs(nil))
}

func TestMerge(t *testing.T) {
	a := &GateContext{BatchSize: 3, TotalValue: 900}
	b := &GateContext{BatchSize: 20, TotalValue: 100}
	assert.Equal(t, &GateContext{BatchSize: 20, TotalValue: 900}, Merge(a, b))
	assert.Same(t, a, Merge(a, nil))
	assert.Same(t, b, Merge(nil, b))
}
