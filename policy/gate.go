package policy

import (
	"fmt"
	"math"

	"github.com/ghiac/ledgermind/model"
)

// GateContext is runtime information about a pending call that the static
// classification cannot know.
type GateContext struct {
	BatchSize  int
	TotalValue float64
}

// Decision is the outcome of RequiresConfirmation.
type Decision struct {
	Required bool   `json:"required"`
	Reason   string `json:"reason,omitempty"`
}

// GateConfig holds the runtime thresholds.
type GateConfig struct {
	BatchThreshold int
	ValueThreshold float64
}

// Gate decides whether a tool call must be confirmed by a human first.
type Gate struct {
	classifier *Classifier
	config     GateConfig
}

// DefaultGateConfig gates batches above 10 items and totals above 10000.
func DefaultGateConfig() GateConfig {
	return GateConfig{BatchThreshold: 10, ValueThreshold: 10000}
}

// NewGate creates a gate with cfg as given. A zero threshold gates every
// non-empty batch or positive total; use DefaultGateConfig for the defaults.
func NewGate(classifier *Classifier, cfg GateConfig) *Gate {
	return &Gate{classifier: classifier, config: cfg}
}

// Classifier returns the classifier the gate consults.
func (g *Gate) Classifier() *Classifier {
	return g.classifier
}

// RequiresConfirmation applies the first matching rule:
// critical risk, high risk external call, oversized batch, value above
// threshold, review flag. A nil gctx is derived from args.
func (g *Gate) RequiresConfirmation(toolName string, args map[string]any, gctx *GateContext) Decision {
	cl := g.classifier.Classify(toolName)

	if cl.Risk == model.RiskCritical {
		return Decision{Required: true, Reason: fmt.Sprintf("%s is a critical risk operation", toolName)}
	}
	if cl.Risk == model.RiskHigh && cl.Category == model.CategoryExternal {
		return Decision{Required: true, Reason: fmt.Sprintf("%s is a high risk external operation", toolName)}
	}

	if gctx == nil {
		derived := GateContextFromArgs(args)
		gctx = &derived
	}
	if gctx.BatchSize > g.config.BatchThreshold {
		return Decision{Required: true, Reason: fmt.Sprintf("batch of %d items exceeds limit of %d", gctx.BatchSize, g.config.BatchThreshold)}
	}
	if gctx.TotalValue > g.config.ValueThreshold {
		return Decision{Required: true, Reason: fmt.Sprintf("total value %.2f exceeds threshold %.2f", gctx.TotalValue, g.config.ValueThreshold)}
	}
	if cl.RequiresReview {
		return Decision{Required: true, Reason: fmt.Sprintf("%s requires review", toolName)}
	}
	return Decision{}
}

var valueKeys = []string{"amount", "total", "total_value", "value"}

// GateContextFromArgs derives a GateContext from tool arguments.
// BatchSize is the length of the longest top-level array. TotalValue sums
// numeric amount/total/total_value/value fields at the top level and inside
// objects of top-level arrays.
func GateContextFromArgs(args map[string]any) GateContext {
	var gctx GateContext
	for _, v := range args {
		items, ok := v.([]any)
		if !ok {
			continue
		}
		if len(items) > gctx.BatchSize {
			gctx.BatchSize = len(items)
		}
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				gctx.TotalValue += sumValues(obj)
			}
		}
	}
	gctx.TotalValue += sumValues(args)
	return gctx
}

// Merge returns the element-wise maximum of two contexts. Either may be nil.
func Merge(a, b *GateContext) *GateContext {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &GateContext{
		BatchSize:  max(a.BatchSize, b.BatchSize),
		TotalValue: math.Max(a.TotalValue, b.TotalValue),
	}
}

func sumValues(obj map[string]any) float64 {
	var total float64
	for _, k := range valueKeys {
		if n, ok := toFloat(obj[k]); ok {
			total += math.Abs(n)
		}
	}
	return total
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
