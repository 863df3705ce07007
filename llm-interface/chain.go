package llminterface

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghiac/ledgermind/log"
	"github.com/ghiac/ledgermind/metrics"
)

// DefaultCooldown is how long a failed provider is skipped.
const DefaultCooldown = 5 * time.Minute

// ErrAllProvidersFailed is returned when every provider failed or is cooling down.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Backup pairs a provider with the model to request from it.
type Backup struct {
	Provider Provider
	Model    string // model name passed to the provider; empty keeps the caller's model
	Name     string // name used for logging and metrics
}

// Chain tries a primary provider and then each backup in order.
// A provider that fails or returns an empty response is put on cooldown.
// Chain itself implements Provider.
type Chain struct {
	providers []Backup
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	cooldowns map[string]time.Time
}

// NewChain creates a Chain. The primary keeps the model the caller asks for.
func NewChain(primary Provider, backups []Backup, cooldown time.Duration) *Chain {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	providers := make([]Backup, 0, len(backups)+1)
	if primary != nil {
		providers = append(providers, Backup{Provider: primary, Name: "primary"})
	}
	for i, b := range backups {
		if b.Provider == nil {
			continue
		}
		if b.Name == "" {
			b.Name = fmt.Sprintf("backup-%d", i)
		}
		providers = append(providers, b)
	}
	return &Chain{
		providers: providers,
		cooldown:  cooldown,
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
	}
}

// Len returns the number of providers in the chain.
func (c *Chain) Len() int {
	return len(c.providers)
}

// ChatCompletion implements Provider. The first non-empty response wins.
// If every provider is cooling down, the primary is still tried once.
func (c *Chain) ChatCompletion(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("%w: chain is empty", ErrAllProvidersFailed)
	}

	var errs []error
	attempted := 0
	for _, p := range c.providers {
		if until, cooling := c.coolingUntil(p.Name); cooling && !(attempted == 0 && c.allCooling()) {
			log.Log.Infof("[Chain] ⏸️ Skipping %s (cooldown until %s)", p.Name, until.Format(time.RFC3339))
			metrics.ProviderFallbacks.WithLabelValues(p.Name, "skipped").Inc()
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempted++

		useModel := model
		if p.Model != "" {
			useModel = p.Model
		}
		resp, err := p.Provider.ChatCompletion(ctx, useModel, messages, tools)
		if err == nil && resp != nil && (resp.Content != "" || len(resp.ToolCalls) > 0) {
			if attempted > 1 || p.Name != "primary" {
				log.Log.Infof("[Chain] ✅ %s succeeded | Model: %s | ToolCalls: %d", p.Name, useModel, len(resp.ToolCalls))
			}
			metrics.ProviderFallbacks.WithLabelValues(p.Name, "success").Inc()
			return resp, nil
		}

		if err == nil {
			err = fmt.Errorf("empty response: content and tool calls are both empty")
		}
		if ctx.Err() != nil {
			return nil, err
		}
		errs = append(errs, &ProviderError{Provider: p.Name, Model: useModel, Err: err})
		metrics.ProviderFallbacks.WithLabelValues(p.Name, "failure").Inc()
		c.setCooldown(p.Name)
		log.Log.Warnf("[Chain] ❌ %s failed | Model: %s | Error: %v | disabled for %s", p.Name, useModel, err, c.cooldown)
	}

	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

func (c *Chain) coolingUntil(name string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldowns[name]
	return until, ok && c.now().Before(until)
}

func (c *Chain) allCooling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, p := range c.providers {
		until, ok := c.cooldowns[p.Name]
		if !ok || !now.Before(until) {
			return false
		}
	}
	return true
}

func (c *Chain) setCooldown(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldowns[name] = c.now().Add(c.cooldown)
}
