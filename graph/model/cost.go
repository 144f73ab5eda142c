package model

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Pricing is the price of one million tokens, in USD.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

var defaultPricing = map[string]Pricing{
	// Groq
	"llama-3.3-70b-versatile": {InputPer1M: 0.59, OutputPer1M: 0.79},
	"llama-3.1-8b-instant":    {InputPer1M: 0.05, OutputPer1M: 0.08},

	// OpenAI
	"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},

	// Anthropic
	"claude-3-5-haiku-latest":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-5-sonnet-latest": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-sonnet-4-0":        {InputPer1M: 3.00, OutputPer1M: 15.00},

	// Google
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.5-flash": {InputPer1M: 0.30, OutputPer1M: 2.50},
}

// Call is one recorded generation call.
type Call struct {
	Model     string
	Caller    string
	Usage     Usage
	CostUSD   float64
	Timestamp time.Time
}

// CostTracker accumulates token usage and cost across calls.
//
// Unknown models are recorded with zero cost. Safe for concurrent use; one
// tracker may be shared by every run of a CLI session.
type CostTracker struct {
	mu      sync.RWMutex
	pricing map[string]Pricing
	calls   []Call
	total   float64
	usage   Usage
}

// NewCostTracker returns a tracker seeded with the built-in price table.
func NewCostTracker() *CostTracker {
	pricing := make(map[string]Pricing, len(defaultPricing))
	for k, v := range defaultPricing {
		pricing[k] = v
	}
	return &CostTracker{pricing: pricing}
}

// SetPricing overrides the price of model.
func (ct *CostTracker) SetPricing(model string, p Pricing) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = p
}

// Record adds one call and returns its cost.
func (ct *CostTracker) Record(model, caller string, usage Usage) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	p := ct.pricing[model]
	cost := float64(usage.InputTokens)/1_000_000*p.InputPer1M +
		float64(usage.OutputTokens)/1_000_000*p.OutputPer1M

	ct.calls = append(ct.calls, Call{
		Model:     model,
		Caller:    caller,
		Usage:     usage,
		CostUSD:   cost,
		Timestamp: time.Now(),
	})
	ct.total += cost
	ct.usage.InputTokens += usage.InputTokens
	ct.usage.OutputTokens += usage.OutputTokens
	return cost
}

// Total returns the accumulated cost in USD.
func (ct *CostTracker) Total() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.total
}

// Usage returns the accumulated token counts.
func (ct *CostTracker) Usage() Usage {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.usage
}

// Calls returns a copy of every recorded call in order.
func (ct *CostTracker) Calls() []Call {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make([]Call, len(ct.calls))
	copy(out, ct.calls)
	return out
}

// ByCaller returns cost per caller.
func (ct *CostTracker) ByCaller() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make(map[string]float64)
	for _, c := range ct.calls {
		out[c.Caller] += c.CostUSD
	}
	return out
}

// String summarizes the tracker, e.g. for printing at the end of a session.
func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	callers := make(map[string]int)
	for _, c := range ct.calls {
		callers[c.Caller]++
	}
	names := make([]string, 0, len(callers))
	for n := range callers {
		names = append(names, n)
	}
	sort.Strings(names)

	s := fmt.Sprintf("%d calls, %d input / %d output tokens, $%.6f",
		len(ct.calls), ct.usage.InputTokens, ct.usage.OutputTokens, ct.total)
	for _, n := range names {
		s += fmt.Sprintf("\n  %s: %d calls", n, callers[n])
	}
	return s
}
