package llm

import (
	"fmt"
	"sync"
)

// ModelPrice is the USD cost per 1k tokens for one provider/model pair.
type ModelPrice struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PricingTable maps "provider/model" to prices. Loaded once per process
// and read-only afterwards.
type PricingTable map[string]ModelPrice

// DefaultPricing covers the models the default assignment table uses.
func DefaultPricing() PricingTable {
	return PricingTable{
		"openai/gpt-4o":            {InputPer1K: 0.0025, OutputPer1K: 0.01},
		"openai/gpt-4o-mini":       {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"gemini/gemini-2.5-flash":  {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"gemini/gemini-2.5-pro":    {InputPer1K: 0.00125, OutputPer1K: 0.005},
	}
}

// Cost computes the USD cost of a response, zero when the pair is not
// priced.
func (t PricingTable) Cost(provider, model string, usage Usage) float64 {
	p, ok := t[provider+"/"+model]
	if !ok {
		return 0
	}
	return float64(usage.Input)/1000*p.InputPer1K + float64(usage.Output)/1000*p.OutputPer1K
}

// CostTracker accumulates per-call costs for a run.
type CostTracker struct {
	mu      sync.Mutex
	pricing PricingTable
	total   float64
	byModel map[string]float64
	calls   int
}

// NewCostTracker creates a tracker over the given pricing table.
func NewCostTracker(pricing PricingTable) *CostTracker {
	return &CostTracker{pricing: pricing, byModel: make(map[string]float64)}
}

// Record accumulates the cost of one response.
func (c *CostTracker) Record(resp *Response) {
	if resp == nil {
		return
	}
	cost := c.pricing.Cost(resp.Provider, resp.Model, resp.Usage)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += cost
	c.byModel[fmt.Sprintf("%s/%s", resp.Provider, resp.Model)] += cost
	c.calls++
}

// Total returns the accumulated USD cost.
func (c *CostTracker) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Calls returns the number of recorded responses.
func (c *CostTracker) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// ByModel returns a copy of the per-model cost breakdown.
func (c *CostTracker) ByModel() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.byModel))
	for k, v := range c.byModel {
		out[k] = v
	}
	return out
}
