package llm

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"siteaudit/internal/auditerr"
)

// AuditKind names a consumer of the registry in the assignment table.
type AuditKind string

const (
	KindVisual    AuditKind = "visual"
	KindSerp      AuditKind = "serp"
	KindSynthesis AuditKind = "synthesis"
)

// Assignment binds an audit kind to its primary/fallback providers and
// the model each should run.
type Assignment struct {
	Primary       string
	Fallback      string
	Model         string
	FallbackModel string
}

// DefaultAssignments is the static audit-type routing table.
func DefaultAssignments() map[AuditKind]Assignment {
	return map[AuditKind]Assignment{
		KindVisual:    {Primary: "gemini", Fallback: "openai", Model: "gemini-2.5-flash", FallbackModel: "gpt-4o"},
		KindSerp:      {Primary: "gemini", Fallback: "openai", Model: "gemini-2.5-flash", FallbackModel: "gpt-4o-mini"},
		KindSynthesis: {Primary: "openai", Fallback: "gemini", Model: "gpt-4o", FallbackModel: "gemini-2.5-flash"},
	}
}

// Registry owns the provider set, the per-provider concurrency budget
// (process-scoped, shared across runs), the assignment table, and cost
// tracking.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	sems        map[string]*semaphore.Weighted
	assignments map[AuditKind]Assignment
	costs       *CostTracker

	usedMu sync.Mutex
	used   map[string]bool
}

// NewRegistry builds a registry with the default assignment table and
// pricing.
func NewRegistry() *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		sems:        make(map[string]*semaphore.Weighted),
		assignments: DefaultAssignments(),
		costs:       NewCostTracker(DefaultPricing()),
		used:        make(map[string]bool),
	}
}

// Register adds a provider with its concurrency budget. maxConcurrent
// defaults to 4 when non-positive.
func (r *Registry) Register(p Provider, maxConcurrent int) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.sems[p.Name()] = semaphore.NewWeighted(int64(maxConcurrent))
}

// SetAssignment overrides the routing for one audit kind.
func (r *Registry) SetAssignment(kind AuditKind, a Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[kind] = a
}

// Costs exposes the run cost tracker.
func (r *Registry) Costs() *CostTracker { return r.costs }

// ProvidersUsed returns the names of providers that served at least one
// call attempt, successful or not.
func (r *Registry) ProvidersUsed() []string {
	r.usedMu.Lock()
	defer r.usedMu.Unlock()
	out := make([]string, 0, len(r.used))
	for name := range r.used {
		out = append(out, name)
	}
	return out
}

func (r *Registry) markUsed(name string) {
	r.usedMu.Lock()
	r.used[name] = true
	r.usedMu.Unlock()
}

func (r *Registry) provider(name string) (Provider, *semaphore.Weighted, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, nil, false
	}
	return p, r.sems[name], true
}

// GenerateWith calls the named provider once a concurrency slot is free.
// Images may be nil for text-only calls.
func (r *Registry) GenerateWith(ctx context.Context, providerName, prompt string, images []string, req Request) (*Response, error) {
	p, sem, ok := r.provider(providerName)
	if !ok {
		return nil, auditerr.New(auditerr.CodeAPIError, "provider %q not registered", providerName)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, auditerr.Wrap(auditerr.CodeTimeout, err, "waiting for %s slot", providerName)
	}
	defer sem.Release(1)

	r.markUsed(providerName)

	var resp *Response
	var err error
	if len(images) > 0 {
		resp, err = p.GenerateWithVision(ctx, prompt, images, req)
	} else {
		resp, err = p.GenerateText(ctx, prompt, req)
	}
	if err != nil {
		return nil, err
	}
	r.costs.Record(resp)
	return resp, nil
}

// Generate routes through the assignment table: primary first, then a
// transparent retry on the fallback provider with the same prompt.
func (r *Registry) Generate(ctx context.Context, kind AuditKind, prompt string, images []string, req Request) (*Response, error) {
	r.mu.RLock()
	assignment, ok := r.assignments[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, auditerr.New(auditerr.CodeAPIError, "no assignment for audit kind %q", kind)
	}

	primaryReq := req
	if primaryReq.Model == "" {
		primaryReq.Model = assignment.Model
	}
	resp, primaryErr := r.GenerateWith(ctx, assignment.Primary, prompt, images, primaryReq)
	if primaryErr == nil {
		return resp, nil
	}
	if ctx.Err() != nil || assignment.Fallback == "" {
		return nil, primaryErr
	}

	fallbackReq := req
	if fallbackReq.Model == "" {
		fallbackReq.Model = assignment.FallbackModel
	}
	resp, fallbackErr := r.GenerateWith(ctx, assignment.Fallback, prompt, images, fallbackReq)
	if fallbackErr != nil {
		return nil, auditerr.Wrap(auditerr.CodeAPIError, fallbackErr,
			"primary %s failed (%v); fallback %s also failed", assignment.Primary, primaryErr, assignment.Fallback)
	}
	return resp, nil
}
