// Package audits implements layer 3 of the pipeline: six micro-audits
// over the site snapshot. Four are deterministic functions of the
// snapshot; two consult an LLM through the provider registry. Every
// audit is independent, trapped against panics, and reports what it
// could not check as explicit gaps instead of guessing.
package audits

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"siteaudit/internal/config"
	"siteaudit/internal/finding"
	"siteaudit/internal/limit"
	"siteaudit/internal/llm"
	"siteaudit/internal/snapshot"
)

// Audit names, also used as finding sources.
const (
	AuditCrawl       = "crawl"
	AuditTechnical   = "technical"
	AuditSecurity    = "security"
	AuditPerformance = "performance"
	AuditVisual      = "visual"
	AuditSerp        = "serp"
)

// Result is one micro-audit's output. Err marks a failed audit; a
// succeeded audit may still carry gaps for the signals it could not
// evaluate.
type Result struct {
	Audit      string            `json:"audit"`
	Findings   []finding.Finding `json:"findings"`
	Gaps       []string          `json:"gaps,omitempty"`
	Err        string            `json:"error,omitempty"`
	DurationMs int64             `json:"durationMs"`
}

// Progress receives per-audit start and terminal notifications plus one
// call per finding as it is emitted.
type Progress func(audit, status string, found *finding.Finding)

// Progress statuses.
const (
	StatusStarted   = "started"
	StatusFinding   = "finding"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Runner executes the six micro-audits.
type Runner struct {
	cfg      config.Config
	registry *llm.Registry
	log      *zap.Logger
}

// NewRunner builds the audit runner. registry may be nil when no LLM
// provider is configured; the two LLM audits then fail soft.
func NewRunner(cfg config.Config, registry *llm.Registry, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, registry: registry, log: log}
}

// Run executes all six audits concurrently under the run-wide
// concurrency bound and detects private flags. Results come back in a
// fixed order regardless of completion order. An audit failure never
// fails the layer.
func (r *Runner) Run(ctx context.Context, raw *snapshot.Raw, site *snapshot.Site, progress Progress) ([]Result, []finding.PrivateFlag) {
	if progress == nil {
		progress = func(string, string, *finding.Finding) {}
	}

	type auditFn struct {
		name string
		fn   func(ctx context.Context) Result
	}
	order := []auditFn{
		{AuditCrawl, func(context.Context) Result { return crawlAudit(raw, site) }},
		{AuditTechnical, func(context.Context) Result { return technicalAudit(site) }},
		{AuditSecurity, func(context.Context) Result { return securityAudit(raw, site) }},
		{AuditPerformance, func(context.Context) Result { return performanceAudit(site) }},
		{AuditVisual, r.visualAudit(raw, site)},
		{AuditSerp, r.serpAudit(raw, site)},
	}

	results := make([]Result, len(order))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit.MaxConcurrent)

	for i, audit := range order {
		g.Go(func() error {
			progress(audit.name, StatusStarted, nil)
			start := time.Now()
			results[i] = r.runTrapped(ctx, audit.name, audit.fn)
			results[i].DurationMs = time.Since(start).Milliseconds()

			for j := range results[i].Findings {
				progress(audit.name, StatusFinding, &results[i].Findings[j])
			}
			if results[i].Err != "" {
				progress(audit.name, StatusFailed, nil)
			} else {
				progress(audit.name, StatusCompleted, nil)
			}
			return nil
		})
	}
	_ = g.Wait()

	flags := privateFlags(raw)
	return results, flags
}

// affectedIn filters candidate URLs down to members of the observed
// URL set, falling back to the site root. A finding never cites a URL
// the run did not itself observe.
func affectedIn(site *snapshot.Site, candidates ...string) []string {
	var out []string
	for _, c := range candidates {
		if site.URLSet.Contains(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 && site.URLSet.Contains(site.Identity.NormalizedURL) {
		out = []string{site.Identity.NormalizedURL}
	}
	return out
}

// runTrapped converts a panicking audit into a failed result.
func (r *Runner) runTrapped(ctx context.Context, name string, fn func(ctx context.Context) Result) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("audit panicked", zap.String("audit", name), zap.Any("panic", rec))
			result = Result{Audit: name, Err: fmt.Sprintf("audit panicked: %v", rec)}
		}
	}()
	return fn(ctx)
}
