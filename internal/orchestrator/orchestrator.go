// Package orchestrator drives the four-layer audit pipeline end to end:
// collection, extraction, micro-audits, and report assembly. It owns
// the run state machine, the progress event stream, and the
// read-through cache in front of each layer. Input validation is the
// only hard failure; everything downstream degrades into the report's
// explicit gaps.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"siteaudit/internal/auditerr"
	"siteaudit/internal/audits"
	"siteaudit/internal/cache"
	"siteaudit/internal/collect"
	"siteaudit/internal/config"
	"siteaudit/internal/extract"
	"siteaudit/internal/finding"
	"siteaudit/internal/identity"
	"siteaudit/internal/llm"
	"siteaudit/internal/merge"
	"siteaudit/internal/report"
	"siteaudit/internal/score"
	"siteaudit/internal/snapshot"
	"siteaudit/internal/synthesis"
)

// Orchestrator wires the pipeline layers together. One orchestrator
// serves many runs; per-run state lives on the stack of Run.
type Orchestrator struct {
	cfg        config.Config
	collectors *collect.Collectors
	extractor  *extract.Extractor
	runner     *audits.Runner
	synth      *synthesis.Synthesizer
	merger     *merge.Merger
	scorer     *score.Scorer
	registry   *llm.Registry
	store      cache.Store
	log        *zap.Logger

	mu    sync.Mutex
	state State
}

// New assembles an orchestrator. registry, shots, and store may be nil:
// LLM audits then degrade to gaps, screenshots to a collector error,
// and caching is disabled.
func New(cfg config.Config, registry *llm.Registry, shots collect.Screenshotter, store cache.Store, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		collectors: collect.New(cfg, shots, log),
		extractor:  extract.New(log),
		runner:     audits.NewRunner(cfg, registry, log),
		synth:      synthesis.New(cfg, registry, log),
		merger:     merge.New(cfg.Tuning),
		scorer:     score.New(cfg.Tuning),
		registry:   registry,
		store:      store,
		log:        log,
		state:      StateIdle,
	}
}

// State returns the most recent run state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// RunResult pairs the public report with its private sibling. The two
// stay separate all the way to the caller.
type RunResult struct {
	Report  *report.AuditReport
	Private *report.PrivateFlags
}

// Run executes one audit. events may be nil; when given, every progress
// event is delivered in order and the channel is left open for the
// caller to close. The only hard errors are invalid input and
// cancellation; audit-level failures surface inside the report.
func (o *Orchestrator) Run(ctx context.Context, rawURL, pdpURL string, events chan<- Event) (result *RunResult, err error) {
	emit := func(e Event) {
		if events == nil {
			return
		}
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("audit run panicked", zap.Any("panic", r))
			o.setState(StateError)
			err = auditerr.New(auditerr.CodeNetworkError, "audit run panicked: %v", r)
			emit(newEvent(EventAuditError, "", "", err.Error()))
			result = nil
		}
	}()

	o.setState(StateStarting)

	id, err := identity.New(rawURL, pdpURL, o.cfg.ToolVersions, o.cfg.PromptVersions)
	if err != nil {
		o.setState(StateError)
		wrapped := auditerr.Wrap(auditerr.CodeInvalidURL, err, "invalid audit target %q", rawURL)
		emit(newEvent(EventAuditError, rawURL, "", wrapped.Error()))
		return nil, wrapped
	}

	emit(newEvent(EventAuditStart, id.NormalizedURL, "", ""))
	started := time.Now()

	if cached, ok := o.cachedReport(id); ok {
		o.setState(StateComplete)
		emit(newEvent(EventAuditComplete, id.NormalizedURL, "cached", ""))
		return cached, nil
	}

	var timings report.LayerTimings

	// Layer 1: collection.
	o.setState(StateCollecting)
	emit(newEvent(EventLayer1Start, id.NormalizedURL, "", ""))
	l1Start := time.Now()
	raw := o.collectRaw(ctx, id, func(collector, status, message string) {
		emit(newEvent(EventLayer1Collector, collector, status, message))
	})
	timings.CollectionMs = time.Since(l1Start).Milliseconds()
	emit(newEvent(EventLayer1Complete, id.NormalizedURL, "", ""))
	if ctx.Err() != nil {
		return nil, o.cancelled(ctx, emit, id)
	}

	// Layer 2: extraction.
	o.setState(StateExtracting)
	emit(newEvent(EventLayer2Start, id.NormalizedURL, "", ""))
	l2Start := time.Now()
	site := o.extractSite(id, raw)
	timings.ExtractionMs = time.Since(l2Start).Milliseconds()
	emit(newEvent(EventLayer2Complete, id.NormalizedURL, "", fmt.Sprintf("%d pages", len(site.Pages))))

	// Layer 3: micro-audits.
	o.setState(StateAuditing)
	emit(newEvent(EventLayer3Start, id.NormalizedURL, "", ""))
	l3Start := time.Now()
	results, flags := o.runner.Run(ctx, raw, site, func(audit, status string, f *finding.Finding) {
		if status == audits.StatusFinding && f != nil {
			emit(newEvent(EventLayer3Finding, audit, string(f.Severity), f.Message))
			return
		}
		emit(newEvent(EventLayer3Audit, audit, status, ""))
	})
	timings.AuditsMs = time.Since(l3Start).Milliseconds()
	emit(newEvent(EventLayer3Complete, id.NormalizedURL, "", ""))
	if ctx.Err() != nil {
		return nil, o.cancelled(ctx, emit, id)
	}

	// Layer 4: merge, score, narrate, assemble.
	o.setState(StateReporting)
	emit(newEvent(EventLayer4Start, id.NormalizedURL, "", ""))
	l4Start := time.Now()

	var all []finding.Finding
	gaps := collectorGaps(raw)
	var completed, failed []string
	for _, res := range results {
		all = append(all, res.Findings...)
		gaps = append(gaps, res.Gaps...)
		if res.Err != "" {
			failed = append(failed, res.Audit)
			gaps = append(gaps, res.Audit+" audit failed: "+res.Err)
		} else {
			completed = append(completed, res.Audit)
		}
	}

	mergedFindings := o.merger.Merge(all)
	scores := o.scorer.Score(mergedFindings, site)
	plan := score.BuildPlan(mergedFindings, o.cfg.Tuning.PlanCaps)
	narrative := o.synth.Synthesize(ctx, id.NormalizedURL, mergedFindings, scores, gaps)
	timings.SynthesisMs = time.Since(l4Start).Milliseconds()

	meta := report.Metadata{
		GeneratedAt:     time.Now().UTC(),
		DurationMs:      time.Since(started).Milliseconds(),
		Timings:         timings,
		CompletedAudits: completed,
		FailedAudits:    failed,
		ToolVersions:    o.cfg.ToolVersions,
		PromptVersions:  o.cfg.PromptVersions,
	}
	if o.registry != nil {
		meta.CostUSD = o.registry.Costs().Total()
		meta.ProvidersUsed = o.registry.ProvidersUsed()
	}

	pub := report.Assemble(id, mergedFindings, scores, plan, narrative, gaps, meta)
	priv := &report.PrivateFlags{ReportID: pub.ID, URL: id.NormalizedURL, Flags: flags}

	o.storeReport(id, pub, priv)

	o.setState(StateComplete)
	emit(newEvent(EventLayer4Complete, id.NormalizedURL, "", ""))
	emit(newEvent(EventAuditComplete, id.NormalizedURL, "", fmt.Sprintf("score %d", scores.Overall)))
	return &RunResult{Report: pub, Private: priv}, nil
}

func (o *Orchestrator) cancelled(ctx context.Context, emit func(Event), id identity.Identity) error {
	o.setState(StateError)
	err := auditerr.Wrap(auditerr.CodeTimeout, ctx.Err(), "audit cancelled")
	emit(newEvent(EventAuditError, id.NormalizedURL, "", err.Error()))
	return err
}

// collectRaw serves layer 1 from cache when possible.
func (o *Orchestrator) collectRaw(ctx context.Context, id identity.Identity, progress collect.Progress) *snapshot.Raw {
	key := cache.Key(cache.TypeRawSnapshot, id.CacheKey, id.NormalizedURL)
	if o.store != nil {
		if v, ok := o.store.Get(key); ok {
			if raw, ok := v.(*snapshot.Raw); ok {
				progress("cache", collect.StatusCompleted, "raw snapshot served from cache")
				return raw
			}
		}
	}
	raw := o.collectors.Run(ctx, id, progress)
	if o.store != nil && ctx.Err() == nil {
		o.store.Set(key, raw, cache.TTLRawSnapshot)
	}
	return raw
}

// extractSite serves layer 2 from cache when possible.
func (o *Orchestrator) extractSite(id identity.Identity, raw *snapshot.Raw) *snapshot.Site {
	key := cache.Key(cache.TypeSiteSnapshot, id.CacheKey, id.NormalizedURL)
	if o.store != nil {
		if v, ok := o.store.Get(key); ok {
			if site, ok := v.(*snapshot.Site); ok {
				return site
			}
		}
	}
	site := o.extractor.Run(raw)
	if o.store != nil {
		o.store.Set(key, site, cache.TTLSiteSnapshot)
	}
	return site
}

func (o *Orchestrator) cachedReport(id identity.Identity) (*RunResult, bool) {
	if o.store == nil {
		return nil, false
	}
	v, ok := o.store.Get(cache.Key(cache.TypePublicReport, id.CacheKey, id.NormalizedURL))
	if !ok {
		return nil, false
	}
	pub, ok := v.(*report.AuditReport)
	if !ok {
		return nil, false
	}
	// Shallow copy so the cached document itself stays unmarked.
	served := *pub
	served.Metadata.FromCache = true
	out := &RunResult{Report: &served, Private: &report.PrivateFlags{ReportID: pub.ID, URL: id.NormalizedURL}}
	if pv, ok := o.store.Get(cache.Key(cache.TypePrivateFlags, id.CacheKey, id.NormalizedURL)); ok {
		if priv, ok := pv.(*report.PrivateFlags); ok {
			out.Private = priv
		}
	}
	return out, true
}

func (o *Orchestrator) storeReport(id identity.Identity, pub *report.AuditReport, priv *report.PrivateFlags) {
	if o.store == nil {
		return
	}
	o.store.Set(cache.Key(cache.TypePublicReport, id.CacheKey, id.NormalizedURL), pub, cache.TTLPublicReport)
	o.store.Set(cache.Key(cache.TypePrivateFlags, id.CacheKey, id.NormalizedURL), priv, cache.TTLPrivateFlags)
}

// collectorGaps names every probe that failed, so the report states
// what the audit could not see.
func collectorGaps(raw *snapshot.Raw) []string {
	var gaps []string
	add := func(name, errMsg string) {
		if errMsg != "" {
			gaps = append(gaps, name+" unavailable: "+errMsg)
		}
	}
	add("rootFetch", raw.RootFetch.Err)
	add("robotsTxt", raw.RobotsTxt.Err)
	add("sitemaps", raw.Sitemaps.Err)
	add("urlSamplingPlan", raw.URLSamplingPlan.Err)
	add("htmlSamples", raw.HTMLSamples.Err)
	add("redirectMap", raw.RedirectMap.Err)
	add("dnsFacts", raw.DNSFacts.Err)
	add("tlsFacts", raw.TLSFacts.Err)
	add("wellKnown", raw.WellKnown.Err)
	add("screenshots", raw.Screenshots.Err)
	add("lighthouse", raw.Lighthouse.Err)
	add("serpRaw", raw.SerpRaw.Err)
	add("securityScan", raw.SecurityScan.Err)
	return gaps
}
