package audits

import (
	"context"
	"fmt"
	"strings"

	"siteaudit/internal/config"
	"siteaudit/internal/finding"
	"siteaudit/internal/llm"
	"siteaudit/internal/snapshot"
)

// llmFinding is the JSON shape the LLM audits require the model to
// emit. Anything outside this envelope is rejected.
type llmFinding struct {
	Type         string   `json:"type"`
	Severity     string   `json:"severity"`
	Priority     string   `json:"priority"`
	Message      string   `json:"message"`
	Evidence     string   `json:"evidence"`
	AffectedURLs []string `json:"affectedUrls"`
	Fix          string   `json:"fix"`
	WhyItMatters string   `json:"whyItMatters"`
}

type llmEnvelope struct {
	Findings []llmFinding `json:"findings"`
}

// visualTypes and serpTypes close the set of codes each LLM audit may
// emit; anything else from the model is dropped with a gap note.
var visualTypes = map[string]struct {
	typ finding.Type
	cat finding.Category
}{
	"visual_layout":      {finding.TypeVisualLayout, finding.CategoryDesign},
	"visual_readability": {finding.TypeVisualReadability, finding.CategoryDesign},
	"visual_cta":         {finding.TypeVisualCTA, finding.CategoryConversion},
	"visual_mobile":      {finding.TypeVisualMobile, finding.CategoryDesign},
}

var serpTypes = map[string]struct {
	typ finding.Type
	cat finding.Category
}{
	"serp_low_visibility": {finding.TypeSerpVisibility, finding.CategorySEO},
	"serp_title_mismatch": {finding.TypeSerpTitleMismatch, finding.CategorySEO},
	"serp_brand_absent":   {finding.TypeSerpBrandAbsent, finding.CategorySEO},
}

const visualSystemPrompt = `You are a conversion and design reviewer looking at website screenshots.
Respond with strict JSON only: {"findings":[{"type","severity","priority","message","evidence","affectedUrls","fix","whyItMatters"}]}.
Allowed type values: visual_layout, visual_readability, visual_cta, visual_mobile.
Allowed severity values: critical, warning, info. Allowed priority values: critical, high, medium, low.
Report only what the screenshots show. An empty findings array is a valid answer.`

const serpSystemPrompt = `You are an SEO analyst reviewing Google results for a brand query.
Respond with strict JSON only: {"findings":[{"type","severity","priority","message","evidence","affectedUrls","fix","whyItMatters"}]}.
Allowed type values: serp_low_visibility, serp_title_mismatch, serp_brand_absent.
Allowed severity values: critical, warning, info. Allowed priority values: critical, high, medium, low.
Base every finding on the result rows provided. An empty findings array is a valid answer.`

// visualAudit reviews the desktop and mobile screenshots with a vision
// model. A missing registry, disabled mode, or missing screenshots all
// degrade to gaps.
func (r *Runner) visualAudit(raw *snapshot.Raw, site *snapshot.Site) func(ctx context.Context) Result {
	return func(ctx context.Context) Result {
		res := Result{Audit: AuditVisual}
		if r.cfg.VisualMode == config.VisualNone {
			res.Gaps = append(res.Gaps, "visual audit disabled by configuration")
			return res
		}
		if r.registry == nil {
			res.Gaps = append(res.Gaps, "no LLM provider configured")
			return res
		}

		var images []string
		if shots, ok := raw.Screenshots.Value(); ok {
			images = []string{shots.Desktop.Base64PNG, shots.Mobile.Base64PNG}
		} else if r.cfg.VisualMode == config.VisualRendered {
			res.Gaps = append(res.Gaps, "screenshots unavailable: "+raw.Screenshots.Err)
			return res
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Site under review: %s\n", site.Identity.NormalizedURL)
		if page, ok := site.Page(site.Identity.NormalizedURL); ok {
			fmt.Fprintf(&sb, "Homepage title: %q\nH1: %q\n", page.Title, page.H1)
		}
		if len(images) == 2 {
			sb.WriteString("Image 1 is the desktop render (1920x1080), image 2 is the mobile render (390x844).\n")
		}
		sb.WriteString("Review layout hierarchy, text readability, call-to-action prominence, and mobile usability.")

		return r.runLLMAudit(ctx, res, site, llm.KindVisual, visualSystemPrompt, sb.String(), images, visualTypes)
	}
}

// serpAudit reviews the brand query results. Without SERP data there is
// nothing to judge; the audit reports a gap rather than speculating.
func (r *Runner) serpAudit(raw *snapshot.Raw, site *snapshot.Site) func(ctx context.Context) Result {
	return func(ctx context.Context) Result {
		res := Result{Audit: AuditSerp}
		if r.registry == nil {
			res.Gaps = append(res.Gaps, "no LLM provider configured")
			return res
		}
		facts, ok := raw.SerpRaw.Value()
		if !ok {
			res.Gaps = append(res.Gaps, "serp data unavailable: "+raw.SerpRaw.Err)
			return res
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Site under review: %s\nBrand query: %q (engine %s)\n\nOrganic results:\n",
			site.Identity.NormalizedURL, facts.Query, facts.Engine)
		for _, row := range facts.Results {
			fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", row.Position, row.Title, row.Link, row.Snippet)
		}
		if len(facts.Results) == 0 {
			sb.WriteString("(no organic results returned)\n")
		}
		if page, ok := site.Page(site.Identity.NormalizedURL); ok {
			fmt.Fprintf(&sb, "\nHomepage title tag: %q\n", page.Title)
		}
		sb.WriteString("Judge whether the brand owns its query, whether the shown titles match the site's, and whether competitors outrank it.")

		return r.runLLMAudit(ctx, res, site, llm.KindSerp, serpSystemPrompt, sb.String(), nil, serpTypes)
	}
}

// runLLMAudit performs the registry call and validates the envelope.
// Malformed model output yields zero findings plus a gap, never an
// audit failure. Model-cited URLs are kept only when the run actually
// observed them.
func (r *Runner) runLLMAudit(ctx context.Context, res Result, site *snapshot.Site, kind llm.AuditKind, system, prompt string, images []string, allowed map[string]struct {
	typ finding.Type
	cat finding.Category
}) Result {
	resp, err := r.registry.Generate(ctx, kind, prompt, images, llm.Request{
		SystemInstruction: system,
		Timeout:           r.cfg.Timeouts.LLM,
		MaxTokens:         2048,
		JSONMode:          true,
	})
	if err != nil {
		res.Err = err.Error()
		return res
	}

	envelope, err := llm.ParseStructured[llmEnvelope](resp)
	if err != nil {
		res.Gaps = append(res.Gaps, "model returned malformed JSON: "+err.Error())
		return res
	}

	for _, lf := range envelope.Findings {
		meta, ok := allowed[lf.Type]
		if !ok {
			res.Gaps = append(res.Gaps, fmt.Sprintf("dropped finding with unknown type %q", lf.Type))
			continue
		}
		if strings.TrimSpace(lf.Message) == "" {
			res.Gaps = append(res.Gaps, "dropped finding with empty message")
			continue
		}
		res.Findings = append(res.Findings, finding.Finding{
			ID:           finding.NewID(),
			Type:         meta.typ,
			Severity:     parseSeverity(lf.Severity),
			Priority:     parsePriority(lf.Priority),
			Category:     meta.cat,
			Message:      lf.Message,
			Evidence:     finding.TextSample(lf.Evidence),
			AffectedURLs: affectedIn(site, lf.AffectedURLs...),
			Source:       res.Audit,
			Fix:          lf.Fix,
			WhyItMatters: lf.WhyItMatters,
		})
	}
	return res
}

func parseSeverity(s string) finding.Severity {
	switch finding.Severity(strings.ToLower(s)) {
	case finding.SeverityCritical:
		return finding.SeverityCritical
	case finding.SeverityInfo:
		return finding.SeverityInfo
	default:
		return finding.SeverityWarning
	}
}

func parsePriority(s string) finding.Priority {
	switch finding.Priority(strings.ToLower(s)) {
	case finding.PriorityCritical:
		return finding.PriorityCritical
	case finding.PriorityHigh:
		return finding.PriorityHigh
	case finding.PriorityLow:
		return finding.PriorityLow
	default:
		return finding.PriorityMedium
	}
}
