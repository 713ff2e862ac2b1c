// Package synthesis writes the narrative layer of the report: executive
// summary, top issues, next steps, and per-category score
// justifications. One LLM call produces the narrative; when the call
// fails or no provider is configured, a deterministic template fills in
// instead. Synthesis never fails the run and never invents findings.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"siteaudit/internal/config"
	"siteaudit/internal/finding"
	"siteaudit/internal/llm"
	"siteaudit/internal/score"
)

// At most this many findings are shown to the model.
const maxFindingsInPrompt = 20

// Output is the narrative block of the report. Used reports whether the
// narrative came from the model or from the deterministic fallback.
type Output struct {
	ExecutiveSummary    string            `json:"executiveSummary"`
	TopIssues           []string          `json:"topIssues"`
	NextSteps           []string          `json:"nextSteps"`
	ScoreJustifications map[string]string `json:"scoreJustifications"`
	Used                bool              `json:"usedSynthesis"`
}

// Synthesizer produces the narrative.
type Synthesizer struct {
	cfg      config.Config
	registry *llm.Registry
	log      *zap.Logger
}

// New builds a synthesizer. registry may be nil; the fallback then
// always serves.
func New(cfg config.Config, registry *llm.Registry, log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{cfg: cfg, registry: registry, log: log}
}

const systemPrompt = `You are writing the narrative section of a website audit report.
Respond with strict JSON only:
{"executiveSummary": string, "topIssues": [string], "nextSteps": [string], "scoreJustifications": {category: string}}.
Ground every sentence in the findings and scores provided. Do not invent issues that are not listed.
Keep the executive summary under 120 words. topIssues and nextSteps carry at most five entries each.`

type modelOutput struct {
	ExecutiveSummary    string            `json:"executiveSummary"`
	TopIssues           []string          `json:"topIssues"`
	NextSteps           []string          `json:"nextSteps"`
	ScoreJustifications map[string]string `json:"scoreJustifications"`
}

// Synthesize writes the narrative for the given findings and scores.
// The returned Output is always complete; only Used tells the caller
// which path produced it.
func (s *Synthesizer) Synthesize(ctx context.Context, url string, merged []finding.Merged, scores score.Scores, gaps []string) Output {
	if s.registry == nil {
		return s.fallback(merged, scores, gaps)
	}

	resp, err := s.registry.Generate(ctx, llm.KindSynthesis, s.prompt(url, merged, scores, gaps), nil, llm.Request{
		SystemInstruction: systemPrompt,
		Timeout:           s.cfg.Timeouts.LLM,
		MaxTokens:         2048,
		JSONMode:          true,
	})
	if err != nil {
		s.log.Warn("synthesis call failed, using deterministic narrative", zap.Error(err))
		return s.fallback(merged, scores, gaps)
	}

	parsed, err := llm.ParseStructured[modelOutput](resp)
	if err != nil || strings.TrimSpace(parsed.ExecutiveSummary) == "" {
		s.log.Warn("synthesis returned malformed narrative, using deterministic fallback")
		return s.fallback(merged, scores, gaps)
	}

	out := Output{
		ExecutiveSummary:    parsed.ExecutiveSummary,
		TopIssues:           capList(parsed.TopIssues, 5),
		NextSteps:           capList(parsed.NextSteps, 5),
		ScoreJustifications: parsed.ScoreJustifications,
		Used:                true,
	}
	if out.ScoreJustifications == nil {
		out.ScoreJustifications = justifications(merged, scores)
	}
	return out
}

func (s *Synthesizer) prompt(url string, merged []finding.Merged, scores score.Scores, gaps []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Site: %s\nOverall score: %d/100\nCategory scores:\n", url, scores.Overall)
	for _, cat := range sortedCategories(scores) {
		fmt.Fprintf(&sb, "  %s: %d\n", cat, scores.Categories[cat])
	}

	sb.WriteString("\nFindings (highest priority first):\n")
	shown := merged
	if len(shown) > maxFindingsInPrompt {
		shown = shown[:maxFindingsInPrompt]
	}
	for i, m := range shown {
		fmt.Fprintf(&sb, "%d. [%s/%s] %s (sources: %s)\n",
			i+1, m.Priority, m.Category, m.Message, strings.Join(m.Sources, ","))
	}
	if len(merged) > len(shown) {
		fmt.Fprintf(&sb, "(%d further findings omitted)\n", len(merged)-len(shown))
	}

	if len(gaps) > 0 {
		sb.WriteString("\nSignals that could not be checked:\n")
		for _, g := range gaps {
			fmt.Fprintf(&sb, "- %s\n", g)
		}
		sb.WriteString("Acknowledge these as unchecked; do not speculate about them.\n")
	}
	return sb.String()
}

// fallback builds the narrative from templates over the same inputs the
// model would have seen. It cannot fail.
func (s *Synthesizer) fallback(merged []finding.Merged, scores score.Scores, gaps []string) Output {
	counts := map[finding.Priority]int{}
	for _, m := range merged {
		counts[m.Priority]++
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The site scored %d of 100 overall across %d findings", scores.Overall, len(merged))
	if counts[finding.PriorityCritical] > 0 {
		fmt.Fprintf(&sb, ", %d of them critical", counts[finding.PriorityCritical])
	}
	sb.WriteString(".")
	if len(merged) > 0 {
		fmt.Fprintf(&sb, " The most pressing issue: %s", merged[0].Message)
	}
	if len(gaps) > 0 {
		fmt.Fprintf(&sb, " %d signals could not be checked and are excluded from the assessment.", len(gaps))
	}

	var topIssues, nextSteps []string
	for _, m := range merged {
		if len(topIssues) >= 5 {
			break
		}
		topIssues = append(topIssues, m.Message)
		if m.Fix != "" && len(nextSteps) < 5 {
			nextSteps = append(nextSteps, m.Fix)
		}
	}

	return Output{
		ExecutiveSummary:    sb.String(),
		TopIssues:           topIssues,
		NextSteps:           nextSteps,
		ScoreJustifications: justifications(merged, scores),
		Used:                false,
	}
}

// justifications derives a one-line explanation per category from the
// deduction counts.
func justifications(merged []finding.Merged, scores score.Scores) map[string]string {
	byCategory := map[string]int{}
	for _, m := range merged {
		byCategory[categoryOf(m.Finding)]++
	}

	out := make(map[string]string, len(scores.Categories))
	for _, cat := range sortedCategories(scores) {
		n := byCategory[cat]
		switch {
		case n == 0:
			out[cat] = fmt.Sprintf("Scored %d with no findings recorded.", scores.Categories[cat])
		case n == 1:
			out[cat] = fmt.Sprintf("Scored %d; one finding deducted from this category.", scores.Categories[cat])
		default:
			out[cat] = fmt.Sprintf("Scored %d across %d findings in this category.", scores.Categories[cat], n)
		}
	}
	return out
}

func categoryOf(f finding.Finding) string {
	if strings.HasPrefix(string(f.Type), "perf_") {
		return score.CategoryPerformance
	}
	switch f.Category {
	case finding.CategorySEO:
		return score.CategoryOnPage
	case finding.CategoryContent:
		return score.CategoryContent
	case finding.CategorySecurity:
		return score.CategorySecurity
	case finding.CategoryDesign, finding.CategoryConversion:
		return score.CategoryVisual
	default:
		return score.CategoryTechnical
	}
}

func sortedCategories(scores score.Scores) []string {
	cats := make([]string, 0, len(scores.Categories))
	for cat := range scores.Categories {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

func capList(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
