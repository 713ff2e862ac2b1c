// Package score turns merged findings into the category and overall
// scores plus the capped action plan. Scoring is deduction-based: each
// category starts at 100 and loses points per finding by priority,
// except where a measured signal (Lighthouse performance, the security
// header posture) replaces the derived number outright.
package score

import (
	"math"
	"strings"

	"siteaudit/internal/config"
	"siteaudit/internal/finding"
	"siteaudit/internal/snapshot"
)

// Score categories. Findings map onto these by their business category,
// with performance split out by finding-code prefix.
const (
	CategoryTechnical   = "technical"
	CategoryOnPage      = "onPage"
	CategoryContent     = "content"
	CategoryPerformance = "performance"
	CategorySecurity    = "security"
	CategoryVisual      = "visual"
)

// Overall weights. They sum to 1.
var weights = map[string]float64{
	CategoryTechnical:   0.20,
	CategoryOnPage:      0.25,
	CategoryContent:     0.20,
	CategoryPerformance: 0.15,
	CategorySecurity:    0.10,
	CategoryVisual:      0.10,
}

// Scores is the report scorecard: every category in [0,100] plus the
// weighted overall.
type Scores struct {
	Overall    int            `json:"overall"`
	Categories map[string]int `json:"categories"`

	// MeasuredPerformance and MeasuredSecurity are true when those
	// category scores came from a measured signal (Lighthouse, the
	// observed header posture) rather than from deductions.
	MeasuredPerformance bool `json:"measuredPerformance"`
	MeasuredSecurity    bool `json:"measuredSecurity"`
}

// Scorer applies the tuned deduction table.
type Scorer struct {
	deductions config.Deductions
}

// New builds a scorer from the tuning section.
func New(t config.Tuning) *Scorer {
	d := t.Deductions
	if d.Critical == 0 && d.High == 0 && d.Medium == 0 && d.Low == 0 {
		d = config.DefaultTuning().Deductions
	}
	return &Scorer{deductions: d}
}

// Score computes the scorecard. Adding a finding can never raise any
// score.
func (s *Scorer) Score(merged []finding.Merged, site *snapshot.Site) Scores {
	totals := map[string]float64{
		CategoryTechnical:   100,
		CategoryOnPage:      100,
		CategoryContent:     100,
		CategoryPerformance: 100,
		CategorySecurity:    100,
		CategoryVisual:      100,
	}

	for _, m := range merged {
		totals[scoreCategory(m.Finding)] -= s.deduction(m.Priority)
	}

	out := Scores{Categories: make(map[string]int, len(totals))}

	// Measured signals replace deductions derived from the same data:
	// Lighthouse for performance, the observed header posture for
	// security.
	if site != nil {
		if measured, ok := site.Perf.CategoryScores["performance"]; ok {
			totals[CategoryPerformance] = measured * 100
			out.MeasuredPerformance = true
		}
		if measured, ok := site.SiteWide.SecurityScore.Value(); ok {
			totals[CategorySecurity] = measured * 100
			out.MeasuredSecurity = true
		}
	}

	overall := 0.0
	for category, total := range totals {
		clamped := clamp(total)
		out.Categories[category] = int(math.Round(clamped))
		overall += clamped * weights[category]
	}
	out.Overall = int(math.Round(clamp(overall)))
	return out
}

func (s *Scorer) deduction(p finding.Priority) float64 {
	switch p {
	case finding.PriorityCritical:
		return s.deductions.Critical
	case finding.PriorityHigh:
		return s.deductions.High
	case finding.PriorityMedium:
		return s.deductions.Medium
	default:
		return s.deductions.Low
	}
}

// scoreCategory maps a finding onto its score category. Performance
// findings carry the technical business category but score separately,
// keyed off their code prefix.
func scoreCategory(f finding.Finding) string {
	if strings.HasPrefix(string(f.Type), "perf_") {
		return CategoryPerformance
	}
	switch f.Category {
	case finding.CategorySEO:
		return CategoryOnPage
	case finding.CategoryContent:
		return CategoryContent
	case finding.CategorySecurity:
		return CategorySecurity
	case finding.CategoryDesign, finding.CategoryConversion:
		return CategoryVisual
	default:
		return CategoryTechnical
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// PlanItem is one action-plan entry, referencing its merged finding.
type PlanItem struct {
	FindingID string           `json:"findingId"`
	Title     string           `json:"title"`
	Fix       string           `json:"fix"`
	Priority  finding.Priority `json:"priority"`
}

// ActionPlan buckets the top findings by urgency. Buckets are capped;
// overflow from a more urgent bucket spills into the next one.
type ActionPlan struct {
	Immediate []PlanItem `json:"immediate"`
	ShortTerm []PlanItem `json:"shortTerm"`
	LongTerm  []PlanItem `json:"longTerm"`
}

// BuildPlan fills the three buckets from findings already sorted by
// priority score, descending.
func BuildPlan(merged []finding.Merged, caps config.ActionPlanCaps) ActionPlan {
	if caps.Immediate <= 0 && caps.ShortTerm <= 0 && caps.LongTerm <= 0 {
		caps = config.DefaultTuning().PlanCaps
	}

	var plan ActionPlan
	for _, m := range merged {
		item := PlanItem{FindingID: m.ID, Title: m.Message, Fix: m.Fix, Priority: m.Priority}
		switch m.Priority {
		case finding.PriorityCritical, finding.PriorityHigh:
			switch {
			case len(plan.Immediate) < caps.Immediate:
				plan.Immediate = append(plan.Immediate, item)
			case len(plan.ShortTerm) < caps.ShortTerm:
				plan.ShortTerm = append(plan.ShortTerm, item)
			}
		case finding.PriorityMedium:
			switch {
			case len(plan.ShortTerm) < caps.ShortTerm:
				plan.ShortTerm = append(plan.ShortTerm, item)
			case len(plan.LongTerm) < caps.LongTerm:
				plan.LongTerm = append(plan.LongTerm, item)
			}
		default:
			if len(plan.LongTerm) < caps.LongTerm {
				plan.LongTerm = append(plan.LongTerm, item)
			}
		}
	}
	return plan
}
