package audits

import (
	"fmt"

	"siteaudit/internal/finding"
	"siteaudit/internal/snapshot"
	"siteaudit/internal/tristate"
)

const lowPerfScore = 0.5

// vitalPolicy binds one Core Web Vital to its finding code and the
// thresholds quoted in evidence.
type vitalPolicy struct {
	name      string
	typ       finding.Type
	threshold float64
	unit      string
	fix       string
	why       string
}

var vitalPolicies = []vitalPolicy{
	{
		name: "LCP", typ: finding.TypePoorLCP, threshold: 2500, unit: "ms",
		fix: "Compress the hero image, preload it, and cut render-blocking resources.",
		why: "Largest Contentful Paint is when the page appears usable; slow LCP loses visitors before content shows.",
	},
	{
		name: "CLS", typ: finding.TypePoorCLS, threshold: 0.1, unit: "",
		fix: "Reserve space for images, embeds, and ads with explicit dimensions.",
		why: "Layout shifts move controls under the user's finger and are a direct ranking input.",
	},
	{
		name: "TBT", typ: finding.TypePoorFID, threshold: 200, unit: "ms",
		fix: "Split long JavaScript tasks and defer non-critical scripts.",
		why: "Total Blocking Time proxies input delay: a blocked main thread ignores taps and clicks.",
	},
	{
		name: "FCP", typ: finding.TypePoorFCP, threshold: 1800, unit: "ms",
		fix: "Inline critical CSS and shorten server response time.",
		why: "First Contentful Paint is the first sign of life; a blank screen reads as broken.",
	},
	{
		name: "TTFB", typ: finding.TypeSlowTTFB, threshold: 800, unit: "ms",
		fix: "Add caching or a CDN in front of the origin and profile slow handlers.",
		why: "Every metric downstream of the first byte inherits a slow server response.",
	},
}

// performanceAudit grades the measured Core Web Vitals. Poor vitals are
// critical findings, needs-improvement vitals are warnings, and
// unmeasured vitals become gaps.
func performanceAudit(site *snapshot.Site) Result {
	res := Result{Audit: AuditPerformance}
	affected := affectedIn(site, site.Identity.NormalizedURL)

	emit := func(f finding.Finding) {
		f.ID = finding.NewID()
		f.Source = AuditPerformance
		res.Findings = append(res.Findings, f)
	}

	vitals := []tristate.TriState[snapshot.CWVMetric]{
		site.Perf.LCP, site.Perf.CLS, site.Perf.TBT, site.Perf.FCP, site.Perf.TTFB,
	}
	for i, policy := range vitalPolicies {
		metric, ok := vitals[i].Value()
		if !ok {
			res.Gaps = append(res.Gaps, policy.name+" not measured: "+vitals[i].Reason())
			continue
		}
		switch metric.Rating {
		case snapshot.CWVPoor:
			emit(finding.Finding{
				Type:         policy.typ,
				Severity:     finding.SeverityCritical,
				Priority:     finding.PriorityCritical,
				Category:     finding.CategoryTechnical,
				Message:      fmt.Sprintf("%s is %s, in the poor range.", policy.name, formatMetric(metric.Value, policy.unit)),
				Evidence:     finding.Measured(policy.name, metric.Value, policy.threshold, policy.unit),
				AffectedURLs: affected,
				Fix:          policy.fix,
				WhyItMatters: policy.why,
			})
		case snapshot.CWVNeedsImprovement:
			emit(finding.Finding{
				Type:         policy.typ,
				Severity:     finding.SeverityWarning,
				Priority:     finding.PriorityMedium,
				Category:     finding.CategoryTechnical,
				Message:      fmt.Sprintf("%s is %s, above the good threshold.", policy.name, formatMetric(metric.Value, policy.unit)),
				Evidence:     finding.Measured(policy.name, metric.Value, policy.threshold, policy.unit),
				AffectedURLs: affected,
				Fix:          policy.fix,
				WhyItMatters: policy.why,
			})
		}
	}

	if score, ok := site.Perf.CategoryScores["performance"]; ok && score < lowPerfScore {
		emit(finding.Finding{
			Type:         finding.TypeLowPerfScore,
			Severity:     finding.SeverityWarning,
			Priority:     finding.PriorityHigh,
			Category:     finding.CategoryTechnical,
			Message:      fmt.Sprintf("Lighthouse performance score is %.0f of 100.", score*100),
			Evidence:     finding.Measured("lighthouse_performance", score*100, lowPerfScore*100, "score"),
			AffectedURLs: affected,
			Fix:          "Work through the individual vital findings; the category score follows them.",
			WhyItMatters: "A failing overall score means most visitors experience the site as slow.",
		})
	}

	return res
}

func formatMetric(value float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%.2f", value)
	}
	return fmt.Sprintf("%.0f%s", value, unit)
}
