package extract

import (
	"siteaudit/internal/snapshot"
	"siteaudit/internal/tristate"
)

// Core Web Vitals thresholds: value < good is good, value < poor needs
// improvement, otherwise poor. Times in milliseconds, CLS unitless.
var cwvThresholds = map[string]struct{ good, poor float64 }{
	"largest-contentful-paint": {2500, 4000},
	"cumulative-layout-shift":  {0.1, 0.25},
	"total-blocking-time":      {200, 600},
	"first-contentful-paint":   {1800, 3000},
	"server-response-time":     {800, 1800},
}

// perfSignals classifies the Lighthouse vitals. Every metric the report
// does not carry stays unknown; a failed Lighthouse run leaves all five
// unknown with the collector error as the reason.
func perfSignals(raw *snapshot.Raw) snapshot.PerfSignals {
	report, ok := raw.Lighthouse.Value()
	if !ok {
		reason := "lighthouse unavailable: " + raw.Lighthouse.Err
		unknown := tristate.Unknown[snapshot.CWVMetric](reason)
		return snapshot.PerfSignals{
			LCP: unknown, CLS: unknown, TBT: unknown, FCP: unknown, TTFB: unknown,
		}
	}

	signals := snapshot.PerfSignals{
		LCP:  metric(report, "largest-contentful-paint"),
		CLS:  metric(report, "cumulative-layout-shift"),
		TBT:  metric(report, "total-blocking-time"),
		FCP:  metric(report, "first-contentful-paint"),
		TTFB: metric(report, "server-response-time"),
	}
	if len(report.Categories) > 0 {
		signals.CategoryScores = make(map[string]float64, len(report.Categories))
		for name, cat := range report.Categories {
			signals.CategoryScores[name] = cat.Score
		}
	}
	return signals
}

func metric(report snapshot.LighthouseReport, auditID string) tristate.TriState[snapshot.CWVMetric] {
	audit, ok := report.Audits[auditID]
	if !ok {
		return tristate.Unknown[snapshot.CWVMetric]("audit " + auditID + " not in report")
	}
	return tristate.Present(snapshot.CWVMetric{
		Value:  audit.NumericValue,
		Rating: rate(auditID, audit.NumericValue),
	})
}

func rate(auditID string, value float64) snapshot.CWVRating {
	t, ok := cwvThresholds[auditID]
	if !ok {
		return snapshot.CWVGood
	}
	switch {
	case value < t.good:
		return snapshot.CWVGood
	case value < t.poor:
		return snapshot.CWVNeedsImprovement
	default:
		return snapshot.CWVPoor
	}
}
