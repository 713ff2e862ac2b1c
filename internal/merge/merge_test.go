package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteaudit/internal/config"
	"siteaudit/internal/finding"
)

func f(source string, typ finding.Type, cat finding.Category, priority finding.Priority, msg string, ev finding.Evidence, urls ...string) finding.Finding {
	return finding.Finding{
		ID:           finding.NewID(),
		Type:         typ,
		Severity:     finding.SeverityWarning,
		Priority:     priority,
		Category:     cat,
		Message:      msg,
		Evidence:     ev,
		Source:       source,
		AffectedURLs: urls,
	}
}

func TestCrossSourceDuplicatesCollapse(t *testing.T) {
	m := New(config.DefaultTuning())

	in := []finding.Finding{
		f("security", finding.TypeMissingHSTS, finding.CategorySecurity, finding.PriorityHigh,
			"The strict-transport-security response header is not set.",
			finding.HeaderMissing("strict-transport-security"),
			"https://shop.example/"),
		f("crawl", finding.TypeMissingHSTS, finding.CategorySecurity, finding.PriorityMedium,
			"Missing HSTS header on the site root.",
			finding.TextSample("no strict-transport-security observed"),
			"https://shop.example/", "https://shop.example/login"),
	}

	out := m.Merge(in)
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, []string{"crawl", "security"}, got.Sources)
	assert.Equal(t, finding.PriorityHigh, got.Priority, "most severe grading wins")
	assert.Equal(t, []string{"https://shop.example/", "https://shop.example/login"}, got.AffectedURLs)
	assert.Equal(t, finding.ConfidenceHigh, got.Confidence)
	// base 4 + 0.5 merged + 0.3 strong evidence
	assert.InDelta(t, 4.8, got.PriorityScore, 1e-9)
}

func TestStrongEvidenceOnAnyMemberLiftsConfidence(t *testing.T) {
	m := New(config.DefaultTuning())

	// The representative (most severe member) carries thin evidence; the
	// strong evidence sits on its cross-source duplicate.
	in := []finding.Finding{
		f("security", finding.TypeMixedContent, finding.CategorySecurity, finding.PriorityHigh,
			"Pages load subresources over plain HTTP.",
			finding.TextSample("http")),
		f("visual", finding.TypeMixedContent, finding.CategorySecurity, finding.PriorityMedium,
			"Insecure subresources load over plain HTTP.",
			finding.TextSample("http://cdn.example/legacy-theme.js blocked by the browser")),
	}

	out := m.Merge(in)
	require.Len(t, out, 1)
	assert.Equal(t, finding.PriorityHigh, out[0].Priority)
	assert.Equal(t, finding.ConfidenceHigh, out[0].Confidence)
	// base 4 + 0.5 merged + 0.3 strong evidence
	assert.InDelta(t, 4.8, out[0].PriorityScore, 1e-9)
}

func TestSameSourceNeverMerges(t *testing.T) {
	m := New(config.DefaultTuning())

	in := []finding.Finding{
		f("technical", finding.TypeMissingTitle, finding.CategorySEO, finding.PriorityHigh,
			"Page has no <title>.", finding.TextSample("x"), "https://shop.example/a"),
		f("technical", finding.TypeMissingTitle, finding.CategorySEO, finding.PriorityHigh,
			"Page has no <title>.", finding.TextSample("x"), "https://shop.example/b"),
	}

	out := m.Merge(in)
	assert.Len(t, out, 2, "per-page findings from one audit stay separate")
}

func TestDifferentCategoriesNeverMerge(t *testing.T) {
	m := New(config.DefaultTuning())

	in := []finding.Finding{
		f("security", finding.TypeMixedContent, finding.CategorySecurity, finding.PriorityHigh,
			"Pages load subresources over plain HTTP.", finding.TextSample("http://cdn.example/x.js")),
		f("visual", finding.TypeVisualLayout, finding.CategoryDesign, finding.PriorityHigh,
			"Pages load subresources over plain HTTP.", finding.TextSample("same words, other dimension")),
	}

	out := m.Merge(in)
	assert.Len(t, out, 2)
}

func TestKeyPhraseBoostMergesRelatedMessages(t *testing.T) {
	m := New(config.DefaultTuning())

	// Below the raw Jaccard threshold, but both mention "canonical".
	in := []finding.Finding{
		f("technical", finding.TypeCanonicalMismatch, finding.CategorySEO, finding.PriorityMedium,
			"Canonical URL points at a different page.", finding.TextSample("href mismatch")),
		f("serp", finding.TypeSerpTitleMismatch, finding.CategorySEO, finding.PriorityMedium,
			"Canonical URL points to another page variant.", finding.TextSample("rows 3 and 4")),
	}

	raw := New(config.Tuning{MergeThreshold: 0.6}).similarity(in[0].Message, in[1].Message)
	require.Less(t, raw, m.threshold, "raw similarity alone is below the threshold")
	sim := m.similarity(in[0].Message, in[1].Message)
	require.GreaterOrEqual(t, sim, m.threshold, "boosted similarity clears the threshold")

	out := m.Merge(in)
	assert.Len(t, out, 1)
}

func TestSortedByPriorityScoreDescending(t *testing.T) {
	m := New(config.DefaultTuning())

	in := []finding.Finding{
		f("technical", finding.TypeMissingLang, finding.CategoryTechnical, finding.PriorityLow,
			"The html element declares no lang attribute.", finding.TextSample("x")),
		f("security", finding.TypeNoHTTPS, finding.CategorySecurity, finding.PriorityCritical,
			"Plain HTTP is served without redirecting to HTTPS.", finding.TextSample("http probe ended on http")),
		f("performance", finding.TypePoorLCP, finding.CategoryTechnical, finding.PriorityHigh,
			"LCP is 5200ms, in the poor range.", finding.Measured("LCP", 5200, 2500, "ms")),
	}

	out := m.Merge(in)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].PriorityScore, out[i].PriorityScore)
	}
	assert.Equal(t, finding.TypeNoHTTPS, out[0].Type)
}

func TestPriorityScoreCapped(t *testing.T) {
	m := New(config.DefaultTuning())

	in := []finding.Finding{
		f("security", finding.TypeNoHTTPS, finding.CategorySecurity, finding.PriorityCritical,
			"Plain-HTTP requests are served without redirecting to HTTPS.",
			finding.TextSample("http://shop.example/ stayed on http")),
		f("crawl", finding.TypeNoHTTPS, finding.CategorySecurity, finding.PriorityCritical,
			"Site does not force HTTPS on the root.",
			finding.TextSample("redirect map shows http final url")),
	}

	out := m.Merge(in)
	require.Len(t, out, 1)
	assert.Equal(t, 5.0, out[0].PriorityScore, "score never exceeds 5")
}

func TestMergeIsIdempotent(t *testing.T) {
	m := New(config.DefaultTuning())

	in := []finding.Finding{
		f("security", finding.TypeMissingHSTS, finding.CategorySecurity, finding.PriorityHigh,
			"The strict-transport-security response header is not set.",
			finding.HeaderMissing("strict-transport-security"), "https://shop.example/"),
		f("crawl", finding.TypeMissingHSTS, finding.CategorySecurity, finding.PriorityMedium,
			"Missing HSTS header on the site root.",
			finding.TextSample("no strict-transport-security observed"), "https://shop.example/"),
		f("technical", finding.TypeMissingTitle, finding.CategorySEO, finding.PriorityHigh,
			"Page has no <title>.", finding.TextSample("title element absent"), "https://shop.example/a"),
	}

	first := m.Merge(in)

	again := make([]finding.Finding, 0, len(first))
	for _, mf := range first {
		inner := mf.Finding
		again = append(again, inner)
	}
	second := m.Merge(again)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Type, second[i].Type)
		assert.Equal(t, first[i].Priority, second[i].Priority)
		assert.Equal(t, first[i].Message, second[i].Message)
		assert.Equal(t, first[i].AffectedURLs, second[i].AffectedURLs)
	}
}

func TestMergeDeterministicAcrossInputOrder(t *testing.T) {
	m := New(config.DefaultTuning())

	a := f("security", finding.TypeMissingCSP, finding.CategorySecurity, finding.PriorityMedium,
		"The content-security-policy response header is not set.", finding.HeaderMissing("content-security-policy"))
	b := f("performance", finding.TypePoorCLS, finding.CategoryTechnical, finding.PriorityMedium,
		"CLS is 0.31, in the poor range.", finding.Measured("CLS", 0.31, 0.1, ""))
	c := f("technical", finding.TypeMissingH1, finding.CategorySEO, finding.PriorityMedium,
		"Page has no h1.", finding.TextSample("h1 count 0"), "https://shop.example/a")

	out1 := m.Merge([]finding.Finding{a, b, c})
	out2 := m.Merge([]finding.Finding{c, a, b})

	require.Len(t, out2, len(out1))
	for i := range out1 {
		assert.Equal(t, out1[i].Type, out2[i].Type)
		assert.Equal(t, out1[i].PriorityScore, out2[i].PriorityScore)
	}
}
