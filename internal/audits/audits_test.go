package audits

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteaudit/internal/config"
	"siteaudit/internal/fetch"
	"siteaudit/internal/finding"
	"siteaudit/internal/identity"
	"siteaudit/internal/llm"
	"siteaudit/internal/snapshot"
	"siteaudit/internal/tristate"
)

func baseSite() *snapshot.Site {
	return &snapshot.Site{
		Identity: mustIdentity(),
		SiteWide: snapshot.SiteWide{
			SecurityHeaders: map[string]tristate.TriState[string]{
				"strict-transport-security": tristate.Absent[string](),
				"content-security-policy":   tristate.Absent[string](),
				"x-content-type-options":    tristate.Present("nosniff"),
				"x-frame-options":           tristate.Unknown[string]("root fetch failed"),
				"referrer-policy":           tristate.Present("strict-origin-when-cross-origin"),
				"permissions-policy":        tristate.Absent[string](),
			},
			HTTPSEnforced: tristate.Present(true),
		},
		URLSet: snapshot.URLSet{All: []string{
			"https://shop.example/",
			"https://shop.example/a",
			"https://shop.example/b",
			"https://shop.example/gone",
		}},
	}
}

func mustIdentity() identity.Identity {
	id, err := identity.New("https://shop.example", "", "t@1", "p@1")
	if err != nil {
		panic(err)
	}
	return id
}

func typesOf(findings []finding.Finding) []finding.Type {
	out := make([]finding.Type, len(findings))
	for i, f := range findings {
		out[i] = f.Type
	}
	return out
}

func findByType(findings []finding.Finding, t finding.Type) (finding.Finding, bool) {
	for _, f := range findings {
		if f.Type == t {
			return f, true
		}
	}
	return finding.Finding{}, false
}

func TestSecurityAuditHeaderPosture(t *testing.T) {
	raw := &snapshot.Raw{Identity: mustIdentity()}
	site := baseSite()

	res := securityAudit(raw, site)
	require.Empty(t, res.Err)

	hsts, ok := findByType(res.Findings, finding.TypeMissingHSTS)
	require.True(t, ok)
	assert.Equal(t, finding.SeverityCritical, hsts.Severity)
	assert.Equal(t, finding.EvidenceHeader, hsts.Evidence.Kind)
	assert.Equal(t, AuditSecurity, hsts.Source)

	csp, ok := findByType(res.Findings, finding.TypeMissingCSP)
	require.True(t, ok)
	assert.Equal(t, finding.SeverityWarning, csp.Severity)

	// Present headers never produce findings.
	_, ok = findByType(res.Findings, finding.TypeMissingContentTypeOpts)
	assert.False(t, ok)

	// Unknown headers become gaps, not findings.
	_, ok = findByType(res.Findings, finding.TypeMissingFrameOptions)
	assert.False(t, ok)
	assert.True(t, hasGap(res.Gaps, "x-frame-options"))

	// TLS facts were never collected: gap, not a cert finding.
	assert.True(t, hasGap(res.Gaps, "tls handshake"))
}

func TestSecurityAuditTransport(t *testing.T) {
	raw := &snapshot.Raw{
		Identity: mustIdentity(),
		TLSFacts: snapshot.OK(snapshot.TLSFacts{Protocol: "TLS 1.0", ExpiryDays: 12}),
		WellKnown: snapshot.OK([]snapshot.WellKnownEntry{
			{Path: "/.env", Status: 200, Snippet: "DB_PASSWORD=hunter2"},
			{Path: "/humans.txt", Status: 200, Snippet: "we are people"},
		}),
	}
	site := baseSite()
	site.SiteWide.HTTPSEnforced = tristate.Present(false)
	site.Pages = []snapshot.PageSignals{{URL: "https://shop.example/", MixedContent: true}}

	res := securityAudit(raw, site)

	for _, want := range []finding.Type{
		finding.TypeNoHTTPS, finding.TypeCertExpiring, finding.TypeLegacyTLS,
		finding.TypeMixedContent, finding.TypeExposedWellKnown,
	} {
		_, ok := findByType(res.Findings, want)
		assert.True(t, ok, "expected %s, got %v", want, typesOf(res.Findings))
	}

	// The public exposure finding must not carry file content, and the
	// probed path was never itself observed, so it cites the root.
	exposed, _ := findByType(res.Findings, finding.TypeExposedWellKnown)
	assert.NotContains(t, exposed.Message, "hunter2")
	assert.NotContains(t, exposed.Evidence.Text, "hunter2")
	assert.Equal(t, []string{"https://shop.example/"}, exposed.AffectedURLs)
}

func TestCrawlAuditDisallowAllAndLoops(t *testing.T) {
	raw := &snapshot.Raw{
		Identity:  mustIdentity(),
		RootFetch: snapshot.OK(fetchResult(200)),
		RobotsTxt: snapshot.OK(snapshot.RobotsFacts{
			Status: 200, Body: "User-agent: *\nDisallow: /", DisallowAll: true,
		}),
		Sitemaps: snapshot.OK(snapshot.SitemapFacts{}),
	}
	site := baseSite()
	site.SiteWide.Infra.RedirectLoops = []string{"https://shop.example/a"}
	site.SiteWide.Infra.RedirectChainHealth = "critical"

	res := crawlAudit(raw, site)

	disallow, ok := findByType(res.Findings, finding.TypeRobotsDisallowAll)
	require.True(t, ok)
	assert.Equal(t, finding.SeverityCritical, disallow.Severity)

	loop, ok := findByType(res.Findings, finding.TypeUnreachable)
	require.True(t, ok)
	assert.Equal(t, finding.PriorityCritical, loop.Priority)

	_, ok = findByType(res.Findings, finding.TypeMissingSitemap)
	assert.True(t, ok, "empty sitemap set is a missing sitemap")
}

func TestCrawlAuditBrokenLinks(t *testing.T) {
	raw := &snapshot.Raw{
		Identity:  mustIdentity(),
		RootFetch: snapshot.OK(fetchResult(200)),
		RobotsTxt: snapshot.OK(snapshot.RobotsFacts{Status: 200}),
		Sitemaps:  snapshot.OK(snapshot.SitemapFacts{URLs: []string{"https://shop.example/a"}}),
	}
	site := baseSite()
	site.SiteWide.Infra.RedirectChainHealth = "healthy"
	site.Pages = []snapshot.PageSignals{
		{URL: "https://shop.example/", Links: snapshot.PageLinks{Broken: []string{"https://shop.example/gone"}}},
		{URL: "https://shop.example/a", Links: snapshot.PageLinks{Broken: []string{"https://shop.example/gone"}}},
	}

	res := crawlAudit(raw, site)
	broken, ok := findByType(res.Findings, finding.TypeBrokenLinks)
	require.True(t, ok)
	assert.Equal(t, []string{"https://shop.example/gone"}, broken.AffectedURLs, "deduplicated across pages")
}

func TestTechnicalAuditOnPage(t *testing.T) {
	site := baseSite()
	site.Pages = []snapshot.PageSignals{
		{
			URL: "https://shop.example/", Status: 200,
			Title: "Widgets", TitleLength: 7,
			MetaDescription: strings.Repeat("x", 200),
			H1Count:         2, H1: "Widgets",
			HasViewport: false, HasLang: true, HasCharset: true,
			Canonical: "https://shop.example/other",
			Images:    []snapshot.Image{{Src: "/a.png"}, {Src: "/b.png", Alt: "b"}},
			WordCount: 40,
		},
		{
			URL: "https://shop.example/a", Status: 200,
			Title: "Same Title Here For Both Pages OK", TitleLength: 33,
			MetaDescription: "A description of reasonable length for testing the happy path here.",
			H1Count:         1, HasViewport: true, HasLang: true, HasCharset: true,
			CanonicalSelf: true, Canonical: "https://shop.example/a",
			WordCount: 900,
		},
		{
			URL: "https://shop.example/b", Status: 200,
			Title: "Same Title Here For Both Pages OK", TitleLength: 33,
			MetaDescription: "A description of reasonable length for testing the happy path here.",
			H1Count:         1, HasViewport: true, HasLang: true, HasCharset: true,
			CanonicalSelf: true, Canonical: "https://shop.example/b",
			WordCount: 900,
		},
	}

	res := technicalAudit(site)
	got := typesOf(res.Findings)

	for _, want := range []finding.Type{
		finding.TypeTitleTooShort, finding.TypeMetaDescTooLong, finding.TypeMultipleH1,
		finding.TypeCanonicalMismatch, finding.TypeMissingViewport, finding.TypeImagesMissingAlt,
		finding.TypeThinContent, finding.TypeDuplicateTitle, finding.TypeDuplicateMetaDesc,
		finding.TypeMissingSchema,
	} {
		assert.Contains(t, got, want)
	}

	dup, _ := findByType(res.Findings, finding.TypeDuplicateTitle)
	assert.ElementsMatch(t, []string{"https://shop.example/a", "https://shop.example/b"}, dup.AffectedURLs)
}

func TestTechnicalAuditNoPages(t *testing.T) {
	res := technicalAudit(baseSite())
	assert.Empty(t, res.Findings)
	assert.NotEmpty(t, res.Gaps)
}

func TestPerformanceAudit(t *testing.T) {
	site := baseSite()
	site.Perf = snapshot.PerfSignals{
		LCP:  tristate.Present(snapshot.CWVMetric{Value: 5200, Rating: snapshot.CWVPoor}),
		CLS:  tristate.Present(snapshot.CWVMetric{Value: 0.15, Rating: snapshot.CWVNeedsImprovement}),
		TBT:  tristate.Present(snapshot.CWVMetric{Value: 90, Rating: snapshot.CWVGood}),
		FCP:  tristate.Unknown[snapshot.CWVMetric]("lighthouse unavailable"),
		TTFB: tristate.Unknown[snapshot.CWVMetric]("lighthouse unavailable"),
		CategoryScores: map[string]float64{"performance": 0.31},
	}

	res := performanceAudit(site)

	lcp, ok := findByType(res.Findings, finding.TypePoorLCP)
	require.True(t, ok)
	assert.Equal(t, finding.SeverityCritical, lcp.Severity)
	assert.Equal(t, finding.PriorityCritical, lcp.Priority, "poor vitals deduct at the critical rate")
	require.NotNil(t, lcp.Evidence.Numeric)
	assert.Equal(t, 5200.0, lcp.Evidence.Numeric.Value)

	cls, ok := findByType(res.Findings, finding.TypePoorCLS)
	require.True(t, ok)
	assert.Equal(t, finding.SeverityWarning, cls.Severity)

	_, ok = findByType(res.Findings, finding.TypePoorFID)
	assert.False(t, ok, "good vitals emit nothing")

	_, ok = findByType(res.Findings, finding.TypeLowPerfScore)
	assert.True(t, ok)

	assert.Len(t, res.Gaps, 2, "unmeasured vitals are gaps")
}

func TestAuditsCiteOnlyObservedURLs(t *testing.T) {
	raw := &snapshot.Raw{
		Identity:  mustIdentity(),
		RootFetch: snapshot.OK(fetchResult(200)),
		RobotsTxt: snapshot.OK(snapshot.RobotsFacts{Status: 404}),
		Sitemaps:  snapshot.OK(snapshot.SitemapFacts{}),
		TLSFacts:  snapshot.OK(snapshot.TLSFacts{Protocol: "TLS 1.0", ExpiryDays: 5}),
		WellKnown: snapshot.OK([]snapshot.WellKnownEntry{
			{Path: "/.env", Status: 200, Snippet: "KEY=1"},
		}),
	}
	site := baseSite()
	site.SiteWide.HTTPSEnforced = tristate.Present(false)
	site.SiteWide.Infra.RedirectLoops = []string{"https://tracker.example/loop"}
	site.Pages = []snapshot.PageSignals{
		{URL: "https://shop.example/", Status: 200, MixedContent: true, H1Count: 2, WordCount: 10},
	}
	site.Perf = snapshot.PerfSignals{
		LCP: tristate.Present(snapshot.CWVMetric{Value: 6000, Rating: snapshot.CWVPoor}),
	}

	results := []Result{
		crawlAudit(raw, site),
		technicalAudit(site),
		securityAudit(raw, site),
		performanceAudit(site),
	}

	total := 0
	for _, res := range results {
		for _, f := range res.Findings {
			total++
			for _, u := range f.AffectedURLs {
				assert.True(t, site.URLSet.Contains(u),
					"%s cites %q outside the observed URL set", f.Type, u)
			}
		}
	}
	assert.NotZero(t, total)
}

func TestPrivateFlagsDetection(t *testing.T) {
	raw := &snapshot.Raw{
		Identity: mustIdentity(),
		WellKnown: snapshot.OK([]snapshot.WellKnownEntry{
			{Path: "/.env", Status: 200, Snippet: "API_KEY=sk-live-123"},
		}),
		HTMLSamples: snapshot.OK([]snapshot.PageFetch{
			{URL: "https://shop.example/err", HTML: "<pre>Traceback (most recent call last)\n  File x</pre>"},
			{URL: "https://shop.example/app", HTML: "<script>//# sourceMappingURL=app.js.map</script>"},
		}),
	}

	flags := privateFlags(raw)
	require.Len(t, flags, 3)

	kinds := map[finding.PrivateFlagKind]bool{}
	for _, f := range flags {
		kinds[f.Kind] = true
		assert.True(t, strings.HasPrefix(f.ID, "pf_"), "private ids use their own prefix")
		assert.False(t, f.DetectedAt.IsZero())
	}
	assert.True(t, kinds[finding.FlagExposedSecret])
	assert.True(t, kinds[finding.FlagStackTrace])
	assert.True(t, kinds[finding.FlagSourceMap])
}

func TestPrivateFlagsInternalAddresses(t *testing.T) {
	raw := &snapshot.Raw{
		Identity: mustIdentity(),
		HTMLSamples: snapshot.OK([]snapshot.PageFetch{
			{URL: "https://shop.example/a", HTML: "<!-- upstream 192.168.4.21 -->"},
			{URL: "https://shop.example/b", HTML: "<p>db.corp reachable via 10.0.3.7</p>"},
		}),
	}

	flags := privateFlags(raw)
	require.Len(t, flags, 2)
	for _, f := range flags {
		assert.Equal(t, finding.FlagInternalHostname, f.Kind)
	}
	assert.Contains(t, flags[0].Context, "192.168.4.21")
}

type scriptedProvider struct {
	name string
	text string
	err  error
}

func (p *scriptedProvider) Name() string { return p.name }
func (p *scriptedProvider) GenerateText(_ context.Context, _ string, req llm.Request) (*llm.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Text: p.text, Model: req.Model, Provider: p.name}, nil
}
func (p *scriptedProvider) GenerateWithVision(ctx context.Context, prompt string, _ []string, req llm.Request) (*llm.Response, error) {
	return p.GenerateText(ctx, prompt, req)
}

func registryWith(text string) *llm.Registry {
	reg := llm.NewRegistry()
	reg.Register(&scriptedProvider{name: "gemini", text: text}, 2)
	reg.Register(&scriptedProvider{name: "openai", text: text}, 2)
	return reg
}

func TestVisualAuditParsesEnvelope(t *testing.T) {
	reg := registryWith(`{"findings":[
		{"type":"visual_cta","severity":"warning","priority":"high",
		 "message":"Primary call to action is below the fold on mobile.",
		 "evidence":"mobile render shows no CTA in first viewport",
		 "affectedUrls":["https://shop.example/"],
		 "fix":"Move the signup button into the hero.",
		 "whyItMatters":"Visitors act on what they can see first."},
		{"type":"made_up_type","severity":"info","priority":"low","message":"x"}
	]}`)
	r := NewRunner(config.Default(), reg, nil)

	raw := &snapshot.Raw{
		Identity: mustIdentity(),
		Screenshots: snapshot.OK(snapshot.Screenshots{
			Desktop: snapshot.Shot{Base64PNG: "AAAA"},
			Mobile:  snapshot.Shot{Base64PNG: "BBBB"},
		}),
	}
	res := r.visualAudit(raw, baseSite())(context.Background())

	require.Empty(t, res.Err)
	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, finding.TypeVisualCTA, f.Type)
	assert.Equal(t, finding.CategoryConversion, f.Category)
	assert.Equal(t, finding.PriorityHigh, f.Priority)
	assert.Equal(t, AuditVisual, f.Source)
	assert.True(t, hasGap(res.Gaps, "made_up_type"))
}

func TestVisualAuditDropsUnobservedURLs(t *testing.T) {
	reg := registryWith(`{"findings":[
		{"type":"visual_layout","severity":"warning","priority":"medium",
		 "message":"Hero spacing collapses on narrow screens.",
		 "evidence":"mobile render, first viewport",
		 "affectedUrls":["https://cdn.vendor.example/hero.png","https://shop.example/a"]}
	]}`)
	r := NewRunner(config.Default(), reg, nil)

	raw := &snapshot.Raw{
		Identity:    mustIdentity(),
		Screenshots: snapshot.OK(snapshot.Screenshots{Desktop: snapshot.Shot{Base64PNG: "A"}, Mobile: snapshot.Shot{Base64PNG: "B"}}),
	}
	res := r.visualAudit(raw, baseSite())(context.Background())

	require.Len(t, res.Findings, 1)
	assert.Equal(t, []string{"https://shop.example/a"}, res.Findings[0].AffectedURLs,
		"model-invented URLs never survive into a finding")
}

func TestVisualAuditMalformedJSONIsGapNotError(t *testing.T) {
	reg := registryWith(`the page looks nice overall!`)
	r := NewRunner(config.Default(), reg, nil)

	raw := &snapshot.Raw{
		Identity:    mustIdentity(),
		Screenshots: snapshot.OK(snapshot.Screenshots{Desktop: snapshot.Shot{Base64PNG: "A"}, Mobile: snapshot.Shot{Base64PNG: "B"}}),
	}
	res := r.visualAudit(raw, baseSite())(context.Background())

	assert.Empty(t, res.Err)
	assert.Empty(t, res.Findings)
	assert.True(t, hasGap(res.Gaps, "malformed"))
}

func TestSerpAuditWithoutData(t *testing.T) {
	r := NewRunner(config.Default(), registryWith(`{"findings":[]}`), nil)
	raw := &snapshot.Raw{Identity: mustIdentity()}

	res := r.serpAudit(raw, baseSite())(context.Background())
	assert.Empty(t, res.Err)
	assert.Empty(t, res.Findings)
	assert.True(t, hasGap(res.Gaps, "serp data unavailable"))
}

func TestRunProducesAllSixAudits(t *testing.T) {
	cfg := config.Default()
	r := NewRunner(cfg, nil, nil)

	raw := &snapshot.Raw{Identity: mustIdentity()}
	site := baseSite()

	var mu sync.Mutex
	var order []string
	results, flags := r.Run(context.Background(), raw, site, func(audit, status string, _ *finding.Finding) {
		if status == StatusStarted {
			mu.Lock()
			order = append(order, audit)
			mu.Unlock()
		}
	})

	require.Len(t, results, 6)
	names := []string{AuditCrawl, AuditTechnical, AuditSecurity, AuditPerformance, AuditVisual, AuditSerp}
	for i, name := range names {
		assert.Equal(t, name, results[i].Audit, "results keep a fixed order")
	}
	assert.Len(t, order, 6)
	assert.Empty(t, flags)

	// Without a registry the LLM audits degrade to gaps, not errors.
	assert.Empty(t, results[4].Err)
	assert.NotEmpty(t, results[4].Gaps)
}

func hasGap(gaps []string, substr string) bool {
	for _, g := range gaps {
		if strings.Contains(g, substr) {
			return true
		}
	}
	return false
}

func fetchResult(status int) fetch.Result {
	return fetch.Result{Status: status}
}
