package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"siteaudit/internal/config"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeShots struct {
	err error
}

func (f *fakeShots) Capture(_ context.Context, _ string, width, height int) (snapshot.Shot, error) {
	if f.err != nil {
		return snapshot.Shot{}, f.err
	}
	return snapshot.Shot{Base64PNG: "iVBORw==", Width: width, Height: height, Backend: "fake"}, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.CrawlDepth = config.CrawlSurface
	cfg.PSIEnabled = false
	cfg.CollectorLimit = 4
	cfg.Timeouts.TLS = 500 * time.Millisecond
	cfg.Timeouts.DNS = 2 * time.Second
	return cfg
}

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var base string

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nDisallow: /admin\nSitemap: %s/sitemap.xml\n", base)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/</loc></url>
  <url><loc>%s/products/widget</loc></url>
  <url><loc>%s/blog/launch</loc></url>
</urlset>`, base, base, base)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Widget Shop</title></head><body><h1>Widgets</h1></body></html>`)
	})
	mux.HandleFunc("/products/widget", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Widget</title></head><body><h1>Widget</h1></body></html>`)
	})
	mux.HandleFunc("/blog/launch", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Launch</title></head><body><h1>Launch</h1></body></html>`)
	})

	server := httptest.NewServer(mux)
	base = server.URL
	t.Cleanup(server.Close)
	return server
}

// allCollectors is the canonical probe name list the progress stream must
// cover.
var allCollectors = []string{
	"rootFetch", "robotsTxt", "sitemaps", "urlSamplingPlan", "htmlSamples",
	"redirectMap", "dnsFacts", "tlsFacts", "wellKnown", "screenshots",
	"lighthouse", "serpRaw", "securityScan",
}

func TestRunNeverThrowsAndReportsEveryProbe(t *testing.T) {
	server := newTestSite(t)
	id, err := identity.New(server.URL, "", "t@1", "p@1")
	require.NoError(t, err)

	c := New(testConfig(), &fakeShots{}, nil)

	var mu sync.Mutex
	started := map[string]int{}
	finished := map[string]int{}
	progress := func(name, status, _ string) {
		mu.Lock()
		defer mu.Unlock()
		if status == StatusStarted {
			started[name]++
		} else {
			finished[name]++
		}
	}

	raw := c.Run(context.Background(), id, progress)
	require.NotNil(t, raw)

	for _, name := range allCollectors {
		assert.Equal(t, 1, started[name], "%s should start exactly once", name)
		assert.Equal(t, 1, finished[name], "%s should finish exactly once", name)
	}

	// Probes that can succeed against the local fixture did.
	root, ok := raw.RootFetch.Value()
	require.True(t, ok, "rootFetch: %s", raw.RootFetch.Err)
	assert.Equal(t, 200, root.Status)

	robots, ok := raw.RobotsTxt.Value()
	require.True(t, ok)
	assert.Equal(t, []string{server.URL + "/sitemap.xml"}, robots.SitemapRefs)
	assert.False(t, robots.DisallowAll)

	sitemaps, ok := raw.Sitemaps.Value()
	require.True(t, ok)
	assert.Len(t, sitemaps.URLs, 3)

	plan, ok := raw.URLSamplingPlan.Value()
	require.True(t, ok)
	assert.Contains(t, plan.Samples, id.NormalizedURL)

	samples, ok := raw.HTMLSamples.Value()
	require.True(t, ok)
	assert.Len(t, samples, len(plan.Samples))
	for _, page := range samples {
		if page.FetchError == "" && page.Status == 200 {
			assert.NotEmpty(t, page.HTML, "HTML body retained for %s", page.URL)
		}
	}

	shots, ok := raw.Screenshots.Value()
	require.True(t, ok)
	assert.Equal(t, DesktopWidth, shots.Desktop.Width)
	assert.Equal(t, MobileWidth, shots.Mobile.Width)

	// Probes without a backend or credentials degraded, not panicked.
	assert.NotEmpty(t, raw.Lighthouse.Err)
	assert.NotEmpty(t, raw.SerpRaw.Err)
	assert.NotEmpty(t, raw.SecurityScan.Err)
}

func TestRunSurvivesDeadOrigin(t *testing.T) {
	id, err := identity.New("https://nonexistent.invalid", "", "t@1", "p@1")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Timeouts.RootFetch = time.Second
	cfg.Timeouts.Robots = time.Second
	cfg.Timeouts.Sitemap = time.Second
	cfg.Timeouts.WellKnown = time.Second
	cfg.Timeouts.HTMLSample = time.Second

	c := New(cfg, nil, nil)
	raw := c.Run(context.Background(), id, nil)
	require.NotNil(t, raw)

	assert.NotEmpty(t, raw.RootFetch.Err)
	assert.NotEmpty(t, raw.DNSFacts.Err)
	assert.NotEmpty(t, raw.Screenshots.Err)
	// The sampling plan is pure and still includes the root.
	plan, ok := raw.URLSamplingPlan.Value()
	require.True(t, ok)
	assert.Equal(t, []string{"https://nonexistent.invalid/"}, plan.Samples)
}

func TestParseRobots(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		sitemaps    []string
		disallowAll bool
	}{
		{
			name:     "sitemap case insensitive",
			body:     "SITEMAP: https://a.example/s.xml\nsitemap: https://a.example/t.xml",
			sitemaps: []string{"https://a.example/s.xml", "https://a.example/t.xml"},
		},
		{
			name:        "wildcard disallow all",
			body:        "User-agent: *\nDisallow: /",
			disallowAll: true,
		},
		{
			name: "scoped disallow is not disallow all",
			body: "User-agent: badbot\nDisallow: /\n\nUser-agent: *\nDisallow: /admin",
		},
		{
			name: "comments and blanks ignored",
			body: "# nothing here\n\nUser-agent: *\nDisallow:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sitemaps, disallowAll := parseRobots(tt.body)
			assert.Equal(t, tt.sitemaps, sitemaps)
			assert.Equal(t, tt.disallowAll, disallowAll)
		})
	}
}

func TestSamplingPlan(t *testing.T) {
	cfg := testConfig() // surface: 10 samples
	c := New(cfg, nil, nil)

	id, err := identity.New("https://shop.example", "https://shop.example/products/widget", "t@1", "p@1")
	require.NoError(t, err)

	urls := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		urls = append(urls, fmt.Sprintf("https://shop.example/blog/post-%d", i))
	}
	// Duplicate of the root under a non-normalized spelling.
	urls = append([]string{"https://SHOP.example/"}, urls...)

	plan, ok := c.SamplingPlan(id, snapshot.OK(snapshot.SitemapFacts{URLs: urls})).Value()
	require.True(t, ok)

	assert.Len(t, plan.Samples, 10)
	assert.Equal(t, "https://shop.example/", plan.Samples[0])
	assert.Equal(t, "https://shop.example/products/widget", plan.Samples[1])
	assert.Contains(t, plan.Groups, "/blog")
	assert.Contains(t, plan.Groups, "/products")

	seen := map[string]bool{}
	for _, s := range plan.Samples {
		assert.False(t, seen[s], "duplicate sample %s", s)
		seen[s] = true
	}
}

func TestSamplingPlanWithoutSitemap(t *testing.T) {
	c := New(testConfig(), nil, nil)
	id, err := identity.New("https://bare.example", "", "t@1", "p@1")
	require.NoError(t, err)

	plan, ok := c.SamplingPlan(id, snapshot.Fail[snapshot.SitemapFacts](fmt.Errorf("no sitemap"))).Value()
	require.True(t, ok)
	assert.Equal(t, []string{"https://bare.example/"}, plan.Samples)
}

func TestSitemapsFollowsIndex(t *testing.T) {
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-pages.xml</loc></sitemap>
</sitemapindex>`, base)
	})
	mux.HandleFunc("/sitemap-pages.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/a</loc></url>
  <url><loc>%s/b</loc></url>
</urlset>`, base, base)
	})
	server := httptest.NewServer(mux)
	base = server.URL
	defer server.Close()

	id, err := identity.New(server.URL, "", "t@1", "p@1")
	require.NoError(t, err)
	c := New(testConfig(), nil, nil)

	facts, ok := c.Sitemaps(context.Background(), id, snapshot.OK(snapshot.RobotsFacts{
		Status:      200,
		SitemapRefs: []string{server.URL + "/sitemap.xml"},
	})).Value()
	require.True(t, ok)
	assert.ElementsMatch(t, []string{server.URL + "/a", server.URL + "/b"}, facts.URLs)
	assert.False(t, facts.Truncated)
}

func TestScreenshotWithoutBackend(t *testing.T) {
	c := New(testConfig(), nil, nil)
	id, err := identity.New("https://shop.example", "", "t@1", "p@1")
	require.NoError(t, err)

	out := c.Screenshot(context.Background(), id)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Err, "no screenshot backend")
}

func TestScreenshotBackendFailure(t *testing.T) {
	c := New(testConfig(), &fakeShots{err: fmt.Errorf("render crashed")}, nil)
	id, err := identity.New("https://shop.example", "", "t@1", "p@1")
	require.NoError(t, err)

	out := c.Screenshot(context.Background(), id)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Err, "render crashed")
}

func TestBrandQuery(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.acme-shop.com", "acme-shop"},
		{"https://blog.acme.io", "blog.acme"},
		{"https://example.org", "example"},
	}
	for _, tt := range tests {
		id, err := identity.New(tt.url, "", "t@1", "p@1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, brandQuery(id), tt.url)
	}
}

func TestSerpWithoutCredentials(t *testing.T) {
	c := New(testConfig(), nil, nil)
	id, err := identity.New("https://shop.example", "", "t@1", "p@1")
	require.NoError(t, err)

	out := c.Serp(context.Background(), id)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Err, "no SERP provider configured")
}

func TestSecurityScanGating(t *testing.T) {
	id, err := identity.New("https://shop.example", "", "t@1", "p@1")
	require.NoError(t, err)

	cfg := testConfig()
	c := New(cfg, nil, nil)
	out := c.SecurityScan(context.Background(), id)
	assert.Contains(t, out.Err, "no security scanner configured")

	cfg.SecurityScanCommand = "zap-baseline"
	c = New(cfg, nil, nil)
	out = c.SecurityScan(context.Background(), id)
	assert.Contains(t, out.Err, "does not run the external scanner")

	cfg.SecurityScope = config.SecurityFull
	cfg.SecurityScanCommand = "definitely-not-a-real-binary-4f9c"
	c = New(cfg, nil, nil)
	out = c.SecurityScan(context.Background(), id)
	assert.Contains(t, out.Err, "not found in PATH")
}

func TestLighthouseDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.PSIEnabled = false
	c := New(cfg, nil, nil)

	id, err := identity.New("https://shop.example", "", "t@1", "p@1")
	require.NoError(t, err)

	out := c.Lighthouse(context.Background(), id)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Err, "disabled")
}
