package collect

import (
	"net/url"
	"strings"

	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// SamplingPlan selects the first N sitemap URLs (N from crawl depth) and
// groups them by first path segment. The root page is always included.
// Pure over its inputs: no network.
func (c *Collectors) SamplingPlan(id identity.Identity, sitemaps snapshot.CollectorOutput[snapshot.SitemapFacts]) snapshot.CollectorOutput[snapshot.SamplingPlan] {
	n := c.cfg.CrawlDepth.SampleSize()

	plan := snapshot.SamplingPlan{Groups: make(map[string][]string)}
	add := func(u string) {
		if len(plan.Samples) >= n {
			return
		}
		normalized := identity.NormalizeOr(u)
		for _, existing := range plan.Samples {
			if existing == normalized {
				return
			}
		}
		plan.Samples = append(plan.Samples, normalized)
		seg := firstPathSegment(normalized)
		plan.Groups[seg] = append(plan.Groups[seg], normalized)
	}

	add(id.NormalizedURL)
	if id.PDPURL != "" {
		add(id.PDPURL)
	}
	if facts, ok := sitemaps.Value(); ok {
		for _, u := range facts.URLs {
			add(u)
		}
	}
	return snapshot.OK(plan)
}

func firstPathSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return "/" + path
}
