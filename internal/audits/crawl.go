package audits

import (
	"fmt"

	"siteaudit/internal/finding"
	"siteaudit/internal/snapshot"
)

// crawlAudit checks whether crawlers can reach and traverse the site:
// robots.txt, sitemaps, redirect sanity, and broken internal links.
func crawlAudit(raw *snapshot.Raw, site *snapshot.Site) Result {
	res := Result{Audit: AuditCrawl}
	rootURL := raw.Identity.NormalizedURL
	rootAffected := affectedIn(site, rootURL)

	emit := func(f finding.Finding) {
		f.ID = finding.NewID()
		f.Source = AuditCrawl
		res.Findings = append(res.Findings, f)
	}

	// Reachability first: a dead root or a redirect loop makes everything
	// else moot.
	if raw.RootFetch.Failed() {
		emit(finding.Finding{
			Type:         finding.TypeUnreachable,
			Severity:     finding.SeverityCritical,
			Priority:     finding.PriorityCritical,
			Category:     finding.CategoryTechnical,
			Message:      "The site root could not be fetched: " + raw.RootFetch.Err,
			Evidence:     finding.TextSample(raw.RootFetch.Err),
			AffectedURLs: rootAffected,
			Fix:          "Ensure the site responds to requests for its root URL.",
			WhyItMatters: "Search engines and visitors that cannot load the homepage cannot reach anything else.",
		})
	}
	infra := site.SiteWide.Infra
	if len(infra.RedirectLoops) > 0 {
		emit(finding.Finding{
			Type:         finding.TypeUnreachable,
			Severity:     finding.SeverityCritical,
			Priority:     finding.PriorityCritical,
			Category:     finding.CategoryTechnical,
			Message:      "Redirect loop detected on the site root.",
			Evidence:     finding.URLEvidence(infra.RedirectLoops...),
			AffectedURLs: affectedIn(site, infra.RedirectLoops...),
			Fix:          "Break the redirect cycle so every root variant settles on one final URL.",
			WhyItMatters: "Crawlers abandon URLs that redirect back on themselves, dropping them from the index.",
		})
	} else if infra.RedirectChainHealth == "warning" || infra.RedirectChainHealth == "critical" {
		severity := finding.SeverityWarning
		priority := finding.PriorityMedium
		if infra.RedirectChainHealth == "critical" {
			severity = finding.SeverityCritical
			priority = finding.PriorityHigh
		}
		emit(finding.Finding{
			Type:     finding.TypeRedirectChain,
			Severity: severity,
			Priority: priority,
			Category: finding.CategoryTechnical,
			Message:  fmt.Sprintf("Root URL variants redirect through %d hops before settling.", infra.RedirectHops),
			Evidence: finding.Measured("redirect_hops", float64(infra.RedirectHops), 2, "hops"),
			Fix:      "Redirect every root variant to the canonical URL in a single hop.",
			WhyItMatters: "Each extra hop slows first paint and leaks link equity along the chain.",
		})
	}

	// robots.txt
	switch robots, ok := raw.RobotsTxt.Value(); {
	case !ok:
		res.Gaps = append(res.Gaps, "robots.txt could not be fetched: "+raw.RobotsTxt.Err)
	case robots.Status == 404:
		emit(finding.Finding{
			Type:         finding.TypeMissingRobots,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategorySEO,
			Message:      "No robots.txt was found.",
			Evidence:     finding.Measured("robots_status", 404, 200, "http status"),
			AffectedURLs: affectedIn(site, rootURL+"robots.txt"),
			Fix:          "Serve a robots.txt, even a permissive one, and point it at the sitemap.",
			WhyItMatters: "robots.txt is the first file crawlers request; its absence forfeits crawl-budget control.",
		})
	case robots.DisallowAll:
		emit(finding.Finding{
			Type:         finding.TypeRobotsDisallowAll,
			Severity:     finding.SeverityCritical,
			Priority:     finding.PriorityCritical,
			Category:     finding.CategorySEO,
			Message:      "robots.txt disallows all crawling for every user agent.",
			Evidence:     finding.TextSample(firstN(robots.Body, 200)),
			AffectedURLs: affectedIn(site, rootURL+"robots.txt"),
			Fix:          "Remove the blanket Disallow: / rule unless the site is intentionally private.",
			WhyItMatters: "A wildcard disallow removes the entire site from search results.",
		})
	}

	// Sitemaps
	if sitemaps, ok := raw.Sitemaps.Value(); !ok || len(sitemaps.URLs) == 0 {
		reason := raw.Sitemaps.Err
		if ok {
			reason = "no URLs in any discovered sitemap"
		}
		emit(finding.Finding{
			Type:         finding.TypeMissingSitemap,
			Severity:     finding.SeverityWarning,
			Priority:     finding.PriorityMedium,
			Category:     finding.CategorySEO,
			Message:      "No usable XML sitemap was discovered.",
			Evidence:     finding.TextSample(reason),
			AffectedURLs: rootAffected,
			Fix:          "Publish an XML sitemap and reference it from robots.txt.",
			WhyItMatters: "Without a sitemap, deep pages depend entirely on internal linking to be found.",
		})
	}

	// WWW consistency
	if consistent, ok := site.SiteWide.Infra.WWWConsistent.Value(); ok && !consistent {
		emit(finding.Finding{
			Type:     finding.TypeWWWInconsistent,
			Severity: finding.SeverityWarning,
			Priority: finding.PriorityMedium,
			Category: finding.CategoryTechnical,
			Message:  "The www and bare-domain variants resolve to different final URLs.",
			Evidence: finding.URLEvidence(rootURL),
			Fix:      "Pick one host variant and 301-redirect the other to it.",
			WhyItMatters: "Two live variants split ranking signals across duplicate origins.",
		})
	}

	// Broken internal links, aggregated across pages.
	broken := map[string]bool{}
	for _, page := range site.Pages {
		for _, u := range page.Links.Broken {
			broken[u] = true
		}
	}
	if len(broken) > 0 {
		urls := make([]string, 0, len(broken))
		for u := range broken {
			urls = append(urls, u)
		}
		emit(finding.Finding{
			Type:         finding.TypeBrokenLinks,
			Severity:     finding.SeverityWarning,
			Priority:     finding.PriorityMedium,
			Category:     finding.CategorySEO,
			Message:      fmt.Sprintf("%d internal links point at pages that return errors.", len(urls)),
			Evidence:     finding.URLEvidence(urls...),
			AffectedURLs: affectedIn(site, urls...),
			Fix:          "Update or remove links to the failing URLs, or restore the pages.",
			WhyItMatters: "Broken links waste crawl budget and erode visitor trust.",
		})
	}

	return res
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
