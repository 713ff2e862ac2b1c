package extract

import (
	"net/url"
	"sort"
	"strings"

	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// classifyLinks resolves every anchor on the page against the page URL
// and splits the set into internal, external, nofollow, and broken.
// Broken is conservative: only links whose target was actually sampled
// with a 4xx/5xx status qualify, never links we merely did not fetch.
func classifyLinks(page snapshot.PageFetch, id identity.Identity, arena map[string]int) snapshot.PageLinks {
	base, err := url.Parse(page.URL)
	if err != nil {
		return snapshot.PageLinks{}
	}
	siteHost := strings.TrimPrefix(id.Host(), "www.")

	links := snapshot.PageLinks{}
	seenInternal := map[string]bool{}
	seenExternal := map[string]bool{}

	for _, anchor := range pageAnchors(page.HTML) {
		ref, err := url.Parse(anchor.Href)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		normalized := identity.NormalizeOr(resolved.String())

		if anchor.Nofollow {
			links.Nofollow = append(links.Nofollow, normalized)
		}

		host := strings.TrimPrefix(strings.ToLower(resolved.Hostname()), "www.")
		if host == siteHost {
			if seenInternal[normalized] {
				continue
			}
			seenInternal[normalized] = true
			links.Internal = append(links.Internal, normalized)
			if status, sampled := arena[normalized]; sampled && status >= 400 {
				links.Broken = append(links.Broken, normalized)
			}
		} else {
			if seenExternal[normalized] {
				continue
			}
			seenExternal[normalized] = true
			links.External = append(links.External, normalized)
		}
	}

	sort.Strings(links.Internal)
	sort.Strings(links.External)
	sort.Strings(links.Broken)
	sort.Strings(links.Nofollow)
	return links
}
