// Package extract implements layer 2 of the audit pipeline: pure
// functions from the raw collector outputs to the normalized site
// snapshot. No network, no clock, no randomness; the same RawSnapshot
// always yields the same SiteSnapshot. Missing or failed collector
// data degrades to explicit unknowns, never to invented values.
package extract

import (
	"sort"

	"go.uber.org/zap"

	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// Extractor runs the layer-2 passes.
type Extractor struct {
	log *zap.Logger
}

// New builds an extractor. log may be nil.
func New(log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{log: log}
}

// Run derives the full site snapshot from the raw probe outputs.
func (e *Extractor) Run(raw *snapshot.Raw) *snapshot.Site {
	site := &snapshot.Site{Identity: raw.Identity}

	arena := buildStatusArena(raw)

	if samples, ok := raw.HTMLSamples.Value(); ok {
		for _, page := range samples {
			if page.HTML == "" {
				continue
			}
			signals := e.pageSignals(page, raw.Identity, arena)
			site.Pages = append(site.Pages, signals)
		}
	}
	sort.Slice(site.Pages, func(i, j int) bool { return site.Pages[i].URL < site.Pages[j].URL })

	headers := securityHeaders(raw)
	site.SiteWide = snapshot.SiteWide{
		SecurityHeaders: headers,
		SecurityScore:   securityScore(headers),
		HTTPSEnforced:   httpsEnforced(raw),
		Infra:           infra(raw),
	}
	site.Perf = perfSignals(raw)
	site.URLSet = buildURLSet(raw, site.Pages)

	return site
}

// pageSignals parses one sampled page. A panic inside the HTML pass is
// trapped and yields zeroed signals carrying only URL and status, so a
// single malformed document cannot take the run down.
func (e *Extractor) pageSignals(page snapshot.PageFetch, id identity.Identity, arena map[string]int) (signals snapshot.PageSignals) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("page extraction panicked",
				zap.String("url", page.URL), zap.Any("panic", r))
			signals = snapshot.PageSignals{URL: page.URL, Status: page.Status}
		}
	}()

	signals = htmlSignals(page)
	signals.Schema = schemaBlocks(page.HTML)
	signals.Links = classifyLinks(page, id, arena)
	return signals
}

// buildStatusArena maps every sampled normalized URL to its observed
// status. Only sampled URLs can be marked broken.
func buildStatusArena(raw *snapshot.Raw) map[string]int {
	arena := map[string]int{}
	samples, ok := raw.HTMLSamples.Value()
	if !ok {
		return arena
	}
	for _, page := range samples {
		if page.FetchError != "" {
			continue
		}
		arena[identity.NormalizeOr(page.URL)] = page.Status
		if page.FinalURL != "" {
			arena[identity.NormalizeOr(page.FinalURL)] = page.Status
		}
	}
	return arena
}

// buildURLSet collects every URL the run observed: samples, sitemap
// entries, and internal links, all normalized and deduplicated.
func buildURLSet(raw *snapshot.Raw, pages []snapshot.PageSignals) snapshot.URLSet {
	seen := map[string]bool{}
	var all []string
	add := func(u string) {
		n := identity.NormalizeOr(u)
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		all = append(all, n)
	}

	if samples, ok := raw.HTMLSamples.Value(); ok {
		for _, page := range samples {
			add(page.URL)
		}
	}
	if facts, ok := raw.Sitemaps.Value(); ok {
		for _, u := range facts.URLs {
			add(u)
		}
	}
	for _, page := range pages {
		for _, u := range page.Links.Internal {
			add(u)
		}
	}
	sort.Strings(all)
	return snapshot.URLSet{All: all}
}
