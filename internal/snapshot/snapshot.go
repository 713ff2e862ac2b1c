// Package snapshot defines the data shapes flowing between pipeline
// layers: the raw collector outputs (layer 1) and the normalized site
// snapshot the extractors produce (layer 2). RawSnapshot is immutable
// once built; SiteSnapshot is a pure function of it.
package snapshot

import (
	"time"

	"siteaudit/internal/fetch"
	"siteaudit/internal/identity"
	"siteaudit/internal/tristate"
)

// CollectorOutput is the typed partial-failure contract every collector
// obeys: either data or an error string, never a panic.
type CollectorOutput[T any] struct {
	Data *T     `json:"data"`
	Err  string `json:"error"`
}

// OK wraps successful collector data.
func OK[T any](v T) CollectorOutput[T] {
	return CollectorOutput[T]{Data: &v}
}

// Fail wraps a collector failure.
func Fail[T any](err error) CollectorOutput[T] {
	if err == nil {
		return CollectorOutput[T]{Err: "unknown collector failure"}
	}
	return CollectorOutput[T]{Err: err.Error()}
}

// Failed reports whether the collector produced an error.
func (o CollectorOutput[T]) Failed() bool { return o.Data == nil }

// Value returns the data and whether it is present.
func (o CollectorOutput[T]) Value() (T, bool) {
	if o.Data == nil {
		var zero T
		return zero, false
	}
	return *o.Data, true
}

// RobotsFacts is the parsed /robots.txt probe output.
type RobotsFacts struct {
	Status      int      `json:"status"`
	Body        string   `json:"body"`
	SitemapRefs []string `json:"sitemapRefs"`
	DisallowAll bool     `json:"disallowAll"`
}

// SitemapFacts is the BFS result over the sitemap graph.
type SitemapFacts struct {
	Sources   []string `json:"sources"`
	URLs      []string `json:"urls"`
	Truncated bool     `json:"truncated"`
}

// SamplingPlan groups the sampled URLs by first path segment.
type SamplingPlan struct {
	Samples []string            `json:"samples"`
	Groups  map[string][]string `json:"groups"`
}

// PageFetch is one HTML-sample fetch. Body is retained only when the
// response was HTML.
type PageFetch struct {
	URL         string            `json:"url"`
	FinalURL    string            `json:"finalUrl"`
	Status      int               `json:"status"`
	ContentType string            `json:"contentType"`
	HTML        string            `json:"html,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	FetchError  string            `json:"fetchError,omitempty"`
}

// RedirectProbe is one of the four root-variant redirect walks.
type RedirectProbe struct {
	StartURL string      `json:"startUrl"`
	FinalURL string      `json:"finalUrl"`
	Status   int         `json:"status"`
	Chain    []fetch.Hop `json:"chain"`
	Err      string      `json:"error,omitempty"`
}

// RedirectFacts maps the four canonical start URLs to their walks.
type RedirectFacts struct {
	HTTPRoot  RedirectProbe `json:"httpRoot"`
	HTTPSRoot RedirectProbe `json:"httpsRoot"`
	HTTPWWW   RedirectProbe `json:"httpWww"`
	HTTPSWWW  RedirectProbe `json:"httpsWww"`
}

// DNSRecord is an address record with its TTL.
type DNSRecord struct {
	Value      string `json:"value"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// DNSFacts is the A/AAAA/CNAME probe output.
type DNSFacts struct {
	A     []DNSRecord `json:"a"`
	AAAA  []DNSRecord `json:"aaaa"`
	CNAME string      `json:"cname,omitempty"`
}

// TLSFacts records a single handshake against the target host.
type TLSFacts struct {
	Protocol   string    `json:"protocol"`
	Issuer     string    `json:"issuer"`
	Subject    string    `json:"subject"`
	NotAfter   time.Time `json:"notAfter"`
	ExpiryDays int       `json:"expiryDays"`
	SANs       []string  `json:"sans"`
}

// WellKnownEntry is a single well-known endpoint probe result. Snippet is
// truncated to 2KB.
type WellKnownEntry struct {
	Path    string `json:"path"`
	Status  int    `json:"status"`
	Snippet string `json:"snippet"`
}

// Shot is a single rendered screenshot.
type Shot struct {
	Base64PNG string `json:"base64Png"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Backend   string `json:"backend"`
}

// Screenshots holds the desktop and mobile captures.
type Screenshots struct {
	Desktop Shot `json:"desktop"`
	Mobile  Shot `json:"mobile"`
}

// LighthouseAudit is one entry under audits.* of a Lighthouse report.
type LighthouseAudit struct {
	NumericValue float64  `json:"numericValue"`
	Score        *float64 `json:"score"`
	DisplayValue string   `json:"displayValue,omitempty"`
}

// LighthouseCategory is one entry under categories.*.
type LighthouseCategory struct {
	Score float64 `json:"score"`
}

// LighthouseReport is the subset of a Lighthouse JSON report the pipeline
// consumes.
type LighthouseReport struct {
	FinalURL   string                        `json:"finalUrl"`
	Audits     map[string]LighthouseAudit    `json:"audits"`
	Categories map[string]LighthouseCategory `json:"categories"`
}

// SerpResult is one organic result row.
type SerpResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
}

// SerpFacts is the SERP lookup output.
type SerpFacts struct {
	Query   string       `json:"query"`
	Engine  string       `json:"engine"`
	Results []SerpResult `json:"results"`
}

// SecurityScanFacts is the optional external scanner output.
type SecurityScanFacts struct {
	Tool     string   `json:"tool"`
	Output   string   `json:"output"`
	Findings []string `json:"findings"`
}

// Raw is the union of the thirteen collector outputs, keyed by probe name.
type Raw struct {
	Identity identity.Identity `json:"identity"`

	RootFetch       CollectorOutput[fetch.Result]      `json:"rootFetch"`
	RobotsTxt       CollectorOutput[RobotsFacts]       `json:"robotsTxt"`
	Sitemaps        CollectorOutput[SitemapFacts]      `json:"sitemaps"`
	URLSamplingPlan CollectorOutput[SamplingPlan]      `json:"urlSamplingPlan"`
	HTMLSamples     CollectorOutput[[]PageFetch]       `json:"htmlSamples"`
	RedirectMap     CollectorOutput[RedirectFacts]     `json:"redirectMap"`
	DNSFacts        CollectorOutput[DNSFacts]          `json:"dnsFacts"`
	TLSFacts        CollectorOutput[TLSFacts]          `json:"tlsFacts"`
	WellKnown       CollectorOutput[[]WellKnownEntry]  `json:"wellKnown"`
	Screenshots     CollectorOutput[Screenshots]       `json:"screenshots"`
	Lighthouse      CollectorOutput[LighthouseReport]  `json:"lighthouse"`
	SerpRaw         CollectorOutput[SerpFacts]         `json:"serpRaw"`
	SecurityScan    CollectorOutput[SecurityScanFacts] `json:"securityScan"`
}

// SchemaBlock is one JSON-LD block extracted from a page.
type SchemaBlock struct {
	Type   string   `json:"type"`
	JSONLD string   `json:"jsonLd"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Image is one <img> with its accessibility attributes.
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
}

// PageLinks classifies the anchors found on a page. All entries are
// normalized URLs; Broken is populated by the link extractor from the
// sampled-status arena.
type PageLinks struct {
	Internal []string `json:"internal"`
	External []string `json:"external"`
	Broken   []string `json:"broken"`
	Nofollow []string `json:"nofollow"`
}

// PageSignals is the normalized per-URL extraction output.
type PageSignals struct {
	URL             string         `json:"url"`
	Status          int            `json:"status"`
	Title           string         `json:"title"`
	TitleLength     int            `json:"titleLength"`
	MetaDescription string         `json:"metaDescription"`
	Canonical       string         `json:"canonical"`
	CanonicalSelf   bool           `json:"canonicalSelf"`
	H1              string         `json:"h1"`
	H1Count         int            `json:"h1Count"`
	Headings        map[string]int `json:"headings"`
	Schema          []SchemaBlock  `json:"schema"`
	Images          []Image        `json:"images"`
	Links           PageLinks      `json:"links"`
	MixedContent    bool           `json:"mixedContent"`
	HasViewport     bool           `json:"hasViewport"`
	HasLang         bool           `json:"hasLang"`
	HasCharset      bool           `json:"hasCharset"`
	WordCount       int            `json:"wordCount"`
}

// Infra is the synthesized infrastructure view.
type Infra struct {
	CDN                     string                   `json:"cdn,omitempty"`
	Hosting                 string                   `json:"hosting,omitempty"`
	ARecords                []string                 `json:"aRecords"`
	CNAME                   string                   `json:"cname,omitempty"`
	IPv6                    bool                     `json:"ipv6"`
	CertExpiryDays          int                      `json:"certExpiryDays"`
	TLSProtocol             string                   `json:"tlsProtocol"`
	WWWConsistent           tristate.TriState[bool]  `json:"wwwConsistent"`
	TrailingSlashConsistent tristate.TriState[bool]  `json:"trailingSlashConsistent"`
	RedirectChainHealth     string                   `json:"redirectChainHealth"`
	RedirectHops            int                      `json:"redirectHops"`
	RedirectLoops           []string                 `json:"redirectLoops"`
}

// SiteWide aggregates the signals measured once per site.
type SiteWide struct {
	SecurityHeaders map[string]tristate.TriState[string] `json:"securityHeaders"`
	SecurityScore   tristate.TriState[float64]           `json:"securityScore"`
	HTTPSEnforced   tristate.TriState[bool]              `json:"httpsEnforced"`
	Infra           Infra                                `json:"infra"`
}

// CWVRating classifies a Core Web Vital against the standard thresholds.
type CWVRating string

const (
	CWVGood             CWVRating = "good"
	CWVNeedsImprovement CWVRating = "needs_improvement"
	CWVPoor             CWVRating = "poor"
)

// CWVMetric is one measured vital with its classification.
type CWVMetric struct {
	Value  float64   `json:"value"`
	Rating CWVRating `json:"rating"`
}

// PerfSignals is the perf extractor output.
type PerfSignals struct {
	LCP            tristate.TriState[CWVMetric] `json:"lcp"`
	CLS            tristate.TriState[CWVMetric] `json:"cls"`
	TBT            tristate.TriState[CWVMetric] `json:"tbt"`
	FCP            tristate.TriState[CWVMetric] `json:"fcp"`
	TTFB           tristate.TriState[CWVMetric] `json:"ttfb"`
	CategoryScores map[string]float64           `json:"categoryScores"`
}

// URLSet is every URL the run observed: samples, sitemap extractions, and
// internal links, all normalized.
type URLSet struct {
	All []string `json:"all"`
}

// Contains reports set membership.
func (s URLSet) Contains(u string) bool {
	for _, x := range s.All {
		if x == u {
			return true
		}
	}
	return false
}

// Site is the fully resolved layer-2 snapshot.
type Site struct {
	Identity identity.Identity `json:"identity"`
	Pages    []PageSignals     `json:"pages"`
	SiteWide SiteWide          `json:"siteWide"`
	Perf     PerfSignals       `json:"perf"`
	URLSet   URLSet            `json:"urlSet"`
}

// Page returns the PageSignals stored under the normalized URL.
func (s *Site) Page(normalizedURL string) (PageSignals, bool) {
	for _, p := range s.Pages {
		if p.URL == normalizedURL {
			return p, true
		}
	}
	return PageSignals{}, false
}
