package extract

import (
	"strings"

	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
	"siteaudit/internal/tristate"
)

// Chain-health thresholds in redirect hops.
const (
	chainHealthy = 2
	chainWarning = 5
)

// infra synthesizes the infrastructure view from the DNS, TLS, and
// redirect probes. Every input is optional.
func infra(raw *snapshot.Raw) snapshot.Infra {
	out := snapshot.Infra{
		WWWConsistent:           tristate.Unknown[bool]("redirect map unavailable"),
		TrailingSlashConsistent: tristate.Unknown[bool]("not enough sampled pages"),
		RedirectChainHealth:     "unknown",
	}

	if dns, ok := raw.DNSFacts.Value(); ok {
		for _, rec := range dns.A {
			out.ARecords = append(out.ARecords, rec.Value)
		}
		out.CNAME = dns.CNAME
		out.IPv6 = len(dns.AAAA) > 0
	}

	var issuer string
	if tlsFacts, ok := raw.TLSFacts.Value(); ok {
		out.CertExpiryDays = tlsFacts.ExpiryDays
		out.TLSProtocol = tlsFacts.Protocol
		issuer = tlsFacts.Issuer
	}

	out.CDN, out.Hosting = providerHeuristics(out.CNAME, issuer)

	if facts, ok := raw.RedirectMap.Value(); ok {
		applyRedirectFacts(&out, facts)
	}
	out.TrailingSlashConsistent = trailingSlashConsistency(raw)

	return out
}

// applyRedirectFacts fills the www-consistency and chain-health fields.
func applyRedirectFacts(out *snapshot.Infra, facts snapshot.RedirectFacts) {
	probes := []snapshot.RedirectProbe{
		facts.HTTPRoot, facts.HTTPSRoot, facts.HTTPWWW, facts.HTTPSWWW,
	}

	maxHops := 0
	var loops []string
	for _, probe := range probes {
		if probe.Err != "" {
			continue
		}
		if hops := len(probe.Chain); hops > maxHops {
			maxHops = hops
		}
		seen := map[string]bool{}
		for _, hop := range probe.Chain {
			n := identity.NormalizeOr(hop.URL)
			if seen[n] {
				loops = append(loops, n)
				break
			}
			seen[n] = true
		}
	}
	out.RedirectHops = maxHops
	out.RedirectLoops = loops

	switch {
	case len(loops) > 0:
		out.RedirectChainHealth = "critical"
	case maxHops <= chainHealthy:
		out.RedirectChainHealth = "healthy"
	case maxHops <= chainWarning:
		out.RedirectChainHealth = "warning"
	default:
		out.RedirectChainHealth = "critical"
	}

	// WWW consistency: both HTTPS variants resolve and land on the same
	// final URL.
	bare, www := facts.HTTPSRoot, facts.HTTPSWWW
	if bare.Err != "" || www.Err != "" || bare.FinalURL == "" || www.FinalURL == "" {
		out.WWWConsistent = tristate.Unknown[bool]("www probes incomplete")
		return
	}
	out.WWWConsistent = tristate.Present(
		identity.NormalizeOr(bare.FinalURL) == identity.NormalizeOr(www.FinalURL))
}

// trailingSlashConsistency inspects the sampled non-root pages: the
// site is consistent when every final URL agrees on whether paths end
// with a slash. Fewer than two observations stays unknown.
func trailingSlashConsistency(raw *snapshot.Raw) tristate.TriState[bool] {
	samples, ok := raw.HTMLSamples.Value()
	if !ok {
		return tristate.Unknown[bool]("html samples unavailable")
	}

	withSlash, withoutSlash := 0, 0
	for _, page := range samples {
		final := page.FinalURL
		if final == "" || page.FetchError != "" {
			continue
		}
		path := pathOf(final)
		if path == "" || path == "/" {
			continue
		}
		if strings.HasSuffix(path, "/") {
			withSlash++
		} else {
			withoutSlash++
		}
	}
	if withSlash+withoutSlash < 2 {
		return tristate.Unknown[bool]("not enough sampled pages")
	}
	return tristate.Present(withSlash == 0 || withoutSlash == 0)
}

func pathOf(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return ""
}

// Known CDN and hosting fingerprints, matched against the CNAME target
// and the certificate issuer.
var cdnFingerprints = map[string]string{
	"cloudfront.net":    "CloudFront",
	"cloudflare":        "Cloudflare",
	"fastly":            "Fastly",
	"akamai":            "Akamai",
	"edgekey.net":       "Akamai",
	"cdn.jsdelivr":      "jsDelivr",
	"azureedge.net":     "Azure CDN",
	"b-cdn.net":         "bunny.net",
	"vercel-dns.com":    "Vercel",
	"netlify.app":       "Netlify",
	"githubusercontent": "GitHub Pages",
}

var hostingFingerprints = map[string]string{
	"amazonaws.com":     "AWS",
	"herokuapp.com":     "Heroku",
	"vercel":            "Vercel",
	"netlify":           "Netlify",
	"github.io":         "GitHub Pages",
	"pages.dev":         "Cloudflare Pages",
	"fly.dev":           "Fly.io",
	"render.com":        "Render",
	"googleusercontent": "Google Cloud",
	"azurewebsites":     "Azure",
	"wpengine":          "WP Engine",
	"shopify":           "Shopify",
}

// providerHeuristics is best-effort fingerprinting; empty means
// undetected, not "no CDN".
func providerHeuristics(cname, issuer string) (cdn, hosting string) {
	haystack := strings.ToLower(cname)
	for needle, name := range cdnFingerprints {
		if strings.Contains(haystack, needle) {
			cdn = name
			break
		}
	}
	for needle, name := range hostingFingerprints {
		if strings.Contains(haystack, needle) {
			hosting = name
			break
		}
	}

	// Cloudflare terminates TLS itself; the issuer gives it away even
	// without a CNAME.
	if cdn == "" && strings.Contains(strings.ToLower(issuer), "cloudflare") {
		cdn = "Cloudflare"
	}
	return cdn, hosting
}
