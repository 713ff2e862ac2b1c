package audits

import (
	"fmt"
	"strings"

	"siteaudit/internal/finding"
	"siteaudit/internal/snapshot"
)

const certExpiryWarnDays = 30

// headerPolicy describes one watched security header: the finding it
// raises when absent and how serious that absence is.
type headerPolicy struct {
	header   string
	typ      finding.Type
	severity finding.Severity
	priority finding.Priority
	fix      string
	why      string
}

var headerPolicies = []headerPolicy{
	{
		header: "strict-transport-security", typ: finding.TypeMissingHSTS,
		severity: finding.SeverityCritical, priority: finding.PriorityHigh,
		fix: "Send Strict-Transport-Security with a max-age of at least one year.",
		why: "Without HSTS, first visits over HTTP can be downgraded or hijacked.",
	},
	{
		header: "content-security-policy", typ: finding.TypeMissingCSP,
		severity: finding.SeverityWarning, priority: finding.PriorityMedium,
		fix: "Define a Content-Security-Policy, starting in report-only mode if needed.",
		why: "CSP is the main mitigation against injected scripts reaching users.",
	},
	{
		header: "x-content-type-options", typ: finding.TypeMissingContentTypeOpts,
		severity: finding.SeverityInfo, priority: finding.PriorityLow,
		fix: "Send X-Content-Type-Options: nosniff.",
		why: "Stops browsers from MIME-sniffing responses into executable types.",
	},
	{
		header: "x-frame-options", typ: finding.TypeMissingFrameOptions,
		severity: finding.SeverityInfo, priority: finding.PriorityLow,
		fix: "Send X-Frame-Options: DENY or a frame-ancestors CSP directive.",
		why: "Prevents the site from being framed for clickjacking.",
	},
	{
		header: "referrer-policy", typ: finding.TypeMissingReferrerPolicy,
		severity: finding.SeverityInfo, priority: finding.PriorityLow,
		fix: "Send Referrer-Policy: strict-origin-when-cross-origin.",
		why: "Controls how much URL detail leaks to third parties in the Referer header.",
	},
	{
		header: "permissions-policy", typ: finding.TypeMissingPermissionsPolicy,
		severity: finding.SeverityInfo, priority: finding.PriorityLow,
		fix: "Send a Permissions-Policy disabling the browser features the site does not use.",
		why: "Limits what embedded content can do with sensors, camera, and geolocation.",
	},
}

// sensitiveWellKnown are the probed paths that should never return
// content publicly.
var sensitiveWellKnown = map[string]bool{"/.env": true}

// securityAudit grades the transport and header posture. Headers the
// extractor could not observe become gaps, never findings: absence of
// evidence is not evidence of absence.
func securityAudit(raw *snapshot.Raw, site *snapshot.Site) Result {
	res := Result{Audit: AuditSecurity}
	rootURL := site.Identity.NormalizedURL
	rootAffected := affectedIn(site, rootURL)

	emit := func(f finding.Finding) {
		f.ID = finding.NewID()
		f.Source = AuditSecurity
		res.Findings = append(res.Findings, f)
	}

	for _, policy := range headerPolicies {
		state := site.SiteWide.SecurityHeaders[policy.header]
		switch state.State() {
		case "absent":
			emit(finding.Finding{
				Type:         policy.typ,
				Severity:     policy.severity,
				Priority:     policy.priority,
				Category:     finding.CategorySecurity,
				Message:      fmt.Sprintf("The %s response header is not set.", policy.header),
				Evidence:     finding.HeaderMissing(policy.header),
				AffectedURLs: rootAffected,
				Fix:          policy.fix,
				WhyItMatters: policy.why,
			})
		case "unknown":
			res.Gaps = append(res.Gaps, policy.header+" not checked: "+state.Reason())
		}
	}

	if enforced, ok := site.SiteWide.HTTPSEnforced.Value(); ok && !enforced {
		emit(finding.Finding{
			Type:         finding.TypeNoHTTPS,
			Severity:     finding.SeverityCritical,
			Priority:     finding.PriorityCritical,
			Category:     finding.CategorySecurity,
			Message:      "Plain-HTTP requests are served without redirecting to HTTPS.",
			Evidence:     finding.URLEvidence("http://" + site.Identity.Host() + "/"),
			AffectedURLs: rootAffected,
			Fix:          "301-redirect every HTTP request to its HTTPS equivalent.",
			WhyItMatters: "Unencrypted traffic exposes visitors to interception and carries a ranking penalty.",
		})
	} else if site.SiteWide.HTTPSEnforced.IsUnknown() {
		res.Gaps = append(res.Gaps, "https enforcement not checked: "+site.SiteWide.HTTPSEnforced.Reason())
	}

	if tlsFacts, ok := raw.TLSFacts.Value(); ok {
		if tlsFacts.ExpiryDays >= 0 && tlsFacts.ExpiryDays < certExpiryWarnDays {
			emit(finding.Finding{
				Type:         finding.TypeCertExpiring,
				Severity:     finding.SeverityCritical,
				Priority:     finding.PriorityCritical,
				Category:     finding.CategorySecurity,
				Message:      fmt.Sprintf("TLS certificate expires in %d days.", tlsFacts.ExpiryDays),
				Evidence:     finding.Measured("cert_expiry", float64(tlsFacts.ExpiryDays), certExpiryWarnDays, "days"),
				AffectedURLs: rootAffected,
				Fix:          "Renew the certificate and enable automated renewal.",
				WhyItMatters: "An expired certificate makes browsers block the site outright.",
			})
		}
		if strings.Contains(tlsFacts.Protocol, "1.0") || strings.Contains(tlsFacts.Protocol, "1.1") {
			emit(finding.Finding{
				Type:         finding.TypeLegacyTLS,
				Severity:     finding.SeverityWarning,
				Priority:     finding.PriorityHigh,
				Category:     finding.CategorySecurity,
				Message:      "Server negotiated legacy protocol " + tlsFacts.Protocol + ".",
				Evidence:     finding.TextSample("negotiated " + tlsFacts.Protocol),
				AffectedURLs: rootAffected,
				Fix:          "Require TLS 1.2 or newer in the server configuration.",
				WhyItMatters: "TLS 1.0 and 1.1 have known weaknesses and are rejected by modern clients.",
			})
		}
	} else {
		res.Gaps = append(res.Gaps, "tls handshake not checked: "+raw.TLSFacts.Err)
	}

	var mixed []string
	for _, page := range site.Pages {
		if page.MixedContent {
			mixed = append(mixed, page.URL)
		}
	}
	if len(mixed) > 0 {
		emit(finding.Finding{
			Type:         finding.TypeMixedContent,
			Severity:     finding.SeverityWarning,
			Priority:     finding.PriorityHigh,
			Category:     finding.CategorySecurity,
			Message:      fmt.Sprintf("%d pages load subresources over plain HTTP.", len(mixed)),
			Evidence:     finding.URLEvidence(mixed...),
			AffectedURLs: affectedIn(site, mixed...),
			Fix:          "Serve every script, image, and frame over HTTPS.",
			WhyItMatters: "Mixed content is blocked or flagged by browsers and breaks the padlock.",
		})
	}

	// Public findings about well-known exposure carry only the path and
	// status. Content snippets belong to the private-flag channel.
	if entries, ok := raw.WellKnown.Value(); ok {
		for _, entry := range entries {
			if sensitiveWellKnown[entry.Path] && entry.Status == 200 && entry.Snippet != "" {
				emit(finding.Finding{
					Type:         finding.TypeExposedWellKnown,
					Severity:     finding.SeverityCritical,
					Priority:     finding.PriorityCritical,
					Category:     finding.CategorySecurity,
					Message:      "A sensitive file is publicly readable at " + entry.Path + ".",
					Evidence:     finding.Measured("status", float64(entry.Status), 404, "http status"),
					AffectedURLs: affectedIn(site, strings.TrimSuffix(rootURL, "/")+entry.Path),
					Fix:          "Block access to the file and rotate any credentials it contained.",
					WhyItMatters: "Environment files routinely hold database passwords and API keys.",
				})
			}
		}
	}

	if scan, ok := raw.SecurityScan.Value(); ok && len(scan.Findings) > 0 {
		emit(finding.Finding{
			Type:         finding.TypeScannerReport,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategorySecurity,
			Message:      fmt.Sprintf("External scanner %s reported %d observations.", scan.Tool, len(scan.Findings)),
			Evidence:     finding.TextSample(firstN(strings.Join(scan.Findings, "; "), 500)),
			AffectedURLs: rootAffected,
			Fix:          "Review the scanner output and address confirmed issues.",
			WhyItMatters: "Dedicated scanners catch classes of issues header checks cannot.",
		})
	}

	return res
}
