// Package finding defines the atomic units the micro-audits emit: public
// findings, private flags (never embedded in public output), and the
// merged finding shape the layer-4 merger produces. PrivateFlag and
// Finding deliberately share no common type and no conversion path.
package finding

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeverityPass     Severity = "pass"
)

// Priority buckets a finding for the action plan. The string form is the
// source of truth end to end; numeric rankings are derived views.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// BaseScore returns the priority base used for ranking.
func (p Priority) BaseScore() float64 {
	switch p {
	case PriorityCritical:
		return 5
	case PriorityHigh:
		return 4
	case PriorityMedium:
		return 3
	default:
		return 2
	}
}

// rank orders priorities for most-severe-wins merging.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// MoreSevere reports whether p outranks q.
func (p Priority) MoreSevere(q Priority) bool { return p.rank() > q.rank() }

// Category labels the business dimension a finding belongs to.
type Category string

const (
	CategorySEO        Category = "seo"
	CategoryTechnical  Category = "technical"
	CategoryContent    Category = "content"
	CategoryDesign     Category = "design"
	CategoryConversion Category = "conversion"
	CategorySecurity   Category = "security"
)

// Type is the closed enum of finding codes.
type Type string

// Technical and on-page codes.
const (
	TypeMissingTitle      Type = "tech_missing_title"
	TypeTitleTooLong      Type = "tech_title_too_long"
	TypeTitleTooShort     Type = "tech_title_too_short"
	TypeDuplicateTitle    Type = "tech_duplicate_title"
	TypeMissingMetaDesc   Type = "tech_missing_meta_desc"
	TypeMetaDescTooLong   Type = "tech_meta_desc_too_long"
	TypeMetaDescTooShort  Type = "tech_meta_desc_too_short"
	TypeDuplicateMetaDesc Type = "tech_duplicate_meta_desc"
	TypeMissingH1         Type = "tech_missing_h1"
	TypeMultipleH1        Type = "tech_multiple_h1"
	TypeMissingCanonical  Type = "tech_missing_canonical"
	TypeCanonicalMismatch Type = "tech_canonical_mismatch"
	TypeMissingViewport   Type = "tech_missing_viewport"
	TypeMissingLang       Type = "tech_missing_lang"
	TypeMissingCharset    Type = "tech_missing_charset"
	TypeImagesMissingAlt  Type = "tech_images_missing_alt"
	TypeInvalidSchema     Type = "tech_invalid_schema"
	TypeMissingSchema     Type = "tech_missing_schema"
	TypeThinContent       Type = "tech_thin_content"
)

// Security codes.
const (
	TypeMissingHSTS              Type = "sec_missing_hsts"
	TypeMissingCSP               Type = "sec_missing_csp"
	TypeMissingContentTypeOpts   Type = "sec_missing_content_type_options"
	TypeMissingFrameOptions      Type = "sec_missing_frame_options"
	TypeMissingReferrerPolicy    Type = "sec_missing_referrer_policy"
	TypeMissingPermissionsPolicy Type = "sec_missing_permissions_policy"
	TypeNoHTTPS                  Type = "sec_no_https"
	TypeCertExpiring             Type = "sec_cert_expiring"
	TypeLegacyTLS                Type = "sec_legacy_tls"
	TypeExposedWellKnown         Type = "sec_exposed_well_known"
	TypeMixedContent             Type = "sec_mixed_content"
	TypeScannerReport            Type = "sec_scanner_report"
)

// Performance codes.
const (
	TypePoorLCP      Type = "perf_poor_lcp"
	TypePoorCLS      Type = "perf_poor_cls"
	TypePoorFID      Type = "perf_poor_fid"
	TypePoorFCP      Type = "perf_poor_fcp"
	TypeSlowTTFB     Type = "perf_slow_ttfb"
	TypeLowPerfScore Type = "perf_low_score"
)

// Crawlability codes.
const (
	TypeMissingRobots     Type = "crawl_missing_robots"
	TypeRobotsDisallowAll Type = "crawl_robots_disallow_all"
	TypeMissingSitemap    Type = "crawl_missing_sitemap"
	TypeUnreachable       Type = "crawl_unreachable"
	TypeRedirectChain     Type = "crawl_redirect_chain"
	TypeWWWInconsistent   Type = "crawl_www_inconsistent"
	TypeBrokenLinks       Type = "crawl_broken_links"
)

// LLM-audit codes.
const (
	TypeVisualLayout      Type = "visual_layout"
	TypeVisualReadability Type = "visual_readability"
	TypeVisualCTA         Type = "visual_cta"
	TypeVisualMobile      Type = "visual_mobile"
	TypeSerpVisibility    Type = "serp_low_visibility"
	TypeSerpTitleMismatch Type = "serp_title_mismatch"
	TypeSerpBrandAbsent   Type = "serp_brand_absent"
)

// EvidenceKind tags the evidence variant.
type EvidenceKind string

const (
	EvidenceHeader  EvidenceKind = "header"
	EvidenceURLs    EvidenceKind = "urls"
	EvidenceNumeric EvidenceKind = "numeric"
	EvidenceText    EvidenceKind = "text"
	EvidenceMap     EvidenceKind = "map"
)

// HeaderEvidence records an HTTP header observation.
type HeaderEvidence struct {
	Name     string `json:"name"`
	Value    string `json:"value,omitempty"`
	Observed bool   `json:"observed"`
}

// NumericEvidence records a measured value against its threshold.
type NumericEvidence struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Unit      string  `json:"unit,omitempty"`
}

// Evidence is a tagged variant: exactly one of the payload fields is set
// according to Kind. The string map is the variant of last resort for
// shapes the taxonomy does not know.
type Evidence struct {
	Kind    EvidenceKind      `json:"kind"`
	Header  *HeaderEvidence   `json:"header,omitempty"`
	URLs    []string          `json:"urls,omitempty"`
	Numeric *NumericEvidence  `json:"numeric,omitempty"`
	Text    string            `json:"text,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// HeaderMissing builds header evidence for an absent header.
func HeaderMissing(name string) Evidence {
	return Evidence{Kind: EvidenceHeader, Header: &HeaderEvidence{Name: name}}
}

// HeaderObserved builds header evidence for an observed value.
func HeaderObserved(name, value string) Evidence {
	return Evidence{Kind: EvidenceHeader, Header: &HeaderEvidence{Name: name, Value: value, Observed: true}}
}

// URLEvidence builds URL-set evidence.
func URLEvidence(urls ...string) Evidence {
	return Evidence{Kind: EvidenceURLs, URLs: urls}
}

// Measured builds numeric threshold evidence.
func Measured(metric string, value, threshold float64, unit string) Evidence {
	return Evidence{Kind: EvidenceNumeric, Numeric: &NumericEvidence{Metric: metric, Value: value, Threshold: threshold, Unit: unit}}
}

// TextSample builds raw text evidence.
func TextSample(text string) Evidence {
	return Evidence{Kind: EvidenceText, Text: text}
}

// Strength reports the evidence length used by confidence grading.
func (e Evidence) Strength() int {
	switch e.Kind {
	case EvidenceHeader:
		if e.Header == nil {
			return 0
		}
		return len(e.Header.Name) + len(e.Header.Value)
	case EvidenceURLs:
		n := 0
		for _, u := range e.URLs {
			n += len(u)
		}
		return n
	case EvidenceNumeric:
		if e.Numeric == nil {
			return 0
		}
		return len(e.Numeric.Metric) + 16
	case EvidenceText:
		return len(e.Text)
	default:
		n := 0
		for k, v := range e.Extra {
			n += len(k) + len(v)
		}
		return n
	}
}

// Finding is the atomic public audit result.
type Finding struct {
	ID           string   `json:"id"`
	Type         Type     `json:"type"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	Evidence     Evidence `json:"evidence"`
	AffectedURLs []string `json:"affectedUrls,omitempty"`
	Priority     Priority `json:"priority"`
	Category     Category `json:"category"`
	Source       string   `json:"source"`
	Fix          string   `json:"fix"`
	WhyItMatters string   `json:"whyItMatters"`
}

// NewID mints a finding id.
func NewID() string { return "f_" + uuid.NewString() }

// Confidence grades how strongly a merged finding is supported.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Merged extends Finding with the audits that agreed and a derived
// ranking score in [2,5].
type Merged struct {
	Finding
	Sources       []string   `json:"sources"`
	Confidence    Confidence `json:"confidence"`
	PriorityScore float64    `json:"priorityScore"`
}

// PrivateFlagKind labels what class of sensitive observation a flag is.
type PrivateFlagKind string

const (
	FlagExposedSecret    PrivateFlagKind = "exposed_secret"
	FlagInternalHostname PrivateFlagKind = "internal_hostname"
	FlagStackTrace       PrivateFlagKind = "stack_trace"
	FlagSourceMap        PrivateFlagKind = "source_map"
)

// PrivateFlag records a sensitive observation. It must never reach public
// output: it has its own id space (pf_ prefix) and no conversion to
// Finding exists anywhere in the module.
type PrivateFlag struct {
	ID         string          `json:"id"`
	Kind       PrivateFlagKind `json:"kind"`
	Message    string          `json:"message"`
	Context    string          `json:"context"`
	SourceURL  string          `json:"sourceUrl"`
	DetectedAt time.Time       `json:"detectedAt"`
}

// NewPrivateFlagID mints a private-flag id, disjoint from finding ids.
func NewPrivateFlagID() string { return "pf_" + uuid.NewString() }
