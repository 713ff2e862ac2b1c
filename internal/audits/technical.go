package audits

import (
	"fmt"
	"sort"

	"siteaudit/internal/finding"
	"siteaudit/internal/snapshot"
)

// On-page thresholds in characters and words.
const (
	titleMin    = 30
	titleMax    = 60
	metaDescMin = 70
	metaDescMax = 160
	thinWords   = 250
)

// technicalAudit runs the deterministic on-page checks over every
// sampled page plus the cross-page duplicate detection.
func technicalAudit(site *snapshot.Site) Result {
	res := Result{Audit: AuditTechnical}
	if len(site.Pages) == 0 {
		res.Gaps = append(res.Gaps, "no sampled pages to audit")
		return res
	}

	emit := func(f finding.Finding) {
		f.ID = finding.NewID()
		f.Source = AuditTechnical
		res.Findings = append(res.Findings, f)
	}

	titleOwners := map[string][]string{}
	descOwners := map[string][]string{}
	anySchema := false

	for _, page := range site.Pages {
		if page.Status >= 400 {
			continue
		}
		checkTitle(page, emit)
		checkMetaDescription(page, emit)
		checkHeadings(page, emit)
		checkCanonical(page, emit)
		checkDocumentBasics(page, emit)
		checkImages(page, emit)
		checkSchemaValidity(page, emit)
		checkContentDepth(page, emit)

		if page.Title != "" {
			titleOwners[page.Title] = append(titleOwners[page.Title], page.URL)
		}
		if page.MetaDescription != "" {
			descOwners[page.MetaDescription] = append(descOwners[page.MetaDescription], page.URL)
		}
		if len(page.Schema) > 0 {
			anySchema = true
		}
	}

	emitDuplicates(titleOwners, finding.TypeDuplicateTitle, "title", emit)
	emitDuplicates(descOwners, finding.TypeDuplicateMetaDesc, "meta description", emit)

	if !anySchema {
		emit(finding.Finding{
			Type:         finding.TypeMissingSchema,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategorySEO,
			Message:      "No structured data (JSON-LD) was found on any sampled page.",
			Evidence:     finding.Measured("pages_with_schema", 0, 1, "pages"),
			AffectedURLs: []string{site.Identity.NormalizedURL},
			Fix:          "Add Organization and page-type JSON-LD markup to key pages.",
			WhyItMatters: "Structured data unlocks rich results and helps engines disambiguate the site.",
		})
	}

	return res
}

func checkTitle(page snapshot.PageSignals, emit func(finding.Finding)) {
	switch {
	case page.Title == "":
		emit(finding.Finding{
			Type:         finding.TypeMissingTitle,
			Severity:     finding.SeverityCritical,
			Priority:     finding.PriorityHigh,
			Category:     finding.CategorySEO,
			Message:      "Page has no <title>.",
			Evidence:     finding.Measured("title_length", 0, titleMin, "chars"),
			AffectedURLs: []string{page.URL},
			Fix:          "Write a unique, descriptive title of 30-60 characters.",
			WhyItMatters: "The title is the strongest on-page relevance signal and the headline in search results.",
		})
	case page.TitleLength < titleMin:
		emit(finding.Finding{
			Type:         finding.TypeTitleTooShort,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategorySEO,
			Message:      fmt.Sprintf("Title is only %d characters.", page.TitleLength),
			Evidence:     finding.Measured("title_length", float64(page.TitleLength), titleMin, "chars"),
			AffectedURLs: []string{page.URL},
			Fix:          "Expand the title toward 30-60 characters with descriptive keywords.",
			WhyItMatters: "Very short titles waste the search snippet and rarely match long queries.",
		})
	case page.TitleLength > titleMax:
		emit(finding.Finding{
			Type:         finding.TypeTitleTooLong,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategorySEO,
			Message:      fmt.Sprintf("Title is %d characters and will be truncated in results.", page.TitleLength),
			Evidence:     finding.Measured("title_length", float64(page.TitleLength), titleMax, "chars"),
			AffectedURLs: []string{page.URL},
			Fix:          "Trim the title to at most 60 characters, front-loading the key phrase.",
			WhyItMatters: "Truncated titles hide the end of the message and depress click-through.",
		})
	}
}

func checkMetaDescription(page snapshot.PageSignals, emit func(finding.Finding)) {
	length := len([]rune(page.MetaDescription))
	switch {
	case page.MetaDescription == "":
		emit(finding.Finding{
			Type:         finding.TypeMissingMetaDesc,
			Severity:     finding.SeverityWarning,
			Priority:     finding.PriorityMedium,
			Category:     finding.CategorySEO,
			Message:      "Page has no meta description.",
			Evidence:     finding.Measured("meta_description_length", 0, metaDescMin, "chars"),
			AffectedURLs: []string{page.URL},
			Fix:          "Add a 70-160 character meta description summarizing the page.",
			WhyItMatters: "Engines substitute arbitrary page text when the description is missing.",
		})
	case length < metaDescMin:
		emit(finding.Finding{
			Type:         finding.TypeMetaDescTooShort,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategorySEO,
			Message:      fmt.Sprintf("Meta description is only %d characters.", length),
			Evidence:     finding.Measured("meta_description_length", float64(length), metaDescMin, "chars"),
			AffectedURLs: []string{page.URL},
			Fix:          "Expand the description toward 70-160 characters.",
			WhyItMatters: "Short descriptions underuse the snippet space that drives clicks.",
		})
	case length > metaDescMax:
		emit(finding.Finding{
			Type:         finding.TypeMetaDescTooLong,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategorySEO,
			Message:      fmt.Sprintf("Meta description is %d characters and will be cut off.", length),
			Evidence:     finding.Measured("meta_description_length", float64(length), metaDescMax, "chars"),
			AffectedURLs: []string{page.URL},
			Fix:          "Trim the description to at most 160 characters.",
			WhyItMatters: "Truncated descriptions end mid-sentence in the results page.",
		})
	}
}

func checkHeadings(page snapshot.PageSignals, emit func(finding.Finding)) {
	switch {
	case page.H1Count == 0:
		emit(finding.Finding{
			Type:         finding.TypeMissingH1,
			Severity:     finding.SeverityWarning,
			Priority:     finding.PriorityMedium,
			Category:     finding.CategorySEO,
			Message:      "Page has no <h1>.",
			Evidence:     finding.Measured("h1_count", 0, 1, "headings"),
			AffectedURLs: []string{page.URL},
			Fix:          "Add exactly one <h1> stating the page topic.",
			WhyItMatters: "The h1 anchors the document outline for both engines and screen readers.",
		})
	case page.H1Count > 1:
		emit(finding.Finding{
			Type:         finding.TypeMultipleH1,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategorySEO,
			Message:      fmt.Sprintf("Page has %d <h1> elements.", page.H1Count),
			Evidence:     finding.Measured("h1_count", float64(page.H1Count), 1, "headings"),
			AffectedURLs: []string{page.URL},
			Fix:          "Keep one <h1> and demote the rest to <h2>.",
			WhyItMatters: "Multiple h1s dilute the page's primary topic signal.",
		})
	}
}

func checkCanonical(page snapshot.PageSignals, emit func(finding.Finding)) {
	switch {
	case page.Canonical == "":
		emit(finding.Finding{
			Type:         finding.TypeMissingCanonical,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategorySEO,
			Message:      "Page declares no canonical URL.",
			Evidence:     finding.TextSample("no <link rel=\"canonical\"> in document head"),
			AffectedURLs: []string{page.URL},
			Fix:          "Add a self-referencing canonical link.",
			WhyItMatters: "Canonicals defend against duplicate-content dilution from URL variants.",
		})
	case !page.CanonicalSelf:
		emit(finding.Finding{
			Type:         finding.TypeCanonicalMismatch,
			Severity:     finding.SeverityWarning,
			Priority:     finding.PriorityMedium,
			Category:     finding.CategorySEO,
			Message:      "Canonical URL points at a different page.",
			Evidence:     finding.URLEvidence(page.URL, page.Canonical),
			AffectedURLs: []string{page.URL},
			Fix:          "Confirm the canonical target is intentional; self-reference unless consolidating.",
			WhyItMatters: "A stray canonical hands this page's ranking signals to another URL.",
		})
	}
}

func checkDocumentBasics(page snapshot.PageSignals, emit func(finding.Finding)) {
	if !page.HasViewport {
		emit(finding.Finding{
			Type:         finding.TypeMissingViewport,
			Severity:     finding.SeverityWarning,
			Priority:     finding.PriorityMedium,
			Category:     finding.CategoryTechnical,
			Message:      "Page has no viewport meta tag.",
			Evidence:     finding.TextSample("no <meta name=\"viewport\"> in document head"),
			AffectedURLs: []string{page.URL},
			Fix:          "Add <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">.",
			WhyItMatters: "Without a viewport the page renders desktop-width on phones and fails mobile-friendliness checks.",
		})
	}
	if !page.HasLang {
		emit(finding.Finding{
			Type:         finding.TypeMissingLang,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategoryTechnical,
			Message:      "The <html> element declares no lang attribute.",
			Evidence:     finding.TextSample("<html> without lang attribute"),
			AffectedURLs: []string{page.URL},
			Fix:          "Declare the document language, e.g. <html lang=\"en\">.",
			WhyItMatters: "Screen readers and translation features depend on the declared language.",
		})
	}
	if !page.HasCharset {
		emit(finding.Finding{
			Type:         finding.TypeMissingCharset,
			Severity:     finding.SeverityInfo,
			Priority:     finding.PriorityLow,
			Category:     finding.CategoryTechnical,
			Message:      "Page declares no character encoding.",
			Evidence:     finding.TextSample("no <meta charset> in document head"),
			AffectedURLs: []string{page.URL},
			Fix:          "Add <meta charset=\"utf-8\"> as the first element of <head>.",
			WhyItMatters: "Browsers fall back to encoding sniffing, which can garble text.",
		})
	}
}

func checkImages(page snapshot.PageSignals, emit func(finding.Finding)) {
	var missing []string
	for _, img := range page.Images {
		if img.Alt == "" {
			missing = append(missing, img.Src)
		}
	}
	if len(missing) == 0 {
		return
	}
	emit(finding.Finding{
		Type:         finding.TypeImagesMissingAlt,
		Severity:     finding.SeverityWarning,
		Priority:     finding.PriorityMedium,
		Category:     finding.CategorySEO,
		Message:      fmt.Sprintf("%d of %d images have no alt text.", len(missing), len(page.Images)),
		Evidence:     finding.URLEvidence(missing...),
		AffectedURLs: []string{page.URL},
		Fix:          "Describe each meaningful image in its alt attribute; use alt=\"\" only for decoration.",
		WhyItMatters: "Alt text is how image search and assistive technology read images.",
	})
}

func checkSchemaValidity(page snapshot.PageSignals, emit func(finding.Finding)) {
	var broken []string
	for _, block := range page.Schema {
		if !block.Valid {
			broken = append(broken, block.Errors...)
		}
	}
	if len(broken) == 0 {
		return
	}
	emit(finding.Finding{
		Type:         finding.TypeInvalidSchema,
		Severity:     finding.SeverityWarning,
		Priority:     finding.PriorityMedium,
		Category:     finding.CategorySEO,
		Message:      fmt.Sprintf("%d JSON-LD blocks on the page fail to parse or lack @type.", len(broken)),
		Evidence:     finding.TextSample(firstN(fmt.Sprint(broken), 300)),
		AffectedURLs: []string{page.URL},
		Fix:          "Validate the JSON-LD blocks and restore well-formed markup.",
		WhyItMatters: "Malformed structured data is ignored wholesale, forfeiting rich results.",
	})
}

func checkContentDepth(page snapshot.PageSignals, emit func(finding.Finding)) {
	if page.WordCount >= thinWords || page.WordCount == 0 {
		return
	}
	emit(finding.Finding{
		Type:         finding.TypeThinContent,
		Severity:     finding.SeverityInfo,
		Priority:     finding.PriorityLow,
		Category:     finding.CategoryContent,
		Message:      fmt.Sprintf("Page body holds only %d words.", page.WordCount),
		Evidence:     finding.Measured("word_count", float64(page.WordCount), thinWords, "words"),
		AffectedURLs: []string{page.URL},
		Fix:          "Deepen the page content or consolidate it into a stronger page.",
		WhyItMatters: "Thin pages rarely satisfy intent and can drag down site-level quality assessments.",
	})
}

// emitDuplicates reports every value shared by more than one page.
func emitDuplicates(owners map[string][]string, t finding.Type, label string, emit func(finding.Finding)) {
	values := make([]string, 0, len(owners))
	for v := range owners {
		values = append(values, v)
	}
	sort.Strings(values)

	for _, v := range values {
		urls := owners[v]
		if len(urls) < 2 {
			continue
		}
		sort.Strings(urls)
		emit(finding.Finding{
			Type:         t,
			Severity:     finding.SeverityWarning,
			Priority:     finding.PriorityMedium,
			Category:     finding.CategorySEO,
			Message:      fmt.Sprintf("%d pages share the same %s: %q", len(urls), label, firstN(v, 80)),
			Evidence:     finding.URLEvidence(urls...),
			AffectedURLs: urls,
			Fix:          fmt.Sprintf("Write a unique %s for each page.", label),
			WhyItMatters: "Duplicate metadata makes distinct pages compete for the same queries.",
		})
	}
}
