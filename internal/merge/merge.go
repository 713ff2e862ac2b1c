// Package merge implements the layer-4 deduplication of findings from
// independent audits. Findings that describe the same issue from
// different sources collapse into one merged finding that keeps the
// most severe grading and remembers every agreeing source. The merge is
// deterministic and idempotent: re-merging its own output changes
// nothing.
package merge

import (
	"sort"
	"strings"

	"siteaudit/internal/config"
	"siteaudit/internal/finding"
)

const (
	mergeBonus          = 0.5
	strongEvidenceBonus = 0.3
	strongEvidenceChars = 20
	keyPhraseBoost      = 0.2
	maxPriorityScore    = 5.0
)

// Merger holds the tuning knobs.
type Merger struct {
	threshold  float64
	keyPhrases []string
}

// New builds a merger from the tuning section.
func New(t config.Tuning) *Merger {
	threshold := t.MergeThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = config.DefaultTuning().MergeThreshold
	}
	return &Merger{threshold: threshold, keyPhrases: t.KeyPhrases}
}

// Merge collapses duplicate findings across sources and ranks the
// result by priority score, descending. Findings from the same source
// never merge with each other.
func (m *Merger) Merge(findings []finding.Finding) []finding.Merged {
	// Stable input order regardless of audit completion order.
	ordered := make([]finding.Finding, len(findings))
	copy(ordered, findings)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Source != ordered[j].Source {
			return ordered[i].Source < ordered[j].Source
		}
		if ordered[i].Type != ordered[j].Type {
			return ordered[i].Type < ordered[j].Type
		}
		return ordered[i].Message < ordered[j].Message
	})

	var clusters [][]finding.Finding
next:
	for _, f := range ordered {
		for ci, cluster := range clusters {
			if m.belongs(f, cluster) {
				clusters[ci] = append(cluster, f)
				continue next
			}
		}
		clusters = append(clusters, []finding.Finding{f})
	}

	merged := make([]finding.Merged, 0, len(clusters))
	for _, cluster := range clusters {
		merged = append(merged, m.collapse(cluster))
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].PriorityScore != merged[j].PriorityScore {
			return merged[i].PriorityScore > merged[j].PriorityScore
		}
		if merged[i].Type != merged[j].Type {
			return merged[i].Type < merged[j].Type
		}
		return merged[i].Message < merged[j].Message
	})
	return merged
}

// belongs reports whether f duplicates any member of the cluster:
// different source, same category, and message similarity over the
// threshold.
func (m *Merger) belongs(f finding.Finding, cluster []finding.Finding) bool {
	for _, member := range cluster {
		if member.Source == f.Source {
			return false
		}
	}
	for _, member := range cluster {
		if member.Category != f.Category {
			continue
		}
		if f.Type == member.Type {
			return true
		}
		if m.similarity(f.Message, member.Message) >= m.threshold {
			return true
		}
	}
	return false
}

// collapse reduces one cluster to its merged finding: the most severe
// member is the representative, the rest contribute sources and
// affected URLs.
func (m *Merger) collapse(cluster []finding.Finding) finding.Merged {
	rep := cluster[0]
	for _, f := range cluster[1:] {
		if f.Priority.MoreSevere(rep.Priority) {
			rep = f
		}
	}

	sourceSet := map[string]bool{}
	urlSet := map[string]bool{}
	for _, f := range cluster {
		sourceSet[f.Source] = true
		for _, u := range f.AffectedURLs {
			urlSet[u] = true
		}
	}
	sources := make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	urls := make([]string, 0, len(urlSet))
	for u := range urlSet {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	rep.AffectedURLs = urls

	// Strong evidence anywhere in the cluster counts, not only on the
	// representative.
	strong := false
	for _, f := range cluster {
		if f.Evidence.Strength() >= strongEvidenceChars {
			strong = true
			break
		}
	}

	score := rep.Priority.BaseScore()
	if len(sources) > 1 {
		score += mergeBonus
	}
	if strong {
		score += strongEvidenceBonus
	}
	if score > maxPriorityScore {
		score = maxPriorityScore
	}

	confidence := finding.ConfidenceLow
	switch {
	case len(sources) > 1 && strong:
		confidence = finding.ConfidenceHigh
	case len(sources) > 1 || strong:
		confidence = finding.ConfidenceMedium
	}

	return finding.Merged{
		Finding:       rep,
		Sources:       sources,
		Confidence:    confidence,
		PriorityScore: score,
	}
}

// similarity is token Jaccard over the two messages, boosted when both
// mention the same tuned key phrase.
func (m *Merger) similarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	intersection := 0
	for tok := range ta {
		if tb[tok] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	sim := float64(intersection) / float64(union)

	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, phrase := range m.keyPhrases {
		if strings.Contains(la, phrase) && strings.Contains(lb, phrase) {
			sim += keyPhraseBoost
			break
		}
	}
	if sim > 1 {
		sim = 1
	}
	return sim
}

func tokenize(s string) map[string]bool {
	tokens := map[string]bool{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) > 1 {
			tokens[tok] = true
		}
	}
	return tokens
}
