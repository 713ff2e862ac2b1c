// Package report defines the two output documents of an audit run: the
// public AuditReport and the separate PrivateFlags document. The two
// never share a container; the public report has no field that could
// carry a private flag.
package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"siteaudit/internal/finding"
	"siteaudit/internal/identity"
	"siteaudit/internal/score"
	"siteaudit/internal/synthesis"
)

// LayerTimings records wall time per pipeline layer in milliseconds.
type LayerTimings struct {
	CollectionMs int64 `json:"collectionMs"`
	ExtractionMs int64 `json:"extractionMs"`
	AuditsMs     int64 `json:"auditsMs"`
	SynthesisMs  int64 `json:"synthesisMs"`
}

// Metadata describes how the report was produced.
type Metadata struct {
	GeneratedAt     time.Time    `json:"generatedAt"`
	DurationMs      int64        `json:"durationMs"`
	Timings         LayerTimings `json:"timings"`
	CostUSD         float64      `json:"costUsd"`
	ProvidersUsed   []string     `json:"providersUsed,omitempty"`
	CompletedAudits []string     `json:"completedAudits"`
	FailedAudits    []string     `json:"failedAudits,omitempty"`
	UsedSynthesis   bool         `json:"usedSynthesis"`
	FromCache       bool         `json:"fromCache"`
	ToolVersions    string       `json:"toolVersions"`
	PromptVersions  string       `json:"promptVersions"`
}

// AuditReport is the public output document.
type AuditReport struct {
	ID                  string            `json:"id"`
	URL                 string            `json:"url"`
	PDPURL              string            `json:"pdpUrl,omitempty"`
	CacheKey            string            `json:"cacheKey"`
	Scores              score.Scores      `json:"scores"`
	Findings            []finding.Merged  `json:"findings"`
	TopIssues           []string          `json:"topIssues"`
	ActionPlan          score.ActionPlan  `json:"actionPlan"`
	ExecutiveSummary    string            `json:"executiveSummary"`
	ScoreJustifications map[string]string `json:"scoreJustifications"`
	ExplicitGaps        []string          `json:"explicitGaps,omitempty"`
	Metadata            Metadata          `json:"metadata"`
}

// PrivateFlags is the operator-only sibling document. It references the
// public report by id but is never embedded in it.
type PrivateFlags struct {
	ReportID string                `json:"reportId"`
	URL      string                `json:"url"`
	Flags    []finding.PrivateFlag `json:"flags"`
}

// NewID mints a report id.
func NewID() string { return "r_" + uuid.NewString() }

// Assemble builds the public report from the layer outputs.
func Assemble(id identity.Identity, merged []finding.Merged, scores score.Scores, plan score.ActionPlan, narrative synthesis.Output, gaps []string, meta Metadata) *AuditReport {
	meta.UsedSynthesis = narrative.Used
	return &AuditReport{
		ID:                  NewID(),
		URL:                 id.NormalizedURL,
		PDPURL:              id.PDPURL,
		CacheKey:            id.CacheKey,
		Scores:              scores,
		Findings:            merged,
		TopIssues:           narrative.TopIssues,
		ActionPlan:          plan,
		ExecutiveSummary:    narrative.ExecutiveSummary,
		ScoreJustifications: narrative.ScoreJustifications,
		ExplicitGaps:        gaps,
		Metadata:            meta,
	}
}

// Write renders the report as indented JSON.
func (r *AuditReport) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Write renders the private document as indented JSON.
func (p *PrivateFlags) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
