package collect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"siteaudit/internal/auditerr"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

const psiEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// psiResponse mirrors the slice of the PageSpeed Insights payload we
// keep: audit numeric values and category scores.
type psiResponse struct {
	LighthouseResult struct {
		FinalURL string `json:"finalUrl"`
		Audits   map[string]struct {
			ID           string   `json:"id"`
			NumericValue float64  `json:"numericValue"`
			Score        *float64 `json:"score"`
		} `json:"audits"`
		Categories map[string]struct {
			Score *float64 `json:"score"`
		} `json:"categories"`
	} `json:"lighthouseResult"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Lighthouse runs the target through PageSpeed Insights and keeps the
// audits the performance layer reads. Disabled runs return a soft error
// so downstream metrics go unknown rather than zero.
func (c *Collectors) Lighthouse(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[snapshot.LighthouseReport] {
	if !c.cfg.PSIEnabled {
		return failf[snapshot.LighthouseReport]("lighthouse disabled by configuration")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Lighthouse)
	defer cancel()

	q := url.Values{}
	q.Set("url", id.NormalizedURL)
	q.Set("strategy", "mobile")
	q.Add("category", "performance")
	q.Add("category", "seo")
	q.Add("category", "best-practices")
	if c.cfg.Keys.PSI != "" {
		q.Set("key", c.cfg.Keys.PSI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, psiEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return snapshot.Fail[snapshot.LighthouseReport](err)
	}
	httpClient := &http.Client{Timeout: c.cfg.Timeouts.Lighthouse}
	resp, err := httpClient.Do(req)
	if err != nil {
		return snapshot.Fail[snapshot.LighthouseReport](err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return snapshot.Fail[snapshot.LighthouseReport](err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return snapshot.Fail[snapshot.LighthouseReport](
			auditerr.New(auditerr.CodeRateLimited, "pagespeed quota exhausted"))
	}
	if resp.StatusCode != http.StatusOK {
		return failf[snapshot.LighthouseReport]("pagespeed returned %d", resp.StatusCode)
	}

	var parsed psiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return snapshot.Fail[snapshot.LighthouseReport](
			auditerr.Wrap(auditerr.CodeParseError, err, "decoding pagespeed response"))
	}
	if parsed.Error != nil {
		return failf[snapshot.LighthouseReport]("pagespeed error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	report := snapshot.LighthouseReport{
		FinalURL:   parsed.LighthouseResult.FinalURL,
		Audits:     make(map[string]snapshot.LighthouseAudit, len(parsed.LighthouseResult.Audits)),
		Categories: make(map[string]snapshot.LighthouseCategory, len(parsed.LighthouseResult.Categories)),
	}
	for name, a := range parsed.LighthouseResult.Audits {
		report.Audits[name] = snapshot.LighthouseAudit{
			NumericValue: a.NumericValue,
			Score:        a.Score,
		}
	}
	for name, cat := range parsed.LighthouseResult.Categories {
		if cat.Score != nil {
			report.Categories[name] = snapshot.LighthouseCategory{Score: *cat.Score}
		}
	}
	return snapshot.OK(report)
}
