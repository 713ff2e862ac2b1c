package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"siteaudit/internal/auditerr"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// Serp looks up the brand query in Google organic results. SerpApi is
// preferred; DataForSEO is the fallback when only its credentials are
// configured. No credentials means the probe degrades to an error.
func (c *Collectors) Serp(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[snapshot.SerpFacts] {
	query := brandQuery(id)
	if query == "" {
		return failf[snapshot.SerpFacts]("no host to derive a brand query from")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Serp)
	defer cancel()

	switch {
	case c.cfg.Keys.SerpAPI != "":
		return c.serpAPI(ctx, query)
	case c.cfg.Keys.DataForSEOLogin != "" && c.cfg.Keys.DataForSEOPassword != "":
		return c.dataForSEO(ctx, query)
	default:
		return failf[snapshot.SerpFacts]("no SERP provider configured")
	}
}

// brandQuery derives the search query from the host, dropping www and
// the TLD: "www.acme-shop.com" -> "acme-shop".
func brandQuery(id identity.Identity) string {
	host := id.Host()
	if host == "" {
		return ""
	}
	host = strings.TrimPrefix(host, "www.")
	if i := strings.LastIndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return host
}

type serpAPIResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
}

func (c *Collectors) serpAPI(ctx context.Context, query string) snapshot.CollectorOutput[snapshot.SerpFacts] {
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("num", "10")
	q.Set("api_key", c.cfg.Keys.SerpAPI)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://serpapi.com/search.json?"+q.Encode(), nil)
	if err != nil {
		return snapshot.Fail[snapshot.SerpFacts](err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snapshot.Fail[snapshot.SerpFacts](err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return snapshot.Fail[snapshot.SerpFacts](err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return snapshot.Fail[snapshot.SerpFacts](
			auditerr.New(auditerr.CodeRateLimited, "serpapi quota exhausted"))
	}
	if resp.StatusCode != http.StatusOK {
		return failf[snapshot.SerpFacts]("serpapi returned %d", resp.StatusCode)
	}

	var parsed serpAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return snapshot.Fail[snapshot.SerpFacts](
			auditerr.Wrap(auditerr.CodeParseError, err, "decoding serpapi response"))
	}
	if parsed.Error != "" {
		return failf[snapshot.SerpFacts]("serpapi error: %s", parsed.Error)
	}

	facts := snapshot.SerpFacts{Query: query, Engine: "serpapi"}
	for _, r := range parsed.OrganicResults {
		facts.Results = append(facts.Results, snapshot.SerpResult{
			Position: r.Position,
			Title:    r.Title,
			Link:     r.Link,
			Snippet:  r.Snippet,
		})
	}
	return snapshot.OK(facts)
}

type dataForSEOResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []struct {
		Result []struct {
			Items []struct {
				Type         string `json:"type"`
				RankAbsolute int    `json:"rank_absolute"`
				Title        string `json:"title"`
				URL          string `json:"url"`
				Description  string `json:"description"`
			} `json:"items"`
		} `json:"result"`
	} `json:"tasks"`
}

func (c *Collectors) dataForSEO(ctx context.Context, query string) snapshot.CollectorOutput[snapshot.SerpFacts] {
	payload, err := json.Marshal([]map[string]any{{
		"keyword":       query,
		"location_code": 2840,
		"language_code": "en",
		"depth":         10,
	}})
	if err != nil {
		return snapshot.Fail[snapshot.SerpFacts](err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.dataforseo.com/v3/serp/google/organic/live/advanced", bytes.NewReader(payload))
	if err != nil {
		return snapshot.Fail[snapshot.SerpFacts](err)
	}
	req.SetBasicAuth(c.cfg.Keys.DataForSEOLogin, c.cfg.Keys.DataForSEOPassword)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snapshot.Fail[snapshot.SerpFacts](err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return snapshot.Fail[snapshot.SerpFacts](err)
	}
	if resp.StatusCode != http.StatusOK {
		return failf[snapshot.SerpFacts]("dataforseo returned %d", resp.StatusCode)
	}

	var parsed dataForSEOResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return snapshot.Fail[snapshot.SerpFacts](
			auditerr.Wrap(auditerr.CodeParseError, err, "decoding dataforseo response"))
	}
	if parsed.StatusCode != 20000 {
		return failf[snapshot.SerpFacts]("dataforseo error %d: %s", parsed.StatusCode, parsed.StatusMessage)
	}

	facts := snapshot.SerpFacts{Query: query, Engine: "dataforseo"}
	for _, task := range parsed.Tasks {
		for _, result := range task.Result {
			for _, item := range result.Items {
				if item.Type != "organic" {
					continue
				}
				facts.Results = append(facts.Results, snapshot.SerpResult{
					Position: item.RankAbsolute,
					Title:    item.Title,
					Link:     item.URL,
					Snippet:  item.Description,
				})
			}
		}
	}
	return snapshot.OK(facts)
}
