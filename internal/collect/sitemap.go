package collect

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"siteaudit/internal/fetch"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// maxSitemapURLs caps the URLs extracted across the whole sitemap graph.
const maxSitemapURLs = 50000

// maxSitemapDocs caps how many sitemap documents the BFS will fetch.
const maxSitemapDocs = 50

// commonSitemapPaths seed discovery when robots.txt lists nothing.
var commonSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// Sitemaps discovers and walks the sitemap graph breadth-first, seeded
// from robots.txt references plus the common paths. Gzipped documents
// are decompressed; extraction stops at the URL cap.
func (c *Collectors) Sitemaps(ctx context.Context, id identity.Identity, robots snapshot.CollectorOutput[snapshot.RobotsFacts]) snapshot.CollectorOutput[snapshot.SitemapFacts] {
	origin := id.Origin()

	seen := make(map[string]bool)
	var queue []string
	enqueue := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		queue = append(queue, u)
	}

	if facts, ok := robots.Value(); ok {
		for _, ref := range facts.SitemapRefs {
			enqueue(ref)
		}
	}
	for _, path := range commonSitemapPaths {
		enqueue(origin + path)
	}

	facts := snapshot.SitemapFacts{}
	urlSeen := make(map[string]bool)
	fetched := 0

	for len(queue) > 0 && fetched < maxSitemapDocs {
		if ctx.Err() != nil {
			return snapshot.Fail[snapshot.SitemapFacts](ctx.Err())
		}
		target := queue[0]
		queue = queue[1:]

		body, ok := c.fetchSitemapDoc(ctx, target)
		if !ok {
			continue
		}
		fetched++
		facts.Sources = append(facts.Sources, target)

		// Index documents enqueue children; url sets extract.
		var index sitemapIndex
		if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
			for _, sm := range index.Sitemaps {
				enqueue(sm.Loc)
			}
			continue
		}

		var set urlSet
		if err := xml.Unmarshal(body, &set); err != nil {
			continue
		}
		for _, u := range set.URLs {
			loc := strings.TrimSpace(u.Loc)
			if loc == "" || urlSeen[loc] {
				continue
			}
			if len(facts.URLs) >= maxSitemapURLs {
				facts.Truncated = true
				break
			}
			urlSeen[loc] = true
			facts.URLs = append(facts.URLs, loc)
		}
		if facts.Truncated {
			break
		}
	}

	if len(facts.Sources) == 0 {
		return failf[snapshot.SitemapFacts]("no sitemap found at robots references or common paths")
	}
	return snapshot.OK(facts)
}

func (c *Collectors) fetchSitemapDoc(ctx context.Context, target string) ([]byte, bool) {
	res, err := c.client.Do(ctx, target, fetch.Options{
		Timeout:         c.cfg.Timeouts.Sitemap,
		FollowRedirects: true,
		MaxBytes:        10 << 20,
	})
	if err != nil || res.Status != 200 {
		return nil, false
	}

	body := []byte(res.Body)
	if strings.HasSuffix(strings.ToLower(target), ".gz") || isGzip(body) {
		gr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, false
		}
		defer gr.Close()
		decompressed, err := io.ReadAll(io.LimitReader(gr, 20<<20))
		if err != nil {
			return nil, false
		}
		body = decompressed
	}
	return body, true
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}
