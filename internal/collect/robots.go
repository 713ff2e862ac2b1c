package collect

import (
	"context"
	"strings"

	"siteaudit/internal/fetch"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// Robots fetches and parses /robots.txt. Sitemap: lines are matched
// case-insensitively; a wildcard agent with a bare "Disallow: /" marks
// the site as closed to crawlers.
func (c *Collectors) Robots(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[snapshot.RobotsFacts] {
	res, err := c.client.Do(ctx, id.Origin()+"/robots.txt", fetch.Options{
		Timeout:         c.cfg.Timeouts.Robots,
		FollowRedirects: true,
		MaxBytes:        512 * 1024,
	})
	if err != nil {
		return snapshot.Fail[snapshot.RobotsFacts](err)
	}

	facts := snapshot.RobotsFacts{Status: res.Status}
	if res.Status == 200 {
		facts.Body = res.Body
		facts.SitemapRefs, facts.DisallowAll = parseRobots(res.Body)
	}
	return snapshot.OK(facts)
}

func parseRobots(body string) (sitemaps []string, disallowAll bool) {
	wildcardAgent := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "sitemap":
			if value != "" {
				sitemaps = append(sitemaps, value)
			}
		case "user-agent":
			wildcardAgent = value == "*"
		case "disallow":
			if wildcardAgent && value == "/" {
				disallowAll = true
			}
		}
	}
	return sitemaps, disallowAll
}
