package collect

import (
	"context"

	"siteaudit/internal/fetch"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// wellKnownPaths are the five fixed endpoints probed on every run.
var wellKnownPaths = []string{
	"/.well-known/security.txt",
	"/.well-known/change-password",
	"/humans.txt",
	"/ads.txt",
	"/.env",
}

const wellKnownSnippetBytes = 2048

// WellKnown probes a fixed set of conventional endpoints and keeps a 2KB
// snippet of each body. Individual fetch failures are recorded as status
// zero entries; the collector only fails wholesale on a cancelled
// context.
func (c *Collectors) WellKnown(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[[]snapshot.WellKnownEntry] {
	origin := id.Origin()
	entries := make([]snapshot.WellKnownEntry, 0, len(wellKnownPaths))

	for _, path := range wellKnownPaths {
		if ctx.Err() != nil {
			return snapshot.Fail[[]snapshot.WellKnownEntry](ctx.Err())
		}
		entry := snapshot.WellKnownEntry{Path: path}
		res, err := c.client.Do(ctx, origin+path, fetch.Options{
			Timeout:         c.cfg.Timeouts.WellKnown,
			FollowRedirects: true,
			MaxBytes:        256 * 1024,
		})
		if err == nil {
			entry.Status = res.Status
			snippet := res.Body
			if len(snippet) > wellKnownSnippetBytes {
				snippet = snippet[:wellKnownSnippetBytes]
			}
			entry.Snippet = snippet
		}
		entries = append(entries, entry)
	}
	return snapshot.OK(entries)
}
