package collect

import (
	"context"

	"siteaudit/internal/fetch"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// RootFetch fetches the normalized target with the full redirect chain.
// The body is retained only when the final response is HTML.
func (c *Collectors) RootFetch(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[fetch.Result] {
	res, err := c.client.Do(ctx, id.NormalizedURL, fetch.Options{
		Timeout:         c.cfg.Timeouts.RootFetch,
		FollowRedirects: true,
	})
	if err != nil {
		return snapshot.Fail[fetch.Result](err)
	}
	if !res.IsHTML() {
		res.Body = ""
	}
	return snapshot.OK(*res)
}
