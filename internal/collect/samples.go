package collect

import (
	"context"
	"sync"

	"siteaudit/internal/fetch"
	"siteaudit/internal/limit"
	"siteaudit/internal/snapshot"
)

// HTMLSamples fetches every sampled URL under the run limiter. Bodies are
// retained only for HTML responses; per-URL fetch errors are recorded on
// the entry so broken-link detection still sees the status.
func (c *Collectors) HTMLSamples(ctx context.Context, plan snapshot.CollectorOutput[snapshot.SamplingPlan], lim *limit.Limiter) snapshot.CollectorOutput[[]snapshot.PageFetch] {
	p, ok := plan.Value()
	if !ok {
		return failf[[]snapshot.PageFetch]("no sampling plan: %s", plan.Err)
	}

	results := make([]snapshot.PageFetch, len(p.Samples))
	var wg sync.WaitGroup
	for i, sample := range p.Samples {
		wg.Add(1)
		go func(i int, sample string) {
			defer wg.Done()
			err := lim.Do(ctx, func() error {
				results[i] = c.fetchSample(ctx, sample)
				return nil
			})
			if err != nil {
				results[i] = snapshot.PageFetch{URL: sample, FetchError: err.Error()}
			}
		}(i, sample)
	}
	wg.Wait()

	return snapshot.OK(results)
}

func (c *Collectors) fetchSample(ctx context.Context, sample string) snapshot.PageFetch {
	page := snapshot.PageFetch{URL: sample}
	res, err := c.client.Do(ctx, sample, fetch.Options{
		Timeout:         c.cfg.Timeouts.HTMLSample,
		FollowRedirects: true,
	})
	if err != nil {
		page.FetchError = err.Error()
		return page
	}
	page.FinalURL = res.FinalURL
	page.Status = res.Status
	page.ContentType = res.ContentType()
	page.Headers = res.Headers
	if res.IsHTML() {
		page.HTML = res.Body
	}
	return page
}
