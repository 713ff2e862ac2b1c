package collect

import (
	"context"
	"strings"
	"sync"

	"siteaudit/internal/fetch"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// RedirectMap walks the four canonical root variants in parallel and
// records every hop. Individual walk failures are recorded per probe;
// the collector itself only fails when the host cannot be derived.
func (c *Collectors) RedirectMap(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[snapshot.RedirectFacts] {
	host := id.Host()
	if host == "" {
		return failf[snapshot.RedirectFacts]("no host in %q", id.NormalizedURL)
	}

	bare := strings.TrimPrefix(host, "www.")
	starts := [4]string{
		"http://" + bare + "/",
		"https://" + bare + "/",
		"http://www." + bare + "/",
		"https://www." + bare + "/",
	}

	var probes [4]snapshot.RedirectProbe
	var wg sync.WaitGroup
	for i, start := range starts {
		wg.Add(1)
		go func(i int, start string) {
			defer wg.Done()
			probes[i] = c.walkRedirects(ctx, start)
		}(i, start)
	}
	wg.Wait()

	return snapshot.OK(snapshot.RedirectFacts{
		HTTPRoot:  probes[0],
		HTTPSRoot: probes[1],
		HTTPWWW:   probes[2],
		HTTPSWWW:  probes[3],
	})
}

func (c *Collectors) walkRedirects(ctx context.Context, start string) snapshot.RedirectProbe {
	probe := snapshot.RedirectProbe{StartURL: start}
	res, err := c.client.Do(ctx, start, fetch.Options{
		Method:          "HEAD",
		Timeout:         c.cfg.Timeouts.RootFetch,
		FollowRedirects: true,
	})
	if err != nil {
		probe.Err = err.Error()
		return probe
	}
	probe.FinalURL = res.FinalURL
	probe.Status = res.Status
	probe.Chain = res.Chain
	return probe
}
