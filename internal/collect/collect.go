// Package collect implements layer 1 of the audit pipeline: thirteen
// independent probes against the target site, fanned out under the
// per-run bounded-concurrency limiter. Every probe returns a
// CollectorOutput and never panics; probe failure is soft and surfaces
// downstream as explicit unknowns.
package collect

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"siteaudit/internal/config"
	"siteaudit/internal/fetch"
	"siteaudit/internal/identity"
	"siteaudit/internal/limit"
	"siteaudit/internal/snapshot"
)

// Status values reported through the progress callback.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Progress receives one call when a probe starts and exactly one when it
// completes or fails.
type Progress func(collector, status, message string)

// Screenshotter abstracts the screenshot backend (rod or HTTP service).
type Screenshotter interface {
	Capture(ctx context.Context, url string, width, height int) (snapshot.Shot, error)
}

// Collectors owns the shared clients the probes use.
type Collectors struct {
	cfg    config.Config
	client *fetch.Client
	shots  Screenshotter
	log    *zap.Logger
}

// New builds the collector set. shots may be nil when no screenshot
// backend is available; the probe then degrades to an error output.
func New(cfg config.Config, shots Screenshotter, log *zap.Logger) *Collectors {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collectors{
		cfg:    cfg,
		client: fetch.NewClient(),
		shots:  shots,
		log:    log,
	}
}

// Run executes layer 1. Independent probes run in parallel, each taking
// one limiter slot while active. The sitemap chain (robots -> sitemaps ->
// sampling plan -> html samples) is sequenced by data dependency on a
// goroutine that never holds a slot between stages, so the html-sample
// fan-out can use the limiter itself. The returned RawSnapshot is
// complete even when every probe failed.
func (c *Collectors) Run(ctx context.Context, id identity.Identity, progress Progress) *snapshot.Raw {
	if progress == nil {
		progress = func(string, string, string) {}
	}

	lim := limit.New(c.cfg.CollectorLimit)
	raw := &snapshot.Raw{Identity: id}

	finish := func(name string, errMsg string) {
		if errMsg != "" {
			c.log.Debug("collector failed", zap.String("collector", name), zap.String("error", errMsg))
			progress(name, StatusFailed, errMsg)
			return
		}
		progress(name, StatusCompleted, "")
	}

	// stage runs one probe under a limiter slot with a panic trap.
	stage := func(name string, fn func()) {
		progress(name, StatusStarted, "")
		err := lim.Do(ctx, func() error {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("collector panicked",
						zap.String("collector", name), zap.Any("panic", r))
					finish(name, fmt.Sprintf("collector panicked: %v", r))
				}
			}()
			fn()
			return nil
		})
		if err != nil {
			// Context cancelled while queued.
			finish(name, err.Error())
		}
	}

	var wg sync.WaitGroup
	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stage(name, fn)
		}()
	}

	spawn("rootFetch", func() {
		raw.RootFetch = c.RootFetch(ctx, id)
		finish("rootFetch", raw.RootFetch.Err)
	})
	spawn("redirectMap", func() {
		raw.RedirectMap = c.RedirectMap(ctx, id)
		finish("redirectMap", raw.RedirectMap.Err)
	})
	spawn("dnsFacts", func() {
		raw.DNSFacts = c.DNS(ctx, id)
		finish("dnsFacts", raw.DNSFacts.Err)
	})
	spawn("tlsFacts", func() {
		raw.TLSFacts = c.TLS(ctx, id)
		finish("tlsFacts", raw.TLSFacts.Err)
	})
	spawn("wellKnown", func() {
		raw.WellKnown = c.WellKnown(ctx, id)
		finish("wellKnown", raw.WellKnown.Err)
	})
	spawn("screenshots", func() {
		raw.Screenshots = c.Screenshot(ctx, id)
		finish("screenshots", raw.Screenshots.Err)
	})
	spawn("lighthouse", func() {
		raw.Lighthouse = c.Lighthouse(ctx, id)
		finish("lighthouse", raw.Lighthouse.Err)
	})
	spawn("serpRaw", func() {
		raw.SerpRaw = c.Serp(ctx, id)
		finish("serpRaw", raw.SerpRaw.Err)
	})
	spawn("securityScan", func() {
		raw.SecurityScan = c.SecurityScan(ctx, id)
		finish("securityScan", raw.SecurityScan.Err)
	})

	// Dependent chain: holds no slot between stages.
	wg.Add(1)
	go func() {
		defer wg.Done()

		stage("robotsTxt", func() {
			raw.RobotsTxt = c.Robots(ctx, id)
			finish("robotsTxt", raw.RobotsTxt.Err)
		})
		stage("sitemaps", func() {
			raw.Sitemaps = c.Sitemaps(ctx, id, raw.RobotsTxt)
			finish("sitemaps", raw.Sitemaps.Err)
		})
		stage("urlSamplingPlan", func() {
			raw.URLSamplingPlan = c.SamplingPlan(id, raw.Sitemaps)
			finish("urlSamplingPlan", raw.URLSamplingPlan.Err)
		})

		// The html-sample fan-out takes limiter slots per fetch itself.
		progress("htmlSamples", StatusStarted, "")
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("collector panicked",
						zap.String("collector", "htmlSamples"), zap.Any("panic", r))
					finish("htmlSamples", fmt.Sprintf("collector panicked: %v", r))
				}
			}()
			raw.HTMLSamples = c.HTMLSamples(ctx, raw.URLSamplingPlan, lim)
			finish("htmlSamples", raw.HTMLSamples.Err)
		}()
	}()

	wg.Wait()
	return raw
}

// failf is shorthand for building a failed output.
func failf[T any](format string, args ...any) snapshot.CollectorOutput[T] {
	return snapshot.CollectorOutput[T]{Err: fmt.Sprintf(format, args...)}
}
