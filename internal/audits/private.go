package audits

import (
	"regexp"
	"strings"
	"time"

	"siteaudit/internal/finding"
	"siteaudit/internal/snapshot"
)

// Detection patterns for the private-flag channel. These deliberately
// match loosely; a false positive in a private flag costs nothing, a
// leaked secret in public output is unacceptable.
var (
	secretPattern     = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token|private[_-]?key)\s*[:=]\s*\S+`)
	stackTracePattern = regexp.MustCompile(`(?m)^\s+at\s+[\w$.<>]+\s*\(|Traceback \(most recent call last\)|goroutine \d+ \[|Fatal error:.*(?:\.php|\.rb) on line \d+`)
	sourceMapPattern  = regexp.MustCompile(`//[#@]\s*sourceMappingURL=\S+`)
	internalHostPatt  = regexp.MustCompile(`(?i)\b(?:[\w-]+\.)+(?:internal|local|corp|lan)\b|\blocalhost:\d+\b|\b(?:10\.\d+\.\d+\.\d+|192\.168\.\d+\.\d+)\b`)
)

// privateFlags scans the collected material for sensitive observations.
// Flags live in their own channel end to end; nothing here produces a
// Finding.
func privateFlags(raw *snapshot.Raw) []finding.PrivateFlag {
	var flags []finding.PrivateFlag
	now := time.Now().UTC()

	flag := func(kind finding.PrivateFlagKind, message, context, sourceURL string) {
		flags = append(flags, finding.PrivateFlag{
			ID:         finding.NewPrivateFlagID(),
			Kind:       kind,
			Message:    message,
			Context:    firstN(context, 300),
			SourceURL:  sourceURL,
			DetectedAt: now,
		})
	}

	origin := strings.TrimSuffix(raw.Identity.NormalizedURL, "/")

	if entries, ok := raw.WellKnown.Value(); ok {
		for _, entry := range entries {
			if entry.Status != 200 || entry.Snippet == "" {
				continue
			}
			if entry.Path == "/.env" || secretPattern.MatchString(entry.Snippet) {
				flag(finding.FlagExposedSecret,
					"Credential-like content is publicly readable at "+entry.Path,
					secretPattern.FindString(entry.Snippet), origin+entry.Path)
			}
		}
	}

	if samples, ok := raw.HTMLSamples.Value(); ok {
		for _, page := range samples {
			if page.HTML == "" {
				continue
			}
			if m := stackTracePattern.FindString(page.HTML); m != "" {
				flag(finding.FlagStackTrace,
					"Server stack trace leaked into page output", m, page.URL)
			}
			if m := sourceMapPattern.FindString(page.HTML); m != "" {
				flag(finding.FlagSourceMap,
					"Source map reference exposed in page markup", m, page.URL)
			}
			if m := internalHostPatt.FindString(page.HTML); m != "" {
				flag(finding.FlagInternalHostname,
					"Internal hostname or address visible in page markup", m, page.URL)
			}
		}
	}

	return flags
}
