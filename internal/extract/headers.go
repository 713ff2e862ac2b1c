package extract

import (
	"strings"

	"siteaudit/internal/snapshot"
	"siteaudit/internal/tristate"
)

// watchedHeaders are the response headers the security audit reads.
var watchedHeaders = []string{
	"strict-transport-security",
	"content-security-policy",
	"x-content-type-options",
	"x-frame-options",
	"referrer-policy",
	"permissions-policy",
}

// securityHeaders maps each watched header to present (with its value),
// absent, or unknown when the root fetch failed. Absence of evidence is
// never evidence of absence: a failed fetch yields unknown for every
// header.
func securityHeaders(raw *snapshot.Raw) map[string]tristate.TriState[string] {
	out := make(map[string]tristate.TriState[string], len(watchedHeaders))

	root, ok := raw.RootFetch.Value()
	if !ok {
		for _, h := range watchedHeaders {
			out[h] = tristate.Unknown[string]("root fetch failed: " + raw.RootFetch.Err)
		}
		return out
	}

	for _, h := range watchedHeaders {
		if v, found := root.Headers[h]; found {
			out[h] = tristate.Present(v)
		} else {
			out[h] = tristate.Absent[string]()
		}
	}
	return out
}

// headerWeights apportion the measured security score across the
// watched headers. They sum to 100.
var headerWeights = map[string]float64{
	"strict-transport-security": 30,
	"content-security-policy":   25,
	"x-content-type-options":    15,
	"x-frame-options":           10,
	"referrer-policy":           10,
	"permissions-policy":        10,
}

// securityScore grades the observed header posture in [0,1]: every
// present header earns its weight. Unknown headers make the whole score
// unknown, so a failed root fetch never reads as "no headers set".
func securityScore(headers map[string]tristate.TriState[string]) tristate.TriState[float64] {
	total := 0.0
	for _, h := range watchedHeaders {
		state := headers[h]
		if state.IsUnknown() {
			return tristate.Unknown[float64](state.Reason())
		}
		if _, present := state.Value(); present {
			total += headerWeights[h]
		}
	}
	return tristate.Present(total / 100)
}

// httpsEnforced reports whether the plain-HTTP root redirects to HTTPS.
// Unknown when the redirect map failed or the HTTP probe did not
// complete.
func httpsEnforced(raw *snapshot.Raw) tristate.TriState[bool] {
	facts, ok := raw.RedirectMap.Value()
	if !ok {
		return tristate.Unknown[bool]("redirect map failed: " + raw.RedirectMap.Err)
	}
	probe := facts.HTTPRoot
	if probe.Err != "" || probe.FinalURL == "" {
		return tristate.Unknown[bool]("http probe failed: " + probe.Err)
	}
	return tristate.Present(strings.HasPrefix(probe.FinalURL, "https://"))
}
