// Package identity defines the key under which an audit run is cached and
// replayable: the normalized target URL plus tool and prompt versions,
// fingerprinted with SHA-256.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"siteaudit/internal/auditerr"
)

// Identity is the cache key and replay identity of a single audit run.
type Identity struct {
	NormalizedURL  string `json:"normalizedUrl"`
	PDPURL         string `json:"pdpUrl,omitempty"`
	ToolVersions   string `json:"toolVersions"`
	PromptVersions string `json:"promptVersions"`
	CacheKey       string `json:"cacheKey"`
}

// New normalizes the target (and optional product-detail URL) and derives
// the cache key. Invalid URLs are rejected with INVALID_URL.
func New(rawURL, pdpURL, toolVersions, promptVersions string) (Identity, error) {
	normalized, err := Normalize(rawURL)
	if err != nil {
		return Identity{}, err
	}

	var pdp string
	if pdpURL != "" {
		pdp, err = Normalize(pdpURL)
		if err != nil {
			return Identity{}, err
		}
	}

	id := Identity{
		NormalizedURL:  normalized,
		PDPURL:         pdp,
		ToolVersions:   toolVersions,
		PromptVersions: promptVersions,
	}
	id.CacheKey = fingerprint(normalized, toolVersions, promptVersions)
	return id, nil
}

// Origin returns scheme://host of the normalized URL.
func (id Identity) Origin() string {
	u, err := url.Parse(id.NormalizedURL)
	if err != nil {
		return id.NormalizedURL
	}
	return u.Scheme + "://" + u.Host
}

// Host returns the hostname (no port) of the normalized URL.
func (id Identity) Host() string {
	u, err := url.Parse(id.NormalizedURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Normalize canonicalizes a URL: trims whitespace, lowercases scheme and
// host, strips the default port, removes the fragment, sorts query
// parameters, and removes the trailing slash except at the root. The
// function is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", auditerr.New(auditerr.CodeInvalidURL, "empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", auditerr.Wrap(auditerr.CodeInvalidURL, err, "unparseable URL %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", auditerr.New(auditerr.CodeInvalidURL, "unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", auditerr.New(auditerr.CodeInvalidURL, "missing host in %q", raw)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for _, k := range keys {
			vals := q[k]
			sort.Strings(vals)
			for _, v := range vals {
				if sb.Len() > 0 {
					sb.WriteByte('&')
				}
				sb.WriteString(url.QueryEscape(k))
				if v != "" {
					sb.WriteByte('=')
					sb.WriteString(url.QueryEscape(v))
				}
			}
		}
		u.RawQuery = sb.String()
	}

	if u.Path == "" {
		u.Path = "/"
	} else if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// NormalizeOr normalizes raw and falls back to the input on failure.
// Used where a best-effort key is acceptable (link arenas).
func NormalizeOr(raw string) string {
	n, err := Normalize(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return n
}

func fingerprint(normalized, toolVersions, promptVersions string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s", normalized, toolVersions, promptVersions))
	return hex.EncodeToString(sum[:])
}
