// Package fetch implements the single HTTP primitive every collector uses.
// Redirects are followed manually so the full hop chain is recorded, the
// body is streamed against a byte cap, and all failure modes come back as
// typed errors rather than panics.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"siteaudit/internal/auditerr"
)

// DefaultMaxRedirects caps the manual redirect chain.
const DefaultMaxRedirects = 10

// DefaultMaxBytes caps response bodies at 5 MiB.
const DefaultMaxBytes = 5 << 20

// ErrTooManyRedirects is returned when the hop cap is exceeded.
var ErrTooManyRedirects = errors.New("Exceeded maximum redirect hops")

var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (compatible; SiteAuditBot/1.0; +https://siteaudit.dev/bot)",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// Options configures a single fetch.
type Options struct {
	Method          string
	Headers         map[string]string
	Timeout         time.Duration
	MaxBytes        int64
	FollowRedirects bool
	MaxRedirects    int
}

// Hop is one entry in the redirect chain.
type Hop struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// Result is the outcome of a successful fetch.
type Result struct {
	FinalURL   string            `json:"finalUrl"`
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Chain      []Hop             `json:"chain"`
	DurationMs int64             `json:"durationMs"`
}

// ContentType returns the lowercased content-type header without params.
func (r *Result) ContentType() string {
	ct := r.Headers["content-type"]
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// IsHTML reports whether the response body is an HTML document.
func (r *Result) IsHTML() bool {
	ct := r.ContentType()
	return ct == "text/html" || ct == "application/xhtml+xml"
}

// Client wraps an http.Client with the safe-fetch contract. Redirect
// handling is disabled on the inner client; hops are walked here.
type Client struct {
	inner *http.Client
}

// NewClient builds a safe-fetch client.
func NewClient() *Client {
	return &Client{
		inner: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Do performs the fetch. The returned error is always a typed auditerr;
// callers embed it in a CollectorOutput rather than propagating.
func (c *Client) Do(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	current := rawURL
	var chain []Hop
	start := time.Now()

	for hop := 0; ; hop++ {
		resp, err := c.roundTrip(ctx, opts.Method, current, opts.Headers)
		if err != nil {
			return nil, classifyTransportErr(ctx, err)
		}

		if opts.FollowRedirects && resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if loc == "" {
				return nil, auditerr.New(auditerr.CodeFetchFailed, "redirect %d without Location from %s", resp.StatusCode, current)
			}
			chain = append(chain, Hop{URL: current, Status: resp.StatusCode})
			if len(chain) > opts.MaxRedirects {
				return nil, auditerr.New(auditerr.CodeFetchFailed, "%s", ErrTooManyRedirects.Error())
			}
			next, err := resolveLocation(current, loc)
			if err != nil {
				return nil, auditerr.Wrap(auditerr.CodeFetchFailed, err, "bad redirect target %q", loc)
			}
			current = next
			continue
		}

		// Declared oversize bodies short-circuit before the read.
		if resp.ContentLength > opts.MaxBytes {
			resp.Body.Close()
			return nil, auditerr.New(auditerr.CodeFetchFailed,
				"declared content length %d exceeds limit %d", resp.ContentLength, opts.MaxBytes)
		}

		body, err := readCapped(resp.Body, opts.MaxBytes)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		return &Result{
			FinalURL:   current,
			Status:     resp.StatusCode,
			Headers:    lowercaseHeaders(resp.Header),
			Body:       string(body),
			Chain:      chain,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}
}

func (c *Client) roundTrip(ctx context.Context, method, target string, extra map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, auditerr.Wrap(auditerr.CodeInvalidURL, err, "building request for %q", target)
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	return c.inner.Do(req)
}

// readCapped streams the body with a running byte counter and aborts the
// read once the cap is breached.
func readCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	var buf strings.Builder
	chunk := make([]byte, 32*1024)
	var total int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > maxBytes {
				return nil, auditerr.New(auditerr.CodeFetchFailed,
					"response body exceeded limit of %d bytes", maxBytes)
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return []byte(buf.String()), nil
		}
		if err != nil {
			return nil, auditerr.Wrap(auditerr.CodeNetworkError, err, "reading response body")
		}
	}
}

func resolveLocation(base, loc string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}

func lowercaseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		if len(vals) > 0 {
			out[strings.ToLower(k)] = strings.Join(vals, ", ")
		}
	}
	return out
}

func classifyTransportErr(ctx context.Context, err error) error {
	var ae *auditerr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return auditerr.Wrap(auditerr.CodeTimeout, err, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return auditerr.Wrap(auditerr.CodeTimeout, err, "request cancelled")
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return auditerr.Wrap(auditerr.CodeTimeout, err, "request timed out")
	}
	return auditerr.Wrap(auditerr.CodeNetworkError, err, "request failed")
}
