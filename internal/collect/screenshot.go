package collect

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"siteaudit/internal/auditerr"
	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// Viewport dimensions for the two captures.
const (
	DesktopWidth  = 1920
	DesktopHeight = 1080
	MobileWidth   = 390
	MobileHeight  = 844
)

// Screenshot captures desktop and mobile renders of the target through
// the configured backend.
func (c *Collectors) Screenshot(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[snapshot.Screenshots] {
	if c.shots == nil {
		return failf[snapshot.Screenshots]("no screenshot backend configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Screenshot)
	defer cancel()

	desktop, err := c.shots.Capture(ctx, id.NormalizedURL, DesktopWidth, DesktopHeight)
	if err != nil {
		return snapshot.Fail[snapshot.Screenshots](err)
	}
	mobile, err := c.shots.Capture(ctx, id.NormalizedURL, MobileWidth, MobileHeight)
	if err != nil {
		return snapshot.Fail[snapshot.Screenshots](err)
	}
	return snapshot.OK(snapshot.Screenshots{Desktop: desktop, Mobile: mobile})
}

// RodBackend renders pages in a local headless Chrome through go-rod.
type RodBackend struct {
	browser *rod.Browser
}

// NewRodBackend launches a headless browser for the process lifetime.
func NewRodBackend() (*RodBackend, error) {
	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "launching headless browser")
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "connecting to headless browser")
	}
	return &RodBackend{browser: browser}, nil
}

// Close shuts the browser down.
func (b *RodBackend) Close() error {
	return b.browser.Close()
}

// Capture renders the URL at the given viewport and returns a PNG.
func (b *RodBackend) Capture(ctx context.Context, target string, width, height int) (snapshot.Shot, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return snapshot.Shot{}, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "opening page")
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            width < 600,
	}); err != nil {
		return snapshot.Shot{}, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "setting viewport")
	}
	if err := page.Navigate(target); err != nil {
		return snapshot.Shot{}, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "navigating to %s", target)
	}
	if err := page.WaitLoad(); err != nil {
		return snapshot.Shot{}, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "waiting for load")
	}
	// Settle time for late layout shifts before the capture.
	time.Sleep(2 * time.Second)

	png, err := page.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return snapshot.Shot{}, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "capturing screenshot")
	}
	return snapshot.Shot{
		Base64PNG: base64.StdEncoding.EncodeToString(png),
		Width:     width,
		Height:    height,
		Backend:   "rod",
	}, nil
}

// ScreenshotOneBackend captures through the ScreenshotOne HTTP API.
type ScreenshotOneBackend struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewScreenshotOneBackend builds the API backend.
func NewScreenshotOneBackend(apiKey string) *ScreenshotOneBackend {
	return &ScreenshotOneBackend{
		apiKey:     apiKey,
		baseURL:    "https://api.screenshotone.com/take",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

// Capture requests a PNG render and verifies the magic bytes before
// trusting the payload.
func (b *ScreenshotOneBackend) Capture(ctx context.Context, target string, width, height int) (snapshot.Shot, error) {
	if b.apiKey == "" {
		return snapshot.Shot{}, auditerr.New(auditerr.CodeScreenshotFailed, "SCREENSHOTONE_API_KEY not set")
	}

	q := url.Values{}
	q.Set("access_key", b.apiKey)
	q.Set("url", target)
	q.Set("viewport_width", fmt.Sprint(width))
	q.Set("viewport_height", fmt.Sprint(height))
	q.Set("format", "png")
	q.Set("block_ads", "true")
	q.Set("delay", "2")
	q.Set("timeout", "60")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return snapshot.Shot{}, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "building request")
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return snapshot.Shot{}, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "calling screenshot service")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return snapshot.Shot{}, auditerr.New(auditerr.CodeScreenshotFailed,
			"screenshot service returned %d: %s", resp.StatusCode, string(body))
	}

	png, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return snapshot.Shot{}, auditerr.Wrap(auditerr.CodeScreenshotFailed, err, "reading screenshot body")
	}
	if len(png) < 4 || string(png[:4]) != string(pngMagic) {
		return snapshot.Shot{}, auditerr.New(auditerr.CodeScreenshotFailed, "response is not a PNG")
	}

	return snapshot.Shot{
		Base64PNG: base64.StdEncoding.EncodeToString(png),
		Width:     width,
		Height:    height,
		Backend:   "screenshotone",
	}, nil
}
