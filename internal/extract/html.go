package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// htmlSignals parses one sampled document into per-page signals. The
// parser never errors on malformed markup; whatever it recovers is what
// gets measured.
func htmlSignals(page snapshot.PageFetch) snapshot.PageSignals {
	signals := snapshot.PageSignals{
		URL:      identity.NormalizeOr(page.URL),
		Status:   page.Status,
		Headings: map[string]int{},
	}

	doc, err := html.Parse(strings.NewReader(page.HTML))
	if err != nil {
		return signals
	}

	pageIsHTTPS := strings.HasPrefix(signals.URL, "https://")
	var textParts []string
	inBody := false

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode && inBody {
			if t := strings.TrimSpace(n.Data); t != "" {
				textParts = append(textParts, t)
			}
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				if attr(n, "lang") != "" {
					signals.HasLang = true
				}
			case "title":
				if signals.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					signals.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				switch strings.ToLower(attr(n, "name")) {
				case "description":
					if signals.MetaDescription == "" {
						signals.MetaDescription = strings.TrimSpace(attr(n, "content"))
					}
				case "viewport":
					signals.HasViewport = true
				}
				if attr(n, "charset") != "" {
					signals.HasCharset = true
				}
				if strings.EqualFold(attr(n, "http-equiv"), "content-type") &&
					strings.Contains(strings.ToLower(attr(n, "content")), "charset") {
					signals.HasCharset = true
				}
			case "link":
				if strings.EqualFold(attr(n, "rel"), "canonical") {
					href := resolveHref(signals.URL, strings.TrimSpace(attr(n, "href")))
					signals.Canonical = identity.NormalizeOr(href)
				}
			case "h1", "h2", "h3", "h4", "h5", "h6":
				signals.Headings[n.Data]++
				if n.Data == "h1" {
					signals.H1Count++
					if signals.H1 == "" {
						signals.H1 = strings.TrimSpace(textContent(n))
					}
				}
			case "img":
				signals.Images = append(signals.Images, snapshot.Image{
					Src:    attr(n, "src"),
					Alt:    attr(n, "alt"),
					Width:  attr(n, "width"),
					Height: attr(n, "height"),
				})
				if pageIsHTTPS && strings.HasPrefix(attr(n, "src"), "http://") {
					signals.MixedContent = true
				}
			case "script", "iframe", "audio", "video", "source":
				if pageIsHTTPS && strings.HasPrefix(attr(n, "src"), "http://") {
					signals.MixedContent = true
				}
			case "body":
				inBody = true
				defer func() { inBody = false }()
			}
			if n.Data == "script" || n.Data == "style" {
				return // skip contents
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(doc)

	signals.TitleLength = len([]rune(signals.Title))
	signals.CanonicalSelf = signals.Canonical != "" && signals.Canonical == signals.URL
	signals.WordCount = countWords(textParts)
	return signals
}

// pageAnchor is a raw anchor observed on a page, before link
// classification.
type pageAnchor struct {
	Href     string
	Nofollow bool
}

// pageAnchors collects every <a href> from the document.
func pageAnchors(rawHTML string) []pageAnchor {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var anchors []pageAnchor
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := strings.TrimSpace(attr(n, "href"))
			if href != "" && !strings.HasPrefix(href, "#") &&
				!strings.HasPrefix(href, "javascript:") && !strings.HasPrefix(href, "mailto:") &&
				!strings.HasPrefix(href, "tel:") {
				anchors = append(anchors, pageAnchor{
					Href:     href,
					Nofollow: strings.Contains(strings.ToLower(attr(n, "rel")), "nofollow"),
				})
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(doc)
	return anchors
}

// resolveHref makes a possibly relative href absolute against the page
// URL. Unparseable inputs pass through untouched.
func resolveHref(pageURL, href string) string {
	if href == "" {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(n)
	return sb.String()
}

func countWords(parts []string) int {
	n := 0
	for _, p := range parts {
		n += len(strings.Fields(p))
	}
	return n
}
