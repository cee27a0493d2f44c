package crawl

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Elements that never carry article content.
const strippedElements = "script, style, nav, footer, noscript, meta, link"

// Class-attribute keywords marking boilerplate containers.
var boilerplateClassKeywords = []string{
	"sidebar",
	"advertisement",
	"cookie",
	"consent",
	"popup",
	"modal",
}

// Clean strips boilerplate markup from an HTML document and returns the
// remaining text (whitespace-collapsed) plus the page title. Title
// resolution order: <title>, first <h1>, "Unknown".
func Clean(html string) (text string, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = "Unknown"
	}

	doc.Find(strippedElements).Remove()
	doc.Find("title").Remove()
	doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if hasBoilerplateClass(class) {
			s.Remove()
		}
	})

	body := doc.Find("body")
	if body.Length() > 0 {
		text = body.Text()
	} else {
		text = doc.Text()
	}
	return strings.Join(strings.Fields(text), " "), title, nil
}

// ExtractLinks collects the outbound anchors of a page, normalized against
// base and filtered through the allow-list. Only http(s) links survive.
// Order follows document order; duplicates are dropped.
func ExtractLinks(html string, base *url.URL, allow Allowlist) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		normalized, ok := Normalize(href, base)
		if !ok {
			return
		}
		u, err := url.Parse(normalized)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		if !allow.AllowsHost(u.Hostname()) {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})
	return links
}

func hasBoilerplateClass(class string) bool {
	class = strings.ToLower(class)
	for _, kw := range boilerplateClassKeywords {
		if strings.Contains(class, kw) {
			return true
		}
	}
	return false
}
