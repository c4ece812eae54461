package services

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

var skippedSchemes = []string{"mailto:", "javascript:", "tel:"}

// Elements whose subtree never contributes readable text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"canvas":   true,
}

// NormalizeURL resolves href against base and drops the fragment. Only http
// and https results are accepted.
func NormalizeURL(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	abs := baseURL.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

// SameHost reports whether both URLs point at the same host (port included).
func SameHost(root, candidate string) bool {
	r, err := url.Parse(root)
	if err != nil {
		return false
	}
	c, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return strings.EqualFold(r.Host, c.Host)
}

// ExtractLinks returns the absolute, de-duplicated anchor targets found in
// body, in document order. maxLinks <= 0 means no limit.
func ExtractLinks(base, body string, maxLinks int, sameDomainOnly bool) []string {
	var links []string
	seen := make(map[string]bool)

	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return links
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := z.TagName()
		if string(name) != "a" || !hasAttr {
			continue
		}

		var href string
		for {
			key, val, more := z.TagAttr()
			if string(key) == "href" {
				href = string(val)
			}
			if !more {
				break
			}
		}

		norm, ok := NormalizeURL(base, href)
		if !ok {
			continue
		}
		if sameDomainOnly && !SameHost(base, norm) {
			continue
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true
		links = append(links, norm)
		if maxLinks > 0 && len(links) >= maxLinks {
			return links
		}
	}
}

// HTMLToText converts an HTML document into readable plain text: one line per
// text node, blank lines dropped and consecutive duplicates collapsed.
func HTMLToText(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var raw strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			raw.WriteString(n.Data)
			raw.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var cleaned []string
	prev := ""
	for _, line := range strings.Split(raw.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == prev {
			continue
		}
		cleaned = append(cleaned, line)
		prev = line
	}
	return strings.Join(cleaned, "\n")
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
