package source

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultLinkPattern matches typical regulation detail pages and attachments.
const DefaultLinkPattern = `(?i)(peraturan|regulasi|produk-hukum|produk_hukum|detail|dokumen|jdih|/uu-|/pp-|/permen|\.pdf$)`

// NormalizeURL lowercases scheme and host, drops default ports and the
// fragment, and sorts query parameters so equivalent links compare equal.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}

// harvester pulls candidate detail links out of listing pages.
type harvester struct {
	selector string
	pattern  *regexp.Regexp
}

func newHarvester(selector, pattern string) (*harvester, error) {
	if selector == "" {
		selector = "a[href]"
	}
	if pattern == "" {
		pattern = DefaultLinkPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile link pattern: %w", err)
	}
	return &harvester{selector: selector, pattern: re}, nil
}

// Links returns the absolute, normalized, pattern-matching links of body
// that stay on the listing page's host, in document order.
func (h *harvester) Links(body []byte, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	doc.Find(h.selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") || strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if !strings.EqualFold(abs.Hostname(), base.Hostname()) {
			return
		}
		norm, err := NormalizeURL(abs.String())
		if err != nil || norm == pageURL || !h.pattern.MatchString(norm) {
			return
		}
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	})
	return out
}

// Match reports whether rawURL passes the link pattern.
func (h *harvester) Match(rawURL string) bool {
	return h.pattern.MatchString(rawURL)
}
