package fetcher

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BlockDetector recognizes anti-bot challenge and captcha pages.
type BlockDetector struct {
	titleMarkers []string
	bodyMarkers  [][]byte
	// captcha markers only count on short pages; real pages embed captcha
	// widgets in search and contact forms.
	captchaMarkers [][]byte
	shortTextLimit int
}

// NewBlockDetector builds a detector with the default signatures.
func NewBlockDetector() *BlockDetector {
	return &BlockDetector{
		titleMarkers: []string{
			"just a moment",
			"attention required",
			"access denied",
			"request rejected",
			"checking your browser",
			"ddos-guard",
			"403 forbidden",
			"are you a robot",
			"security check",
		},
		bodyMarkers: lowerAll(
			"cf-browser-verification",
			"challenge-platform",
			"cf_chl_opt",
			"_incapsula_resource",
			"incapsula incident id",
			"ddos-guard",
			"the requested url was rejected",
			"sucuri website firewall",
			"please enable javascript and cookies to continue",
		),
		captchaMarkers: lowerAll(
			"g-recaptcha",
			"h-captcha",
			"hcaptcha.com",
			"captcha",
		),
		shortTextLimit: 1500,
	}
}

// Detect reports whether body looks like a block page and names the signature.
func (d *BlockDetector) Detect(body []byte) (bool, string) {
	if len(body) == 0 {
		return false, ""
	}
	lower := bytes.ToLower(body)
	for _, m := range d.bodyMarkers {
		if bytes.Contains(lower, m) {
			return true, string(m)
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, ""
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, m := range d.titleMarkers {
		if strings.Contains(title, m) {
			return true, "title:" + m
		}
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	if len(text) > d.shortTextLimit {
		return false, ""
	}
	for _, m := range d.captchaMarkers {
		if bytes.Contains(lower, m) {
			return true, string(m)
		}
	}
	return false, ""
}

func lowerAll(in ...string) [][]byte {
	out := make([][]byte, 0, len(in))
	for _, s := range in {
		out = append(out, bytes.ToLower([]byte(s)))
	}
	return out
}
