// Package extract turns raw page content into structured regulation records
// using an ordered cascade of field-location rules.
package extract

import (
	"bytes"
	"fmt"
	"html"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// Config tunes validation limits.
type Config struct {
	MinTitleLength int
	MaxBodyLength  int
}

// Metadata keys set by the extractor.
const (
	MetaAgency           = "agency"
	MetaSubject          = "subject"
	MetaOriginalURL      = "original_url"
	MetaExtractionMethod = "extraction_method"
	MetaIssueDateRaw     = "issue_date_raw"
	MetaNumberSource     = "number_source"
)

// Extractor applies FieldRules to raw pages.
type Extractor struct {
	cfg    Config
	rules  FieldRules
	policy *bluemonday.Policy
}

// New builds an Extractor with DefaultRules.
func New(cfg Config) *Extractor {
	if cfg.MinTitleLength <= 0 {
		cfg.MinTitleLength = 10
	}
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = 20000
	}
	policy := bluemonday.StrictPolicy()
	policy.AddSpaceWhenStrippingTag(true)
	return &Extractor{
		cfg:    cfg,
		rules:  DefaultRules(),
		policy: policy,
	}
}

// WithRules returns a copy using rules instead of the defaults.
func (e *Extractor) WithRules(rules FieldRules) *Extractor {
	cp := *e
	cp.rules = rules
	return &cp
}

// WithOverrides returns a copy whose cascades start with the given
// per-field selectors (keys: title, number, type, year, date, body,
// attachment, agency, subject).
func (e *Extractor) WithOverrides(selectors map[string]string) *Extractor {
	if len(selectors) == 0 {
		return e
	}
	cp := *e
	cp.rules = e.rules.withOverrides(selectors)
	return &cp
}

// Extract structures raw content. It returns crawler.ErrExtraction when no
// title is found and crawler.ErrValidation when every candidate title is too
// short. Attachment links are resolved against baseURL, or the page URL when
// baseURL is empty.
func (e *Extractor) Extract(raw crawler.RawFetch, baseURL string) (crawler.ExtractedDocument, error) {
	if len(raw.Body) == 0 {
		return crawler.ExtractedDocument{}, fmt.Errorf("empty content: %w", crawler.ErrExtraction)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return crawler.ExtractedDocument{}, fmt.Errorf("parse html: %w", crawler.ErrExtraction)
	}
	pageURL := raw.FinalURL
	if pageURL == "" {
		pageURL = raw.URL
	}
	if baseURL == "" {
		baseURL = pageURL
	}

	title, titleRule, err := e.title(doc)
	if err != nil {
		return crawler.ExtractedDocument{}, err
	}

	out := crawler.ExtractedDocument{
		Title:     title,
		SourceURL: pageURL,
		Metadata: map[string]string{
			MetaOriginalURL:      raw.URL,
			MetaExtractionMethod: titleRule,
		},
	}

	e.numberAndYear(doc, &out, pageURL)
	e.documentType(doc, &out)

	if rawDate, _ := first(doc, e.rules.Date); rawDate != "" {
		out.IssueDate = ParseDate(rawDate)
		out.Metadata[MetaIssueDateRaw] = rawDate
		if out.Year == 0 && out.IssueDate != nil {
			out.Year = out.IssueDate.Year()
		}
	}
	if link, _ := first(doc, e.rules.Attachment); link != "" {
		out.FileURL = resolveURL(baseURL, link)
	}
	if agency, _ := first(doc, e.rules.Agency); agency != "" {
		out.Metadata[MetaAgency] = agency
	}
	if subject, _ := first(doc, e.rules.Subject); subject != "" {
		out.Metadata[MetaSubject] = subject
	}
	out.Body = e.body(doc)
	return out, nil
}

func (e *Extractor) title(doc *goquery.Document) (string, string, error) {
	tooShort := false
	for _, rule := range e.rules.Title {
		v := rule.Find(doc)
		if v == "" {
			continue
		}
		if utf8.RuneCountInString(v) < e.cfg.MinTitleLength {
			tooShort = true
			continue
		}
		return v, rule.String(), nil
	}
	if tooShort {
		return "", "", fmt.Errorf("title shorter than %d characters: %w", e.cfg.MinTitleLength, crawler.ErrValidation)
	}
	return "", "", fmt.Errorf("title not found: %w", crawler.ErrExtraction)
}

// numberAndYear applies in-page labels, then the title text, then the URL slug.
func (e *Extractor) numberAndYear(doc *goquery.Document, out *crawler.ExtractedDocument, pageURL string) {
	source := "label"
	if v, _ := first(doc, e.rules.Number); v != "" {
		out.Number, out.Year = NumberYearFromLabel(v)
	}
	if y, _ := first(doc, e.rules.Year); y != "" {
		if year := atoiYear(y); year != 0 {
			out.Year = year
		}
	}
	if out.Number == "" || out.Year == 0 {
		number, year := NumberYearFromText(out.Title)
		if out.Number == "" && number != "" {
			out.Number, source = number, "title"
		}
		if out.Year == 0 {
			out.Year = year
		}
	}
	if out.Number == "" || out.Year == 0 {
		number, year := NumberYearFromURL(pageURL)
		if out.Number == "" && number != "" {
			out.Number, source = number, "url"
		}
		if out.Year == 0 {
			out.Year = year
		}
	}
	if out.Number != "" {
		out.Metadata[MetaNumberSource] = source
	}
}

func (e *Extractor) documentType(doc *goquery.Document, out *crawler.ExtractedDocument) {
	if v, _ := first(doc, e.rules.Type); v != "" {
		out.DocumentType = v
		_, out.TypeCode = DetectType(v)
		return
	}
	out.DocumentType, out.TypeCode = DetectType(out.Title)
}

func (e *Extractor) body(doc *goquery.Document) string {
	for _, rule := range e.rules.Body {
		var text string
		if sel, ok := rule.(Selector); ok && sel.Attr == "" {
			text = e.sanitize(doc.Find(sel.Query).First())
		} else {
			text = rule.Find(doc)
		}
		if text != "" {
			return truncateRunes(text, e.cfg.MaxBodyLength)
		}
	}
	return ""
}

// sanitize strips markup (including script and style contents) and returns
// whitespace-collapsed text.
func (e *Extractor) sanitize(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	markup, err := goquery.OuterHtml(sel)
	if err != nil {
		return collapseSpace(sel.Text())
	}
	return collapseSpace(html.UnescapeString(e.policy.Sanitize(markup)))
}

func first(doc *goquery.Document, rules []Rule) (string, string) {
	for _, rule := range rules {
		if v := rule.Find(doc); v != "" {
			return v, rule.String()
		}
	}
	return "", ""
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
