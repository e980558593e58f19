package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Rule locates a single field value in a parsed page.
type Rule interface {
	Find(doc *goquery.Document) string
	String() string
}

// Selector returns the text (or Attr) of the first non-empty match of Query.
type Selector struct {
	Query string
	Attr  string
}

// Find implements Rule.
func (r Selector) Find(doc *goquery.Document) string {
	var out string
	doc.Find(r.Query).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if r.Attr != "" {
			out = strings.TrimSpace(s.AttrOr(r.Attr, ""))
		} else {
			out = collapseSpace(s.Text())
		}
		return out == ""
	})
	return out
}

func (r Selector) String() string {
	if r.Attr != "" {
		return "selector:" + r.Query + "@" + r.Attr
	}
	return "selector:" + r.Query
}

// Label finds values presented as label/value pairs: table rows, definition
// lists, and "Label : value" lines.
type Label struct {
	Labels []string
}

// Find implements Rule.
func (r Label) Find(doc *goquery.Document) string {
	if v := r.fromRows(doc); v != "" {
		return v
	}
	if v := r.fromDefinitions(doc); v != "" {
		return v
	}
	return r.fromLines(doc)
}

func (r Label) String() string {
	return "label:" + strings.Join(r.Labels, "|")
}

func (r Label) matches(raw string) bool {
	key := normalizeLabel(raw)
	for _, l := range r.Labels {
		if key == l {
			return true
		}
	}
	return false
}

func (r Label) fromRows(doc *goquery.Document) string {
	var out string
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("th, td")
		if cells.Length() < 2 || !r.matches(cells.First().Text()) {
			return true
		}
		out = trimValue(cells.Last().Text())
		return out == ""
	})
	return out
}

func (r Label) fromDefinitions(doc *goquery.Document) string {
	var out string
	doc.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if !r.matches(dt.Text()) {
			return true
		}
		out = trimValue(dt.NextFiltered("dd").Text())
		return out == ""
	})
	return out
}

func (r Label) fromLines(doc *goquery.Document) string {
	var out string
	doc.Find("li, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseSpace(s.Text())
		idx := strings.Index(text, ":")
		if idx <= 0 || !r.matches(text[:idx]) {
			return true
		}
		out = trimValue(text[idx+1:])
		return out == ""
	})
	return out
}

// Meta returns the content of the first <meta> whose name or property matches.
type Meta struct {
	Names []string
}

// Find implements Rule.
func (r Meta) Find(doc *goquery.Document) string {
	for _, want := range r.Names {
		var out string
		doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			name := strings.ToLower(s.AttrOr("name", s.AttrOr("property", "")))
			if name != want {
				return true
			}
			out = collapseSpace(s.AttrOr("content", ""))
			return out == ""
		})
		if out != "" {
			return out
		}
	}
	return ""
}

func (r Meta) String() string {
	return "meta:" + strings.Join(r.Names, "|")
}

// FieldRules holds the ordered rule cascade for every extracted field.
type FieldRules struct {
	Title      []Rule
	Number     []Rule
	Type       []Rule
	Year       []Rule
	Date       []Rule
	Body       []Rule
	Attachment []Rule
	Agency     []Rule
	Subject    []Rule
}

// DefaultRules returns the cascade used for Indonesian legal-document pages.
func DefaultRules() FieldRules {
	return FieldRules{
		Title: []Rule{
			Label{Labels: []string{"judul", "judul peraturan", "judul dokumen"}},
			Selector{Query: ".detail-title"},
			Selector{Query: "h1.title, h1.entry-title"},
			Selector{Query: "article h1"},
			Selector{Query: "h1"},
			Selector{Query: "h2.title, .entry-title"},
			Meta{Names: []string{"og:title", "twitter:title", "dc.title"}},
			Selector{Query: "title"},
		},
		Number: []Rule{
			Label{Labels: []string{"nomor", "no", "nomor peraturan", "nomor dokumen"}},
		},
		Type: []Rule{
			Label{Labels: []string{"jenis", "jenis peraturan", "bentuk", "bentuk peraturan", "tipe dokumen", "jenis dokumen"}},
		},
		Year: []Rule{
			Label{Labels: []string{"tahun", "tahun terbit", "tahun peraturan"}},
		},
		Date: []Rule{
			Label{Labels: []string{"tanggal penetapan", "ditetapkan", "tanggal ditetapkan", "tanggal diundangkan", "tanggal"}},
			Selector{Query: "time[datetime]", Attr: "datetime"},
			Meta{Names: []string{"article:published_time", "dc.date", "date"}},
		},
		Body: []Rule{
			Selector{Query: ".detail-content"},
			Selector{Query: "article"},
			Selector{Query: ".entry-content, .content"},
			Selector{Query: "main"},
			Meta{Names: []string{"description", "og:description"}},
			Selector{Query: "body"},
		},
		Attachment: []Rule{
			Selector{Query: "a[href$='.pdf'], a[href$='.PDF']", Attr: "href"},
			Selector{Query: "a[href*='download'], a[href*='unduh']", Attr: "href"},
			Selector{Query: "iframe[src*='.pdf'], embed[src*='.pdf'], object[data*='.pdf']", Attr: "src"},
		},
		Agency: []Rule{
			Label{Labels: []string{"pemrakarsa", "instansi", "lembaga", "penetap", "instansi penetap"}},
			Meta{Names: []string{"dc.publisher", "author"}},
		},
		Subject: []Rule{
			Label{Labels: []string{"tentang", "subjek", "bidang", "bidang hukum"}},
		},
	}
}

// withOverrides returns rules with source-specific selectors prepended.
// Override values use "css" or "css@attr".
func (f FieldRules) withOverrides(selectors map[string]string) FieldRules {
	prepend := func(rules []Rule, key string) []Rule {
		raw, ok := selectors[key]
		if !ok || strings.TrimSpace(raw) == "" {
			return rules
		}
		rule := Selector{Query: raw}
		if idx := strings.LastIndex(raw, "@"); idx > 0 && !strings.ContainsAny(raw[idx:], "]'\" ") {
			rule = Selector{Query: raw[:idx], Attr: raw[idx+1:]}
		}
		return append([]Rule{rule}, rules...)
	}
	return FieldRules{
		Title:      prepend(f.Title, "title"),
		Number:     prepend(f.Number, "number"),
		Type:       prepend(f.Type, "type"),
		Year:       prepend(f.Year, "year"),
		Date:       prepend(f.Date, "date"),
		Body:       prepend(f.Body, "body"),
		Attachment: prepend(f.Attachment, "attachment"),
		Agency:     prepend(f.Agency, "agency"),
		Subject:    prepend(f.Subject, "subject"),
	}
}

var spaceRun = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func normalizeLabel(s string) string {
	s = strings.ToLower(collapseSpace(s))
	return strings.TrimRight(strings.TrimSpace(s), ":. ")
}

func trimValue(s string) string {
	s = collapseSpace(s)
	return strings.TrimSpace(strings.TrimPrefix(s, ":"))
}
