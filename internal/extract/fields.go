package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

type docType struct {
	pattern *regexp.Regexp
	name    string
	code    string
}

// Listed so that longer names win ties at the same position.
var docTypes = []docType{
	{regexp.MustCompile(`(?i)peraturan pemerintah pengganti undang|\bperppu\b`), "Peraturan Pemerintah Pengganti Undang-Undang", "PERPPU"},
	{regexp.MustCompile(`(?i)undang[-\s]undang|\buu\b`), "Undang-Undang", "UU"},
	{regexp.MustCompile(`(?i)peraturan pemerintah\b|\bpp\b`), "Peraturan Pemerintah", "PP"},
	{regexp.MustCompile(`(?i)peraturan presiden|\bperpres\b`), "Peraturan Presiden", "PERPRES"},
	{regexp.MustCompile(`(?i)keputusan presiden|\bkeppres\b`), "Keputusan Presiden", "KEPPRES"},
	{regexp.MustCompile(`(?i)instruksi presiden|\binpres\b`), "Instruksi Presiden", "INPRES"},
	{regexp.MustCompile(`(?i)peraturan menteri|\bpermen[a-z]*\b`), "Peraturan Menteri", "PERMEN"},
	{regexp.MustCompile(`(?i)keputusan menteri|\bkepmen[a-z]*\b`), "Keputusan Menteri", "KEPMEN"},
	{regexp.MustCompile(`(?i)peraturan (?:kepala )?(?:badan|lembaga)|\bperban\b`), "Peraturan Badan", "PERBAN"},
	{regexp.MustCompile(`(?i)peraturan daerah|\bperda\b`), "Peraturan Daerah", "PERDA"},
	{regexp.MustCompile(`(?i)surat edaran`), "Surat Edaran", "SE"},
}

// DetectType returns the document type name and code whose pattern matches
// earliest in text.
func DetectType(text string) (string, string) {
	best := -1
	var found docType
	for _, dt := range docTypes {
		loc := dt.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < best {
			best = loc[0]
			found = dt
		}
	}
	if best == -1 {
		return "", ""
	}
	return found.name, found.code
}

var (
	textNumberYear  = regexp.MustCompile(`(?i)\b(?:nomor|no\.?)\s*([0-9]+[a-z0-9/.\-]*?)\s+tahun\s+(\d{4})\b`)
	textNumber      = regexp.MustCompile(`(?i)\b(?:nomor|no\.?)\s*([0-9]+[a-z0-9/.\-]*)`)
	textYear        = regexp.MustCompile(`(?i)\btahun\s+((?:19|20)\d{2})\b`)
	labelNumberYear = regexp.MustCompile(`(?i)^(\S.*?)[\s,]+tahun\s*:?\s*((?:19|20)\d{2})\b`)
	labelPrefix     = regexp.MustCompile(`(?i)^(?:(?:nomor|no)\b\.?)?\s*:?\s*`)
	slugNumberYear  = regexp.MustCompile(`(?i)(?:nomor|no)[-_]?(\d+)[-_](?:tahun|thn|th)[-_]?((?:19|20)\d{2})`)
	slugBareYear    = regexp.MustCompile(`(?i)(?:^|[-_/])(\d{1,4})[-_](?:tahun|thn|th)[-_]((?:19|20)\d{2})`)
	slugYear        = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)
)

// NumberYearFromText recovers "Nomor X Tahun YYYY" style values from prose.
func NumberYearFromText(text string) (string, int) {
	if m := textNumberYear.FindStringSubmatch(text); m != nil {
		return strings.TrimRight(m[1], "./-"), atoiYear(m[2])
	}
	number := ""
	if m := textNumber.FindStringSubmatch(text); m != nil {
		number = strings.TrimRight(m[1], "./-")
	}
	year := 0
	if m := textYear.FindStringSubmatch(text); m != nil {
		year = atoiYear(m[1])
	}
	return number, year
}

// NumberYearFromLabel splits a "Nomor" field value such as "11 Tahun 2008"
// or "Nomor : 11 Tahun 2008" into its number and year. A bare value is
// returned as the number with year 0.
func NumberYearFromLabel(value string) (string, int) {
	v := strings.TrimSpace(labelPrefix.ReplaceAllString(strings.TrimSpace(value), ""))
	if m := labelNumberYear.FindStringSubmatch(v); m != nil {
		return strings.TrimRight(strings.TrimSpace(m[1]), "./-,"), atoiYear(m[2])
	}
	return v, 0
}

// NumberYearFromURL recovers number and year from a URL slug such as
// /peraturan/uu-no-11-tahun-2008.
func NumberYearFromURL(raw string) (string, int) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0
	}
	path, err := url.PathUnescape(u.Path)
	if err != nil {
		path = u.Path
	}
	if m := slugNumberYear.FindStringSubmatch(path); m != nil {
		return m[1], atoiYear(m[2])
	}
	if m := slugBareYear.FindStringSubmatch(path); m != nil {
		return m[1], atoiYear(m[2])
	}
	if m := slugYear.FindStringSubmatch(path); m != nil {
		return "", atoiYear(m[1])
	}
	return "", 0
}

func atoiYear(s string) int {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1900 || y > 2100 {
		return 0
	}
	return y
}

// resolveURL makes ref absolute against base.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	return b.ResolveReference(r).String()
}
