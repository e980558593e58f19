package relevance

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// Keyword is a weighted term and the category it votes for.
type Keyword struct {
	Term     string           `yaml:"term"`
	Weight   int              `yaml:"weight"`
	Category crawler.Category `yaml:"category"`
}

// Table is an immutable, normalized keyword table.
type Table struct {
	keywords []Keyword
}

// NewTable validates and normalizes keywords. Terms are lowercased and
// duplicate terms keep the first occurrence.
func NewTable(keywords []Keyword) (*Table, error) {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]Keyword, 0, len(keywords))
	for _, kw := range keywords {
		term := strings.ToLower(strings.TrimSpace(kw.Term))
		if term == "" {
			return nil, fmt.Errorf("keyword term must not be empty")
		}
		if kw.Weight <= 0 {
			return nil, fmt.Errorf("keyword %q weight must be > 0", term)
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		category := kw.Category
		if category == "" {
			category = crawler.CategoryGeneralTIK
		}
		out = append(out, Keyword{Term: term, Weight: kw.Weight, Category: category})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("keyword table is empty")
	}
	return &Table{keywords: out}, nil
}

// Keywords returns a copy of the normalized table.
func (t *Table) Keywords() []Keyword {
	return append([]Keyword(nil), t.keywords...)
}

type tableFile struct {
	Keywords []Keyword `yaml:"keywords"`
}

// LoadTable reads a YAML keyword file of the form
//
//	keywords:
//	  - term: data pribadi
//	    weight: 10
//	    category: perlindungan_data
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword file: %w", err)
	}
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse keyword file: %w", err)
	}
	return NewTable(file.Keywords)
}

// DefaultTable returns the built-in Indonesian TIK keyword table.
func DefaultTable() *Table {
	t, err := NewTable(defaultKeywords)
	if err != nil {
		panic(fmt.Sprintf("default keyword table invalid: %v", err))
	}
	return t
}

var defaultKeywords = []Keyword{
	{Term: "data pribadi", Weight: 10, Category: crawler.CategoryDataProtection},
	{Term: "pelindungan data", Weight: 10, Category: crawler.CategoryDataProtection},
	{Term: "perlindungan data", Weight: 10, Category: crawler.CategoryDataProtection},
	{Term: "privasi", Weight: 6, Category: crawler.CategoryDataProtection},
	{Term: "keamanan siber", Weight: 9, Category: crawler.CategoryCyberSecurity},
	{Term: "keamanan informasi", Weight: 8, Category: crawler.CategoryCyberSecurity},
	{Term: "siber", Weight: 7, Category: crawler.CategoryCyberSecurity},
	{Term: "sandi", Weight: 5, Category: crawler.CategoryCyberSecurity},
	{Term: "kriptografi", Weight: 6, Category: crawler.CategoryCyberSecurity},
	{Term: "telekomunikasi", Weight: 7, Category: crawler.CategoryTelecom},
	{Term: "spektrum frekuensi", Weight: 7, Category: crawler.CategoryTelecom},
	{Term: "frekuensi radio", Weight: 6, Category: crawler.CategoryTelecom},
	{Term: "pos dan telekomunikasi", Weight: 7, Category: crawler.CategoryTelecom},
	{Term: "transaksi elektronik", Weight: 8, Category: crawler.CategoryElectronicTrx},
	{Term: "tanda tangan elektronik", Weight: 8, Category: crawler.CategoryElectronicTrx},
	{Term: "sertifikat elektronik", Weight: 7, Category: crawler.CategoryElectronicTrx},
	{Term: "sistem elektronik", Weight: 8, Category: crawler.CategoryElectronicTrx},
	{Term: "perdagangan elektronik", Weight: 6, Category: crawler.CategoryElectronicTrx},
	{Term: "penyiaran", Weight: 6, Category: crawler.CategoryBroadcasting},
	{Term: "penyelenggaraan penyiaran", Weight: 7, Category: crawler.CategoryBroadcasting},
	{Term: "sistem pemerintahan berbasis elektronik", Weight: 9, Category: crawler.CategoryEGovernment},
	{Term: "spbe", Weight: 8, Category: crawler.CategoryEGovernment},
	{Term: "satu data", Weight: 6, Category: crawler.CategoryEGovernment},
	{Term: "e-government", Weight: 6, Category: crawler.CategoryEGovernment},
	{Term: "teknologi informasi", Weight: 8, Category: crawler.CategoryGeneralTIK},
	{Term: "informatika", Weight: 6, Category: crawler.CategoryGeneralTIK},
	{Term: "komunikasi dan informatika", Weight: 7, Category: crawler.CategoryGeneralTIK},
	{Term: "digital", Weight: 4, Category: crawler.CategoryGeneralTIK},
	{Term: "internet", Weight: 5, Category: crawler.CategoryGeneralTIK},
	{Term: "pusat data", Weight: 6, Category: crawler.CategoryGeneralTIK},
	{Term: "komputasi awan", Weight: 6, Category: crawler.CategoryGeneralTIK},
	{Term: "kecerdasan artifisial", Weight: 6, Category: crawler.CategoryGeneralTIK},
	{Term: "elektronik", Weight: 3, Category: crawler.CategoryGeneralTIK},
}
