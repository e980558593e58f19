// Package relevance scores documents against a weighted keyword table and
// assigns a coarse TIK category.
package relevance

import (
	"strings"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// DefaultMinScore is the relevance threshold used when a source sets none.
const DefaultMinScore = 5

// Scorer computes relevance scores and categories.
type Scorer struct {
	table *Table
}

// NewScorer builds a Scorer. A nil table falls back to DefaultTable.
func NewScorer(table *Table) *Scorer {
	if table == nil {
		table = DefaultTable()
	}
	return &Scorer{table: table}
}

// Score sums the weights of every distinct keyword present in title+body as
// a case-insensitive substring. Each term counts once.
func (s *Scorer) Score(title, body string) (int, map[string]int) {
	text := strings.ToLower(title + " " + body)
	matched := make(map[string]int)
	score := 0
	for _, kw := range s.table.keywords {
		if strings.Contains(text, kw.Term) {
			matched[kw.Term] = kw.Weight
			score += kw.Weight
		}
	}
	return score, matched
}

// Classify buckets the document into the taxonomy.
func (s *Scorer) Classify(doc crawler.ExtractedDocument) crawler.Category {
	_, matched := s.Score(doc.Title, doc.Body)
	return s.classifyMatches(matched)
}

// ScoreDocument scores, flags, and classifies doc against threshold.
func (s *Scorer) ScoreDocument(doc crawler.ExtractedDocument, threshold int) crawler.ScoredDocument {
	score, matched := s.Score(doc.Title, doc.Body)
	return crawler.ScoredDocument{
		ExtractedDocument: doc,
		Score:             score,
		MatchedKeywords:   matched,
		Relevant:          score >= threshold,
		Category:          s.classifyMatches(matched),
		Breakdown: crawler.ScoreBreakdown{
			ByCategory: s.byCategory(matched),
			Threshold:  threshold,
			Matches:    len(matched),
		},
	}
}

func (s *Scorer) byCategory(matched map[string]int) map[crawler.Category]int {
	totals := make(map[crawler.Category]int)
	for _, kw := range s.table.keywords {
		if w, ok := matched[kw.Term]; ok {
			totals[kw.Category] += w
		}
	}
	return totals
}

// classifyMatches picks the specific category with the largest matched
// weight. Generic-only matches map to tik_umum and no match to non_tik.
func (s *Scorer) classifyMatches(matched map[string]int) crawler.Category {
	if len(matched) == 0 {
		return crawler.CategoryNonTIK
	}
	totals := s.byCategory(matched)
	best := crawler.CategoryGeneralTIK
	bestWeight := 0
	for _, c := range crawler.Categories() {
		if c == crawler.CategoryGeneralTIK || c == crawler.CategoryNonTIK {
			continue
		}
		if totals[c] > bestWeight {
			best, bestWeight = c, totals[c]
		}
	}
	return best
}
