// Package search ranks the static document set against free-text queries
// with weighted substring matches.
package search

import (
	"sort"
	"strings"

	"github.com/tryandromeda/sitegate/internal/domain"
)

// Scoring weights for query matches.
const (
	weightTitleFull   = 10
	weightKeyword     = 5
	weightExcerptFull = 3
	weightTitleTerm   = 2
	weightExcerptTerm = 1
)

// Service is a pure, stateless ranker over an immutable document list.
// Safe for unlimited concurrent use.
type Service struct {
	docs         []domain.Document
	phrases      []string
	defaultLimit int
	maxLimit     int
	suggestLimit int
}

// New creates a search service over a fixed document set and phrase list.
func New(docs []domain.Document, phrases []string) *Service {
	return &Service{
		docs:         docs,
		phrases:      phrases,
		defaultLimit: 10,
		maxLimit:     100,
		suggestLimit: 8,
	}
}

// WithLimits overrides the default, maximum, and suggestion limits.
func (s *Service) WithLimits(defaultLimit, maxLimit, suggestLimit int) *Service {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	if suggestLimit > 0 {
		s.suggestLimit = suggestLimit
	}
	return s
}

// Search returns the ranked matches for a query, capped to limit.
// Empty and whitespace-only queries return an empty list. Non-positive
// limits fall back to the default; limits above the maximum are capped.
// Ties keep original document order, so results are reproducible.
func (s *Service) Search(query string, limit int) []domain.Result {
	q := strings.ToLower(strings.TrimSpace(query))
	terms := strings.Fields(q)
	if len(terms) == 0 {
		return []domain.Result{}
	}
	limit = s.clampLimit(limit)

	results := make([]domain.Result, 0, len(s.docs))
	for _, d := range s.docs {
		score := scoreDocument(&d, q, terms)
		if score <= 0 {
			continue
		}
		results = append(results, domain.Result{
			Title:      d.Title,
			URL:        d.URL,
			Excerpt:    d.Excerpt,
			Type:       d.Type,
			Score:      score,
			Highlights: []string{},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Suggest returns up to limit phrases containing the query, case-insensitive.
func (s *Service) Suggest(query string, limit int) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []string{}
	}
	if limit <= 0 {
		limit = s.suggestLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	matches := make([]string, 0, limit)
	for _, p := range s.phrases {
		if strings.Contains(strings.ToLower(p), q) {
			matches = append(matches, p)
			if len(matches) == limit {
				break
			}
		}
	}
	return matches
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

func scoreDocument(d *domain.Document, fullQuery string, terms []string) int {
	title := strings.ToLower(d.Title)
	excerpt := strings.ToLower(d.Excerpt)

	score := 0
	if strings.Contains(title, fullQuery) {
		score += weightTitleFull
	}
	for _, kw := range d.Keywords {
		kwLower := strings.ToLower(kw)
		for _, t := range terms {
			if strings.Contains(kwLower, t) {
				score += weightKeyword
				break
			}
		}
	}
	if strings.Contains(excerpt, fullQuery) {
		score += weightExcerptFull
	}
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += weightTitleTerm
		}
		if strings.Contains(excerpt, t) {
			score += weightExcerptTerm
		}
	}
	return score
}
