package store

import (
	"context"
	"sort"
	"strings"

	"github.com/rcliao/memory-server/internal/model"
)

const (
	// DefaultSearchLimit is used when no positive limit is given.
	DefaultSearchLimit = 10
	// SearchCandidateLimit caps how many records a search considers.
	SearchCandidateLimit = 1000
)

// Lister is the part of Store the search engine reads through.
type Lister interface {
	GetAll(ctx context.Context, userID string, limit int) ([]model.Record, error)
}

// SearchParams holds parameters for searching memories.
type SearchParams struct {
	UserID string
	Query  string
	Limit  int
}

// Search finds a user's memories whose text or original text contains the
// query, case-insensitively. Results are ranked by how often the query
// occurs, then by recency. An empty query matches every record with a
// score of zero.
func Search(ctx context.Context, l Lister, p SearchParams) ([]model.SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	records, err := l.GetAll(ctx, p.UserID, SearchCandidateLimit)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(p.Query)
	results := make([]model.SearchResult, 0, len(records))
	for _, r := range records {
		text := strings.ToLower(r.Memory)
		orig := strings.ToLower(r.OriginalText())

		if q == "" {
			results = append(results, model.SearchResult{Record: r})
			continue
		}
		if !strings.Contains(text, q) && !strings.Contains(orig, q) {
			continue
		}
		results = append(results, model.SearchResult{
			Record:         r,
			RelevanceScore: strings.Count(text+" "+orig, q),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].CreatedAt().After(results[j].CreatedAt())
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
