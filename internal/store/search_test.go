package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rcliao/memory-server/internal/model"
)

// staticLister serves fixed records, ignoring the limit.
type staticLister []model.Record

func (l staticLister) GetAll(ctx context.Context, userID string, limit int) ([]model.Record, error) {
	return l, nil
}

type failingLister struct{}

func (failingLister) GetAll(ctx context.Context, userID string, limit int) ([]model.Record, error) {
	return nil, errors.New("disk on fire")
}

func rec(id, memory, original, created string) model.Record {
	md := model.Metadata{"createdAt": created}
	if original != "" {
		md["originalText"] = original
	}
	return model.Record{ID: id, UserID: "u", Memory: memory, Metadata: md}
}

func ids(results []model.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestSearch_Basic(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t, LocalOptions{})

	s.Save(ctx, "u", "Go is a compiled language with goroutines", nil)
	s.Save(ctx, "u", "Python is an interpreted language", nil)
	s.Save(ctx, "other", "Rust is a language with a borrow checker", nil)

	results, err := Search(ctx, s, SearchParams{UserID: "u", Query: "LANGUAGE"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	results, err = Search(ctx, s, SearchParams{UserID: "u", Query: "javascript"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(results))
	}
}

func TestSearch_Ranking(t *testing.T) {
	ctx := context.Background()
	l := staticLister{
		rec("old-once", "tea", "", "2024-01-01T00:00:00.000Z"),
		rec("new-once", "green tea", "", "2024-03-01T00:00:00.000Z"),
		rec("thrice", "tea, tea and more tea", "", "2024-02-01T00:00:00.000Z"),
		rec("orig", "a hot drink", "Tea time", "2024-02-15T00:00:00.000Z"),
		rec("none", "coffee", "", "2024-04-01T00:00:00.000Z"),
	}

	results, err := Search(ctx, l, SearchParams{UserID: "u", Query: "tea"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"thrice", "new-once", "orig", "old-once"}
	got := ids(results)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if results[0].RelevanceScore != 3 {
		t.Errorf("expected score 3, got %d", results[0].RelevanceScore)
	}
	for _, r := range results {
		if r.RelevanceScore < 1 {
			t.Errorf("matched result %s has score %d", r.ID, r.RelevanceScore)
		}
	}
}

func TestSearch_SameInstantRanksByScore(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newLocalStore(t, LocalOptions{Now: func() time.Time { return at }})

	twice, err := s.Save(ctx, "u", "tea and more tea", nil)
	if err != nil {
		t.Fatal(err)
	}
	once, err := s.Save(ctx, "u", "green tea", nil)
	if err != nil {
		t.Fatal(err)
	}

	results, err := Search(ctx, s, SearchParams{UserID: "u", Query: "tea"})
	if err != nil {
		t.Fatal(err)
	}
	got := ids(results)
	if len(got) != 2 || got[0] != twice || got[1] != once {
		t.Fatalf("expected [%s %s], got %v", twice, once, got)
	}
	if !results[0].CreatedAt().Equal(results[1].CreatedAt()) {
		t.Fatalf("expected identical createdAt, got %v and %v", results[0].CreatedAt(), results[1].CreatedAt())
	}
	if results[0].RelevanceScore != 2 || results[1].RelevanceScore != 1 {
		t.Errorf("expected scores 2 and 1, got %d and %d", results[0].RelevanceScore, results[1].RelevanceScore)
	}
}

func TestSearch_Limit(t *testing.T) {
	ctx := context.Background()
	var l staticLister
	for i := 0; i < 15; i++ {
		l = append(l, rec(string(rune('a'+i)), "match", "", "2024-01-01T00:00:00.000Z"))
	}

	results, _ := Search(ctx, l, SearchParams{UserID: "u", Query: "match"})
	if len(results) != DefaultSearchLimit {
		t.Errorf("expected default limit %d, got %d", DefaultSearchLimit, len(results))
	}
	results, _ = Search(ctx, l, SearchParams{UserID: "u", Query: "match", Limit: 3})
	if len(results) != 3 {
		t.Errorf("expected 3, got %d", len(results))
	}
}

func TestSearch_SpecialCharacters(t *testing.T) {
	ctx := context.Background()
	l := staticLister{
		rec("cpp", "I write c++ and more c++", "", "2024-01-01T00:00:00.000Z"),
		rec("paren", "call f( x )", "", "2024-01-02T00:00:00.000Z"),
		rec("glob", "match .* literally", "", "2024-01-03T00:00:00.000Z"),
	}

	tests := []struct {
		query string
		want  string
		score int
	}{
		{"c++", "cpp", 2},
		{"(", "paren", 1},
		{".*", "glob", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := Search(ctx, l, SearchParams{UserID: "u", Query: tt.query})
			if err != nil {
				t.Fatal(err)
			}
			if len(results) != 1 || results[0].ID != tt.want || results[0].RelevanceScore != tt.score {
				t.Errorf("query %q: got %+v", tt.query, results)
			}
		})
	}
}

func TestSearch_EmptyQueryMatchesAll(t *testing.T) {
	ctx := context.Background()
	l := staticLister{
		rec("old", "x", "", "2024-01-01T00:00:00.000Z"),
		rec("new", "y", "", "2024-02-01T00:00:00.000Z"),
	}

	results, err := Search(ctx, l, SearchParams{UserID: "u"})
	if err != nil {
		t.Fatal(err)
	}
	got := ids(results)
	if len(got) != 2 || got[0] != "new" || got[1] != "old" {
		t.Errorf("expected [new old], got %v", got)
	}
	for _, r := range results {
		if r.RelevanceScore != 0 {
			t.Errorf("expected score 0, got %d", r.RelevanceScore)
		}
	}
}

func TestSearch_PropagatesStoreError(t *testing.T) {
	if _, err := Search(context.Background(), failingLister{}, SearchParams{UserID: "u", Query: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
