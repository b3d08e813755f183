package retrieval

import (
	"context"
	"strings"
	"sync"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/assistant/search"
)

// fakeSearcher returns canned hits keyed by query text; unknown queries get
// the Default hits. It records every call. Keyword expansion searches run
// concurrently, so call recording is mutex-guarded.
type fakeSearcher struct {
	ByQuery map[string][]search.Hit
	Default []search.Hit
	Err     error

	mu    sync.Mutex
	Calls []searchCall
}

type searchCall struct {
	Text string
	Opts search.Options
}

func (f *fakeSearcher) Search(ctx context.Context, text string, opts search.Options) ([]search.Hit, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, searchCall{Text: text, Opts: opts})
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if hits, ok := f.ByQuery[text]; ok {
		return limitHits(hits, opts), nil
	}
	return limitHits(f.Default, opts), nil
}

func limitHits(hits []search.Hit, opts search.Options) []search.Hit {
	var out []search.Hit
	restrict := make(map[string]bool, len(opts.RestrictIDs))
	for _, id := range opts.RestrictIDs {
		restrict[id] = true
	}
	for _, hit := range hits {
		if hit.Score < opts.ScoreThreshold {
			continue
		}
		if len(opts.RestrictIDs) > 0 && !restrict[hit.ProductID] {
			continue
		}
		out = append(out, hit)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}

// identityReranker keeps submitted order, truncated to the limit.
type identityReranker struct {
	Err   error
	Calls []rerankCall
}

type rerankCall struct {
	Query     string
	Documents []string
	Limit     int
}

func (r *identityReranker) Rerank(ctx context.Context, query string, documents []string, limit int) ([]search.RankedDocument, error) {
	r.Calls = append(r.Calls, rerankCall{Query: query, Documents: documents, Limit: limit})
	if r.Err != nil {
		return nil, r.Err
	}
	var out []search.RankedDocument
	for i := range documents {
		if len(out) == limit {
			break
		}
		out = append(out, search.RankedDocument{Index: i, Score: 1.0 - float64(i)*0.01})
	}
	return out, nil
}

// reverseReranker returns documents in reverse submission order so tests can
// observe rerank-driven reordering.
type reverseReranker struct{}

func (reverseReranker) Rerank(ctx context.Context, query string, documents []string, limit int) ([]search.RankedDocument, error) {
	var out []search.RankedDocument
	for i := len(documents) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, search.RankedDocument{Index: i, Score: 1.0})
	}
	return out, nil
}

// fakeStore implements catalog.Store over in-memory fixtures.
type fakeStore struct {
	ProductsBySubcategory map[string][]string
	Scored                []datatypes.ScoredProduct
	SummaryText           map[string]string
	TitleText             map[string]string
	Err                   error

	LastPrice        *datatypes.PriceRange
	LastScoreArgs    [3][]string
	ScoredPriceCalls []*datatypes.PriceRange
}

func (s *fakeStore) ProductsInSubcategories(ctx context.Context, subcategories []string, price *datatypes.PriceRange) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.LastPrice = price
	var ids []string
	seen := make(map[string]bool)
	for _, sc := range subcategories {
		for _, id := range s.ProductsBySubcategory[sc] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (s *fakeStore) AttributesAndKeywords(ctx context.Context, productIDs []string) ([]datatypes.ProductFacts, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	facts := make([]datatypes.ProductFacts, 0, len(productIDs))
	for _, id := range productIDs {
		facts = append(facts, datatypes.ProductFacts{
			ProductID:  id,
			Attributes: []datatypes.AttributeValue{},
			Keywords:   []string{strings.ToLower(id)},
		})
	}
	return facts, nil
}

func (s *fakeStore) ScoreCandidates(ctx context.Context, subcategories, usecases, keywords []string, price *datatypes.PriceRange) ([]datatypes.ScoredProduct, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.LastScoreArgs = [3][]string{subcategories, usecases, keywords}
	s.ScoredPriceCalls = append(s.ScoredPriceCalls, price)
	return s.Scored, nil
}

func (s *fakeStore) Summaries(ctx context.Context, productIDs []string) ([]datatypes.ProductSummary, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]datatypes.ProductSummary, 0, len(productIDs))
	for _, id := range productIDs {
		out = append(out, datatypes.ProductSummary{ProductID: id, Summary: s.SummaryText[id]})
	}
	return out, nil
}

func (s *fakeStore) Titles(ctx context.Context, productIDs []string) ([]string, error) {
	titles := make([]string, len(productIDs))
	for i, id := range productIDs {
		titles[i] = s.TitleText[id]
	}
	return titles, nil
}

func (s *fakeStore) ProductCard(ctx context.Context, productID string) (*datatypes.ProductCard, error) {
	return &datatypes.ProductCard{ProductID: productID, Title: s.TitleText[productID]}, nil
}

func (s *fakeStore) Reviews(ctx context.Context, productID string) ([]datatypes.Review, error) {
	return nil, nil
}
