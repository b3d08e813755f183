package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/assistant/retrieval"
)

type fakeClassifier struct {
	Intent datatypes.Intent
	Err    error

	mu    sync.Mutex
	Calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, utterance string) (datatypes.Intent, error) {
	f.mu.Lock()
	f.Calls++
	f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	return f.Intent, nil
}

type fakeExtractor struct {
	Filter *datatypes.EntityFilter
	Err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, query string) (*datatypes.EntityFilter, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Filter, nil
}

type fakeResolver struct {
	SingleIdx   int
	SingleErr   error
	MultipleIdx []int
	MultipleErr error

	LastTitles []string
}

func (f *fakeResolver) ResolveSingle(ctx context.Context, query string, history []datatypes.Message, titles []string) (int, error) {
	f.LastTitles = titles
	if f.SingleErr != nil {
		return 0, f.SingleErr
	}
	return f.SingleIdx, nil
}

func (f *fakeResolver) ResolveMultiple(ctx context.Context, query string, history []datatypes.Message, titles []string) ([]int, error) {
	f.LastTitles = titles
	if f.MultipleErr != nil {
		return nil, f.MultipleErr
	}
	return f.MultipleIdx, nil
}

type fakeSearcher struct {
	Result *retrieval.Result
	Err    error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, filter *datatypes.EntityFilter) (*retrieval.Result, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}

type fakeRecommender struct {
	Result *retrieval.RecommendResult
	Err    error
}

func (f *fakeRecommender) Recommend(ctx context.Context, query string, filter *datatypes.EntityFilter) (*retrieval.RecommendResult, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}

type fakeRanker struct {
	List *datatypes.ProductRankingList
	Err  error
}

func (f *fakeRanker) RankSearch(ctx context.Context, userQuery string, facts []datatypes.ProductFacts) (*datatypes.ProductRankingList, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.List, nil
}

func (f *fakeRanker) RankRecommendations(ctx context.Context, query string, summaries []datatypes.ProductSummary) (*datatypes.ProductRankingList, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.List, nil
}

type fakeAnswerer struct {
	Reply   string
	Err     error
	Prompts []string
}

func (f *fakeAnswerer) Answer(ctx context.Context, prompt string) (string, error) {
	f.Prompts = append(f.Prompts, prompt)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Reply, nil
}

// fakeCatalog implements catalog.Store; the orchestrator uses Titles,
// ProductCard and Reviews.
type fakeCatalog struct {
	TitleByID   map[string]string
	CardByID    map[string]*datatypes.ProductCard
	ReviewsByID map[string][]datatypes.Review
	Err         error
}

func (f *fakeCatalog) ProductsInSubcategories(ctx context.Context, subcategories []string, price *datatypes.PriceRange) ([]string, error) {
	return nil, nil
}

func (f *fakeCatalog) AttributesAndKeywords(ctx context.Context, productIDs []string) ([]datatypes.ProductFacts, error) {
	return nil, nil
}

func (f *fakeCatalog) ScoreCandidates(ctx context.Context, subcategories, usecases, keywords []string, price *datatypes.PriceRange) ([]datatypes.ScoredProduct, error) {
	return nil, nil
}

func (f *fakeCatalog) Summaries(ctx context.Context, productIDs []string) ([]datatypes.ProductSummary, error) {
	return nil, nil
}

func (f *fakeCatalog) Titles(ctx context.Context, productIDs []string) ([]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	titles := make([]string, len(productIDs))
	for i, id := range productIDs {
		titles[i] = f.TitleByID[id]
	}
	return titles, nil
}

func (f *fakeCatalog) ProductCard(ctx context.Context, productID string) (*datatypes.ProductCard, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	card, ok := f.CardByID[productID]
	if !ok {
		return nil, fmt.Errorf("no card fixture for %s", productID)
	}
	return card, nil
}

func (f *fakeCatalog) Reviews(ctx context.Context, productID string) ([]datatypes.Review, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.ReviewsByID[productID], nil
}
