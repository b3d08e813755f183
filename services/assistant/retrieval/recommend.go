// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shopgraph/shopgraph/services/assistant/catalog"
	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/assistant/search"
)

// RecommenderConfig tunes the recommendation pipeline.
type RecommenderConfig struct {
	// SubcategoryLimit caps direct subcategory expansion hits.
	SubcategoryLimit int

	// SubcategoryThreshold is the minimum subcategory match score.
	SubcategoryThreshold float64

	// UseCaseLimit caps the use-case retrieval stage.
	UseCaseLimit int

	// UseCaseThreshold is the minimum use-case match score.
	UseCaseThreshold float64

	// UseCaseRerankLimit caps the use cases kept after reranking.
	UseCaseRerankLimit int

	// KeywordLimit caps expansion hits per query keyword.
	KeywordLimit int

	// KeywordThreshold is the minimum keyword match score.
	KeywordThreshold float64

	// MaxProducts caps the final candidate list.
	MaxProducts int
}

// DefaultRecommenderConfig returns the tuned pipeline parameters.
func DefaultRecommenderConfig() RecommenderConfig {
	return RecommenderConfig{
		SubcategoryLimit:     2,
		SubcategoryThreshold: 0.9,
		UseCaseLimit:         20,
		UseCaseThreshold:     0.9,
		UseCaseRerankLimit:   5,
		KeywordLimit:         5,
		KeywordThreshold:     0.9,
		MaxProducts:          10,
	}
}

// Recommender runs the weighted recommendation pipeline.
//
// # Description
//
// Three read-only semantic expansions feed one weighted graph query:
// subcategories from the category, use cases from the full query (retrieved
// wide then reranked narrow), and keywords expanded per query keyword. The
// expansions are independent and run concurrently; the result is identical to
// running them sequentially. Scored candidates above the lowest score tier
// are kept, capped at MaxProducts; a short list is backfilled from the
// lowest tier by summary retrieve-and-rerank.
type Recommender struct {
	store     catalog.Store
	subcats   search.Searcher
	usecases  search.Searcher
	keywords  search.Searcher
	retriever *Retriever
	reranker  search.Reranker
	cfg       RecommenderConfig
}

// NewRecommender wires the pipeline dependencies. The retriever supplies the
// backfill retrieve-and-rerank stage.
func NewRecommender(store catalog.Store, subcats, usecases, keywords search.Searcher, reranker search.Reranker, retriever *Retriever, cfg RecommenderConfig) (*Recommender, error) {
	if store == nil || subcats == nil || usecases == nil || keywords == nil || reranker == nil || retriever == nil {
		return nil, fmt.Errorf("all pipeline dependencies must be non-nil")
	}
	return &Recommender{
		store:     store,
		subcats:   subcats,
		usecases:  usecases,
		keywords:  keywords,
		reranker:  reranker,
		retriever: retriever,
		cfg:       cfg,
	}, nil
}

// RecommendResult is the outcome of the recommendation pipeline: the final
// candidate ids plus their summaries for the ranking prompt.
type RecommendResult struct {
	ProductIDs []string
	Summaries  []datatypes.ProductSummary
}

// Recommend runs the pipeline for a query and its extracted filter.
func (r *Recommender) Recommend(ctx context.Context, query string, filter *datatypes.EntityFilter) (*RecommendResult, error) {
	ctx, span := tracer.Start(ctx, "Recommend")
	defer span.End()

	// Concrete attributes become keyword terms before expansion so they
	// contribute to the weighted match counts.
	queryKeywords := foldAttributes(filter)

	var (
		subcategories []string
		usecases      []string
		expandedKW    []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subcategories, err = r.expandSubcategories(gctx, filter.Category)
		return err
	})
	g.Go(func() error {
		var err error
		usecases, err = r.expandUseCases(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		expandedKW, err = r.expandKeywords(gctx, queryKeywords)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("subcategories", len(subcategories)),
		attribute.Int("usecases", len(usecases)),
		attribute.Int("expanded_keywords", len(expandedKW)),
	)

	scored, err := r.store.ScoreCandidates(ctx, subcategories, usecases, expandedKW, filter.PriceRange)
	if err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}
	if len(scored) == 0 {
		span.SetAttributes(attribute.String("empty_stage", "scoring"))
		return &RecommendResult{}, nil
	}

	finalIDs, err := r.selectCandidates(ctx, query, scored)
	if err != nil {
		return nil, err
	}
	if len(finalIDs) == 0 {
		span.SetAttributes(attribute.String("empty_stage", "selection"))
		return &RecommendResult{}, nil
	}

	summaries, err := r.store.Summaries(ctx, finalIDs)
	if err != nil {
		return nil, fmt.Errorf("join summaries: %w", err)
	}
	span.SetAttributes(attribute.Int("final_candidates", len(finalIDs)))
	return &RecommendResult{ProductIDs: finalIDs, Summaries: summaries}, nil
}

// selectCandidates keeps every candidate scoring above the lowest tier, caps
// the list, and backfills a short list from the lowest tier by summary
// retrieve-and-rerank.
func (r *Recommender) selectCandidates(ctx context.Context, query string, scored []datatypes.ScoredProduct) ([]string, error) {
	minScore := scored[0].Score
	for _, sp := range scored {
		if sp.Score < minScore {
			minScore = sp.Score
		}
	}

	var relevant []string
	for _, sp := range scored {
		if sp.Score > minScore {
			relevant = append(relevant, sp.ProductID)
		}
	}
	if len(relevant) > r.cfg.MaxProducts {
		relevant = relevant[:r.cfg.MaxProducts]
	}

	needed := r.cfg.MaxProducts - len(relevant)
	if needed <= 0 {
		return relevant, nil
	}

	var floorTier []string
	for _, sp := range scored {
		if sp.Score == minScore {
			floorTier = append(floorTier, sp.ProductID)
		}
	}
	backfill, err := r.retriever.RetrieveAndRerank(ctx, query, floorTier, needed)
	if err != nil {
		return nil, fmt.Errorf("backfill candidates: %w", err)
	}
	return append(relevant, backfill...), nil
}

func (r *Recommender) expandSubcategories(ctx context.Context, category string) ([]string, error) {
	hits, err := r.subcats.Search(ctx, category, search.Options{
		Limit:          r.cfg.SubcategoryLimit,
		ScoreThreshold: r.cfg.SubcategoryThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("expand subcategories: %w", err)
	}
	out := make([]string, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hit.Document)
	}
	return out, nil
}

// expandUseCases retrieves wide against the full query then reranks narrow,
// keeping only the most relevant use-case phrasings.
func (r *Recommender) expandUseCases(ctx context.Context, query string) ([]string, error) {
	hits, err := r.usecases.Search(ctx, query, search.Options{
		Limit:          r.cfg.UseCaseLimit,
		ScoreThreshold: r.cfg.UseCaseThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("expand use cases: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	documents := make([]string, len(hits))
	for i, hit := range hits {
		documents[i] = hit.Document
	}
	ranked, err := r.reranker.Rerank(ctx, query, documents, r.cfg.UseCaseRerankLimit)
	if err != nil {
		return nil, fmt.Errorf("rerank use cases: %w", err)
	}
	out := make([]string, 0, len(ranked))
	for _, doc := range ranked {
		out = append(out, documents[doc.Index])
	}
	return out, nil
}

// expandKeywords searches the keyword collection per query keyword and unions
// the hits, preserving first-mention order for determinism.
func (r *Recommender) expandKeywords(ctx context.Context, queryKeywords []string) ([]string, error) {
	perKeyword := make([][]string, len(queryKeywords))

	g, gctx := errgroup.WithContext(ctx)
	for i, kw := range queryKeywords {
		g.Go(func() error {
			hits, err := r.keywords.Search(gctx, kw, search.Options{
				Limit:          r.cfg.KeywordLimit,
				ScoreThreshold: r.cfg.KeywordThreshold,
			})
			if err != nil {
				return fmt.Errorf("expand keyword %q: %w", kw, err)
			}
			expanded := make([]string, 0, len(hits))
			for _, hit := range hits {
				expanded = append(expanded, hit.Document)
			}
			perKeyword[i] = expanded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var union []string
	for _, expanded := range perKeyword {
		for _, kw := range expanded {
			if seen[kw] {
				continue
			}
			seen[kw] = true
			union = append(union, kw)
		}
	}
	return union, nil
}

// foldAttributes returns the filter's keywords with each attribute appended
// as a "name:value" term. The filter itself is not mutated.
func foldAttributes(filter *datatypes.EntityFilter) []string {
	keywords := append([]string(nil), filter.Keywords...)
	names := make([]string, 0, len(filter.Attributes))
	for name := range filter.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		keywords = append(keywords, fmt.Sprintf("%s:%v", name, filter.Attributes[name]))
	}
	return keywords
}
