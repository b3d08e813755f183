// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval composes the semantic and structured surfaces into the
// candidate pipelines: filtered product search and weighted recommendation.
package retrieval

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopgraph/shopgraph/services/assistant/catalog"
	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/assistant/search"
)

var tracer = otel.Tracer("shopgraph.assistant.retrieval")

// RetrieverConfig tunes the product search pipeline.
type RetrieverConfig struct {
	// SubcategoryLimit caps subcategory resolution hits.
	SubcategoryLimit int

	// SubcategoryThreshold is the minimum subcategory match score.
	SubcategoryThreshold float64

	// RetrieveLimit caps the summary retrieval stage.
	RetrieveLimit int

	// RetrieveThreshold is the minimum summary match score.
	RetrieveThreshold float64

	// RerankLimit caps the final reranked candidate list.
	RerankLimit int
}

// DefaultRetrieverConfig returns the tuned pipeline parameters.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		SubcategoryLimit:     3,
		SubcategoryThreshold: 0.9,
		RetrieveLimit:        20,
		RetrieveThreshold:    0.9,
		RerankLimit:          10,
	}
}

// Retriever runs the filtered product search pipeline.
//
// # Description
//
// The stages run in strict order: resolve the category to catalog
// subcategories semantically, filter the graph down to products in those
// subcategories (honoring the price constraint), retrieve the best summary
// matches restricted to that id set, rerank, and join attributes and keywords
// back onto the final candidates. An empty result at any stage short-circuits
// to an empty outcome; it is never an error.
type Retriever struct {
	store         catalog.Store
	subcategories search.Searcher
	summaries     search.Searcher
	reranker      search.Reranker
	cfg           RetrieverConfig
}

// NewRetriever wires the pipeline dependencies.
func NewRetriever(store catalog.Store, subcategories, summaries search.Searcher, reranker search.Reranker, cfg RetrieverConfig) (*Retriever, error) {
	if store == nil || subcategories == nil || summaries == nil || reranker == nil {
		return nil, fmt.Errorf("all pipeline dependencies must be non-nil")
	}
	return &Retriever{
		store:         store,
		subcategories: subcategories,
		summaries:     summaries,
		reranker:      reranker,
		cfg:           cfg,
	}, nil
}

// Result is the outcome of the search pipeline: the final candidate ids in
// rerank order plus their joined facts for the ranking prompt.
type Result struct {
	ProductIDs []string
	Facts      []datatypes.ProductFacts
}

// Search runs the pipeline for a query and its extracted filter.
func (r *Retriever) Search(ctx context.Context, query string, filter *datatypes.EntityFilter) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	subcatHits, err := r.subcategories.Search(ctx, filter.Category, search.Options{
		Limit:          r.cfg.SubcategoryLimit,
		ScoreThreshold: r.cfg.SubcategoryThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve subcategories: %w", err)
	}
	if len(subcatHits) == 0 {
		span.SetAttributes(attribute.String("empty_stage", "subcategories"))
		return &Result{}, nil
	}

	subcategories := make([]string, 0, len(subcatHits))
	for _, hit := range subcatHits {
		subcategories = append(subcategories, hit.Document)
	}

	candidateIDs, err := r.store.ProductsInSubcategories(ctx, subcategories, filter.PriceRange)
	if err != nil {
		return nil, fmt.Errorf("filter products: %w", err)
	}
	if len(candidateIDs) == 0 {
		span.SetAttributes(attribute.String("empty_stage", "graph_filter"))
		return &Result{}, nil
	}
	span.SetAttributes(attribute.Int("graph_candidates", len(candidateIDs)))

	finalIDs, err := r.RetrieveAndRerank(ctx, query, candidateIDs, r.cfg.RerankLimit)
	if err != nil {
		return nil, err
	}
	if len(finalIDs) == 0 {
		span.SetAttributes(attribute.String("empty_stage", "rerank"))
		return &Result{}, nil
	}

	facts, err := r.store.AttributesAndKeywords(ctx, finalIDs)
	if err != nil {
		return nil, fmt.Errorf("join product facts: %w", err)
	}
	span.SetAttributes(attribute.Int("final_candidates", len(finalIDs)))
	return &Result{ProductIDs: finalIDs, Facts: facts}, nil
}

// RetrieveAndRerank retrieves the best summary matches restricted to the
// given product ids, then reranks the matched documents and maps the surviving
// positions back to product ids.
//
// # Outputs
//
//   - []string: Up to limit product ids in descending rerank relevance.
//     Possibly empty.
//   - error: Search or rerank failure.
func (r *Retriever) RetrieveAndRerank(ctx context.Context, query string, productIDs []string, limit int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "RetrieveAndRerank")
	defer span.End()
	span.SetAttributes(attribute.Int("restricted_to", len(productIDs)))

	if len(productIDs) == 0 {
		return nil, nil
	}

	hits, err := r.summaries.Search(ctx, query, search.Options{
		Limit:          r.cfg.RetrieveLimit,
		ScoreThreshold: r.cfg.RetrieveThreshold,
		RestrictIDs:    productIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve summaries: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	documents := make([]string, len(hits))
	retrievedIDs := make([]string, len(hits))
	for i, hit := range hits {
		documents[i] = hit.Document
		retrievedIDs[i] = hit.ProductID
	}

	ranked, err := r.reranker.Rerank(ctx, query, documents, limit)
	if err != nil {
		return nil, fmt.Errorf("rerank summaries: %w", err)
	}

	finalIDs := make([]string, 0, len(ranked))
	for _, doc := range ranked {
		finalIDs = append(finalIDs, retrievedIDs[doc.Index])
	}
	span.SetAttributes(attribute.Int("reranked", len(finalIDs)))
	return finalIDs, nil
}
