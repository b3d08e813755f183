// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search is the semantic surface over the catalog: hybrid search per
// collection backed by Weaviate, plus a REST reranker.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
)

var tracer = otel.Tracer("shopgraph.assistant.search")

// Collection class names in the vector store. Each object carries a
// "document" text property; ClassSummary objects additionally carry the
// owning "product_id".
const (
	ClassSubcategory = "Subcategory"
	ClassSummary     = "Summary"
	ClassUseCase     = "UseCase"
	ClassKeyword     = "Keyword"
)

// Hit is one semantic search result.
type Hit struct {
	// Document is the indexed text of the hit.
	Document string

	// ProductID is the owning product, set only for collections whose
	// objects carry one (summaries).
	ProductID string

	// Score is the hybrid relevance score reported by the store.
	Score float64
}

// Options shape a single search call.
type Options struct {
	// Limit caps the number of hits returned.
	Limit int

	// ScoreThreshold drops hits scoring strictly below it.
	ScoreThreshold float64

	// RestrictIDs, when non-empty, keeps only hits whose product_id is in
	// the set.
	RestrictIDs []string
}

// Searcher performs hybrid semantic search over one collection.
type Searcher interface {
	Search(ctx context.Context, text string, opts Options) ([]Hit, error)
}

// HybridSearcher implements Searcher against a Weaviate class.
//
// # Thread Safety
//
// Safe for concurrent use.
type HybridSearcher struct {
	client    *weaviate.Client
	className string
	timeout   time.Duration
}

// NewHybridSearcher creates a searcher over one collection class.
func NewHybridSearcher(client *weaviate.Client, className string, timeout time.Duration) (*HybridSearcher, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	if className == "" {
		return nil, fmt.Errorf("class name must not be empty")
	}
	return &HybridSearcher{client: client, className: className, timeout: timeout}, nil
}

// searchResult is the typed shape of the GraphQL Get response. The outer key
// is the class name, resolved dynamically below.
type searchObject struct {
	Document   string `json:"document"`
	ProductID  string `json:"product_id"`
	Additional struct {
		Score string `json:"score"`
	} `json:"_additional"`
}

// Search implements Searcher.
//
// # Description
//
// Issues a hybrid (BM25 + vector) query against the class, optionally
// restricted to a product id set via a ContainsAny filter, and applies the
// score threshold client-side: Weaviate reports the hybrid score in
// _additional but does not filter on it server-side.
//
// # Outputs
//
//   - []Hit: Hits at or above the threshold, in store order. Possibly empty;
//     an empty result is not an error.
//   - error: Wrapped datatypes.ErrExternalTimeout / ErrExternalUnavailable.
func (h *HybridSearcher) Search(ctx context.Context, text string, opts Options) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("class", h.className),
		attribute.Int("limit", opts.Limit),
	)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	hybrid := h.client.GraphQL().HybridArgumentBuilder().WithQuery(text)

	query := h.client.GraphQL().Get().
		WithClassName(h.className).
		WithFields(
			graphql.Field{Name: "document"},
			graphql.Field{Name: "product_id"},
			graphql.Field{Name: "_additional { score }"},
		).
		WithHybrid(hybrid).
		WithLimit(opts.Limit)

	if len(opts.RestrictIDs) > 0 {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"product_id"}).
			WithOperator(filters.ContainsAny).
			WithValueText(opts.RestrictIDs...))
	}

	resp, err := query.Do(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: hybrid search on %s: %v", datatypes.ErrExternalTimeout, h.className, err)
		}
		return nil, fmt.Errorf("%w: hybrid search on %s: %v", datatypes.ErrExternalUnavailable, h.className, err)
	}

	// The Get payload nests objects under {"Get": {"<Class>": [...]}}.
	parsed, err := datatypes.ParseGraphQLResponse[map[string]map[string][]searchObject](resp)
	if err != nil {
		return nil, fmt.Errorf("parse hybrid search response: %w", err)
	}
	objects := (*parsed)["Get"][h.className]

	hits := make([]Hit, 0, len(objects))
	for _, obj := range objects {
		score, err := strconv.ParseFloat(obj.Additional.Score, 64)
		if err != nil {
			slog.Warn("Unparseable hybrid score, dropping hit", "class", h.className, "score", obj.Additional.Score)
			continue
		}
		if score < opts.ScoreThreshold {
			continue
		}
		hits = append(hits, Hit{Document: obj.Document, ProductID: obj.ProductID, Score: score})
	}
	span.SetAttributes(attribute.Int("hit_count", len(hits)))
	return hits, nil
}

var _ Searcher = (*HybridSearcher)(nil)
