// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog is the structured read surface over the product property
// graph.
//
// # Description
//
// The graph holds Product, Subcategory, Attribute, Keyword, UseCase, Review
// and PriceRange nodes connected by BELONGS_TO, HAS_ATTRIBUTE, HAS_KEYWORD,
// USED_FOR, AROUND_PRICE and REVIEWS relationships. Every query is
// parameter-bound; no user-derived text is ever spliced into Cypher. The
// package retries transient failures boundedly with exponential backoff and
// wraps terminal failures in ErrStoreQuery.
package catalog

import (
	"context"
	"errors"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
)

// ErrStoreQuery indicates a catalog query failed after exhausting retries.
var ErrStoreQuery = errors.New("catalog query failed")

// Store is the structured read surface consumed by the retrieval pipelines
// and the leaf dialogue flows.
//
// All operations are read-only. Empty result sets are valid outcomes, not
// errors.
type Store interface {
	// ProductsInSubcategories returns the ids of products belonging to any
	// of the named subcategories, optionally constrained by price.
	ProductsInSubcategories(ctx context.Context, subcategories []string, price *datatypes.PriceRange) ([]string, error)

	// AttributesAndKeywords joins attributes and keywords back onto the
	// given products. Products without attributes or keywords still appear,
	// with empty collections.
	AttributesAndKeywords(ctx context.Context, productIDs []string) ([]datatypes.ProductFacts, error)

	// ScoreCandidates expands the subcategory set through USED_FOR edges
	// from the given use cases, then scores every product in the expanded
	// subcategories as 3*keywordMatches + 2*subcategoryMatches, ordered by
	// score DESC, keywordMatches DESC, subcategoryMatches DESC, product id.
	ScoreCandidates(ctx context.Context, subcategories, usecases, keywords []string, price *datatypes.PriceRange) ([]datatypes.ScoredProduct, error)

	// Summaries returns the catalog summary text for each product.
	Summaries(ctx context.Context, productIDs []string) ([]datatypes.ProductSummary, error)

	// Titles returns product titles positionally aligned with productIDs.
	// Products missing from the graph get an empty title at their position.
	Titles(ctx context.Context, productIDs []string) ([]string, error)

	// ProductCard returns the full detail set for one product.
	ProductCard(ctx context.Context, productID string) (*datatypes.ProductCard, error)

	// Reviews returns the customer reviews of one product.
	Reviews(ctx context.Context, productID string) ([]datatypes.Review, error)
}
