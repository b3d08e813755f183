// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/assistant/observability"
	"github.com/shopgraph/shopgraph/services/assistant/ranker"
	"github.com/shopgraph/shopgraph/services/assistant/reference"
)

func (o *Orchestrator) greetingsFlow(ctx context.Context, state *datatypes.ConversationState, query string) (string, error) {
	return helpText, nil
}

func (o *Orchestrator) byeFlow(ctx context.Context, state *datatypes.ConversationState, query string) (string, error) {
	return goodbyeText, nil
}

// productSearchFlow extracts the filter, runs the search pipeline, ranks the
// candidates and replaces the session's product list with the kept set.
func (o *Orchestrator) productSearchFlow(ctx context.Context, state *datatypes.ConversationState, query string) (string, error) {
	filter, err := o.deps.Extractor.Extract(ctx, query)
	if err != nil {
		return "", err
	}
	state.Entities = filter

	result, err := o.deps.Searcher.Search(ctx, query, filter)
	if err != nil {
		return "", err
	}
	observability.CandidateCount.WithLabelValues("search").Observe(float64(len(result.ProductIDs)))
	if len(result.ProductIDs) == 0 {
		state.ProductIDs = nil
		return noMatchesText, nil
	}

	list, err := o.deps.Ranker.RankSearch(ctx, ranker.BuildUserQuery(filter), result.Facts)
	if err != nil {
		return "", err
	}
	return o.presentRanked(ctx, state, list)
}

// recommendationFlow extracts the filter, runs the weighted recommendation
// pipeline, ranks the candidates and replaces the session's product list with
// the kept set.
func (o *Orchestrator) recommendationFlow(ctx context.Context, state *datatypes.ConversationState, query string) (string, error) {
	filter, err := o.deps.Extractor.Extract(ctx, query)
	if err != nil {
		return "", err
	}
	state.Entities = filter

	result, err := o.deps.Recommender.Recommend(ctx, query, filter)
	if err != nil {
		return "", err
	}
	observability.CandidateCount.WithLabelValues("recommend").Observe(float64(len(result.ProductIDs)))
	if len(result.ProductIDs) == 0 {
		state.ProductIDs = nil
		return noMatchesText, nil
	}

	list, err := o.deps.Ranker.RankRecommendations(ctx, query, result.Summaries)
	if err != nil {
		return "", err
	}
	return o.presentRanked(ctx, state, list)
}

// presentRanked stores the kept ids as the session's product list and renders
// the display lines. The shown list and the stored list are always the same
// set in the same order, so later references resolve against what the user
// actually saw.
func (o *Orchestrator) presentRanked(ctx context.Context, state *datatypes.ConversationState, list *datatypes.ProductRankingList) (string, error) {
	keptIDs := ranker.KeptIDs(list)
	state.ProductIDs = keptIDs
	if len(keptIDs) == 0 {
		return noMatchesText, nil
	}

	titles, err := o.deps.Catalog.Titles(ctx, keptIDs)
	if err != nil {
		return "", err
	}
	titleByID := make(map[string]string, len(keptIDs))
	for i, id := range keptIDs {
		titleByID[id] = titles[i]
	}
	return ranker.FormatKept(list, titleByID), nil
}

// resolveSingleReference resolves which one product the query refers to,
// falling back to the previously stored index when the fresh resolution finds
// nothing. The resolved index is stored back for the next follow-up.
func (o *Orchestrator) resolveSingleReference(ctx context.Context, state *datatypes.ConversationState, query string) (string, error) {
	if len(state.ProductIDs) == 0 {
		return "", errUnclearReference
	}
	titles, err := o.deps.Catalog.Titles(ctx, state.ProductIDs)
	if err != nil {
		return "", err
	}

	idx, err := o.deps.Resolver.ResolveSingle(ctx, query, state.RecentWindow(reference.HistoryWindow), titles)
	if errors.Is(err, reference.ErrReferenceNotFound) {
		if state.ProductIndex == nil {
			return "", errUnclearReference
		}
		idx = *state.ProductIndex
		// A stored index can go stale when the product list shrank since
		// it was resolved.
		if idx < 0 || idx >= len(state.ProductIDs) {
			return "", errUnclearReference
		}
	} else if err != nil {
		return "", err
	}

	state.ProductIndex = &idx
	return state.ProductIDs[idx], nil
}

// resolveMultipleReference is the comparison counterpart: at least two
// products, falling back to the previously stored indices.
func (o *Orchestrator) resolveMultipleReference(ctx context.Context, state *datatypes.ConversationState, query string) ([]string, error) {
	if len(state.ProductIDs) == 0 {
		return nil, errUnclearReference
	}
	titles, err := o.deps.Catalog.Titles(ctx, state.ProductIDs)
	if err != nil {
		return nil, err
	}

	indices, err := o.deps.Resolver.ResolveMultiple(ctx, query, state.RecentWindow(reference.HistoryWindow), titles)
	if errors.Is(err, reference.ErrReferenceNotFound) {
		if len(state.ProductIndices) < 2 {
			return nil, errUnclearReference
		}
		indices = state.ProductIndices
		for _, idx := range indices {
			if idx < 0 || idx >= len(state.ProductIDs) {
				return nil, errUnclearReference
			}
		}
	} else if err != nil {
		return nil, err
	}

	state.ProductIndices = indices
	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = state.ProductIDs[idx]
	}
	return ids, nil
}

// informationRetrievalFlow answers a question about one referenced product
// from its full catalog card.
func (o *Orchestrator) informationRetrievalFlow(ctx context.Context, state *datatypes.ConversationState, query string) (string, error) {
	productID, err := o.resolveSingleReference(ctx, state, query)
	if err != nil {
		return "", err
	}
	card, err := o.deps.Catalog.ProductCard(ctx, productID)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf("Answer the user query based on the product details provided.\n%s\n%s", formatCard(card), query)
	return o.deps.Answerer.Answer(ctx, prompt)
}

// reviewsFlow answers a question about one referenced product from its
// customer reviews.
func (o *Orchestrator) reviewsFlow(ctx context.Context, state *datatypes.ConversationState, query string) (string, error) {
	productID, err := o.resolveSingleReference(ctx, state, query)
	if err != nil {
		return "", err
	}
	reviews, err := o.deps.Catalog.Reviews(ctx, productID)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf("Answer the user query based on the product reviews provided.\n%s\n%s", formatReviews(reviews), query)
	return o.deps.Answerer.Answer(ctx, prompt)
}

// comparisonFlow compares the referenced products, formatted as a Markdown
// table.
func (o *Orchestrator) comparisonFlow(ctx context.Context, state *datatypes.ConversationState, query string) (string, error) {
	productIDs, err := o.resolveMultipleReference(ctx, state, query)
	if err != nil {
		return "", err
	}
	cards := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		card, err := o.deps.Catalog.ProductCard(ctx, id)
		if err != nil {
			return "", err
		}
		cards = append(cards, formatCard(card))
	}
	prompt := fmt.Sprintf("Compare the products based on the details provided and answer the user query. Format your answer as a Markdown table.\n%s\n%s",
		strings.Join(cards, "\n\n"), query)
	return o.deps.Answerer.Answer(ctx, prompt)
}

func formatCard(card *datatypes.ProductCard) string {
	attrs := make([]string, 0, len(card.Attributes))
	for _, attr := range card.Attributes {
		attrs = append(attrs, fmt.Sprintf("%s: %s", attr.Name, attr.Value))
	}
	return fmt.Sprintf("%s\nRating: %g/5 from %d reviews\n%s\n%s\n%s",
		card.Title, card.AverageRating, card.RatingCount,
		card.Features, card.Description, strings.Join(attrs, "\n"))
}

func formatReviews(reviews []datatypes.Review) string {
	blocks := make([]string, 0, len(reviews))
	for _, review := range reviews {
		blocks = append(blocks, fmt.Sprintf("%s\nRating: %g\n%s", review.Title, review.Rating, review.Text))
	}
	return strings.Join(blocks, "\n\n")
}
