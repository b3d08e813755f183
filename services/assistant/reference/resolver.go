// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reference resolves anaphoric product mentions ("the first one",
// "compare those two") against the products most recently shown to the user.
package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/llm"
)

var tracer = otel.Tracer("shopgraph.assistant.reference")

// ErrReferenceNotFound indicates no product reference could be resolved from
// the current query, and the caller holds no prior reference to fall back on.
var ErrReferenceNotFound = errors.New("product reference not found")

// HistoryWindow is how many messages preceding the current query are shown to
// the resolver. Wide enough to cover the most recent product listing plus a
// follow-up exchange.
const HistoryWindow = 4

const singlePrompt = `<context>
You resolve which single product a shopper is referring to. The products most
recently shown are listed below in order; positions are zero-based.
</context>
<products>
%s</products>
<history>
%s</history>
<instructions>
Read the query and return ONLY a JSON object: {"product_index": n}
where n is the zero-based position of the referenced product.
If the query does not reference any listed product, return {"product_index": -1}.
</instructions>

<query>%s</query>`

const multiplePrompt = `<context>
You resolve which products a shopper wants to compare. The products most
recently shown are listed below in order; positions are zero-based.
</context>
<products>
%s</products>
<history>
%s</history>
<instructions>
Read the query and return ONLY a JSON object: {"product_indices": [n, m, ...]}
listing the zero-based positions of every referenced product.
If the query does not reference any listed product, return {"product_indices": []}.
</instructions>

<query>%s</query>`

// Resolver maps follow-up queries onto positions in the last shown product
// list.
//
// # Description
//
// Both operations hand the LLM the product titles, a short history window and
// the query, and parse a small JSON object back. A resolved index must be in
// range for the current product list; out-of-range output is treated the same
// as "no reference". Fallback to a previously stored index is the caller's
// decision, so the absence of a fresh reference is reported as
// ErrReferenceNotFound rather than silently reusing state.
type Resolver struct {
	client  llm.Client
	timeout time.Duration
}

// NewResolver creates a resolver over the given LLM client.
func NewResolver(client llm.Client, timeout time.Duration) (*Resolver, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	return &Resolver{client: client, timeout: timeout}, nil
}

// ResolveSingle resolves the one product the query refers to.
//
// # Inputs
//
//   - ctx: Context for cancellation; a per-call timeout is applied on top.
//   - query: The current user message.
//   - history: Messages preceding the query, typically
//     state.RecentWindow(HistoryWindow).
//   - titles: Titles of the products last shown, positionally aligned with
//     the session's product identifiers.
//
// # Outputs
//
//   - int: Zero-based index into titles.
//   - error: ErrReferenceNotFound when the model reports no reference or an
//     out-of-range index, or a transport/format failure.
func (r *Resolver) ResolveSingle(ctx context.Context, query string, history []datatypes.Message, titles []string) (int, error) {
	ctx, span := tracer.Start(ctx, "ResolveSingle")
	defer span.End()
	span.SetAttributes(attribute.Int("listed_products", len(titles)))

	if len(titles) == 0 {
		return 0, fmt.Errorf("%w: no products have been shown", ErrReferenceNotFound)
	}

	raw, err := r.generate(ctx, fmt.Sprintf(singlePrompt, formatTitles(titles), formatHistory(history), query))
	if err != nil {
		return 0, err
	}

	var out struct {
		ProductIndex *int `json:"product_index"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil || out.ProductIndex == nil {
		slog.Warn("Reference resolver output unparseable", "raw_length", len(raw))
		return 0, fmt.Errorf("%w: unparseable resolver output", ErrReferenceNotFound)
	}
	idx := *out.ProductIndex
	if idx < 0 || idx >= len(titles) {
		return 0, fmt.Errorf("%w: index %d outside shown products", ErrReferenceNotFound, idx)
	}
	span.SetAttributes(attribute.Int("resolved_index", idx))
	return idx, nil
}

// ResolveMultiple resolves the set of products a comparison query refers to.
//
// At least two in-range indices are required; fewer is ErrReferenceNotFound
// because a comparison of one product is not answerable. Duplicates are
// dropped, order of first mention is kept.
func (r *Resolver) ResolveMultiple(ctx context.Context, query string, history []datatypes.Message, titles []string) ([]int, error) {
	ctx, span := tracer.Start(ctx, "ResolveMultiple")
	defer span.End()
	span.SetAttributes(attribute.Int("listed_products", len(titles)))

	if len(titles) == 0 {
		return nil, fmt.Errorf("%w: no products have been shown", ErrReferenceNotFound)
	}

	raw, err := r.generate(ctx, fmt.Sprintf(multiplePrompt, formatTitles(titles), formatHistory(history), query))
	if err != nil {
		return nil, err
	}

	var out struct {
		ProductIndices []int `json:"product_indices"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		slog.Warn("Reference resolver output unparseable", "raw_length", len(raw))
		return nil, fmt.Errorf("%w: unparseable resolver output", ErrReferenceNotFound)
	}

	seen := make(map[int]bool, len(out.ProductIndices))
	var indices []int
	for _, idx := range out.ProductIndices {
		if idx < 0 || idx >= len(titles) || seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	if len(indices) < 2 {
		return nil, fmt.Errorf("%w: %d resolvable products, need at least 2", ErrReferenceNotFound, len(indices))
	}
	span.SetAttributes(attribute.Int("resolved_count", len(indices)))
	return indices, nil
}

func (r *Resolver) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	temp := float32(0.0)
	maxTokens := 128
	raw, err := r.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("reference resolution call: %w", err)
	}
	return raw, nil
}

func formatTitles(titles []string) string {
	var b strings.Builder
	for i, title := range titles {
		fmt.Fprintf(&b, "%d. %s\n", i, title)
	}
	return b.String()
}

func formatHistory(history []datatypes.Message) string {
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
	}
	return b.String()
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
