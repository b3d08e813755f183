// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ranker produces the final user-facing product list: an LLM ranks
// and explains each candidate, kept items are rendered as linked display
// lines.
package ranker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/llm"
)

var tracer = otel.Tracer("shopgraph.assistant.ranker")

// ErrRankingFormat indicates the model output could not be parsed or
// validated into a ProductRankingList.
var ErrRankingFormat = errors.New("ranking output malformed")

const searchRankingPrompt = `Below is a list of products, with each product containing formatted details such as attributes and keywords.
Please help me analyze each product and rank them based on how well they match my query.
Additionally, provide a brief, conversational explanation for why each product is ranked where it is and how well it meets my needs.
Keep your responses concise.

Return ONLY a JSON object: {"rankings": [{"product_id": "...", "keep": true, "explanation": "..."}, ...]}

<user>%s</user>
<products>%s</products>`

const recommendRankingPrompt = `I want to find some products for my query: "%s".
I have shortlisted some products from my initial search.
<products>%s</products>
Please tell me whether each product is a good match for my query and a short explanation for your answer based on my query.
Return ONLY a JSON object: {"rankings": [{"product_id": "...", "keep": true, "explanation": "..."}, ...]}
Ensure each explanation is concise (2-3 sentences max).`

// Ranker asks the LLM for keep/discard verdicts with explanations and
// renders the kept candidates.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Ranker struct {
	client   llm.Client
	validate *validator.Validate
	timeout  time.Duration
}

// NewRanker creates a ranker over the given LLM client.
func NewRanker(client llm.Client, timeout time.Duration) (*Ranker, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	return &Ranker{
		client:   client,
		validate: validator.New(),
		timeout:  timeout,
	}, nil
}

// RankSearch ranks search candidates described by their attributes and
// keywords.
//
// # Inputs
//
//   - ctx: Context for cancellation; a per-call timeout is applied on top.
//   - userQuery: A reconstructed statement of what the user asked for.
//   - facts: The candidates' joined attributes and keywords.
//
// # Outputs
//
//   - *datatypes.ProductRankingList: Validated verdicts.
//   - error: LLM transport failure or ErrRankingFormat.
func (r *Ranker) RankSearch(ctx context.Context, userQuery string, facts []datatypes.ProductFacts) (*datatypes.ProductRankingList, error) {
	ctx, span := tracer.Start(ctx, "RankSearch")
	defer span.End()
	span.SetAttributes(attribute.Int("candidate_count", len(facts)))

	prompt := fmt.Sprintf(searchRankingPrompt, userQuery, formatFacts(facts))
	return r.rank(ctx, prompt)
}

// RankRecommendations ranks recommendation candidates described by their
// summaries.
func (r *Ranker) RankRecommendations(ctx context.Context, query string, summaries []datatypes.ProductSummary) (*datatypes.ProductRankingList, error) {
	ctx, span := tracer.Start(ctx, "RankRecommendations")
	defer span.End()
	span.SetAttributes(attribute.Int("candidate_count", len(summaries)))

	prompt := fmt.Sprintf(recommendRankingPrompt, query, formatSummaries(summaries))
	return r.rank(ctx, prompt)
}

func (r *Ranker) rank(ctx context.Context, prompt string) (*datatypes.ProductRankingList, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	temp := float32(0.2)
	maxTokens := 2048
	raw, err := r.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("ranking call: %w", err)
	}

	var list datatypes.ProductRankingList
	if err := json.Unmarshal([]byte(stripFences(raw)), &list); err != nil {
		slog.Warn("Ranker output is not valid JSON", "raw_length", len(raw))
		return nil, fmt.Errorf("%w: %v", ErrRankingFormat, err)
	}
	if err := r.validate.Struct(&list); err != nil {
		slog.Warn("Ranker output failed validation", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRankingFormat, err)
	}
	return &list, nil
}

// BuildUserQuery reconstructs a natural statement of the search criteria for
// the ranking prompt.
func BuildUserQuery(filter *datatypes.EntityFilter) string {
	query := fmt.Sprintf("I'm looking for a %s", filter.Category)
	if len(filter.Attributes) > 0 {
		names := make([]string, 0, len(filter.Attributes))
		for name := range filter.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]string, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, fmt.Sprintf("%s=%v", name, filter.Attributes[name]))
		}
		query += " with " + strings.Join(pairs, ";")
	}
	if len(filter.Keywords) > 0 {
		query += " that is " + strings.Join(filter.Keywords, ", ")
	}
	return query
}

// AmazonLink returns the product's marketplace URL.
func AmazonLink(productID string) string {
	return "https://www.amazon.com/dp/" + productID
}

// FormatKept renders the kept rankings as display lines, one per product:
// a Markdown title link followed by the explanation, blank-line separated.
//
// titleByID supplies display titles; products missing from the map fall back
// to the raw id. An empty kept set renders an empty string.
func FormatKept(list *datatypes.ProductRankingList, titleByID map[string]string) string {
	var lines []string
	for _, ranking := range list.Kept() {
		title := titleByID[ranking.ProductID]
		if title == "" {
			title = ranking.ProductID
		}
		lines = append(lines, fmt.Sprintf("[%s](%s): %s", title, AmazonLink(ranking.ProductID), ranking.Explanation))
	}
	return strings.Join(lines, "\n\n")
}

// KeptIDs returns the kept product ids in verdict order.
func KeptIDs(list *datatypes.ProductRankingList) []string {
	kept := list.Kept()
	ids := make([]string, 0, len(kept))
	for _, ranking := range kept {
		ids = append(ids, ranking.ProductID)
	}
	return ids
}

func formatFacts(facts []datatypes.ProductFacts) string {
	blocks := make([]string, 0, len(facts))
	for _, f := range facts {
		pairs := make([]string, 0, len(f.Attributes))
		for _, attr := range f.Attributes {
			pairs = append(pairs, fmt.Sprintf("%s=%s", attr.Name, attr.Value))
		}
		block := fmt.Sprintf("product_id: %s\nattributes: %s\nkeywords: %s",
			f.ProductID, strings.Join(pairs, ";"), strings.Join(f.Keywords, ", "))
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}

func formatSummaries(summaries []datatypes.ProductSummary) string {
	blocks := make([]string, 0, len(summaries))
	for _, s := range summaries {
		blocks = append(blocks, fmt.Sprintf("%s\n%s", s.ProductID, s.Summary))
	}
	return strings.Join(blocks, "\n\n")
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
