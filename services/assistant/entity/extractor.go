// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package entity turns a free-text product query into a structured
// EntityFilter via LLM structured output.
package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/llm"
)

var tracer = otel.Tracer("shopgraph.assistant.entity")

const extractionPrompt = `<context>
You extract structured product filters from shopping queries.
</context>
<schema>
{
  "category": "string, the head product term, singular, lowercase",
  "attributes": {"name": "value pairs for concrete product attributes such as SPF, volume, scent"},
  "price_range": {"lt": "number, set when the user says under/below/less than X", "around": "number, set when the user names an approximate price"},
  "keywords": ["descriptive terms from the query, excluding the head term"]
}
</schema>
<instructions>
Return ONLY a JSON object matching the schema. Omit attributes and price_range
when the query carries none. keywords must always be present, possibly empty.
Do not invent filters the user did not state.
</instructions>

<query>%s</query>`

// Extractor parses a product query into an EntityFilter.
//
// # Description
//
// A single LLM call with a JSON schema prompt, parsed and validated locally.
// Parse and validation failures surface as ErrExtractionFormat and are not
// retried here; the orchestrator owns the retry policy for the turn.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Extractor struct {
	client   llm.Client
	validate *validator.Validate
	timeout  time.Duration
}

// NewExtractor creates an extractor over the given LLM client.
func NewExtractor(client llm.Client, timeout time.Duration) (*Extractor, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	return &Extractor{
		client:   client,
		validate: validator.New(),
		timeout:  timeout,
	}, nil
}

// Extract returns the structured filter for the query.
//
// # Inputs
//
//   - ctx: Context for cancellation; a per-call timeout is applied on top.
//   - query: The raw user query, typically a product_search or
//     recommendation utterance.
//
// # Outputs
//
//   - *datatypes.EntityFilter: Validated filter. Keywords is never nil.
//   - error: LLM transport failure or ErrExtractionFormat.
func (e *Extractor) Extract(ctx context.Context, query string) (*datatypes.EntityFilter, error) {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	temp := float32(0.0)
	maxTokens := 512
	raw, err := e.client.Generate(ctx, fmt.Sprintf(extractionPrompt, query), llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	var filter datatypes.EntityFilter
	if err := json.Unmarshal([]byte(stripFences(raw)), &filter); err != nil {
		slog.Warn("Extractor output is not valid JSON", "raw_length", len(raw))
		return nil, fmt.Errorf("%w: %v", ErrExtractionFormat, err)
	}
	if err := e.validate.Struct(&filter); err != nil {
		slog.Warn("Extractor output failed validation", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExtractionFormat, err)
	}
	if filter.Keywords == nil {
		filter.Keywords = []string{}
	}

	span.SetAttributes(
		attribute.String("category", filter.Category),
		attribute.Int("keyword_count", len(filter.Keywords)),
	)
	return &filter, nil
}

// stripFences removes a surrounding markdown code fence, if present. Models
// often wrap JSON output even when told not to.
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
