// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
)

// RankedDocument is one rerank result: the position of the document in the
// submitted list plus its relevance score.
type RankedDocument struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Reranker reorders candidate documents by relevance to a query.
type Reranker interface {
	// Rerank returns the top-limit documents as (index, score) pairs in
	// descending relevance, where index points into documents.
	Rerank(ctx context.Context, query string, documents []string, limit int) ([]RankedDocument, error)
}

// RerankConfig controls the REST reranker client.
type RerankConfig struct {
	// Endpoint is the rerank API URL.
	Endpoint string

	// APIKey is the bearer token. May be empty for unauthenticated local
	// deployments.
	APIKey string

	// Model is the rerank model name.
	Model string

	// Timeout is the per-call deadline.
	Timeout time.Duration
}

// DefaultRerankConfig returns a config targeting the hosted Jina API, with
// env overrides.
func DefaultRerankConfig() RerankConfig {
	cfg := RerankConfig{
		Endpoint: "https://api.jina.ai/v1/rerank",
		Model:    "jina-reranker-v2-base-multilingual",
		Timeout:  15 * time.Second,
	}
	if v := os.Getenv("RERANK_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("RERANK_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("JINA_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	return cfg
}

// RESTReranker implements Reranker against a Jina-style rerank endpoint.
//
// Request shape: {"model", "query", "top_n", "documents"}; response shape:
// {"results": [{"index", "relevance_score"}, ...]}.
type RESTReranker struct {
	cfg    RerankConfig
	client *http.Client
}

// NewRESTReranker creates a reranker from the config.
func NewRESTReranker(cfg RerankConfig) (*RESTReranker, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint must not be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model must not be empty")
	}
	return &RESTReranker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Rerank implements Reranker.
//
// An empty document list short-circuits to an empty result without a network
// call.
func (r *RESTReranker) Rerank(ctx context.Context, query string, documents []string, limit int) ([]RankedDocument, error) {
	ctx, span := tracer.Start(ctx, "Rerank")
	defer span.End()
	span.SetAttributes(
		attribute.Int("document_count", len(documents)),
		attribute.Int("limit", limit),
	)

	if len(documents) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string]any{
		"model":     r.cfg.Model,
		"query":     query,
		"top_n":     limit,
		"documents": documents,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: rerank: %v", datatypes.ErrExternalTimeout, err)
		}
		return nil, fmt.Errorf("%w: rerank: %v", datatypes.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("Rerank endpoint returned non-OK status", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: rerank status %d", datatypes.ErrExternalUnavailable, resp.StatusCode)
	}

	var out struct {
		Results []RankedDocument `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}

	// Defend against endpoints that ignore top_n or return stray indices.
	ranked := make([]RankedDocument, 0, len(out.Results))
	for _, doc := range out.Results {
		if doc.Index < 0 || doc.Index >= len(documents) {
			continue
		}
		ranked = append(ranked, doc)
		if len(ranked) == limit {
			break
		}
	}
	return ranked, nil
}

var _ Reranker = (*RESTReranker)(nil)
