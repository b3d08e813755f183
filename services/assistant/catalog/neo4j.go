// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/assistant/observability"
)

var tracer = otel.Tracer("shopgraph.assistant.catalog")

// Config controls the Neo4j-backed store.
type Config struct {
	// URI is the bolt/neo4j connection string.
	URI string

	// Username and Password authenticate against the database.
	Username string
	Password string

	// Database is the target database name.
	Database string

	// QueryTimeout is the per-query deadline.
	QueryTimeout time.Duration

	// RetryAttempts is how many times a transient failure is retried.
	RetryAttempts int

	// RetryBackoff is the initial backoff between retries; it doubles each
	// attempt.
	RetryBackoff time.Duration
}

// DefaultConfig returns a config suitable for local development, with env
// overrides for the connection settings.
func DefaultConfig() Config {
	cfg := Config{
		URI:           "bolt://localhost:7687",
		Username:      "neo4j",
		Database:      "neo4j",
		QueryTimeout:  10 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  200 * time.Millisecond,
	}
	if v := os.Getenv("NEO4J_URI"); v != "" {
		cfg.URI = v
	}
	if v := os.Getenv("NEO4J_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("NEO4J_DATABASE"); v != "" {
		cfg.Database = v
	}
	return cfg
}

// Validate checks the config for usability.
func (c *Config) Validate() error {
	if c.URI == "" {
		return errors.New("uri must not be empty")
	}
	if c.Database == "" {
		return errors.New("database must not be empty")
	}
	if c.QueryTimeout <= 0 {
		return errors.New("query_timeout must be positive")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry_attempts must be non-negative")
	}
	if c.RetryBackoff < 0 {
		return errors.New("retry_backoff must be non-negative")
	}
	return nil
}

// NeoStore implements Store against a Neo4j property graph.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying driver pools connections.
type NeoStore struct {
	driver neo4j.DriverWithContext
	cfg    Config
}

// NewNeoStore connects a store using the given config.
//
// # Outputs
//
//   - *NeoStore: Connected store. Call Close when done.
//   - error: Non-nil on invalid config or driver construction failure.
func NewNeoStore(cfg Config) (*NeoStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("catalog config: %w", err)
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	slog.Info("Connected catalog store", "uri", cfg.URI, "database", cfg.Database)
	return &NeoStore{driver: driver, cfg: cfg}, nil
}

// Close releases the driver's connection pool.
func (s *NeoStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// run executes one parameter-bound query with bounded retry and returns the
// eager records.
func (s *NeoStore) run(ctx context.Context, name, query string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := s.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", backoff.Milliseconds()),
			))
			slog.Warn("Retrying catalog query", "query", name, "attempt", attempt, "backoff", backoff)
			observability.ExternalRetries.WithLabelValues("neo4j").Inc()
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", datatypes.ErrExternalTimeout, ctx.Err())
			case <-time.After(backoff):
			}
		}

		qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		result, err := neo4j.ExecuteQuery(qctx, s.driver, query, params,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(s.cfg.Database),
			neo4j.ExecuteQueryWithReadersRouting(),
		)
		cancel()
		if err == nil {
			span.SetAttributes(attribute.Int("record_count", len(result.Records)))
			return result.Records, nil
		}

		lastErr = err
		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = fmt.Errorf("%w: %v", datatypes.ErrExternalTimeout, err)
			continue
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		lastErr = fmt.Errorf("%w: %v", datatypes.ErrExternalUnavailable, err)
	}

	span.RecordError(lastErr)
	return nil, fmt.Errorf("%w: %s: %v", ErrStoreQuery, name, lastErr)
}

// EnsureConstraints creates the uniqueness constraints the queries rely on.
// Idempotent via IF NOT EXISTS.
func (s *NeoStore) EnsureConstraints(ctx context.Context) error {
	constraints := []string{
		"CREATE CONSTRAINT product_id_unique IF NOT EXISTS FOR (p:Product) REQUIRE p.product_id IS UNIQUE",
		"CREATE CONSTRAINT subcategory_name_unique IF NOT EXISTS FOR (s:Subcategory) REQUIRE s.name IS UNIQUE",
		"CREATE CONSTRAINT keyword_name_unique IF NOT EXISTS FOR (k:Keyword) REQUIRE k.name IS UNIQUE",
		"CREATE CONSTRAINT usecase_title_unique IF NOT EXISTS FOR (u:UseCase) REQUIRE u.title IS UNIQUE",
	}
	for _, stmt := range constraints {
		if _, err := neo4j.ExecuteQuery(ctx, s.driver, stmt, nil,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(s.cfg.Database),
		); err != nil {
			return fmt.Errorf("%w: ensure constraints: %v", ErrStoreQuery, err)
		}
	}
	slog.Info("Catalog constraints ensured", "count", len(constraints))
	return nil
}

// ProductsInSubcategories implements Store.
func (s *NeoStore) ProductsInSubcategories(ctx context.Context, subcategories []string, price *datatypes.PriceRange) ([]string, error) {
	if len(subcategories) == 0 {
		return nil, nil
	}
	query, params := productsInSubcategoriesQuery(subcategories, price)
	records, err := s.run(ctx, "ProductsInSubcategories", query, params)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if id, ok := recordString(rec, "product_id"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// AttributesAndKeywords implements Store.
func (s *NeoStore) AttributesAndKeywords(ctx context.Context, productIDs []string) ([]datatypes.ProductFacts, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	records, err := s.run(ctx, "AttributesAndKeywords", attributesAndKeywordsQuery, map[string]any{"productIds": productIDs})
	if err != nil {
		return nil, err
	}
	facts := make([]datatypes.ProductFacts, 0, len(records))
	for _, rec := range records {
		id, _ := recordString(rec, "product_id")
		f := datatypes.ProductFacts{
			ProductID:  id,
			Attributes: recordAttributes(rec, "attributes"),
			Keywords:   recordStrings(rec, "keywords"),
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// ScoreCandidates implements Store.
func (s *NeoStore) ScoreCandidates(ctx context.Context, subcategories, usecases, keywords []string, price *datatypes.PriceRange) ([]datatypes.ScoredProduct, error) {
	query, params := scoreCandidatesQuery(subcategories, usecases, keywords, price)
	records, err := s.run(ctx, "ScoreCandidates", query, params)
	if err != nil {
		return nil, err
	}
	scored := make([]datatypes.ScoredProduct, 0, len(records))
	for _, rec := range records {
		id, _ := recordString(rec, "product_id")
		scored = append(scored, datatypes.ScoredProduct{
			ProductID:          id,
			KeywordMatches:     recordInt(rec, "keyword_matches"),
			SubcategoryMatches: recordInt(rec, "subcategory_matches"),
			Score:              recordInt(rec, "score"),
		})
	}
	return scored, nil
}

// Summaries implements Store.
func (s *NeoStore) Summaries(ctx context.Context, productIDs []string) ([]datatypes.ProductSummary, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	records, err := s.run(ctx, "Summaries", summariesQuery, map[string]any{"productIds": productIDs})
	if err != nil {
		return nil, err
	}
	summaries := make([]datatypes.ProductSummary, 0, len(records))
	for _, rec := range records {
		id, _ := recordString(rec, "product_id")
		summary, _ := recordString(rec, "summary")
		summaries = append(summaries, datatypes.ProductSummary{ProductID: id, Summary: summary})
	}
	return summaries, nil
}

// Titles implements Store.
//
// The result is positionally aligned with productIDs so callers can map a
// resolved index straight back to an id.
func (s *NeoStore) Titles(ctx context.Context, productIDs []string) ([]string, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	records, err := s.run(ctx, "Titles", titlesQuery, map[string]any{"productIds": productIDs})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]string, len(records))
	for _, rec := range records {
		id, _ := recordString(rec, "product_id")
		title, _ := recordString(rec, "title")
		byID[id] = title
	}
	titles := make([]string, len(productIDs))
	for i, id := range productIDs {
		titles[i] = byID[id]
	}
	return titles, nil
}

// ProductCard implements Store.
func (s *NeoStore) ProductCard(ctx context.Context, productID string) (*datatypes.ProductCard, error) {
	records, err := s.run(ctx, "ProductCard", productCardQuery, map[string]any{"productId": productID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: product %s not found", ErrStoreQuery, productID)
	}
	rec := records[0]
	title, _ := recordString(rec, "title")
	features, _ := recordString(rec, "features")
	description, _ := recordString(rec, "description")
	return &datatypes.ProductCard{
		ProductID:     productID,
		Title:         title,
		AverageRating: recordFloat(rec, "average_rating"),
		RatingCount:   recordInt(rec, "rating_number"),
		Features:      features,
		Description:   description,
		Attributes:    recordAttributes(rec, "attributes"),
	}, nil
}

// Reviews implements Store.
func (s *NeoStore) Reviews(ctx context.Context, productID string) ([]datatypes.Review, error) {
	records, err := s.run(ctx, "Reviews", reviewsQuery, map[string]any{"productId": productID})
	if err != nil {
		return nil, err
	}
	reviews := make([]datatypes.Review, 0, len(records))
	for _, rec := range records {
		title, _ := recordString(rec, "title")
		text, _ := recordString(rec, "text")
		reviews = append(reviews, datatypes.Review{
			Title:  title,
			Rating: recordFloat(rec, "rating"),
			Text:   text,
		})
	}
	return reviews, nil
}

// Record field helpers. Neo4j returns integers as int64 and collected maps as
// []any of map[string]any; OPTIONAL MATCH can contribute all-null entries that
// must be dropped.

func recordString(rec *neo4j.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func recordInt(rec *neo4j.Record, key string) int {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	if n, ok := v.(int64); ok {
		return int(n)
	}
	return 0
}

func recordFloat(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func recordStrings(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return []string{}
	}
	raw, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func recordAttributes(rec *neo4j.Record, key string) []datatypes.AttributeValue {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return []datatypes.AttributeValue{}
	}
	raw, ok := v.([]any)
	if !ok {
		return []datatypes.AttributeValue{}
	}
	out := make([]datatypes.AttributeValue, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["attribute_name"].(string)
		value, _ := m["attribute_value"].(string)
		if name == "" {
			continue
		}
		out = append(out, datatypes.AttributeValue{Name: name, Value: value})
	}
	return out
}
