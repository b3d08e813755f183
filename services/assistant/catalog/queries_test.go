package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
)

func f64(v float64) *float64 { return &v }

func TestProductsInSubcategoriesQuery_NoPrice(t *testing.T) {
	query, params := productsInSubcategoriesQuery([]string{"Shampoo", "Conditioner"}, nil)

	assert.Contains(t, query, "sc.name IN $subcategories")
	assert.Equal(t, []string{"Shampoo", "Conditioner"}, params["subcategories"])
	assert.NotContains(t, query, "p.price")
	assert.NotContains(t, query, "AROUND_PRICE")
}

func TestProductsInSubcategoriesQuery_LtPrice(t *testing.T) {
	query, params := productsInSubcategoriesQuery([]string{"Shampoo"},
		&datatypes.PriceRange{Lt: f64(20)})

	assert.Contains(t, query, "p.price < $maxPrice")
	assert.Equal(t, 20.0, params["maxPrice"])
	assert.NotContains(t, query, "AROUND_PRICE")
}

func TestProductsInSubcategoriesQuery_AroundPrice(t *testing.T) {
	query, params := productsInSubcategoriesQuery([]string{"Shampoo"},
		&datatypes.PriceRange{Around: f64(15)})

	assert.Contains(t, query, "AROUND_PRICE")
	assert.Contains(t, query, "$targetPrice >= pr.lower_limit AND $targetPrice <= pr.upper_limit")
	assert.Equal(t, 15.0, params["targetPrice"])
	assert.NotContains(t, query, "p.price <")
}

func TestProductsInSubcategoriesQuery_LtWinsOverAround(t *testing.T) {
	query, params := productsInSubcategoriesQuery([]string{"Shampoo"},
		&datatypes.PriceRange{Lt: f64(20), Around: f64(15)})

	assert.Contains(t, query, "p.price < $maxPrice")
	assert.Equal(t, 20.0, params["maxPrice"])
	assert.NotContains(t, query, "AROUND_PRICE")
	assert.NotContains(t, params, "targetPrice")
}

func TestQueries_NeverInlineValues(t *testing.T) {
	// A subcategory name containing Cypher metacharacters must only ever
	// appear in the parameter map, never in the query text.
	hostile := `"] RETURN p // `
	query, params := productsInSubcategoriesQuery([]string{hostile}, &datatypes.PriceRange{Lt: f64(10)})
	assert.NotContains(t, query, hostile)
	assert.Equal(t, []string{hostile}, params["subcategories"])

	query, params = scoreCandidatesQuery([]string{hostile}, []string{hostile}, []string{hostile}, nil)
	assert.NotContains(t, query, hostile)
	assert.Equal(t, []string{hostile}, params["keywords"])
}

func TestScoreCandidatesQuery_Shape(t *testing.T) {
	query, params := scoreCandidatesQuery(
		[]string{"Shampoo"},
		[]string{"frizz control"},
		[]string{"sulfate-free", "color-safe"},
		nil,
	)

	assert.Contains(t, query, "(u:UseCase)-[:USED_FOR]->(s:Subcategory)")
	assert.Contains(t, query, "u.title IN $usecases")
	assert.Contains(t, query, "COLLECT(DISTINCT s.name) + $subcategories")
	assert.Contains(t, query, "k.name IN $keywords")
	assert.Contains(t, query, "(keyword_matches * 3 + subcategory_matches * 2) AS score")
	assert.Contains(t, query, "ORDER BY score DESC, keyword_matches DESC, subcategory_matches DESC, product_id")
	assert.Equal(t, []string{"sulfate-free", "color-safe"}, params["keywords"])
}

func TestScoreCandidatesQuery_PriceVariants(t *testing.T) {
	query, params := scoreCandidatesQuery(nil, nil, nil, &datatypes.PriceRange{Lt: f64(30)})
	assert.Contains(t, query, "p.price < $maxPrice")
	assert.Equal(t, 30.0, params["maxPrice"])

	query, params = scoreCandidatesQuery(nil, nil, nil, &datatypes.PriceRange{Around: f64(25)})
	assert.Contains(t, query, "AROUND_PRICE")
	assert.Equal(t, 25.0, params["targetPrice"])

	// The price clause must come after the aggregation so match counts are
	// unaffected by the filter.
	aggIdx := strings.Index(query, "subcategory_matches\n")
	priceIdx := strings.Index(query, "AROUND_PRICE")
	require.Greater(t, priceIdx, aggIdx)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"empty uri", func(c *Config) { c.URI = "" }, true},
		{"empty database", func(c *Config) { c.Database = "" }, true},
		{"zero timeout", func(c *Config) { c.QueryTimeout = 0 }, true},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, true},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
