package datatypes

// AttributeValue is one attribute name/value pair attached to a product.
type AttributeValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProductFacts carries the attributes and keywords joined back from the
// catalog for a final candidate, used when building the ranking prompt.
type ProductFacts struct {
	ProductID  string           `json:"product_id"`
	Attributes []AttributeValue `json:"attributes"`
	Keywords   []string         `json:"keywords"`
}

// ScoredProduct is one candidate from the weighted recommendation query.
//
// Score is 3*KeywordMatches + 2*SubcategoryMatches, computed in the store so
// the ordering is consistent with the aggregation.
type ScoredProduct struct {
	ProductID          string `json:"product_id"`
	KeywordMatches     int    `json:"keyword_matches"`
	SubcategoryMatches int    `json:"subcategory_matches"`
	Score              int    `json:"score"`
}

// ProductSummary pairs a product with its catalog summary text.
type ProductSummary struct {
	ProductID string `json:"product_id"`
	Summary   string `json:"summary"`
}

// ProductCard is the full per-product detail set used for explanation,
// review and comparison answers.
type ProductCard struct {
	ProductID     string           `json:"product_id"`
	Title         string           `json:"title"`
	AverageRating float64          `json:"average_rating"`
	RatingCount   int              `json:"rating_number"`
	Features      string           `json:"features"`
	Description   string           `json:"description"`
	Attributes    []AttributeValue `json:"attributes"`
}

// Review is one customer review of a product.
type Review struct {
	Title  string  `json:"title"`
	Rating float64 `json:"rating"`
	Text   string  `json:"text"`
}
