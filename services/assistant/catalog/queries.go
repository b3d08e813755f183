// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"strings"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
)

// Query builders return the Cypher text and its parameter map as a pair so
// the binding behavior is testable without a live graph. Values only ever
// travel through $parameters.

func productsInSubcategoriesQuery(subcategories []string, price *datatypes.PriceRange) (string, map[string]any) {
	params := map[string]any{"subcategories": subcategories}

	var b strings.Builder
	b.WriteString("MATCH (p:Product)-[:BELONGS_TO]->(sc:Subcategory)\n")
	b.WriteString("WHERE sc.name IN $subcategories\n")

	switch kind, value := price.Effective(); kind {
	case "lt":
		params["maxPrice"] = value
		b.WriteString("AND p.price < $maxPrice\n")
	case "around":
		params["targetPrice"] = value
		b.WriteString("WITH p\n")
		b.WriteString("MATCH (p)-[:AROUND_PRICE]->(pr:PriceRange)\n")
		b.WriteString("WHERE $targetPrice >= pr.lower_limit AND $targetPrice <= pr.upper_limit\n")
	}

	b.WriteString("RETURN p.product_id AS product_id")
	return b.String(), params
}

const attributesAndKeywordsQuery = `MATCH (p:Product)
WHERE p.product_id IN $productIds
OPTIONAL MATCH (p)-[:HAS_ATTRIBUTE]->(a:Attribute)
OPTIONAL MATCH (p)-[:HAS_KEYWORD]->(k:Keyword)
RETURN p.product_id AS product_id,
       collect(DISTINCT {attribute_name: a.name, attribute_value: a.value}) AS attributes,
       collect(DISTINCT k.name) AS keywords`

func scoreCandidatesQuery(subcategories, usecases, keywords []string, price *datatypes.PriceRange) (string, map[string]any) {
	params := map[string]any{
		"subcategories": subcategories,
		"usecases":      usecases,
		"keywords":      keywords,
	}

	var b strings.Builder
	b.WriteString("MATCH (u:UseCase)-[:USED_FOR]->(s:Subcategory)\n")
	b.WriteString("WHERE u.title IN $usecases\n")
	b.WriteString("WITH COLLECT(DISTINCT s.name) + $subcategories AS expanded_subcategories\n")
	b.WriteString("MATCH (p:Product)-[:BELONGS_TO]->(s:Subcategory)\n")
	b.WriteString("WHERE s.name IN expanded_subcategories\n")
	b.WriteString("OPTIONAL MATCH (p)-[:HAS_KEYWORD]->(k:Keyword)\n")
	b.WriteString("WHERE k.name IN $keywords\n")
	b.WriteString("WITH p,\n")
	b.WriteString("     COUNT(DISTINCT k) AS keyword_matches,\n")
	b.WriteString("     COUNT(DISTINCT s) AS subcategory_matches\n")

	switch kind, value := price.Effective(); kind {
	case "lt":
		params["maxPrice"] = value
		b.WriteString("WHERE p.price < $maxPrice\n")
	case "around":
		params["targetPrice"] = value
		b.WriteString("MATCH (p)-[:AROUND_PRICE]->(pr:PriceRange)\n")
		b.WriteString("WHERE $targetPrice >= pr.lower_limit AND $targetPrice <= pr.upper_limit\n")
	}

	b.WriteString("RETURN p.product_id AS product_id,\n")
	b.WriteString("       keyword_matches,\n")
	b.WriteString("       subcategory_matches,\n")
	b.WriteString("       (keyword_matches * 3 + subcategory_matches * 2) AS score\n")
	b.WriteString("ORDER BY score DESC, keyword_matches DESC, subcategory_matches DESC, product_id")
	return b.String(), params
}

const summariesQuery = `MATCH (p:Product)
WHERE p.product_id IN $productIds
RETURN p.product_id AS product_id, p.summary AS summary`

const titlesQuery = `MATCH (p:Product)
WHERE p.product_id IN $productIds
RETURN p.product_id AS product_id, p.title AS title`

const productCardQuery = `MATCH (p:Product {product_id: $productId})
OPTIONAL MATCH (p)-[:HAS_ATTRIBUTE]->(a:Attribute)
RETURN p.product_id AS product_id,
       p.title AS title,
       p.average_rating AS average_rating,
       p.rating_number AS rating_number,
       p.features AS features,
       p.description AS description,
       collect(DISTINCT {attribute_name: a.name, attribute_value: a.value}) AS attributes`

const reviewsQuery = `MATCH (p:Product {product_id: $productId})<-[:REVIEWS]-(r:Review)
RETURN r.title AS title, r.rating AS rating, r.text AS text`
