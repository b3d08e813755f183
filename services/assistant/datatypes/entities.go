// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// PriceRange constrains candidate products by price.
//
// Exactly one of Lt or Around should be honored. The data shape permits both
// to be present; policy is that Lt (exclusive upper bound) takes precedence
// over Around (approximate target). Bounds() applies that policy.
type PriceRange struct {
	// Lt is an exclusive upper bound: price < Lt.
	Lt *float64 `json:"lt,omitempty"`

	// Around is an approximate target price, matched against precomputed
	// price-bucket bounds in the catalog rather than the raw price.
	Around *float64 `json:"around,omitempty"`
}

// Effective returns the single constraint to honor: ("lt", v), ("around", v),
// or ("", 0) when the range is empty. Lt wins when both are set.
func (p *PriceRange) Effective() (kind string, value float64) {
	if p == nil {
		return "", 0
	}
	if p.Lt != nil {
		return "lt", *p.Lt
	}
	if p.Around != nil {
		return "around", *p.Around
	}
	return "", 0
}

// EntityFilter is the structured product filter extracted from a user query.
type EntityFilter struct {
	// Category is the free-text head term, e.g. "moisturizer". Required.
	Category string `json:"category" validate:"required"`

	// Attributes maps attribute names to values, e.g. {"SPF": 30}.
	Attributes map[string]any `json:"attributes,omitempty"`

	// PriceRange is the optional price constraint.
	PriceRange *PriceRange `json:"price_range,omitempty"`

	// Keywords are descriptive terms excluding the head term. Never nil
	// after extraction, possibly empty.
	Keywords []string `json:"keywords"`
}
