// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// collectionClasses defines the four search collections. Every class carries
// a document text property and a product_id so one query shape serves all of
// them; only Summary objects populate product_id.
func collectionClasses() []*models.Class {
	classNames := []string{ClassSubcategory, ClassSummary, ClassUseCase, ClassKeyword}
	classes := make([]*models.Class, 0, len(classNames))
	for _, name := range classNames {
		classes = append(classes, &models.Class{
			Class:       name,
			Description: fmt.Sprintf("Search collection of %s documents", name),
			Properties: []*models.Property{
				{
					Name:        "document",
					DataType:    []string{"text"},
					Description: "Indexed document text",
				},
				{
					Name:        "product_id",
					DataType:    []string{"text"},
					Description: "Owning product id, empty when not applicable",
					// Keyword tokenization so ContainsAny matches whole ids.
					Tokenization: models.PropertyTokenizationField,
				},
			},
		})
	}
	return classes
}

// EnsureSchema creates any missing search collection classes.
//
// Idempotent: classes that already exist are left untouched, so it is safe to
// run on every deploy.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	for _, class := range collectionClasses() {
		exists, err := client.Schema().ClassExistenceChecker().
			WithClassName(class.Class).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("check class %s: %w", class.Class, err)
		}
		if exists {
			slog.Debug("Search class already exists", "class", class.Class)
			continue
		}
		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("create class %s: %w", class.Class, err)
		}
		slog.Info("Created search class", "class", class.Class)
	}
	return nil
}
