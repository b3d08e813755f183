// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the assistant API onto a gin engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopgraph/shopgraph/services/assistant/handlers"
	"github.com/shopgraph/shopgraph/services/assistant/orchestrator"
)

// SetupRoutes registers the API surface.
func SetupRoutes(router *gin.Engine, o *orchestrator.Orchestrator) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/turn", handlers.HandleTurn(o))
		sessions := v1.Group("/sessions")
		{
			sessions.DELETE("/:sessionId", handlers.HandleClearSession(o))
		}
	}
}
