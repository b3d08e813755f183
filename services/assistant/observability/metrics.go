// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the Prometheus metrics for the assistant.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn statuses recorded on TurnsTotal.
const (
	StatusOK        = "ok"
	StatusHelp      = "help"
	StatusApology   = "apology"
	StatusNoMatches = "no_matches"
	StatusError     = "error"
)

var (
	// TurnsTotal counts processed turns by resolved intent and outcome.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopgraph",
		Subsystem: "assistant",
		Name:      "turns_total",
		Help:      "Processed dialogue turns by intent and status.",
	}, []string{"intent", "status"})

	// TurnDuration observes end-to-end turn latency.
	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shopgraph",
		Subsystem: "assistant",
		Name:      "turn_duration_seconds",
		Help:      "End-to-end turn latency by intent.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"intent"})

	// CandidateCount observes how many candidates each pipeline stage
	// yielded.
	CandidateCount = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shopgraph",
		Subsystem: "assistant",
		Name:      "candidate_count",
		Help:      "Candidate list sizes by pipeline.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"pipeline"})

	// ExternalRetries counts retries against external dependencies.
	ExternalRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shopgraph",
		Subsystem: "assistant",
		Name:      "external_retries_total",
		Help:      "Retries against external dependencies.",
	}, []string{"dependency"})
)
