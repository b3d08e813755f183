// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator drives a dialogue turn end to end: classify the
// utterance, dispatch the matching flow, and commit the resulting state.
//
// # Description
//
// The dialogue is an explicit state machine with a typed intent→flow table.
// Every flow operates on a snapshot of the session state and the whole turn
// commits atomically: a failed turn leaves the checkpointed state exactly as
// it was. Turns within one session are serialized by a per-session lock;
// distinct sessions proceed fully in parallel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopgraph/shopgraph/services/assistant/catalog"
	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/assistant/entity"
	"github.com/shopgraph/shopgraph/services/assistant/intent"
	"github.com/shopgraph/shopgraph/services/assistant/observability"
	"github.com/shopgraph/shopgraph/services/assistant/reference"
	"github.com/shopgraph/shopgraph/services/assistant/retrieval"
)

var tracer = otel.Tracer("shopgraph.assistant.orchestrator")

// User-facing texts for the canned and fallback paths.
const (
	helpText = "Welcome! You can ask me to help you find products, answer questions about a product, or explore related items. Just describe what you're looking for (e.g., I need a nutrient rich moisturizer), and I'll assist!"

	goodbyeText = "Goodbye!"

	apologyText = "Sorry, something went wrong on my end while handling that. Please try again in a moment."

	noMatchesText = "I couldn't find any products matching that. Could you try describing what you're looking for differently?"

	unclearReferenceText = "I'm not sure which product you mean. Could you point me at one of the products I listed?"
)

// errUnclearReference routes a flow onto the unclear-reference reply after
// both the fresh resolution and the stored fallback came up empty.
var errUnclearReference = errors.New("no resolvable product reference")

// Classifier maps an utterance to an intent.
type Classifier interface {
	Classify(ctx context.Context, utterance string) (datatypes.Intent, error)
}

// Extractor parses a product query into a structured filter.
type Extractor interface {
	Extract(ctx context.Context, query string) (*datatypes.EntityFilter, error)
}

// Resolver resolves product references against the last shown list.
type Resolver interface {
	ResolveSingle(ctx context.Context, query string, history []datatypes.Message, titles []string) (int, error)
	ResolveMultiple(ctx context.Context, query string, history []datatypes.Message, titles []string) ([]int, error)
}

// Searcher runs the filtered product search pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, filter *datatypes.EntityFilter) (*retrieval.Result, error)
}

// Recommender runs the weighted recommendation pipeline.
type Recommender interface {
	Recommend(ctx context.Context, query string, filter *datatypes.EntityFilter) (*retrieval.RecommendResult, error)
}

// Ranker produces keep/discard verdicts for final candidates.
type Ranker interface {
	RankSearch(ctx context.Context, userQuery string, facts []datatypes.ProductFacts) (*datatypes.ProductRankingList, error)
	RankRecommendations(ctx context.Context, query string, summaries []datatypes.ProductSummary) (*datatypes.ProductRankingList, error)
}

// Answerer generates free-text answers for the leaf flows (explanation,
// reviews, comparison).
type Answerer interface {
	Answer(ctx context.Context, prompt string) (string, error)
}

// Deps bundles everything a turn needs.
type Deps struct {
	Classifier  Classifier
	Extractor   Extractor
	Resolver    Resolver
	Searcher    Searcher
	Recommender Recommender
	Ranker      Ranker
	Answerer    Answerer
	Catalog     catalog.Store
	Sessions    SessionStore
}

func (d *Deps) validate() error {
	switch {
	case d.Classifier == nil:
		return errors.New("classifier must not be nil")
	case d.Extractor == nil:
		return errors.New("extractor must not be nil")
	case d.Resolver == nil:
		return errors.New("resolver must not be nil")
	case d.Searcher == nil:
		return errors.New("searcher must not be nil")
	case d.Recommender == nil:
		return errors.New("recommender must not be nil")
	case d.Ranker == nil:
		return errors.New("ranker must not be nil")
	case d.Answerer == nil:
		return errors.New("answerer must not be nil")
	case d.Catalog == nil:
		return errors.New("catalog must not be nil")
	case d.Sessions == nil:
		return errors.New("sessions must not be nil")
	}
	return nil
}

// flowFunc runs one intent's flow against the turn snapshot, mutating it, and
// returns the assistant reply.
type flowFunc func(ctx context.Context, state *datatypes.ConversationState, query string) (string, error)

// Orchestrator is the dialogue state machine.
//
// # Thread Safety
//
// Safe for concurrent use. Turns on the same session are serialized.
type Orchestrator struct {
	deps  Deps
	flows map[datatypes.Intent]flowFunc

	locks sync.Map // sessionID -> *sync.Mutex
}

// New creates an orchestrator over the given dependencies.
func New(deps Deps) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("orchestrator deps: %w", err)
	}
	o := &Orchestrator{deps: deps}
	o.flows = map[datatypes.Intent]flowFunc{
		datatypes.IntentGreetings:            o.greetingsFlow,
		datatypes.IntentBye:                  o.byeFlow,
		datatypes.IntentNoClass:              o.greetingsFlow,
		datatypes.IntentProductSearch:        o.productSearchFlow,
		datatypes.IntentRecommendation:       o.recommendationFlow,
		datatypes.IntentInformationRetrieval: o.informationRetrievalFlow,
		datatypes.IntentReviews:              o.reviewsFlow,
		datatypes.IntentComparison:           o.comparisonFlow,
	}
	return o, nil
}

func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	mu, _ := o.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Turn processes one user message and returns the assistant reply.
//
// # Description
//
// The committed state advances only when the whole turn succeeds: recoverable
// failures (timeouts, unavailable dependencies, store errors) produce an
// apology and leave the checkpoint untouched, while understood-but-unusable
// model output (malformed classification or extraction) commits a help-path
// turn. Unknown sessions start from an empty state.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - sessionID: Caller-supplied session token.
//   - userText: The raw user message.
//
// # Outputs
//
//   - string: The assistant reply. Never empty.
//   - error: Non-nil only for checkpoint persistence failures.
func (o *Orchestrator) Turn(ctx context.Context, sessionID, userText string) (string, error) {
	ctx, span := tracer.Start(ctx, "Turn")
	defer span.End()
	start := time.Now()

	mu := o.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	state, err := o.deps.Sessions.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		state = datatypes.NewConversationState(sessionID)
	} else if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	snapshot := state.Clone()
	snapshot.Append(datatypes.RoleUser, userText)

	in, err := o.deps.Classifier.Classify(ctx, userText)
	intentLabel := string(in)
	if err != nil {
		if errors.Is(err, intent.ErrClassificationFormat) || errors.Is(err, intent.ErrClassificationRejected) {
			in = datatypes.IntentNoClass
			intentLabel = string(datatypes.IntentNoClass)
		} else {
			slog.Error("Classification failed", "session_id", sessionID, "error", err)
			observability.TurnsTotal.WithLabelValues("unknown", observability.StatusApology).Inc()
			return apologyText, nil
		}
	}
	snapshot.Intent = in
	span.SetAttributes(attribute.String("intent", intentLabel))

	flow, ok := o.flows[in]
	if !ok {
		flow = o.greetingsFlow
	}

	reply, err := flow(ctx, snapshot, userText)
	status := observability.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, errUnclearReference):
		reply = unclearReferenceText
		status = observability.StatusHelp
	case errors.Is(err, entity.ErrExtractionFormat):
		reply = helpText
		status = observability.StatusHelp
	case errors.Is(err, reference.ErrReferenceNotFound):
		reply = unclearReferenceText
		status = observability.StatusHelp
	default:
		slog.Error("Turn flow failed", "session_id", sessionID, "intent", intentLabel, "error", err)
		observability.TurnsTotal.WithLabelValues(intentLabel, observability.StatusApology).Inc()
		return apologyText, nil
	}
	if reply == "" {
		reply = noMatchesText
		status = observability.StatusNoMatches
	}

	snapshot.Append(datatypes.RoleAssistant, reply)
	if err := o.deps.Sessions.Save(ctx, snapshot); err != nil {
		observability.TurnsTotal.WithLabelValues(intentLabel, observability.StatusError).Inc()
		return "", fmt.Errorf("save session: %w", err)
	}

	observability.TurnsTotal.WithLabelValues(intentLabel, status).Inc()
	observability.TurnDuration.WithLabelValues(intentLabel).Observe(time.Since(start).Seconds())
	return reply, nil
}

// ClearSession removes the checkpointed state for a session.
func (o *Orchestrator) ClearSession(ctx context.Context, sessionID string) error {
	mu := o.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()
	return o.deps.Sessions.Delete(ctx, sessionID)
}
