// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the shopping assistant:
// conversation state, the closed intent taxonomy, entity filters, and the
// catalog read models returned by the graph store.
package datatypes

import (
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message written by the shopper.
	RoleUser Role = "user"

	// RoleAssistant marks a message written by the assistant.
	RoleAssistant Role = "assistant"
)

// Message is a single conversation message.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Intent is the closed-set classification of a user message's purpose.
//
// The set is closed: classifier output outside this taxonomy is an error and
// is never silently coerced to a member.
type Intent string

const (
	IntentGreetings            Intent = "greetings"
	IntentProductSearch        Intent = "product_search"
	IntentInformationRetrieval Intent = "information_retrieval"
	IntentReviews              Intent = "reviews"
	IntentComparison           Intent = "comparison"
	IntentRecommendation       Intent = "recommendation"
	IntentBye                  Intent = "bye"
	IntentNoClass              Intent = "noclass"
)

// AllIntents returns every member of the intent taxonomy.
func AllIntents() []Intent {
	return []Intent{
		IntentGreetings,
		IntentProductSearch,
		IntentInformationRetrieval,
		IntentReviews,
		IntentComparison,
		IntentRecommendation,
		IntentBye,
		IntentNoClass,
	}
}

// ParseIntent converts a raw classifier tag into an Intent.
//
// # Outputs
//
//   - Intent: The matching taxonomy member.
//   - error: Non-nil if the tag is not in the closed set.
func ParseIntent(tag string) (Intent, error) {
	for _, in := range AllIntents() {
		if string(in) == tag {
			return in, nil
		}
	}
	return "", fmt.Errorf("intent %q is not in the taxonomy", tag)
}

// ConversationState is the per-session dialogue state.
//
// # Description
//
// ConversationState carries the ordered message history plus the product
// reference bookkeeping that makes follow-up turns ("tell me about the first
// one") resolvable. Intent and Entities are transient: they are set once per
// turn and are meaningful only while that turn is being processed. ProductIDs,
// ProductIndex and ProductIndices persist across turns until overwritten.
//
// Stale-reference policy: if ProductIDs changes in a later turn and no new
// reference is resolved, a previously stored index is still honored. This is
// deliberate, documented behavior carried over from the reviewed system.
//
// # Thread Safety
//
// ConversationState is NOT safe for concurrent mutation. The orchestrator
// serializes turns per session; callers must not share a state value across
// in-flight turns.
type ConversationState struct {
	// SessionID is the caller-supplied session token the state is keyed by.
	SessionID string `json:"session_id"`

	// Messages is the full ordered conversation history.
	Messages []Message `json:"messages"`

	// Intent is the classification of the current turn. Transient.
	Intent Intent `json:"-"`

	// Entities is the structured filter extracted this turn. Transient.
	Entities *EntityFilter `json:"-"`

	// ProductIDs is the ordered list of product identifiers last shown to
	// the user. Persists until a search or recommendation turn replaces it.
	ProductIDs []string `json:"product_ids,omitempty"`

	// ProductIndex is the last singly-referenced position into ProductIDs.
	// Nil when no single reference has ever been resolved.
	ProductIndex *int `json:"product_index,omitempty"`

	// ProductIndices is the last multiply-referenced positions into
	// ProductIDs (comparison turns). Nil or empty when never resolved.
	ProductIndices []int `json:"product_indices,omitempty"`
}

// NewConversationState creates an empty state for a session.
func NewConversationState(sessionID string) *ConversationState {
	return &ConversationState{SessionID: sessionID}
}

// Append adds a message to the history.
func (s *ConversationState) Append(role Role, text string) {
	s.Messages = append(s.Messages, Message{Role: role, Text: text})
}

// LastMessage returns the most recent message, or a zero Message when the
// history is empty.
func (s *ConversationState) LastMessage() Message {
	if len(s.Messages) == 0 {
		return Message{}
	}
	return s.Messages[len(s.Messages)-1]
}

// RecentWindow returns up to n messages preceding the most recent one.
//
// This is the history slice handed to the reference resolver: the current
// query is excluded, the window is wide enough to include the most recent
// product listing.
func (s *ConversationState) RecentWindow(n int) []Message {
	if len(s.Messages) <= 1 {
		return nil
	}
	end := len(s.Messages) - 1
	start := end - n
	if start < 0 {
		start = 0
	}
	return s.Messages[start:end]
}

// Clone returns a deep copy of the state.
//
// Handlers operate on a snapshot so a failed turn leaves the committed state
// untouched.
func (s *ConversationState) Clone() *ConversationState {
	out := &ConversationState{
		SessionID: s.SessionID,
		Intent:    s.Intent,
	}
	out.Messages = append([]Message(nil), s.Messages...)
	out.ProductIDs = append([]string(nil), s.ProductIDs...)
	if s.ProductIndex != nil {
		idx := *s.ProductIndex
		out.ProductIndex = &idx
	}
	out.ProductIndices = append([]int(nil), s.ProductIndices...)
	if s.Entities != nil {
		e := *s.Entities
		out.Entities = &e
	}
	return out
}
