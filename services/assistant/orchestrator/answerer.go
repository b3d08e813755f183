// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopgraph/shopgraph/services/llm"
)

// LLMAnswerer implements Answerer over an LLM client with a per-call
// timeout.
type LLMAnswerer struct {
	client  llm.Client
	timeout time.Duration
}

// NewLLMAnswerer creates an answerer over the given client.
func NewLLMAnswerer(client llm.Client, timeout time.Duration) (*LLMAnswerer, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	return &LLMAnswerer{client: client, timeout: timeout}, nil
}

// Answer implements Answerer.
func (a *LLMAnswerer) Answer(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	temp := float32(0.2)
	maxTokens := 2048
	return a.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
}

var _ Answerer = (*LLMAnswerer)(nil)
