// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intent classifies user utterances into the closed intent taxonomy.
//
// # Description
//
// The classifier builds a few-shot prompt from a fixed exemplar library
// supplied at process start, asks the LLM for an <output>tag</output> answer,
// and validates the tag against the taxonomy. Two failure modes are kept
// distinct: a missing or malformed wrapper is ErrClassificationFormat, a
// well-formed tag outside the taxonomy is ErrClassificationRejected. Neither
// is retried here; the orchestrator maps both onto the help path.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "embed"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/llm"
)

var tracer = otel.Tracer("shopgraph.assistant.intent")

//go:embed examples.json
var defaultExamplesJSON []byte

// Example is one labeled few-shot exemplar.
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// DefaultExamples returns the exemplar library embedded in the binary.
func DefaultExamples() ([]Example, error) {
	var examples []Example
	if err := json.Unmarshal(defaultExamplesJSON, &examples); err != nil {
		return nil, fmt.Errorf("parse embedded intent examples: %w", err)
	}
	return examples, nil
}

const promptPrefix = `<context>
You are an AI assistant designed to classify user messages into one of six categories based on their content.
</context>
<classes>
Greetings: The user initiates the conversation with a greeting or seeks general assistance.
Product Search: The user wants to find specific products based on detailed criteria or filters.
Information Retrieval: The user seeks detailed information about a particular product.
Reviews and Ratings: The user asks about customer feedback, reviews, or ratings of a product.
Comparison: The user wants to compare multiple products or find alternatives.
Recommendation: The user seeks personalized suggestions or explores broad product categories without specific filters.
</classes>
<examples>`

const promptSuffix = `</examples>
<instructions>
Task: Classify the user's message into one of the six categories.
Read the user's message carefully, identify the intent, and match it to the most appropriate category.
Output Format: <output>category_name</output>
Valid category names: greetings, product_search, information_retrieval, reviews, comparison, recommendation, bye.
If No Match: return <output>noclass</output>.
</instructions>

<input>%s</input>`

// outputPattern extracts the classification tag from the wrapper.
var outputPattern = regexp.MustCompile(`<output>(.*?)</output>`)

// Classifier maps a raw user utterance to an Intent.
//
// # Thread Safety
//
// Classifier is safe for concurrent use after construction. The prompt body
// is precomputed once from the exemplar library.
type Classifier struct {
	client     llm.Client
	promptBody string
	timeout    time.Duration
}

// NewClassifier creates a classifier over the given LLM client and exemplar
// library.
//
// # Inputs
//
//   - client: LLM backend. Must not be nil.
//   - examples: Labeled exemplars. Must not be empty.
//   - timeout: Per-call deadline for the classification request.
//
// # Outputs
//
//   - *Classifier: Ready-to-use classifier.
//   - error: Non-nil if client is nil or examples is empty.
func NewClassifier(client llm.Client, examples []Example, timeout time.Duration) (*Classifier, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("examples must not be empty")
	}

	var b strings.Builder
	b.WriteString(promptPrefix)
	for _, ex := range examples {
		fmt.Fprintf(&b, "\n<input>%s</input>\n<output>%s</output>", ex.Input, ex.Output)
	}
	b.WriteString("\n")
	b.WriteString(promptSuffix)

	return &Classifier{
		client:     client,
		promptBody: b.String(),
		timeout:    timeout,
	}, nil
}

// Classify returns the intent of the utterance.
//
// # Description
//
// Pure function of the utterance and the exemplar library, modulo the
// nondeterminism of the underlying model. Format and taxonomy failures are
// surfaced as ErrClassificationFormat and ErrClassificationRejected; they are
// never retried here because a nondeterministic capability may repeat the
// same malformed output.
//
// # Inputs
//
//   - ctx: Context for cancellation; a per-call timeout is applied on top.
//   - utterance: The raw user message.
//
// # Outputs
//
//   - datatypes.Intent: A member of the closed taxonomy.
//   - error: LLM transport failure, ErrClassificationFormat, or
//     ErrClassificationRejected.
func (c *Classifier) Classify(ctx context.Context, utterance string) (datatypes.Intent, error) {
	ctx, span := tracer.Start(ctx, "Classify")
	defer span.End()
	span.SetAttributes(attribute.Int("utterance_length", len(utterance)))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temp := float32(0.2)
	maxTokens := 64
	raw, err := c.client.Generate(ctx, fmt.Sprintf(c.promptBody, utterance), llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("classification call: %w", err)
	}

	match := outputPattern.FindStringSubmatch(raw)
	if match == nil {
		slog.Warn("Classifier output missing wrapper", "raw_length", len(raw))
		return "", fmt.Errorf("%w: no <output> tag in response", ErrClassificationFormat)
	}

	tag := strings.TrimSpace(match[1])
	parsed, err := datatypes.ParseIntent(tag)
	if err != nil {
		slog.Warn("Classifier returned tag outside taxonomy", "tag", tag)
		return "", fmt.Errorf("%w: %q", ErrClassificationRejected, tag)
	}

	span.SetAttributes(attribute.String("intent", string(parsed)))
	return parsed, nil
}
