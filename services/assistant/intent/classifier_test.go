package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
	"github.com/shopgraph/shopgraph/services/llm"
)

// scriptedLLM returns canned responses keyed by a substring of the prompt,
// falling back to Response when nothing matches.
type scriptedLLM struct {
	Response string
	Err      error
	Prompts  []string
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	return s.Response, s.Err
}

func newTestClassifier(t *testing.T, client llm.Client) *Classifier {
	t.Helper()
	examples, err := DefaultExamples()
	require.NoError(t, err)
	c, err := NewClassifier(client, examples, 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestClassify_GoldenOutputs(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected datatypes.Intent
	}{
		{"product search", "<output>product_search</output>", datatypes.IntentProductSearch},
		{"greeting", "<output>greetings</output>", datatypes.IntentGreetings},
		{"information retrieval", "<output>information_retrieval</output>", datatypes.IntentInformationRetrieval},
		{"reviews", "<output>reviews</output>", datatypes.IntentReviews},
		{"comparison", "<output>comparison</output>", datatypes.IntentComparison},
		{"recommendation", "<output>recommendation</output>", datatypes.IntentRecommendation},
		{"bye", "<output>bye</output>", datatypes.IntentBye},
		{"noclass", "<output>noclass</output>", datatypes.IntentNoClass},
		{"wrapper with surrounding prose", "Sure! <output>reviews</output> is my answer.", datatypes.IntentReviews},
		{"whitespace inside wrapper", "<output> comparison </output>", datatypes.IntentComparison},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(t, &scriptedLLM{Response: tt.response})
			got, err := c.Classify(context.Background(), "anything")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestClassify_FormatError(t *testing.T) {
	c := newTestClassifier(t, &scriptedLLM{Response: "I think this is a product search."})
	_, err := c.Classify(context.Background(), "find me a shampoo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClassificationFormat))
	assert.False(t, errors.Is(err, ErrClassificationRejected))
}

func TestClassify_RejectedError(t *testing.T) {
	c := newTestClassifier(t, &scriptedLLM{Response: "<output>purchase_history</output>"})
	_, err := c.Classify(context.Background(), "show my orders")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClassificationRejected))
	assert.False(t, errors.Is(err, ErrClassificationFormat))
}

func TestClassify_TransportErrorPropagates(t *testing.T) {
	transportErr := errors.New("connection refused")
	c := newTestClassifier(t, &scriptedLLM{Err: transportErr})
	_, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, transportErr))
}

func TestClassify_PromptCarriesExamplesAndUtterance(t *testing.T) {
	script := &scriptedLLM{Response: "<output>greetings</output>"}
	c := newTestClassifier(t, script)
	_, err := c.Classify(context.Background(), "howdy partner")
	require.NoError(t, err)
	require.Len(t, script.Prompts, 1)
	assert.Contains(t, script.Prompts[0], "howdy partner")
	// A known exemplar from the embedded library must be present.
	assert.Contains(t, script.Prompts[0], "sulfate-free shampoo")
}

func TestNewClassifier_Validation(t *testing.T) {
	examples, err := DefaultExamples()
	require.NoError(t, err)

	_, err = NewClassifier(nil, examples, time.Second)
	assert.Error(t, err)

	_, err = NewClassifier(&scriptedLLM{}, nil, time.Second)
	assert.Error(t, err)
}

func TestDefaultExamples_CoverTaxonomy(t *testing.T) {
	examples, err := DefaultExamples()
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, ex := range examples {
		_, err := datatypes.ParseIntent(ex.Output)
		require.NoError(t, err, "example label %q must be in the taxonomy", ex.Output)
		seen[ex.Output] = true
	}
	for _, in := range datatypes.AllIntents() {
		assert.True(t, seen[string(in)], "taxonomy member %s has no exemplar", in)
	}
}
