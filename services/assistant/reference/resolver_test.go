package reference

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

type cannedLLM struct {
	Response string
	Err      error
	Prompts  []string
}

func (c *cannedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	c.Prompts = append(c.Prompts, prompt)
	return c.Response, c.Err
}

var testTitles = []string{"Gentle Foaming Cleanser", "Hydrating Night Cream", "Vitamin C Serum"}

func newTestResolver(t *testing.T, client llm.Client) *Resolver {
	t.Helper()
	r, err := NewResolver(client, 5*time.Second)
	require.NoError(t, err)
	return r
}

func TestResolveSingle_InRange(t *testing.T) {
	r := newTestResolver(t, &cannedLLM{Response: `{"product_index": 1}`})

	idx, err := r.ResolveSingle(context.Background(), "tell me about the second one", nil, testTitles)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestResolveSingle_NoReference(t *testing.T) {
	r := newTestResolver(t, &cannedLLM{Response: `{"product_index": -1}`})

	_, err := r.ResolveSingle(context.Background(), "what's the weather", nil, testTitles)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReferenceNotFound))
}

func TestResolveSingle_OutOfRange(t *testing.T) {
	r := newTestResolver(t, &cannedLLM{Response: `{"product_index": 7}`})

	_, err := r.ResolveSingle(context.Background(), "the eighth one", nil, testTitles)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReferenceNotFound))
}

func TestResolveSingle_EmptyProductList(t *testing.T) {
	script := &cannedLLM{Response: `{"product_index": 0}`}
	r := newTestResolver(t, script)

	_, err := r.ResolveSingle(context.Background(), "the first one", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReferenceNotFound))
	// Short-circuits before calling the model.
	assert.Empty(t, script.Prompts)
}

func TestResolveSingle_UnparseableOutput(t *testing.T) {
	r := newTestResolver(t, &cannedLLM{Response: "the user means the serum"})

	_, err := r.ResolveSingle(context.Background(), "the serum", nil, testTitles)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReferenceNotFound))
}

func TestResolveSingle_TransportErrorNotMaskedAsNotFound(t *testing.T) {
	transportErr := errors.New("timeout")
	r := newTestResolver(t, &cannedLLM{Err: transportErr})

	_, err := r.ResolveSingle(context.Background(), "the first one", nil, testTitles)
	require.Error(t, err)
	assert.True(t, errors.Is(err, transportErr))
	assert.False(t, errors.Is(err, ErrReferenceNotFound))
}

func TestResolveSingle_PromptCarriesTitlesHistoryQuery(t *testing.T) {
	script := &cannedLLM{Response: `{"product_index": 0}`}
	r := newTestResolver(t, script)

	history := []datatypes.Message{
		{Role: datatypes.RoleUser, Text: "find me a cleanser"},
		{Role: datatypes.RoleAssistant, Text: "Here are some options"},
	}
	_, err := r.ResolveSingle(context.Background(), "does the first one foam?", history, testTitles)
	require.NoError(t, err)
	require.Len(t, script.Prompts, 1)
	assert.Contains(t, script.Prompts[0], "Gentle Foaming Cleanser")
	assert.Contains(t, script.Prompts[0], "find me a cleanser")
	assert.Contains(t, script.Prompts[0], "does the first one foam?")
}

func TestResolveMultiple_TwoProducts(t *testing.T) {
	r := newTestResolver(t, &cannedLLM{Response: `{"product_indices": [0, 2]}`})

	indices, err := r.ResolveMultiple(context.Background(), "compare the cleanser with the serum", nil, testTitles)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, indices)
}

func TestResolveMultiple_DeduplicatesAndFiltersRange(t *testing.T) {
	r := newTestResolver(t, &cannedLLM{Response: `{"product_indices": [2, 2, 9, 0]}`})

	indices, err := r.ResolveMultiple(context.Background(), "compare those", nil, testTitles)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, indices)
}

func TestResolveMultiple_FewerThanTwoIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"empty list", `{"product_indices": []}`},
		{"single index", `{"product_indices": [1]}`},
		{"one valid after range filter", `{"product_indices": [1, 42]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, &cannedLLM{Response: tt.response})
			_, err := r.ResolveMultiple(context.Background(), "compare them", nil, testTitles)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrReferenceNotFound))
		})
	}
}

func TestResolveMultiple_FencedOutputAccepted(t *testing.T) {
	r := newTestResolver(t, &cannedLLM{Response: "```json\n{\"product_indices\": [0, 1]}\n```"})

	indices, err := r.ResolveMultiple(context.Background(), "compare the first two", nil, testTitles)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, indices)
}
