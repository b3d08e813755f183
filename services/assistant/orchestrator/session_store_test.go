package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
)

func runSessionStoreSuite(t *testing.T, store SessionStore) {
	ctx := context.Background()

	t.Run("load unknown session", func(t *testing.T) {
		_, err := store.Load(ctx, "nope")
		assert.True(t, errors.Is(err, ErrSessionNotFound))
	})

	t.Run("save and load round trip", func(t *testing.T) {
		state := datatypes.NewConversationState("round")
		state.Append(datatypes.RoleUser, "find shampoos")
		state.Append(datatypes.RoleAssistant, "here you go")
		state.ProductIDs = []string{"P1", "P2"}
		idx := 1
		state.ProductIndex = &idx
		state.ProductIndices = []int{0, 1}
		require.NoError(t, store.Save(ctx, state))

		loaded, err := store.Load(ctx, "round")
		require.NoError(t, err)
		assert.Equal(t, state.Messages, loaded.Messages)
		assert.Equal(t, state.ProductIDs, loaded.ProductIDs)
		require.NotNil(t, loaded.ProductIndex)
		assert.Equal(t, 1, *loaded.ProductIndex)
		assert.Equal(t, []int{0, 1}, loaded.ProductIndices)
	})

	t.Run("transient fields are not persisted", func(t *testing.T) {
		state := datatypes.NewConversationState("transient")
		state.Intent = datatypes.IntentProductSearch
		state.Entities = &datatypes.EntityFilter{Category: "shampoo"}
		require.NoError(t, store.Save(ctx, state))

		loaded, err := store.Load(ctx, "transient")
		require.NoError(t, err)
		assert.Empty(t, loaded.Intent)
		assert.Nil(t, loaded.Entities)
	})

	t.Run("save overwrites", func(t *testing.T) {
		first := datatypes.NewConversationState("ow")
		first.Append(datatypes.RoleUser, "one")
		require.NoError(t, store.Save(ctx, first))

		second := datatypes.NewConversationState("ow")
		second.Append(datatypes.RoleUser, "one")
		second.Append(datatypes.RoleAssistant, "two")
		require.NoError(t, store.Save(ctx, second))

		loaded, err := store.Load(ctx, "ow")
		require.NoError(t, err)
		assert.Len(t, loaded.Messages, 2)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		state := datatypes.NewConversationState("gone")
		require.NoError(t, store.Save(ctx, state))
		require.NoError(t, store.Delete(ctx, "gone"))
		require.NoError(t, store.Delete(ctx, "gone"))

		_, err := store.Load(ctx, "gone")
		assert.True(t, errors.Is(err, ErrSessionNotFound))
	})
}

func TestMemorySessionStore(t *testing.T) {
	runSessionStoreSuite(t, NewMemorySessionStore())
}

func TestMemorySessionStore_LoadReturnsCopy(t *testing.T) {
	store := NewMemorySessionStore()
	state := datatypes.NewConversationState("iso")
	state.ProductIDs = []string{"P1"}
	require.NoError(t, store.Save(context.Background(), state))

	first, err := store.Load(context.Background(), "iso")
	require.NoError(t, err)
	first.ProductIDs[0] = "mutated"
	first.Append(datatypes.RoleUser, "scribble")

	second, err := store.Load(context.Background(), "iso")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, second.ProductIDs)
	assert.Empty(t, second.Messages)
}

func TestBadgerSessionStore(t *testing.T) {
	store, err := NewBadgerSessionStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runSessionStoreSuite(t, store)
}

func TestBadgerSessionStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBadgerSessionStore(dir)
	require.NoError(t, err)

	state := datatypes.NewConversationState("durable")
	state.Append(datatypes.RoleUser, "hello")
	state.ProductIDs = []string{"P1"}
	require.NoError(t, store.Save(context.Background(), state))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerSessionStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	loaded, err := reopened.Load(context.Background(), "durable")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, loaded.ProductIDs)
	assert.Len(t, loaded.Messages, 1)
}
