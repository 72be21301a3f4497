package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	conversationID := "contract-test-conversation-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewSessionState("bot-1")
		state.SessionID = "s1"
		state.Started = true
		state.Paused = domain.PausedState{Kind: domain.PauseBranch}
		state.Events = append(state.Events, domain.ChatEvent{
			ID:            "e1",
			Origin:        domain.OriginBot,
			AwaitingKind:  domain.AwaitingBranch,
			BranchOptions: []string{"A", "B"},
			CreatedAt:     time.Now().UTC().Truncate(time.Second),
		})

		err := store.Save(ctx, conversationID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, conversationID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "bot-1", loaded.BotID)
		assert.Equal(t, "s1", loaded.SessionID)
		assert.Equal(t, domain.PauseBranch, loaded.Paused.Kind)
		require.Len(t, loaded.Events, 1)
		assert.Equal(t, []string{"A", "B"}, loaded.Events[0].BranchOptions)
		assert.True(t, state.Events[0].CreatedAt.Equal(loaded.Events[0].CreatedAt))
	})

	t.Run("Load Is Isolated From Caller Mutation", func(t *testing.T) {
		loaded, err := store.Load(ctx, conversationID)
		require.NoError(t, err)
		loaded.Events[0].SelectedOption = "A"

		again, err := store.Load(ctx, conversationID)
		require.NoError(t, err)
		assert.Empty(t, again.Events[0].SelectedOption)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+conversationID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, conversationID, domain.NewSessionState("bot-1"))
		require.NoError(t, err)

		err = store.Delete(ctx, conversationID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, conversationID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := conversationID + "-1"
		id2 := conversationID + "-2"
		_ = store.Save(ctx, id1, domain.NewSessionState("bot-1"))
		_ = store.Save(ctx, id2, domain.NewSessionState("bot-2"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
