package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/personad/internal/store"
)

// withHandle runs fn inside a single Execute call against a fresh memory store.
func withHandle(t *testing.T, fn func(ctx context.Context, h store.Handle)) {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Execute(context.Background(), func(h store.Handle) error {
		fn(context.Background(), h)
		return nil
	}))
}

func TestTraitDefaults_RoundTrip(t *testing.T) {
	withHandle(t, func(ctx context.Context, h store.Handle) {
		defaults, err := store.TraitDefaults(ctx, h, "alice")
		require.NoError(t, err)
		assert.Empty(t, defaults, "unknown users start with no defaults")

		require.NoError(t, store.PutTraitDefault(ctx, h, store.TraitDefault{
			UserID: "alice", Axis: "curiosity_style", Value: "exploratory",
		}))
		require.NoError(t, store.PutTraitDefault(ctx, h, store.TraitDefault{
			UserID: "alice", Axis: "learning_preference", Value: "hands_on",
		}))

		defaults, err = store.TraitDefaults(ctx, h, "alice")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"curiosity_style":     "exploratory",
			"learning_preference": "hands_on",
		}, defaults)

		// Re-putting an axis replaces its value rather than adding a record.
		require.NoError(t, store.PutTraitDefault(ctx, h, store.TraitDefault{
			UserID: "alice", Axis: "curiosity_style", Value: "methodical",
		}))
		defaults, err = store.TraitDefaults(ctx, h, "alice")
		require.NoError(t, err)
		assert.Equal(t, "methodical", defaults["curiosity_style"])
		assert.Len(t, defaults, 2)
	})
}

func TestTraitDefaults_ScopedPerUser(t *testing.T) {
	withHandle(t, func(ctx context.Context, h store.Handle) {
		require.NoError(t, store.PutTraitDefault(ctx, h, store.TraitDefault{
			UserID: "alice", Axis: "curiosity_style", Value: "exploratory",
		}))
		require.NoError(t, store.PutTraitDefault(ctx, h, store.TraitDefault{
			UserID: "bob", Axis: "curiosity_style", Value: "methodical",
		}))

		defaults, err := store.TraitDefaults(ctx, h, "bob")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"curiosity_style": "methodical"}, defaults)
	})
}

func TestInsights_AppendAndRecent(t *testing.T) {
	withHandle(t, func(ctx context.Context, h store.Handle) {
		for i, summary := range []string{"oldest", "middle", "newest"} {
			require.NoError(t, store.AppendInsight(ctx, h, store.Insight{
				UserID:     "alice",
				SessionID:  "sess-1",
				Category:   "preference",
				Summary:    summary,
				Confidence: 0.5 + float64(i)*0.1,
			}))
			time.Sleep(5 * time.Millisecond)
		}

		insights, err := store.RecentInsights(ctx, h, "alice", 2)
		require.NoError(t, err)
		require.Len(t, insights, 2)
		assert.Equal(t, "newest", insights[0].Summary)
		assert.Equal(t, "middle", insights[1].Summary)
		assert.Equal(t, "preference", insights[0].Category)
		assert.InDelta(t, 0.7, insights[0].Confidence, 1e-9)

		// Appends accumulate instead of overwriting.
		all, err := store.RecentInsights(ctx, h, "alice", 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := store.RecentInsights(ctx, h, "bob", 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestRelationships_UpsertPerEntity(t *testing.T) {
	withHandle(t, func(ctx context.Context, h store.Handle) {
		require.NoError(t, store.PutRelationship(ctx, h, store.Relationship{
			UserID: "alice", Entity: "assistant", Strength: 0.8,
			Familiarity: "familiar", Style: "casual", Interactions: 12,
		}))
		require.NoError(t, store.PutRelationship(ctx, h, store.Relationship{
			UserID: "alice", Entity: "support-bot", Strength: 0.3, Interactions: 2,
		}))

		rels, err := store.Relationships(ctx, h, "alice", 0)
		require.NoError(t, err)
		require.Len(t, rels, 2)

		byEntity := map[string]store.Relationship{}
		for _, rel := range rels {
			byEntity[rel.Entity] = rel
		}
		assert.InDelta(t, 0.8, byEntity["assistant"].Strength, 1e-9)
		assert.Equal(t, "familiar", byEntity["assistant"].Familiarity)
		assert.Equal(t, "casual", byEntity["assistant"].Style)
		assert.Equal(t, 12, byEntity["assistant"].Interactions)

		// Same entity updates in place.
		require.NoError(t, store.PutRelationship(ctx, h, store.Relationship{
			UserID: "alice", Entity: "assistant", Strength: 0.9, Interactions: 13,
		}))
		rels, err = store.Relationships(ctx, h, "alice", 0)
		require.NoError(t, err)
		assert.Len(t, rels, 2)
	})
}

func TestSession_RoundTrip(t *testing.T) {
	withHandle(t, func(ctx context.Context, h store.Handle) {
		_, err := store.GetSession(ctx, h, "sess-1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		started := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, store.PutSession(ctx, h, store.Session{
			SessionID: "sess-1",
			UserID:    "alice",
			Mode:      "learning",
			Phase:     "exploration",
			Messages:  1,
			StartedAt: started,
		}))

		sess, err := store.GetSession(ctx, h, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", sess.UserID)
		assert.Equal(t, "learning", sess.Mode)
		assert.Equal(t, "exploration", sess.Phase)
		assert.Equal(t, 1, sess.Messages)
		assert.True(t, sess.StartedAt.Equal(started))

		sess.Messages = 2
		sess.Phase = "deep_dive"
		require.NoError(t, store.PutSession(ctx, h, *sess))

		sess, err = store.GetSession(ctx, h, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, 2, sess.Messages)
		assert.Equal(t, "deep_dive", sess.Phase)
	})
}

func TestTypedHelpers_Validation(t *testing.T) {
	withHandle(t, func(ctx context.Context, h store.Handle) {
		assert.ErrorIs(t, store.PutTraitDefault(ctx, h, store.TraitDefault{UserID: "alice"}), store.ErrInvalidRecord)
		assert.ErrorIs(t, store.PutTraitDefault(ctx, h, store.TraitDefault{Axis: "curiosity_style"}), store.ErrInvalidRecord)
		assert.ErrorIs(t, store.AppendInsight(ctx, h, store.Insight{Summary: "no user"}), store.ErrInvalidRecord)
		assert.ErrorIs(t, store.PutRelationship(ctx, h, store.Relationship{UserID: "alice"}), store.ErrInvalidRecord)
		assert.ErrorIs(t, store.PutSession(ctx, h, store.Session{UserID: "alice"}), store.ErrInvalidRecord)
	})
}
