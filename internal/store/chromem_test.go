package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/personad/internal/store"
)

func TestChromemStore_RequiresPath(t *testing.T) {
	_, err := store.NewChromemStore(store.ChromemOptions{}, nil)
	assert.ErrorIs(t, err, store.ErrInvalidConfig)
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	st, err := store.NewChromemStore(store.ChromemOptions{Path: dir, VectorSize: 64}, nil)
	require.NoError(t, err)

	require.NoError(t, st.Execute(ctx, func(h store.Handle) error {
		if err := store.PutTraitDefault(ctx, h, store.TraitDefault{
			UserID: "alice", Axis: "curiosity_style", Value: "exploratory",
		}); err != nil {
			return err
		}
		return store.PutSession(ctx, h, store.Session{SessionID: "sess-1", UserID: "alice", Messages: 3})
	}))
	require.NoError(t, st.Close())

	reopened, err := store.NewChromemStore(store.ChromemOptions{Path: dir, VectorSize: 64}, nil)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Execute(ctx, func(h store.Handle) error {
		defaults, err := store.TraitDefaults(ctx, h, "alice")
		if err != nil {
			return err
		}
		assert.Equal(t, map[string]string{"curiosity_style": "exploratory"}, defaults)

		sess, err := store.GetSession(ctx, h, "sess-1")
		if err != nil {
			return err
		}
		assert.Equal(t, 3, sess.Messages)
		return nil
	}))
}

func TestChromemStore_HealthyAfterOpen(t *testing.T) {
	st, err := store.NewChromemStore(store.ChromemOptions{Path: t.TempDir(), VectorSize: 64}, nil)
	require.NoError(t, err)
	defer st.Close()

	assert.NoError(t, st.Healthy(context.Background()))
}

// Filtered listings must not fail when the filter narrows the collection
// below the fetch size.
func TestChromemStore_FilterNarrowerThanCollection(t *testing.T) {
	st, err := store.NewChromemStore(store.ChromemOptions{Path: t.TempDir(), VectorSize: 64}, nil)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.Execute(ctx, func(h store.Handle) error {
		for _, rec := range []*store.Record{
			{Kind: store.KindInsight, Key: "alice:1", UserID: "alice", Data: []byte(`{}`)},
			{Kind: store.KindInsight, Key: "alice:2", UserID: "alice", Data: []byte(`{}`)},
			{Kind: store.KindInsight, Key: "bob:1", UserID: "bob", Data: []byte(`{}`)},
		} {
			if err := h.Put(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, st.Execute(ctx, func(h store.Handle) error {
		recs, err := h.List(ctx, store.KindInsight, store.Filter{UserID: "bob", Limit: 50})
		if err != nil {
			return err
		}
		require.Len(t, recs, 1)
		assert.Equal(t, "bob:1", recs[0].Key)

		_, err = h.Get(ctx, store.KindInsight, "carol:1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}
