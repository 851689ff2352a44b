package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/personad/internal/store"
)

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Execute(ctx, func(h store.Handle) error {
		return h.Put(ctx, &store.Record{
			Kind:   store.KindInsight,
			Key:    "alice:1",
			UserID: "alice",
			Labels: map[string]string{"category": "preference"},
			Data:   []byte(`{"summary":"original"}`),
		})
	}))

	// Mutating a returned record must not leak into stored state.
	require.NoError(t, st.Execute(ctx, func(h store.Handle) error {
		rec, err := h.Get(ctx, store.KindInsight, "alice:1")
		if err != nil {
			return err
		}
		rec.Labels["category"] = "mutated"
		rec.Data[0] = 'X'
		return nil
	}))

	require.NoError(t, st.Execute(ctx, func(h store.Handle) error {
		rec, err := h.Get(ctx, store.KindInsight, "alice:1")
		if err != nil {
			return err
		}
		assert.Equal(t, "preference", rec.Labels["category"])
		assert.Equal(t, byte('{'), rec.Data[0])
		return nil
	}))
}

func TestMemoryStore_PutDoesNotAliasCaller(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	rec := &store.Record{
		Kind: store.KindSession,
		Key:  "sess-1",
		Data: []byte(`{"messages":1}`),
	}
	require.NoError(t, st.Execute(ctx, func(h store.Handle) error {
		return h.Put(ctx, rec)
	}))

	// Mutating the caller's record after Put must not change stored state.
	rec.Data[len(rec.Data)-2] = '9'

	require.NoError(t, st.Execute(ctx, func(h store.Handle) error {
		stored, err := h.Get(ctx, store.KindSession, "sess-1")
		if err != nil {
			return err
		}
		assert.JSONEq(t, `{"messages":1}`, string(stored.Data))
		return nil
	}))
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := st.Execute(ctx, func(h store.Handle) error {
					return h.Put(ctx, &store.Record{
						Kind:   store.KindInsight,
						Key:    fmt.Sprintf("user-%d:%d", w, i),
						UserID: fmt.Sprintf("user-%d", w),
						Data:   []byte(`{}`),
					})
				})
				assert.NoError(t, err)
			}
		}(w)

		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := st.Execute(ctx, func(h store.Handle) error {
					_, err := h.List(ctx, store.KindInsight, store.Filter{
						UserID: fmt.Sprintf("user-%d", w),
					})
					return err
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, st.Execute(ctx, func(h store.Handle) error {
		recs, err := h.List(ctx, store.KindInsight, store.Filter{Limit: writers * perWriter})
		if err != nil {
			return err
		}
		assert.Len(t, recs, writers*perWriter)
		return nil
	}))
}
