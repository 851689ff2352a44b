package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/personad/internal/store"
)

func TestEmbedding_Deterministic(t *testing.T) {
	a := store.Embedding("the same text", 64)
	b := store.Embedding("the same text", 64)
	assert.Equal(t, a, b)
}

func TestEmbedding_Size(t *testing.T) {
	assert.Len(t, store.Embedding("abc", 16), 16)
	assert.Len(t, store.Embedding("abc", 1024), 1024)
	assert.Len(t, store.Embedding("abc", 0), store.DefaultVectorSize)
	assert.Len(t, store.Embedding("abc", -5), store.DefaultVectorSize)
}

func TestEmbedding_EmptyText(t *testing.T) {
	vec := store.Embedding("", 8)
	for i, v := range vec {
		assert.Zero(t, v, "index %d", i)
	}
}

func TestEmbedding_ValuesBounded(t *testing.T) {
	for _, v := range store.Embedding("Zyx 123 !?", 128) {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestEmbedding_DistinguishesTexts(t *testing.T) {
	assert.NotEqual(t, store.Embedding("alpha", 32), store.Embedding("bravo", 32))
}

func TestEmbedding_WrapsShortText(t *testing.T) {
	vec := store.Embedding("ab", 4)
	assert.Equal(t, vec[0], vec[2])
	assert.Equal(t, vec[1], vec[3])
	assert.NotEqual(t, vec[0], vec[1])
}
