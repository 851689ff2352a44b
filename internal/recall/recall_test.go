package recall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/personad/internal/store"
)

func TestRank_EmptyInput(t *testing.T) {
	assert.Empty(t, Rank("deadlock in the pool", nil, 10))
	assert.Empty(t, Rank("deadlock in the pool", []store.Insight{}, 0))
}

func TestRank_OverlapOutranksRecency(t *testing.T) {
	insights := []store.Insight{
		{Category: "cooking", Summary: "sourdough starter feeding schedule"},
		{Category: "debugging", Summary: "goroutine deadlock in the worker pool"},
	}

	ranked := Rank("deadlock in my worker pool again", insights, 0)
	require.Len(t, ranked, 2)

	assert.Equal(t, "debugging", ranked[0].Category)
	assert.InDelta(t, 0.75, ranked[0].Overlap, 1e-9)
	assert.InDelta(t, 0.625, ranked[0].Score, 1e-9)

	assert.Equal(t, "cooking", ranked[1].Category)
	assert.Zero(t, ranked[1].Overlap)
	assert.InDelta(t, 0.5, ranked[1].Score, 1e-9)
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	insights := []store.Insight{
		{Category: "cooking", Summary: "sourdough starter feeding schedule"},
		{Category: "ops", Summary: "tuning the worker fleet"},
	}

	// Newest insight scores 0.5 on recency alone; the older one reaches the
	// same 0.5 through half its terms overlapping. Stable sort keeps the
	// newest first.
	ranked := Rank("worker pool", insights, 0)
	require.Len(t, ranked, 2)
	assert.InDelta(t, ranked[0].Score, ranked[1].Score, 1e-9)
	assert.Equal(t, "cooking", ranked[0].Category)
	assert.Equal(t, "ops", ranked[1].Category)
}

func TestRank_EmptyMessageFallsBackToRecency(t *testing.T) {
	insights := []store.Insight{
		{Category: "newest"},
		{Category: "middle"},
		{Category: "oldest"},
	}

	ranked := Rank("   ", insights, 0)
	require.Len(t, ranked, 3)
	for i, want := range []string{"newest", "middle", "oldest"} {
		assert.Equal(t, want, ranked[i].Category)
		assert.Zero(t, ranked[i].Overlap)
	}
}

func TestRank_PerfectOverlap(t *testing.T) {
	ranked := Rank("goroutine deadlock", []store.Insight{
		{Category: "debugging", Summary: "goroutine deadlock"},
	}, 0)

	require.Len(t, ranked, 1)
	assert.InDelta(t, 1.0, ranked[0].Overlap, 1e-9)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)
}

func TestRank_TopK(t *testing.T) {
	insights := []store.Insight{
		{Category: "one"},
		{Category: "two"},
		{Category: "three"},
	}

	assert.Len(t, Rank("anything", insights, 2), 2)
	assert.Len(t, Rank("anything", insights, 0), 3)
	assert.Len(t, Rank("anything", insights, -1), 3)
	assert.Len(t, Rank("anything", insights, 10), 3)
}

func TestRank_SortedDescending(t *testing.T) {
	insights := []store.Insight{
		{Category: "travel", Summary: "alps hiking route"},
		{Category: "debugging", Summary: "goroutine deadlock worker pool"},
		{Category: "cooking", Summary: "sourdough starter"},
	}

	ranked := Rank("goroutine deadlock in the worker pool", insights, 0)
	require.Len(t, ranked, 3)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
}

func TestTerms(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "punctuation and case", text: "Deadlock, again!", want: []string{"deadlock", "again"}},
		{name: "stopwords dropped", text: "the deadlock in the pool", want: []string{"deadlock", "pool"}},
		{name: "short tokens dropped", text: "go is ok", want: []string{}},
		{name: "duplicates collapsed", text: "panic panic panic", want: []string{"panic"}},
		{name: "underscores kept", text: "worker_pool restarts", want: []string{"worker_pool", "restarts"}},
		{name: "empty", text: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, terms(tt.text))
		})
	}
}

func TestTermOverlap(t *testing.T) {
	tests := []struct {
		name      string
		message   []string
		candidate []string
		want      float64
	}{
		{name: "perfect", message: []string{"deadlock", "worker"}, candidate: []string{"deadlock", "worker"}, want: 1.0},
		{name: "partial", message: []string{"deadlock", "worker"}, candidate: []string{"worker", "fleet"}, want: 0.5},
		{name: "none", message: []string{"deadlock"}, candidate: []string{"sourdough"}, want: 0.0},
		{name: "empty message", message: nil, candidate: []string{"worker"}, want: 0.0},
		{name: "empty candidate", message: []string{"worker"}, candidate: nil, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, termOverlap(tt.message, tt.candidate), 1e-9)
		})
	}
}
