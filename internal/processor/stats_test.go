package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/personad/internal/analysis"
	"github.com/fyrsmithlabs/personad/internal/pipeline"
)

func TestStats_EmptyProcessor(t *testing.T) {
	p, _ := newTestProcessor(t)

	st, err := p.Stats(context.Background())
	require.NoError(t, err)

	assert.Zero(t, st.RunsTotal)
	assert.Zero(t, st.RunsFailed)
	assert.Zero(t, st.ActiveRuns)
	assert.Zero(t, st.SuccessRatio)
	assert.Zero(t, st.FallbackRatio)
	assert.Zero(t, st.MeanConfidence)
	assert.Zero(t, st.P95DurationMS)
	assert.Zero(t, st.RunsPerMinute)
	assert.Empty(t, st.Recent)
	assert.GreaterOrEqual(t, st.UptimeSeconds, int64(0))
}

func TestStats_AggregatesRuns(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()

	_, err := p.Process(ctx, Request{Text: "first message about the roadmap", SessionID: "s1", UserID: "alice"})
	require.NoError(t, err)
	_, err = p.Process(ctx, Request{Text: "second message, still planning", SessionID: "s1", UserID: "alice"})
	require.NoError(t, err)

	// Control characters only, fails in the sanitize stage.
	failed, err := p.Process(ctx, Request{Text: "\x07", SessionID: "s1"})
	require.NoError(t, err)
	require.False(t, failed.Success)

	st, err := p.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), st.RunsTotal)
	assert.Equal(t, int64(1), st.RunsFailed)
	assert.Zero(t, st.ActiveRuns)
	assert.InDelta(t, 2.0/3.0, st.SuccessRatio, 0.001)
	assert.Zero(t, st.FallbackRatio)
	assert.Greater(t, st.MeanConfidence, 0.0)
	assert.LessOrEqual(t, st.MeanConfidence, 0.95)
	assert.InDelta(t, 3.0, st.RunsPerMinute, 0.001)
	assert.GreaterOrEqual(t, st.P95DurationMS, int64(0))

	require.Len(t, st.Recent, 3)
	assert.Equal(t, failed.RunID, st.Recent[0].RunID)
	assert.False(t, st.Recent[0].Success)
	assert.True(t, st.Recent[1].Success)
	assert.Equal(t, 4, st.Recent[1].Analyses)
	assert.Zero(t, st.Recent[1].Fallbacks)
}

func TestRunRing_KeepsNewestFirst(t *testing.T) {
	r := newRunRing(3)
	for i := 1; i <= 5; i++ {
		r.add(RunSummary{RunID: fmt.Sprintf("run-%d", i)})
	}

	got := r.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "run-5", got[0].RunID)
	assert.Equal(t, "run-4", got[1].RunID)
	assert.Equal(t, "run-3", got[2].RunID)
}

func TestAggregate_RateWindowExcludesOldRuns(t *testing.T) {
	now := time.Now()
	recent := []RunSummary{
		{RunID: "new", Success: true, Confidence: 0.8, FinishedAt: now.Add(-10 * time.Second)},
		{RunID: "old", Success: true, Confidence: 0.6, FinishedAt: now.Add(-5 * time.Minute)},
	}

	var st Stats
	aggregate(&st, recent, now)

	assert.InDelta(t, 1.0, st.RunsPerMinute, 0.001)
	assert.InDelta(t, 1.0, st.SuccessRatio, 0.001)
	assert.InDelta(t, 0.7, st.MeanConfidence, 0.001)
}

func TestMetrics_SharedInstance(t *testing.T) {
	assert.Same(t, NewMetrics(), NewMetrics())
}

func TestFailureReason_Classifies(t *testing.T) {
	assert.Equal(t, "timeout", failureReason("stage timed out after 30ms"))
	assert.Equal(t, "panic", failureReason("stage panicked: boom"))
	assert.Equal(t, "error", failureReason("boom"))
}

func TestExcerpt_RespectsRuneBoundaries(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 10))
	assert.Equal(t, "exact", excerpt("exact", 5))
	assert.Equal(t, "trunc", excerpt("truncated", 5))

	// 2-byte runes; a 5-byte cut would split the third one.
	assert.Equal(t, "éé", excerpt("ééé", 5))
}

func TestArchiveCategory_PrefersTopicsThenIntent(t *testing.T) {
	pc := pipeline.NewContext(pipeline.NewMessage("hi", "s"))
	assert.Equal(t, "conversation", archiveCategory(pc))

	withTopics := pc.WithAnalyses(analysis.Bag{
		analysis.KindMessageIntent: {
			Kind:   analysis.KindMessageIntent,
			Intent: &analysis.IntentSignals{Intent: "seeking_help", Topics: []string{"debugging"}},
		},
	})
	assert.Equal(t, "debugging", archiveCategory(withTopics))

	intentOnly := pc.WithAnalyses(analysis.Bag{
		analysis.KindMessageIntent: {
			Kind:   analysis.KindMessageIntent,
			Intent: &analysis.IntentSignals{Intent: "seeking_help"},
		},
	})
	assert.Equal(t, "seeking_help", archiveCategory(intentOnly))
}
