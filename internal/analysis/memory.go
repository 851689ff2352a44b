package analysis

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/personad/internal/recall"
	"github.com/fyrsmithlabs/personad/internal/store"
)

// memoryLookback bounds how many stored insights one run considers.
const memoryLookback = 20

// MemoryAnalyzer scores how much previously stored insight applies to the
// incoming message. Read-only against the store.
type MemoryAnalyzer struct {
	store store.Store
}

// NewMemoryAnalyzer returns the memory-relevance branch.
func NewMemoryAnalyzer(st store.Store) *MemoryAnalyzer {
	return &MemoryAnalyzer{store: st}
}

// Kind implements Analyzer.
func (a *MemoryAnalyzer) Kind() Kind { return KindMemoryRelevance }

// Analyze implements Analyzer. A user with no stored insights is a valid
// low-signal result, not a failure; only store errors settle the branch
// with its fallback. Topics list the categories of the most relevant
// insights first, not the most recent.
func (a *MemoryAnalyzer) Analyze(ctx context.Context, s Slice) (*Result, error) {
	if s.UserID == "" {
		return &Result{
			Kind:       KindMemoryRelevance,
			Confidence: 0.3,
			Summary:    "no user identity, memory unavailable",
			Memory:     &MemorySignals{},
		}, nil
	}

	var insights []store.Insight
	err := a.store.Execute(ctx, func(h store.Handle) error {
		var err error
		insights, err = store.RecentInsights(ctx, h, s.UserID, memoryLookback)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading insight records: %w", err)
	}

	if len(insights) == 0 {
		return &Result{
			Kind:       KindMemoryRelevance,
			Confidence: 0.35,
			Summary:    "no stored insights for user",
			Memory:     &MemorySignals{},
		}, nil
	}

	matched := 0
	var topics []string
	seenTopics := make(map[string]bool)
	for _, r := range recall.Rank(s.Text, insights, 0) {
		if r.Overlap > 0 {
			matched++
		}
		if r.Category != "" && !seenTopics[r.Category] && len(topics) < 5 {
			seenTopics[r.Category] = true
			topics = append(topics, r.Category)
		}
	}

	matchRatio := float64(matched) / float64(len(insights))
	relevance := clamp01(0.3 + 0.7*matchRatio)

	conf := 0.5 + 0.05*float64(min(len(insights), 5)) + 0.2*matchRatio
	if conf > 0.9 {
		conf = 0.9
	}

	return &Result{
		Kind:       KindMemoryRelevance,
		Confidence: clamp01(conf),
		Summary:    fmt.Sprintf("%d stored insights, relevance %.2f", len(insights), relevance),
		Memory: &MemorySignals{
			Available:   true,
			Relevance:   relevance,
			Topics:      topics,
			RecordCount: len(insights),
		},
	}, nil
}
