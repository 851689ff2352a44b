// Package recall ranks stored insights by how well they match an incoming
// message, so the memory branch can surface the most relevant history first
// instead of the most recent.
package recall

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/personad/internal/store"
)

// Score blend weights. Recency keeps fresh insights visible even when the
// message shares no vocabulary with them; overlap lets an old insight jump
// the queue when the message clearly returns to its topic.
const (
	recencyWeight = 0.5
	overlapWeight = 0.5
)

// Ranked pairs an insight with its relevance scores for one message.
type Ranked struct {
	store.Insight

	// Score is the blended rank key in [0,1], higher first.
	Score float64

	// Overlap is the share of distinct message terms found in the insight's
	// category and summary. Zero means the insight shares no vocabulary with
	// the message.
	Overlap float64
}

// Rank orders insights by blended relevance to the message. The input must be
// newest first (the order RecentInsights returns); position supplies the
// recency prior. Ties keep the input order. topK <= 0 returns all insights.
func Rank(message string, insights []store.Insight, topK int) []Ranked {
	if len(insights) == 0 {
		return nil
	}

	messageTerms := terms(message)
	n := len(insights)
	ranked := make([]Ranked, n)
	for i, ins := range insights {
		overlap := termOverlap(messageTerms, terms(ins.Category+" "+ins.Summary))
		recency := float64(n-i) / float64(n)
		ranked[i] = Ranked{
			Insight: ins,
			Score:   recencyWeight*recency + overlapWeight*overlap,
			Overlap: overlap,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked
}

// terms splits text into distinct lowercased tokens long enough to carry
// topical signal, dropping function words.
func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})

	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' || r == '_'
}

// termOverlap returns the share of message terms present in the candidate
// term set. Both inputs are already distinct.
func termOverlap(message, candidate []string) float64 {
	if len(message) == 0 {
		return 0
	}
	set := make(map[string]bool, len(candidate))
	for _, t := range candidate {
		set[t] = true
	}
	matched := 0
	for _, t := range message {
		if set[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(message))
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"from": true, "was": true, "are": true, "were": true, "been": true,
	"being": true, "have": true, "has": true, "had": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "you": true, "she": true, "they": true,
	"them": true, "what": true, "which": true, "who": true, "when": true,
	"where": true, "why": true, "how": true, "not": true, "all": true,
	"about": true, "into": true, "out": true, "over": true, "just": true,
	"some": true, "very": true, "there": true, "here": true,
}
