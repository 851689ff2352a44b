package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/personad/internal/persona"
)

// IntentAnalyzer classifies what a message asks for, its emotional tones,
// topics, and an estimated cognitive load. Pure keyword rules, no store
// access.
type IntentAnalyzer struct{}

// NewIntentAnalyzer returns the message-intent branch.
func NewIntentAnalyzer() *IntentAnalyzer {
	return &IntentAnalyzer{}
}

// Kind implements Analyzer.
func (a *IntentAnalyzer) Kind() Kind { return KindMessageIntent }

// Analyze implements Analyzer. The classification order is fixed: greeting,
// learning request, emotional share, task request, question, statement.
// Earlier rules win.
func (a *IntentAnalyzer) Analyze(ctx context.Context, s Slice) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(s.Text)
	wordCount := len(strings.Fields(s.Text))
	question := strings.Contains(s.Text, "?")

	intent := classifyIntent(lower, wordCount, question)
	tones := classifyTones(lower)
	topics := matchTopics(lower)
	load := cognitiveLoad(lower, wordCount, question)

	conf := 0.5
	if intent != persona.IntentStatement {
		conf += 0.2
	}
	if len(topics) > 0 {
		conf += 0.1
	}
	if len(tones) > 0 && tones[0] != persona.ToneNeutral {
		conf += 0.1
	}
	if wordCount >= 5 {
		conf += 0.05
	}

	return &Result{
		Kind:       KindMessageIntent,
		Confidence: clamp01(conf),
		Summary:    fmt.Sprintf("intent %s, %d words, load %.2f", intent, wordCount, load),
		Intent: &IntentSignals{
			Intent:        intent,
			Tones:         tones,
			CognitiveLoad: load,
			Topics:        topics,
			WordCount:     wordCount,
			Question:      question,
		},
	}, nil
}

func classifyIntent(lower string, wordCount int, question bool) string {
	switch {
	case wordCount <= 4 && equalsAny(firstWord(lower), greetingWords):
		return persona.IntentGreeting
	case containsAny(lower, learningPhrases):
		return persona.IntentLearningRequest
	case containsAny(lower, emotionalPhrases):
		return persona.IntentEmotionalShare
	case containsAny(lower, taskPhrases):
		return persona.IntentTaskRequest
	case question:
		return persona.IntentQuestion
	default:
		return persona.IntentStatement
	}
}

// classifyTones returns matched tones in a fixed order; ToneNeutral when
// nothing matches.
func classifyTones(lower string) []string {
	var tones []string
	if containsAny(lower, frustrationWords) {
		tones = append(tones, persona.ToneFrustrated)
	}
	if containsAny(lower, excitementWords) {
		tones = append(tones, persona.ToneExcited)
	}
	if containsAny(lower, curiosityWords) {
		tones = append(tones, persona.ToneCurious)
	}
	if containsAny(lower, calmWords) {
		tones = append(tones, persona.ToneCalm)
	}
	if len(tones) == 0 {
		tones = append(tones, persona.ToneNeutral)
	}
	return tones
}

// cognitiveLoad estimates how demanding the message is from its length and
// technical vocabulary.
func cognitiveLoad(lower string, wordCount int, question bool) float64 {
	load := float64(wordCount) / 120
	load += 0.15 * float64(countMatches(lower, technicalWords))
	if question && wordCount > 30 {
		load += 0.1
	}
	return clamp01(load)
}
