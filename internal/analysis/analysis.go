// Package analysis runs the pipeline's concurrent fan-out: independent
// classifiers that each score one aspect of an incoming message.
//
// Every branch settles with a complete Result. A branch that errors,
// panics, or times out settles with that kind's deterministic fallback at
// FallbackConfidence; one branch can never cancel or corrupt a sibling.
// The Group's join barrier waits for all configured branches, so a Bag
// never has missing entries for configured analyzers. An absent kind means
// the analyzer was not configured for the run, not that it failed.
package analysis

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/personad/internal/persona"
)

// timeNow is replaceable in tests.
var timeNow = time.Now

// Kind identifies one analysis branch.
type Kind string

const (
	// KindMessageIntent classifies what the message asks for and how it
	// sounds.
	KindMessageIntent Kind = "message-intent"

	// KindSessionState tracks where the conversation session stands.
	KindSessionState Kind = "session-state"

	// KindMemoryRelevance scores how much stored insight applies to the
	// message.
	KindMemoryRelevance Kind = "memory-relevance"

	// KindSocialContext reads the relationship history around the user.
	KindSocialContext Kind = "social-context"
)

// Kinds lists every analysis kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindMessageIntent, KindSessionState, KindMemoryRelevance, KindSocialContext}
}

// Valid reports whether k is a known analysis kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMessageIntent, KindSessionState, KindMemoryRelevance, KindSocialContext:
		return true
	}
	return false
}

// Slice is the read-only projection of the run handed to every branch.
// Branches never see each other's output.
type Slice struct {
	Text       string
	SessionID  string
	UserID     string
	ReceivedAt time.Time
	Metadata   map[string]string
}

// IntentSignals is the message-intent payload.
type IntentSignals struct {
	Intent        string   `json:"intent"`
	Tones         []string `json:"tones"`
	CognitiveLoad float64  `json:"cognitive_load"`
	Topics        []string `json:"topics,omitempty"`
	WordCount     int      `json:"word_count"`
	Question      bool     `json:"question"`
}

// SessionSignals is the session-state payload.
type SessionSignals struct {
	Mode           string        `json:"mode"`
	Phase          string        `json:"phase"`
	MessageIndex   int           `json:"message_index"`
	AwarenessLevel float64       `json:"awareness_level"`
	SessionAge     time.Duration `json:"session_age"`
}

// MemorySignals is the memory-relevance payload.
type MemorySignals struct {
	Available   bool     `json:"available"`
	Relevance   float64  `json:"relevance"`
	Topics      []string `json:"topics,omitempty"`
	RecordCount int      `json:"record_count"`
}

// SocialSignals is the social-context payload.
type SocialSignals struct {
	Familiarity          string  `json:"familiarity"`
	CommunicationStyle   string  `json:"communication_style"`
	RelationshipStrength float64 `json:"relationship_strength"`
	KnownEntities        int     `json:"known_entities"`
}

// Result is one branch's settled output. Exactly one payload field is set,
// matching Kind; fallback results carry neutral payloads so consumers
// never branch on presence.
type Result struct {
	Kind       Kind    `json:"kind"`
	Confidence float64 `json:"confidence"`
	Fallback   bool    `json:"fallback"`
	Summary    string  `json:"summary"`

	Intent  *IntentSignals  `json:"intent,omitempty"`
	Session *SessionSignals `json:"session,omitempty"`
	Memory  *MemorySignals  `json:"memory,omitempty"`
	Social  *SocialSignals  `json:"social,omitempty"`
}

// Bag holds the settled results of one fan-out run keyed by kind.
type Bag map[Kind]*Result

// Get returns the result for a kind when present.
func (b Bag) Get(kind Kind) (*Result, bool) {
	r, ok := b[kind]
	return r, ok && r != nil
}

// Confidence returns a kind's confidence and whether it is present.
func (b Bag) Confidence(kind Kind) (float64, bool) {
	r, ok := b.Get(kind)
	if !ok {
		return 0, false
	}
	return r.Confidence, true
}

// Present lists the kinds in the bag in the stable Kinds order.
func (b Bag) Present() []Kind {
	out := make([]Kind, 0, len(b))
	for _, kind := range Kinds() {
		if _, ok := b.Get(kind); ok {
			out = append(out, kind)
		}
	}
	return out
}

// Intent returns the message-intent payload, nil when absent.
func (b Bag) Intent() *IntentSignals {
	if r, ok := b.Get(KindMessageIntent); ok {
		return r.Intent
	}
	return nil
}

// Session returns the session-state payload, nil when absent.
func (b Bag) Session() *SessionSignals {
	if r, ok := b.Get(KindSessionState); ok {
		return r.Session
	}
	return nil
}

// Memory returns the memory-relevance payload, nil when absent.
func (b Bag) Memory() *MemorySignals {
	if r, ok := b.Get(KindMemoryRelevance); ok {
		return r.Memory
	}
	return nil
}

// Social returns the social-context payload, nil when absent.
func (b Bag) Social() *SocialSignals {
	if r, ok := b.Get(KindSocialContext); ok {
		return r.Social
	}
	return nil
}

// Analyzer is one fan-out branch.
type Analyzer interface {
	// Kind identifies the branch; unique within a Group.
	Kind() Kind

	// Analyze scores the slice. An error settles the branch with its
	// fallback result; analyzers return errors rather than degrade
	// silently.
	Analyze(ctx context.Context, s Slice) (*Result, error)
}

// FallbackConfidence is the fixed confidence of every fallback result.
const FallbackConfidence = 0.1

// Fallback returns the deterministic low-confidence result a branch
// settles with when it cannot produce a real one.
func Fallback(kind Kind) *Result {
	r := &Result{
		Kind:       kind,
		Confidence: FallbackConfidence,
		Fallback:   true,
		Summary:    string(kind) + " analysis unavailable",
	}
	switch kind {
	case KindMessageIntent:
		r.Intent = &IntentSignals{Intent: persona.IntentStatement, Tones: []string{persona.ToneNeutral}}
	case KindSessionState:
		r.Session = &SessionSignals{Mode: persona.ModeCasual, Phase: persona.PhaseOpening}
	case KindMemoryRelevance:
		r.Memory = &MemorySignals{}
	case KindSocialContext:
		r.Social = &SocialSignals{Familiarity: persona.FamiliarityNew, CommunicationStyle: persona.StyleDirect}
	}
	return r
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
