// Package persona defines the trait vocabulary shared by the analysis and
// synthesis packages.
//
// The vocabulary is deliberately data, not behavior: axes are a closed set
// (they key the synthesized trait map), but the values on each axis are plain
// strings seeded from defaults and overridable through configuration or
// stored trait records. Nothing in this package interprets a value beyond
// membership checks.
package persona

import "fmt"

// TraitAxis identifies one dimension of the synthesized persona.
type TraitAxis string

const (
	// AxisCuriosity captures how actively the persona probes for more detail.
	AxisCuriosity TraitAxis = "curiosity"

	// AxisCommunication captures the overall nature of replies (warm,
	// precise, playful, ...).
	AxisCommunication TraitAxis = "communication_nature"

	// AxisProblemSolving captures the preferred problem-solving approach.
	AxisProblemSolving TraitAxis = "problem_solving_approach"

	// AxisLearning captures how the persona prefers to pace explanations.
	AxisLearning TraitAxis = "learning_preference"

	// AxisWarmth and AxisHumor are seeded from stored defaults only; no
	// analysis signal overrides them.
	AxisWarmth TraitAxis = "warmth"
	AxisHumor  TraitAxis = "humor"
)

// Axes lists every trait axis in a stable order.
func Axes() []TraitAxis {
	return []TraitAxis{
		AxisCuriosity,
		AxisCommunication,
		AxisProblemSolving,
		AxisLearning,
		AxisWarmth,
		AxisHumor,
	}
}

// Message intent labels produced by the message-intent analyzer.
const (
	IntentLearningRequest = "learning_request"
	IntentQuestion        = "question"
	IntentTaskRequest     = "task_request"
	IntentEmotionalShare  = "emotional_share"
	IntentGreeting        = "greeting"
	IntentStatement       = "statement"
)

// Emotional tone labels produced by the message-intent analyzer.
const (
	ToneFrustrated = "frustrated"
	ToneExcited    = "excited"
	ToneCurious    = "curious"
	ToneCalm       = "calm"
	ToneNeutral    = "neutral"
)

// Session mode labels produced by the session-state analyzer.
const (
	ModeExploration = "exploration"
	ModeFocused     = "focused"
	ModeCasual      = "casual"
)

// Session phase labels produced by the session-state analyzer.
const (
	PhaseOpening     = "opening"
	PhaseEstablished = "established"
	PhaseExtended    = "extended"
)

// Communication style labels produced by the social-context analyzer.
const (
	StyleDirect        = "direct"
	StyleCollaborative = "collaborative"
	StyleAnalytical    = "analytical"
	StyleExpressive    = "expressive"
)

// Familiarity labels produced by the social-context analyzer.
const (
	FamiliarityNew         = "new"
	FamiliarityDeveloping  = "developing"
	FamiliarityEstablished = "established"
)

// Vocabulary holds the allowed values per trait axis plus the default value
// used when nothing stored or derived applies.
type Vocabulary struct {
	values   map[TraitAxis][]string
	defaults map[TraitAxis]string
}

// DefaultVocabulary returns the built-in trait vocabulary. Deployments
// replace individual axes through the vocabulary configuration section.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		values: map[TraitAxis][]string{
			AxisCuriosity:      {"reserved", "inquisitive", "probing"},
			AxisCommunication:  {"precise", "warm", "supportive", "playful"},
			AxisProblemSolving: {"methodical", "exploratory", "collaborative"},
			AxisLearning:       {"structured", "example_driven", "conversational"},
			AxisWarmth:         {"neutral", "friendly", "affectionate"},
			AxisHumor:          {"dry", "light", "absent"},
		},
		defaults: map[TraitAxis]string{
			AxisCuriosity:      "inquisitive",
			AxisCommunication:  "warm",
			AxisProblemSolving: "methodical",
			AxisLearning:       "conversational",
			AxisWarmth:         "friendly",
			AxisHumor:          "light",
		},
	}
}

// NewVocabulary builds a vocabulary from explicit per-axis value lists. The
// first value of each list becomes that axis's default. Axes absent from the
// input keep their built-in values.
func NewVocabulary(values map[TraitAxis][]string) (*Vocabulary, error) {
	v := DefaultVocabulary()
	for axis, vals := range values {
		if len(vals) == 0 {
			return nil, fmt.Errorf("vocabulary for axis %q must not be empty", axis)
		}
		v.values[axis] = vals
		v.defaults[axis] = vals[0]
	}
	return v, nil
}

// Default returns the default value for an axis.
func (v *Vocabulary) Default(axis TraitAxis) string {
	return v.defaults[axis]
}

// Defaults returns a fresh map of every axis's default value.
func (v *Vocabulary) Defaults() map[TraitAxis]string {
	out := make(map[TraitAxis]string, len(v.defaults))
	for axis, val := range v.defaults {
		out[axis] = val
	}
	return out
}

// Contains reports whether value is part of the axis's vocabulary.
func (v *Vocabulary) Contains(axis TraitAxis, value string) bool {
	for _, val := range v.values[axis] {
		if val == value {
			return true
		}
	}
	return false
}

// Normalize returns value when it belongs to the axis's vocabulary and the
// axis default otherwise. Stored trait records pass through here so a stale
// or foreign value can never leak into a synthesized view.
func (v *Vocabulary) Normalize(axis TraitAxis, value string) string {
	if v.Contains(axis, value) {
		return value
	}
	return v.defaults[axis]
}
