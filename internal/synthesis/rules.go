package synthesis

import (
	"github.com/fyrsmithlabs/personad/internal/analysis"
	"github.com/fyrsmithlabs/personad/internal/persona"
)

// signals is the nil-safe read view over one analysis bag that every rule
// predicate evaluates against. A nil payload means that analysis was not
// configured for the run; fallback payloads pass through like real ones.
type signals struct {
	intent  *analysis.IntentSignals
	session *analysis.SessionSignals
	memory  *analysis.MemorySignals
	social  *analysis.SocialSignals
}

func signalsFrom(bag analysis.Bag) signals {
	return signals{
		intent:  bag.Intent(),
		session: bag.Session(),
		memory:  bag.Memory(),
		social:  bag.Social(),
	}
}

// hasTone reports whether the message carried the given emotional tone.
func (s signals) hasTone(tone string) bool {
	if s.intent == nil {
		return false
	}
	for _, t := range s.intent.Tones {
		if t == tone {
			return true
		}
	}
	return false
}

// primaryTone is the first matched tone, empty without intent analysis.
func (s signals) primaryTone() string {
	if s.intent == nil || len(s.intent.Tones) == 0 {
		return ""
	}
	return s.intent.Tones[0]
}

func (s signals) intentIs(intent string) bool {
	return s.intent != nil && s.intent.Intent == intent
}

func (s signals) cognitiveLoad() float64 {
	if s.intent == nil {
		return 0
	}
	return s.intent.CognitiveLoad
}

func (s signals) awareness() float64 {
	if s.session == nil {
		return 0
	}
	return s.session.AwarenessLevel
}

func (s signals) sessionMode() string {
	if s.session == nil {
		return ""
	}
	return s.session.Mode
}

func (s signals) sessionPhase() string {
	if s.session == nil {
		return ""
	}
	return s.session.Phase
}

func (s signals) memoryAvailable() bool {
	return s.memory != nil && s.memory.Available
}

func (s signals) memoryRelevance() float64 {
	if s.memory == nil {
		return 0
	}
	return s.memory.Relevance
}

func (s signals) familiarity() string {
	if s.social == nil {
		return ""
	}
	return s.social.Familiarity
}

func (s signals) socialStyle() string {
	if s.social == nil {
		return ""
	}
	return s.social.CommunicationStyle
}

func (s signals) relationshipStrength() float64 {
	if s.social == nil {
		return 0
	}
	return s.social.RelationshipStrength
}

// traitRule replaces one axis value when its source signal is present.
// Replacement is unconditional: whatever the seed held, the mapped value
// wins.
type traitRule struct {
	name  string
	axis  persona.TraitAxis
	when  func(sig signals) bool
	value func(sig signals) string
}

// traitRules is the fixed override order: intent, tone, social style,
// session mode. The order is a compatibility contract; tests pin it.
var traitRules = []traitRule{
	{
		name: "intent sets curiosity",
		axis: persona.AxisCuriosity,
		when: func(sig signals) bool { return sig.intent != nil },
		value: func(sig signals) string {
			return curiosityByIntent[sig.intent.Intent]
		},
	},
	{
		name: "tone sets communication nature",
		axis: persona.AxisCommunication,
		when: func(sig signals) bool { return sig.primaryTone() != "" },
		value: func(sig signals) string {
			return communicationByTone[sig.primaryTone()]
		},
	},
	{
		name: "social style sets problem solving",
		axis: persona.AxisProblemSolving,
		when: func(sig signals) bool { return sig.socialStyle() != "" },
		value: func(sig signals) string {
			return problemSolvingByStyle[sig.socialStyle()]
		},
	},
	{
		name: "session mode sets learning preference",
		axis: persona.AxisLearning,
		when: func(sig signals) bool { return sig.sessionMode() != "" },
		value: func(sig signals) string {
			return learningByMode[sig.sessionMode()]
		},
	},
}

// Signal-to-trait value maps. Values stay inside the default vocabulary;
// applyTraitOverrides re-normalizes in case an operator narrowed an axis.
var (
	curiosityByIntent = map[string]string{
		persona.IntentLearningRequest: "probing",
		persona.IntentQuestion:        "probing",
		persona.IntentTaskRequest:     "inquisitive",
		persona.IntentGreeting:        "inquisitive",
		persona.IntentEmotionalShare:  "reserved",
		persona.IntentStatement:       "reserved",
	}

	communicationByTone = map[string]string{
		persona.ToneFrustrated: "supportive",
		persona.ToneExcited:    "playful",
		persona.ToneCurious:    "warm",
		persona.ToneCalm:       "precise",
		persona.ToneNeutral:    "warm",
	}

	problemSolvingByStyle = map[string]string{
		persona.StyleAnalytical:    "methodical",
		persona.StyleDirect:        "methodical",
		persona.StyleCollaborative: "collaborative",
		persona.StyleExpressive:    "exploratory",
	}

	learningByMode = map[string]string{
		persona.ModeExploration: "example_driven",
		persona.ModeFocused:     "structured",
		persona.ModeCasual:      "conversational",
	}
)

// applyTraitOverrides runs the trait rules over the seeded defaults and
// returns the final core traits. The seed map is not mutated.
func (s *Synthesizer) applyTraitOverrides(seed map[persona.TraitAxis]string, sig signals) map[persona.TraitAxis]string {
	traits := make(map[persona.TraitAxis]string, len(seed))
	for axis, val := range seed {
		traits[axis] = val
	}
	for _, rule := range traitRules {
		if !rule.when(sig) {
			continue
		}
		if val := rule.value(sig); val != "" {
			traits[rule.axis] = s.vocab.Normalize(rule.axis, val)
		}
	}
	return traits
}

// Strategy labels.
const (
	ToneFriendly   = "friendly"
	ToneWarm       = "warm"
	ToneReassuring = "reassuring"
	ToneEnergetic  = "energetic"
	ToneAttentive  = "attentive"

	TechnicalityPlain     = "plain"
	TechnicalityBalanced  = "balanced"
	TechnicalityTechnical = "technical"

	FormalityRelaxed  = "relaxed"
	FormalityNeutral  = "neutral"
	FormalityPolished = "polished"

	LevelLow      = "low"
	LevelModerate = "moderate"
	LevelHigh     = "high"
	LevelElevated = "elevated"
)

func baseStrategy() Strategy {
	return Strategy{
		Tone:           ToneFriendly,
		Technicality:   TechnicalityBalanced,
		Formality:      FormalityNeutral,
		Enthusiasm:     LevelModerate,
		Supportiveness: LevelModerate,
	}
}

// strategyRule adjusts the strategy when its predicate holds. Rules run in
// listed order, later rules overriding earlier ones field by field.
type strategyRule struct {
	name  string
	when  func(sig signals) bool
	apply func(st *Strategy)
}

// strategyRules runs weakest signals first: session shape, then social
// history, then what the message itself asks for, then its emotional
// tones. The listed order is a compatibility contract.
var strategyRules = []strategyRule{
	{
		name: "exploration session",
		when: func(sig signals) bool { return sig.sessionMode() == persona.ModeExploration },
		apply: func(st *Strategy) {
			st.Formality = FormalityRelaxed
			st.Enthusiasm = LevelHigh
		},
	},
	{
		name: "focused session",
		when: func(sig signals) bool { return sig.sessionMode() == persona.ModeFocused },
		apply: func(st *Strategy) {
			st.Formality = FormalityNeutral
			st.Technicality = TechnicalityTechnical
		},
	},
	{
		name: "extended session",
		when: func(sig signals) bool { return sig.sessionPhase() == persona.PhaseExtended },
		apply: func(st *Strategy) {
			st.Formality = FormalityRelaxed
		},
	},
	{
		name: "established familiarity",
		when: func(sig signals) bool { return sig.familiarity() == persona.FamiliarityEstablished },
		apply: func(st *Strategy) {
			st.Formality = FormalityRelaxed
			st.Tone = ToneWarm
		},
	},
	{
		name: "analytical style",
		when: func(sig signals) bool { return sig.socialStyle() == persona.StyleAnalytical },
		apply: func(st *Strategy) {
			st.Technicality = TechnicalityTechnical
		},
	},
	{
		name: "expressive style",
		when: func(sig signals) bool { return sig.socialStyle() == persona.StyleExpressive },
		apply: func(st *Strategy) {
			st.Tone = ToneEnergetic
			st.Enthusiasm = LevelHigh
		},
	},
	{
		name: "task request",
		when: func(sig signals) bool { return sig.intentIs(persona.IntentTaskRequest) },
		apply: func(st *Strategy) {
			st.Technicality = TechnicalityTechnical
			st.Enthusiasm = LevelModerate
		},
	},
	{
		name: "learning request",
		when: func(sig signals) bool { return sig.intentIs(persona.IntentLearningRequest) },
		apply: func(st *Strategy) {
			st.Technicality = TechnicalityPlain
			st.Supportiveness = LevelElevated
		},
	},
	{
		name: "high cognitive load",
		when: func(sig signals) bool { return sig.cognitiveLoad() > highCognitiveLoad },
		apply: func(st *Strategy) {
			st.Technicality = TechnicalityPlain
			st.Tone = ToneAttentive
		},
	},
	{
		name: "excited tone",
		when: func(sig signals) bool { return sig.hasTone(persona.ToneExcited) },
		apply: func(st *Strategy) {
			st.Tone = ToneEnergetic
			st.Enthusiasm = LevelHigh
		},
	},
	{
		name: "frustrated tone",
		when: func(sig signals) bool { return sig.hasTone(persona.ToneFrustrated) },
		apply: func(st *Strategy) {
			st.Tone = ToneReassuring
			st.Supportiveness = LevelHigh
			st.Enthusiasm = LevelLow
		},
	},
}

// traitStrategyRule is the final override layer: settled core traits have
// the last word over everything the message-level rules chose.
type traitStrategyRule struct {
	name  string
	axis  persona.TraitAxis
	value string
	apply func(st *Strategy)
}

var traitStrategyRules = []traitStrategyRule{
	{
		name: "precise communication", axis: persona.AxisCommunication, value: "precise",
		apply: func(st *Strategy) { st.Technicality = TechnicalityTechnical },
	},
	{
		name: "warm communication", axis: persona.AxisCommunication, value: "warm",
		apply: func(st *Strategy) { st.Tone = ToneWarm },
	},
	{
		name: "supportive communication", axis: persona.AxisCommunication, value: "supportive",
		apply: func(st *Strategy) {
			st.Tone = ToneReassuring
			st.Supportiveness = LevelHigh
		},
	},
	{
		name: "playful communication", axis: persona.AxisCommunication, value: "playful",
		apply: func(st *Strategy) { st.Tone = ToneEnergetic },
	},
	{
		name: "probing curiosity", axis: persona.AxisCuriosity, value: "probing",
		apply: func(st *Strategy) { st.Enthusiasm = LevelHigh },
	},
	{
		name: "structured learning", axis: persona.AxisLearning, value: "structured",
		apply: func(st *Strategy) { st.Formality = FormalityPolished },
	},
	{
		name: "affectionate warmth", axis: persona.AxisWarmth, value: "affectionate",
		apply: func(st *Strategy) { st.Supportiveness = LevelHigh },
	},
}

// strategyFrom runs the strategy cascade over the signals and applies the
// core-trait override layer last.
func strategyFrom(sig signals, traits map[persona.TraitAxis]string) Strategy {
	st := baseStrategy()
	for _, rule := range strategyRules {
		if rule.when(sig) {
			rule.apply(&st)
		}
	}
	for _, rule := range traitStrategyRules {
		if traits[rule.axis] == rule.value {
			rule.apply(&st)
		}
	}
	return st
}
