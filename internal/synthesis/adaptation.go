package synthesis

import "github.com/fyrsmithlabs/personad/internal/persona"

// Signal thresholds shared by the adaptation, strategy, and insight rules.
const (
	highCognitiveLoad  = 0.7
	highAwareness      = 0.7
	strongRelationship = 0.6
	strongRelevance    = 0.6
)

const (
	defaultAdaptationBase = 0.5

	keyAdaptationBase = "adaptation_base"
)

// adaptationTrigger is one condition in the fixed evaluation order. Its
// increment can be retuned per deployment through the tuning key; the tag
// and reasoning are part of the view's diagnostic surface.
type adaptationTrigger struct {
	tag       string
	key       string
	increment float64
	reasoning string
	when      func(sig signals) bool
}

// adaptationTriggers is evaluated top to bottom; the order fixes the order
// of the emitted trigger tags and reasoning lines.
var adaptationTriggers = []adaptationTrigger{
	{
		tag:       "learning_request",
		key:       "adaptation_learning_request",
		increment: 0.20,
		reasoning: "user asked to learn, favoring patient explanation",
		when: func(sig signals) bool {
			return sig.intentIs(persona.IntentLearningRequest)
		},
	},
	{
		tag:       "frustration_detected",
		key:       "adaptation_frustration",
		increment: 0.15,
		reasoning: "frustration detected, increasing reassurance",
		when: func(sig signals) bool {
			return sig.hasTone(persona.ToneFrustrated)
		},
	},
	{
		tag:       "high_cognitive_load",
		key:       "adaptation_cognitive_load",
		increment: 0.10,
		reasoning: "dense message, simplifying language",
		when: func(sig signals) bool {
			return sig.cognitiveLoad() > highCognitiveLoad
		},
	},
	{
		tag:       "high_awareness",
		key:       "adaptation_awareness",
		increment: 0.05,
		reasoning: "mature session, leaning on established context",
		when: func(sig signals) bool {
			return sig.awareness() > highAwareness
		},
	},
	{
		tag:       "memory_available",
		key:       "adaptation_memory",
		increment: 0.05,
		reasoning: "stored insights available, personalizing replies",
		when: func(sig signals) bool {
			return sig.memoryAvailable()
		},
	},
	{
		tag:       "strong_relationship",
		key:       "adaptation_relationship",
		increment: 0.05,
		reasoning: "strong relationship, relaxing formality",
		when: func(sig signals) bool {
			return sig.relationshipStrength() > strongRelationship
		},
	},
}

// adaptationFrom accumulates the level from the base through every
// matching trigger, then clamps to [0,1]. Triggers and reasoning stay
// parallel and ordered.
func (s *Synthesizer) adaptationFrom(sig signals) Adaptation {
	level := s.tune().Number(keyAdaptationBase, defaultAdaptationBase)
	triggers := []string{}
	reasoning := []string{}

	for _, trig := range adaptationTriggers {
		if !trig.when(sig) {
			continue
		}
		level += s.tune().Number(trig.key, trig.increment)
		triggers = append(triggers, trig.tag)
		reasoning = append(reasoning, trig.reasoning)
	}

	return Adaptation{
		Level:     clamp(level, 0, 1),
		Triggers:  triggers,
		Reasoning: reasoning,
	}
}
