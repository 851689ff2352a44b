package synthesis

import (
	"github.com/fyrsmithlabs/personad/internal/analysis"
	"github.com/fyrsmithlabs/personad/internal/persona"
)

const (
	defaultEvolutionBase = 0.7

	keyEvolutionBase = "evolution_base"
)

// evolutionBonus adds to the adaptation-success score when one analysis
// kind clears its confidence threshold. Thresholds are fixed per kind;
// the bonus amounts can be retuned.
type evolutionBonus struct {
	kind      analysis.Kind
	threshold float64
	key       string
	bonus     float64
}

var evolutionBonuses = []evolutionBonus{
	{kind: analysis.KindMessageIntent, threshold: 0.8, key: "evolution_message_bonus", bonus: 0.10},
	{kind: analysis.KindSessionState, threshold: 0.6, key: "evolution_session_bonus", bonus: 0.05},
	{kind: analysis.KindMemoryRelevance, threshold: 0.6, key: "evolution_memory_bonus", bonus: 0.10},
	{kind: analysis.KindSocialContext, threshold: 0.8, key: "evolution_social_bonus", bonus: 0.05},
}

// reinforcementRule tags a settled trait whose value co-occurred with the
// signal that produces it, meaning this run confirmed the stored persona.
type reinforcementRule struct {
	tag   string
	axis  persona.TraitAxis
	value string
	when  func(sig signals) bool
}

var reinforcementRules = []reinforcementRule{
	{
		tag: "curiosity_reinforced", axis: persona.AxisCuriosity, value: "probing",
		when: func(sig signals) bool {
			return sig.intentIs(persona.IntentLearningRequest) || sig.intentIs(persona.IntentQuestion)
		},
	},
	{
		tag: "supportive_nature_reinforced", axis: persona.AxisCommunication, value: "supportive",
		when: func(sig signals) bool { return sig.hasTone(persona.ToneFrustrated) },
	},
	{
		tag: "collaborative_approach_reinforced", axis: persona.AxisProblemSolving, value: "collaborative",
		when: func(sig signals) bool { return sig.socialStyle() == persona.StyleCollaborative },
	},
	{
		tag: "structured_learning_reinforced", axis: persona.AxisLearning, value: "structured",
		when: func(sig signals) bool { return sig.sessionMode() == persona.ModeFocused },
	},
}

// emergingRule tags a pattern the current signals surfaced regardless of
// stored traits.
type emergingRule struct {
	tag  string
	when func(sig signals) bool
}

var emergingRules = []emergingRule{
	{
		tag:  "memory_guided_responses",
		when: func(sig signals) bool { return sig.memoryAvailable() && sig.memoryRelevance() > strongRelevance },
	},
	{
		tag:  "relationship_depth",
		when: func(sig signals) bool { return sig.familiarity() == persona.FamiliarityEstablished },
	},
	{
		tag:  "extended_session_rhythm",
		when: func(sig signals) bool { return sig.sessionPhase() == persona.PhaseExtended },
	},
	{
		tag:  "high_load_adaptation",
		when: func(sig signals) bool { return sig.cognitiveLoad() > highCognitiveLoad },
	},
}

// evolutionFrom tags reinforced and emerging patterns and scores how well
// the persona is tracking the user. Success starts from the base and adds
// a per-kind bonus for every confident analysis, clamped to [0,1].
func (s *Synthesizer) evolutionFrom(traits map[persona.TraitAxis]string, sig signals, bag analysis.Bag) Evolution {
	reinforced := []string{}
	for _, rule := range reinforcementRules {
		if traits[rule.axis] == rule.value && rule.when(sig) {
			reinforced = append(reinforced, rule.tag)
		}
	}

	emerging := []string{}
	for _, rule := range emergingRules {
		if rule.when(sig) {
			emerging = append(emerging, rule.tag)
		}
	}

	success := s.tune().Number(keyEvolutionBase, defaultEvolutionBase)
	for _, b := range evolutionBonuses {
		conf, ok := bag.Confidence(b.kind)
		if ok && conf > b.threshold {
			success += s.tune().Number(b.key, b.bonus)
		}
	}

	return Evolution{
		Reinforced:        reinforced,
		Emerging:          emerging,
		AdaptationSuccess: clamp(success, 0, 1),
	}
}
