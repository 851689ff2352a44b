package synthesis

import "github.com/fyrsmithlabs/personad/internal/persona"

// Insight labels. Pure rule lookup over the signals, no inference.
const (
	focusLearning  = "learning"
	focusTask      = "task_execution"
	focusEmotional = "emotional_support"
	focusGeneral   = "general_conversation"

	emotionTense     = "tense"
	emotionEnergized = "energized"
	emotionEngaged   = "engaged"
	emotionSettled   = "settled"
	emotionNeutral   = "neutral"

	cognitiveDeliberate = "deliberate"
	cognitiveEngaged    = "engaged"
	cognitiveLight      = "light"

	socialFamiliar    = "familiar"
	socialWarming     = "warming_up"
	socialAcquainting = "getting_acquainted"
	socialUnknown     = "unknown"

	memoryStrong = "strong_continuity"
	memorySome   = "some_continuity"
	memoryFresh  = "fresh_context"
	memoryNone   = "no_memory"
)

const (
	// engagedCognitiveLoad splits light from engaged processing.
	engagedCognitiveLoad = 0.35

	// someRelevance splits fresh context from partial continuity.
	someRelevance = 0.3
)

// insightsFrom derives the five categorical labels. Each label has its own
// first-match cascade.
func insightsFrom(sig signals) Insights {
	return Insights{
		PrimaryFocus:       primaryFocus(sig),
		EmotionalLandscape: emotionalLandscape(sig),
		CognitiveApproach:  cognitiveApproach(sig),
		SocialDynamics:     socialDynamics(sig),
		MemoryRelevance:    memoryRelevance(sig),
	}
}

func primaryFocus(sig signals) string {
	switch {
	case sig.intentIs(persona.IntentLearningRequest):
		return focusLearning
	case sig.intentIs(persona.IntentTaskRequest):
		return focusTask
	case sig.intentIs(persona.IntentEmotionalShare):
		return focusEmotional
	case sig.intent != nil && len(sig.intent.Topics) > 0:
		return sig.intent.Topics[0]
	default:
		return focusGeneral
	}
}

func emotionalLandscape(sig signals) string {
	switch sig.primaryTone() {
	case persona.ToneFrustrated:
		return emotionTense
	case persona.ToneExcited:
		return emotionEnergized
	case persona.ToneCurious:
		return emotionEngaged
	case persona.ToneCalm:
		return emotionSettled
	default:
		return emotionNeutral
	}
}

func cognitiveApproach(sig signals) string {
	switch load := sig.cognitiveLoad(); {
	case load > highCognitiveLoad:
		return cognitiveDeliberate
	case load > engagedCognitiveLoad:
		return cognitiveEngaged
	default:
		return cognitiveLight
	}
}

func socialDynamics(sig signals) string {
	switch sig.familiarity() {
	case persona.FamiliarityEstablished:
		return socialFamiliar
	case persona.FamiliarityDeveloping:
		return socialWarming
	case persona.FamiliarityNew:
		return socialAcquainting
	default:
		return socialUnknown
	}
}

func memoryRelevance(sig signals) string {
	switch {
	case !sig.memoryAvailable():
		return memoryNone
	case sig.memoryRelevance() > strongRelevance:
		return memoryStrong
	case sig.memoryRelevance() > someRelevance:
		return memorySome
	default:
		return memoryFresh
	}
}
