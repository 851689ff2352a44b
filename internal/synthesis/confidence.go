package synthesis

import "github.com/fyrsmithlabs/personad/internal/analysis"

// Confidence aggregation constants. The base, clamp bounds, and the bonus
// share rule are fixed; the per-kind weights and the bonus amount default
// to these values and can be retuned.
const (
	confidenceBase = 0.5
	confidenceMin  = 0.2
	confidenceMax  = 0.95

	// confidentShare is the fraction of present analyses that must
	// individually exceed 0.5 confidence before the bonus applies. The
	// comparison is strict: exactly three of four does not qualify.
	confidentShare = 0.75

	defaultConfidenceBonus = 0.1
	keyConfidenceBonus     = "confidence_bonus"
)

var defaultWeights = map[analysis.Kind]float64{
	analysis.KindMessageIntent:   0.30,
	analysis.KindSessionState:    0.25,
	analysis.KindMemoryRelevance: 0.20,
	analysis.KindSocialContext:   0.15,
}

var weightKeys = map[analysis.Kind]string{
	analysis.KindMessageIntent:   "confidence_weight_message_intent",
	analysis.KindSessionState:    "confidence_weight_session_state",
	analysis.KindMemoryRelevance: "confidence_weight_memory_relevance",
	analysis.KindSocialContext:   "confidence_weight_social_context",
}

// weight returns the aggregation weight for one analysis kind.
func (s *Synthesizer) weight(kind analysis.Kind) float64 {
	return s.tune().Number(weightKeys[kind], defaultWeights[kind])
}

// confidenceFrom computes the view confidence: the base plus each present
// analysis's confidence times its weight, a bonus when enough present
// analyses are individually confident, clamped to [0.2, 0.95]. An empty
// bag yields exactly the base.
func (s *Synthesizer) confidenceFrom(bag analysis.Bag) float64 {
	conf := confidenceBase
	present := 0
	confident := 0

	for _, kind := range analysis.Kinds() {
		res, ok := bag.Get(kind)
		if !ok {
			continue
		}
		present++
		conf += res.Confidence * s.weight(kind)
		if res.Confidence > 0.5 {
			confident++
		}
	}

	if present > 0 && float64(confident) > confidentShare*float64(present) {
		conf += s.tune().Number(keyConfidenceBonus, defaultConfidenceBonus)
	}

	return clamp(conf, confidenceMin, confidenceMax)
}
