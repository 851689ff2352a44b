package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/personad/internal/analysis"
	"github.com/fyrsmithlabs/personad/internal/store"
)

func TestConfidenceFrom_EmptyBag(t *testing.T) {
	s := newTestSynthesizer(store.NewMemoryStore(), nil)
	assert.InDelta(t, 0.5, s.confidenceFrom(analysis.Bag{}), 1e-9)
}

func TestConfidenceFrom_ReferenceVector(t *testing.T) {
	s := newTestSynthesizer(store.NewMemoryStore(), nil)
	bag := bagWith(map[analysis.Kind]float64{
		analysis.KindMessageIntent:   0.9,
		analysis.KindSessionState:    0.8,
		analysis.KindMemoryRelevance: 0.7,
		analysis.KindSocialContext:   0.6,
	})

	// 0.5 + 0.27 + 0.20 + 0.14 + 0.09 + 0.1 bonus, clamped to the ceiling.
	assert.InDelta(t, 0.95, s.confidenceFrom(bag), 1e-9)
}

func TestConfidenceFrom_SinglePresent(t *testing.T) {
	s := newTestSynthesizer(store.NewMemoryStore(), nil)

	bag := bagWith(map[analysis.Kind]float64{analysis.KindMessageIntent: 0.6})
	assert.InDelta(t, 0.5+0.6*0.30+0.1, s.confidenceFrom(bag), 1e-9)

	// Below 0.5 the lone analysis earns no bonus.
	bag = bagWith(map[analysis.Kind]float64{analysis.KindMessageIntent: 0.4})
	assert.InDelta(t, 0.5+0.4*0.30, s.confidenceFrom(bag), 1e-9)
}

func TestConfidenceFrom_BonusShareIsStrict(t *testing.T) {
	s := newTestSynthesizer(store.NewMemoryStore(), nil)

	// Exactly three of four confident: 75% does not clear "more than 75%".
	bag := bagWith(map[analysis.Kind]float64{
		analysis.KindMessageIntent:   0.51,
		analysis.KindSessionState:    0.51,
		analysis.KindMemoryRelevance: 0.51,
		analysis.KindSocialContext:   0.1,
	})
	want := 0.5 + 0.51*0.30 + 0.51*0.25 + 0.51*0.20 + 0.1*0.15
	assert.InDelta(t, want, s.confidenceFrom(bag), 1e-9)

	// Two of two confident clears the share and earns the bonus.
	bag = bagWith(map[analysis.Kind]float64{
		analysis.KindMessageIntent: 0.51,
		analysis.KindSocialContext: 0.51,
	})
	want = 0.5 + 0.51*0.30 + 0.51*0.15 + 0.1
	assert.InDelta(t, want, s.confidenceFrom(bag), 1e-9)
}

func TestConfidenceFrom_FallbackEntriesCount(t *testing.T) {
	s := newTestSynthesizer(store.NewMemoryStore(), nil)

	bag := analysis.Bag{}
	for _, kind := range analysis.Kinds() {
		bag[kind] = analysis.Fallback(kind)
	}
	assert.InDelta(t, 0.5+0.1*(0.30+0.25+0.20+0.15), s.confidenceFrom(bag), 1e-9)
}

func TestConfidenceFrom_AlwaysWithinBounds(t *testing.T) {
	s := newTestSynthesizer(store.NewMemoryStore(), nil)
	levels := []float64{0, 0.25, 0.5, 0.75, 1}

	for _, m := range levels {
		for _, sess := range levels {
			for _, mem := range levels {
				for _, soc := range levels {
					bag := bagWith(map[analysis.Kind]float64{
						analysis.KindMessageIntent:   m,
						analysis.KindSessionState:    sess,
						analysis.KindMemoryRelevance: mem,
						analysis.KindSocialContext:   soc,
					})
					conf := s.confidenceFrom(bag)
					assert.GreaterOrEqual(t, conf, 0.2)
					assert.LessOrEqual(t, conf, 0.95)
				}
			}
		}
	}
}

func TestConfidenceFrom_WeightOverride(t *testing.T) {
	s := newTestSynthesizer(store.NewMemoryStore(), map[string]interface{}{
		"confidence_weight_message_intent": 0.5,
	})

	bag := bagWith(map[analysis.Kind]float64{analysis.KindMessageIntent: 0.4})
	assert.InDelta(t, 0.5+0.4*0.5, s.confidenceFrom(bag), 1e-9)
}
