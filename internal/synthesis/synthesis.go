// Package synthesis is the pipeline's fan-in: it folds the settled
// analysis bag into one persona view.
//
// Synthesize is deterministic for identical inputs. The only cross-call
// input is a read-only seed of stored trait defaults fetched once at the
// start of the call; every derivation step after that is an ordered rule
// table, so precedence is explicit and each step is testable on its own.
// The returned View is always fully populated: internal failures yield a
// fixed fallback view instead of an error, and a fallback view differs
// from a healthy one only in its values.
package synthesis

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/analysis"
	"github.com/fyrsmithlabs/personad/internal/config"
	"github.com/fyrsmithlabs/personad/internal/logging"
	"github.com/fyrsmithlabs/personad/internal/persona"
	"github.com/fyrsmithlabs/personad/internal/store"
)

var tracer = otel.Tracer("personad.synthesis")

// FallbackReasoning is the fixed reasoning string carried by a fallback
// view. Consumers that need to distinguish a degraded view look for it.
const FallbackReasoning = "synthesis unavailable, using baseline persona"

// FallbackConfidence is the confidence of a fallback view.
const FallbackConfidence = 0.2

// Request identifies the run being synthesized. Everything content-related
// arrives through the analysis bag.
type Request struct {
	SessionID string
	UserID    string
}

// Adaptation describes how far the persona should bend toward the current
// message, with the triggers and reasoning that produced the level.
type Adaptation struct {
	Level     float64  `json:"level"`
	Triggers  []string `json:"triggers"`
	Reasoning []string `json:"reasoning"`
}

// Insights are categorical labels summarizing the run.
type Insights struct {
	PrimaryFocus       string `json:"primary_focus"`
	EmotionalLandscape string `json:"emotional_landscape"`
	CognitiveApproach  string `json:"cognitive_approach"`
	SocialDynamics     string `json:"social_dynamics"`
	MemoryRelevance    string `json:"memory_relevance"`
}

// Evolution tags persona patterns that this run reinforced or surfaced.
type Evolution struct {
	Reinforced        []string `json:"reinforced"`
	Emerging          []string `json:"emerging"`
	AdaptationSuccess float64  `json:"adaptation_success"`
}

// Strategy is the concrete communication posture for the reply.
type Strategy struct {
	Tone           string `json:"tone"`
	Technicality   string `json:"technicality"`
	Formality      string `json:"formality"`
	Enthusiasm     string `json:"enthusiasm"`
	Supportiveness string `json:"supportiveness"`
}

// View is the synthesized persona for one run. Always fully populated.
type View struct {
	CoreTraits map[persona.TraitAxis]string `json:"core_traits"`
	Adaptation Adaptation                   `json:"adaptation"`
	Insights   Insights                     `json:"insights"`
	Evolution  Evolution                    `json:"evolution"`
	Strategy   Strategy                     `json:"strategy"`
	Confidence float64                      `json:"confidence"`
}

// Options configures NewSynthesizer.
type Options struct {
	// Vocabulary constrains trait values. Defaults to the built-in set.
	Vocabulary *persona.Vocabulary

	// Tuning overrides bases, increments, bonuses, and confidence weights.
	// Defaults to built-ins for every key.
	Tuning config.Values

	// Logger defaults to a no-op logger.
	Logger *logging.Logger
}

// Synthesizer folds analysis bags into persona views. Safe for concurrent
// use; all mutable state lives in the store.
type Synthesizer struct {
	store  store.Store
	vocab  *persona.Vocabulary
	logger *logging.Logger

	// mu guards tuning, which config reloads swap mid-flight.
	mu     sync.RWMutex
	tuning config.Values
}

// NewSynthesizer builds a Synthesizer over the given store.
func NewSynthesizer(st store.Store, opts Options) *Synthesizer {
	vocab := opts.Vocabulary
	if vocab == nil {
		vocab = persona.DefaultVocabulary()
	}
	tuning := opts.Tuning
	if tuning == nil {
		tuning = config.NewValues(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{store: st, vocab: vocab, tuning: tuning, logger: logger}
}

// SetTuning swaps the tuning knobs, typically on config reload. A nil value
// resets every knob to its built-in default.
func (s *Synthesizer) SetTuning(t config.Values) {
	if t == nil {
		t = config.NewValues(nil)
	}
	s.mu.Lock()
	s.tuning = t
	s.mu.Unlock()
}

// tune returns the current tuning accessor.
func (s *Synthesizer) tune() config.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tuning
}

// Synthesize derives the persona view for one run. It never returns an
// error: a failed trait-seed lookup or an internal panic yields the fixed
// fallback view. Persisting the summary afterwards is best-effort and
// never alters the returned view.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request, bag analysis.Bag) (view *View) {
	ctx, span := tracer.Start(ctx, "synthesis.synthesize")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "synthesis panicked, returning fallback view",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			span.SetStatus(otelcodes.Error, "fallback")
			view = s.FallbackView()
		}
	}()

	seed, err := s.seedTraits(ctx, req.UserID)
	if err != nil {
		s.logger.Warn(ctx, "trait seed lookup failed, returning fallback view",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "fallback")
		return s.FallbackView()
	}

	sig := signalsFrom(bag)

	view = &View{
		CoreTraits: s.applyTraitOverrides(seed, sig),
		Adaptation: s.adaptationFrom(sig),
		Insights:   insightsFrom(sig),
		Confidence: s.confidenceFrom(bag),
	}
	view.Evolution = s.evolutionFrom(view.CoreTraits, sig, bag)
	view.Strategy = strategyFrom(sig, view.CoreTraits)

	s.persistSummary(ctx, req, view)

	span.SetAttributes(
		attribute.Float64("synthesis.confidence", view.Confidence),
		attribute.Float64("synthesis.adaptation_level", view.Adaptation.Level),
		attribute.Int("synthesis.analyses_present", len(bag.Present())),
	)
	s.logger.Debug(ctx, "synthesized persona view",
		zap.String("session_id", req.SessionID),
		zap.Float64("confidence", view.Confidence),
		zap.Float64("adaptation_level", view.Adaptation.Level),
		zap.Strings("triggers", view.Adaptation.Triggers),
	)
	return view
}

// FallbackView returns the fixed view used when synthesis cannot run. The
// values are constants, never tuned, so a degraded run is reproducible.
func (s *Synthesizer) FallbackView() *View {
	return &View{
		CoreTraits: s.vocab.Defaults(),
		Adaptation: Adaptation{
			Level:     defaultAdaptationBase,
			Triggers:  []string{},
			Reasoning: []string{FallbackReasoning},
		},
		Insights: Insights{
			PrimaryFocus:       focusGeneral,
			EmotionalLandscape: emotionNeutral,
			CognitiveApproach:  cognitiveLight,
			SocialDynamics:     socialUnknown,
			MemoryRelevance:    memoryNone,
		},
		Evolution: Evolution{
			Reinforced:        []string{},
			Emerging:          []string{},
			AdaptationSuccess: defaultEvolutionBase,
		},
		Strategy:   baseStrategy(),
		Confidence: FallbackConfidence,
	}
}

// seedTraits loads the stored per-axis defaults for a user, normalized
// through the vocabulary. No user or no records means the built-in
// defaults; only a store failure is an error.
func (s *Synthesizer) seedTraits(ctx context.Context, userID string) (map[persona.TraitAxis]string, error) {
	seed := s.vocab.Defaults()
	if userID == "" {
		return seed, nil
	}

	var stored map[string]string
	err := s.store.Execute(ctx, func(h store.Handle) error {
		var err error
		stored, err = store.TraitDefaults(ctx, h, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading trait defaults: %w", err)
	}

	for _, axis := range persona.Axes() {
		if val, ok := stored[string(axis)]; ok {
			seed[axis] = s.vocab.Normalize(axis, val)
		}
	}
	return seed, nil
}

// persistSummary writes the view's traits and a run insight back for
// future seeding. Failures are swallowed; the view is already final.
func (s *Synthesizer) persistSummary(ctx context.Context, req Request, view *View) {
	if req.UserID == "" {
		return
	}

	err := s.store.Execute(ctx, func(h store.Handle) error {
		for _, axis := range persona.Axes() {
			td := store.TraitDefault{
				UserID: req.UserID,
				Axis:   string(axis),
				Value:  view.CoreTraits[axis],
			}
			if err := store.PutTraitDefault(ctx, h, td); err != nil {
				return err
			}
		}
		return store.AppendInsight(ctx, h, store.Insight{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Category:  view.Insights.PrimaryFocus,
			Summary: fmt.Sprintf("focus %s, emotion %s, adaptation %.2f",
				view.Insights.PrimaryFocus, view.Insights.EmotionalLandscape, view.Adaptation.Level),
			Confidence: view.Confidence,
		})
	})
	if err != nil {
		s.logger.Warn(ctx, "persona summary persistence failed",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
	}
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
