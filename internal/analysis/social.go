package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/logging"
	"github.com/fyrsmithlabs/personad/internal/persona"
	"github.com/fyrsmithlabs/personad/internal/store"
)

const (
	// assistantEntity names the implicit relationship every user has with
	// the persona itself.
	assistantEntity = "assistant"

	// socialLookback bounds how many relationship records one run reads.
	socialLookback = 20
)

// SocialAnalyzer reads the relationship history around a user: how
// familiar they are, their communication style, and the strength of known
// relationships. Each run also upserts the user's relationship with the
// assistant, so familiarity accrues over time.
type SocialAnalyzer struct {
	store  store.Store
	logger *logging.Logger
}

// NewSocialAnalyzer returns the social-context branch.
func NewSocialAnalyzer(st store.Store, logger *logging.Logger) *SocialAnalyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SocialAnalyzer{store: st, logger: logger}
}

// Kind implements Analyzer.
func (a *SocialAnalyzer) Kind() Kind { return KindSocialContext }

// Analyze implements Analyzer. An anonymous message is a valid low-signal
// result; only store read failures settle the branch with its fallback.
func (a *SocialAnalyzer) Analyze(ctx context.Context, s Slice) (*Result, error) {
	lower := strings.ToLower(s.Text)

	if s.UserID == "" {
		return &Result{
			Kind:       KindSocialContext,
			Confidence: 0.3,
			Summary:    "anonymous user, no relationship history",
			Social: &SocialSignals{
				Familiarity:        persona.FamiliarityNew,
				CommunicationStyle: styleFromMessage(lower),
			},
		}, nil
	}

	var rels []store.Relationship
	err := a.store.Execute(ctx, func(h store.Handle) error {
		var err error
		rels, err = store.Relationships(ctx, h, s.UserID, socialLookback)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading relationship records: %w", err)
	}

	assistant := store.Relationship{
		UserID: s.UserID,
		Entity: assistantEntity,
	}
	strengthSum := 0.0
	for _, rel := range rels {
		strengthSum += rel.Strength
		if rel.Entity == assistantEntity {
			assistant = rel
		}
	}

	assistant.Interactions++
	assistant.Strength = relationshipStrength(assistant.Interactions)
	assistant.Familiarity = familiarityLabel(assistant.Interactions)
	assistant.Style = styleFromMessage(lower)

	// Best-effort write-back; failures never degrade the analysis.
	if err := a.store.Execute(ctx, func(h store.Handle) error {
		return store.PutRelationship(ctx, h, assistant)
	}); err != nil {
		a.logger.Warn(ctx, "relationship record write failed",
			zap.String("user_id", s.UserID),
			zap.Error(err),
		)
	}

	avgStrength := assistant.Strength
	if len(rels) > 0 {
		avgStrength = strengthSum / float64(len(rels))
	}

	style := strongestStyle(rels)
	if style == "" {
		style = styleFromMessage(lower)
	}

	conf := 0.45 + 0.05*float64(min(len(rels), 5)) + 0.2*avgStrength

	return &Result{
		Kind:       KindSocialContext,
		Confidence: clamp01(conf),
		Summary: fmt.Sprintf("%d known entities, %s familiarity, strength %.2f",
			len(rels), assistant.Familiarity, avgStrength),
		Social: &SocialSignals{
			Familiarity:          assistant.Familiarity,
			CommunicationStyle:   style,
			RelationshipStrength: avgStrength,
			KnownEntities:        len(rels),
		},
	}, nil
}

// relationshipStrength grows with interaction count and saturates at 0.9.
func relationshipStrength(interactions int) float64 {
	strength := 0.1 + 0.025*float64(interactions)
	if strength > 0.9 {
		return 0.9
	}
	return strength
}

// familiarityLabel maps interaction count onto the familiarity vocabulary.
func familiarityLabel(interactions int) string {
	switch {
	case interactions >= 20:
		return persona.FamiliarityEstablished
	case interactions >= 5:
		return persona.FamiliarityDeveloping
	default:
		return persona.FamiliarityNew
	}
}

// strongestStyle returns the stored style of the strongest relationship
// that has one; empty when no record carries a known style.
func strongestStyle(rels []store.Relationship) string {
	best := ""
	bestStrength := -1.0
	for _, rel := range rels {
		if rel.Style == "" || !knownStyle(rel.Style) {
			continue
		}
		if rel.Strength > bestStrength {
			bestStrength = rel.Strength
			best = rel.Style
		}
	}
	return best
}

func knownStyle(style string) bool {
	switch style {
	case persona.StyleDirect, persona.StyleCollaborative, persona.StyleAnalytical, persona.StyleExpressive:
		return true
	}
	return false
}

// styleFromMessage infers a communication style from the message itself;
// cascade order is expressive, collaborative, analytical, direct.
func styleFromMessage(lower string) string {
	switch {
	case containsAny(lower, expressivePhrases):
		return persona.StyleExpressive
	case containsAny(lower, collaborativePhrases):
		return persona.StyleCollaborative
	case countMatches(lower, technicalWords) >= 2:
		return persona.StyleAnalytical
	default:
		return persona.StyleDirect
	}
}
