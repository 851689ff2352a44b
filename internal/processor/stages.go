package processor

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/fyrsmithlabs/personad/internal/pipeline"
	"github.com/fyrsmithlabs/personad/internal/sanitize"
	"github.com/fyrsmithlabs/personad/internal/store"
	"github.com/fyrsmithlabs/personad/internal/synthesis"
)

// archiveExcerptLen bounds the text excerpt stored with a run insight.
const archiveExcerptLen = 200

// sanitizeStage normalizes the message text and strips credentials before
// anything downstream sees it. Identifiers were normalized when the run
// was built, so only the text changes here.
func (p *Processor) sanitizeStage() pipeline.Stage {
	return pipeline.Stage{
		Name:     StageSanitize,
		Required: true,
		Timeout:  p.stageTimeout,
		Run: func(ctx context.Context, pc *pipeline.Context) (*pipeline.Context, error) {
			msg := pc.Input
			text := sanitize.Normalize(msg.Text, p.maxMessageBytes)
			if text == "" {
				return nil, errors.New("message is empty after normalization")
			}
			if p.scrubber != nil {
				res, err := p.scrubber.Scrub(ctx, text)
				if err != nil {
					return nil, fmt.Errorf("scrubbing message: %w", err)
				}
				if res.Masked() {
					p.metrics.RecordRedactions(len(res.Redactions))
				}
				text = res.Text
			}
			msg.Text = text
			return pc.WithInput(msg), nil
		},
	}
}

// analyzeStage fans the sanitized slice out to every analyzer and attaches
// the settled bag. The group degrades branch failures to fallbacks, so the
// stage itself only fails on a timeout.
func (p *Processor) analyzeStage() pipeline.Stage {
	return pipeline.Stage{
		Name:     StageAnalyze,
		Required: true,
		Timeout:  p.stageTimeout,
		Run: func(ctx context.Context, pc *pipeline.Context) (*pipeline.Context, error) {
			bag := p.group.Analyze(ctx, pc.Slice())
			for _, kind := range bag.Present() {
				if r, ok := bag.Get(kind); ok && r.Fallback {
					p.metrics.RecordAnalysisFallback(string(kind))
				}
			}
			return pc.WithAnalyses(bag), nil
		},
	}
}

// synthesizeStage folds the analysis bag into a persona view. Synthesize
// never fails outright; a degraded bag yields the fallback view instead.
func (p *Processor) synthesizeStage() pipeline.Stage {
	return pipeline.Stage{
		Name:     StageSynthesize,
		Required: true,
		Timeout:  p.stageTimeout,
		Run: func(ctx context.Context, pc *pipeline.Context) (*pipeline.Context, error) {
			view := p.synth.Synthesize(ctx, synthesis.Request{
				SessionID: pc.SessionID,
				UserID:    pc.UserID,
			}, pc.Analyses)
			p.metrics.ObserveConfidence(view.Confidence)
			return pc.WithPersona(view), nil
		},
	}
}

// archiveStage persists an insight about the processed message so later
// runs can score memory relevance against it. Anonymous runs and runs
// without a persona are skipped. The stage is optional: an archive failure
// is recorded but never flips run success.
func (p *Processor) archiveStage() pipeline.Stage {
	return pipeline.Stage{
		Name:    StageArchive,
		Timeout: p.stageTimeout,
		Run: func(ctx context.Context, pc *pipeline.Context) (*pipeline.Context, error) {
			if pc.UserID == "" || pc.Persona == nil {
				return nil, nil
			}
			ins := store.Insight{
				UserID:     pc.UserID,
				SessionID:  pc.SessionID,
				Category:   archiveCategory(pc),
				Summary:    excerpt(pc.Input.Text, archiveExcerptLen),
				Confidence: pc.Persona.Confidence,
			}
			err := p.store.Execute(ctx, func(h store.Handle) error {
				return store.AppendInsight(ctx, h, ins)
			})
			if err != nil {
				return nil, fmt.Errorf("archiving run insight: %w", err)
			}
			return pc, nil
		},
	}
}

// archiveCategory picks the most specific label the analysis produced.
func archiveCategory(pc *pipeline.Context) string {
	if intent := pc.Analyses.Intent(); intent != nil {
		if len(intent.Topics) > 0 {
			return intent.Topics[0]
		}
		if intent.Intent != "" {
			return intent.Intent
		}
	}
	return "conversation"
}

// excerpt truncates text to max bytes without splitting a rune.
func excerpt(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
