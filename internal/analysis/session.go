package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/logging"
	"github.com/fyrsmithlabs/personad/internal/persona"
	"github.com/fyrsmithlabs/personad/internal/store"
)

// SessionAnalyzer tracks where the conversation session stands: message
// index, phase, mode, and an awareness level that grows as the session
// accumulates history. It owns the session record: each run increments the
// message counter and writes the record back best-effort.
type SessionAnalyzer struct {
	store  store.Store
	logger *logging.Logger
}

// NewSessionAnalyzer returns the session-state branch.
func NewSessionAnalyzer(st store.Store, logger *logging.Logger) *SessionAnalyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SessionAnalyzer{store: st, logger: logger}
}

// Kind implements Analyzer.
func (a *SessionAnalyzer) Kind() Kind { return KindSessionState }

// Analyze implements Analyzer. A missing session record means a fresh
// session; a store read failure settles the branch with its fallback.
func (a *SessionAnalyzer) Analyze(ctx context.Context, s Slice) (*Result, error) {
	now := timeNow().UTC()

	var sess store.Session
	err := a.store.Execute(ctx, func(h store.Handle) error {
		got, err := store.GetSession(ctx, h, s.SessionID)
		if errors.Is(err, store.ErrNotFound) {
			sess = store.Session{
				SessionID: s.SessionID,
				UserID:    s.UserID,
				StartedAt: now,
			}
			return nil
		}
		if err != nil {
			return err
		}
		sess = *got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading session record: %w", err)
	}

	messageIndex := sess.Messages + 1
	sessionAge := time.Duration(0)
	if !sess.StartedAt.IsZero() && now.After(sess.StartedAt) {
		sessionAge = now.Sub(sess.StartedAt)
	}

	lower := strings.ToLower(s.Text)
	mode := classifyMode(lower, messageIndex)
	phase := classifyPhase(messageIndex)

	// Awareness grows with accumulated session history.
	awareness := clamp01(0.2 + 0.08*float64(messageIndex-1))
	if awareness > 0.9 {
		awareness = 0.9
	}

	sess.UserID = s.UserID
	sess.Mode = mode
	sess.Phase = phase
	sess.Messages = messageIndex
	sess.LastActiveAt = now
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}

	// Best-effort write-back; a store failure here never degrades the
	// analysis itself.
	if err := a.store.Execute(ctx, func(h store.Handle) error {
		return store.PutSession(ctx, h, sess)
	}); err != nil {
		a.logger.Warn(ctx, "session record write failed",
			zap.String("session_id", s.SessionID),
			zap.Error(err),
		)
	}

	conf := 0.6
	if messageIndex > 2 {
		conf += 0.15
	}
	if messageIndex > 10 {
		conf += 0.1
	}

	return &Result{
		Kind:       KindSessionState,
		Confidence: clamp01(conf),
		Summary:    fmt.Sprintf("message %d, %s %s session", messageIndex, phase, mode),
		Session: &SessionSignals{
			Mode:           mode,
			Phase:          phase,
			MessageIndex:   messageIndex,
			AwarenessLevel: awareness,
			SessionAge:     sessionAge,
		},
	}, nil
}

// classifyMode picks the session mode; focus keywords and long sessions
// win over exploration signals.
func classifyMode(lower string, messageIndex int) string {
	switch {
	case containsAny(lower, focusPhrases) || messageIndex > 6:
		return persona.ModeFocused
	case containsAny(lower, explorePhrases) || containsAny(lower, learningPhrases):
		return persona.ModeExploration
	default:
		return persona.ModeCasual
	}
}

// classifyPhase maps the message index onto the session phase.
func classifyPhase(messageIndex int) string {
	switch {
	case messageIndex <= 2:
		return persona.PhaseOpening
	case messageIndex <= 10:
		return persona.PhaseEstablished
	default:
		return persona.PhaseExtended
	}
}
