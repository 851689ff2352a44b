// Package events publishes pipeline run lifecycle events over NATS and
// tracks in-flight runs for the stats surface.
//
// Events are JSON payloads on subjects:
//
//	<prefix>.<session_id>.<run_id>.started
//	<prefix>.<session_id>.<run_id>.stage
//	<prefix>.<session_id>.<run_id>.completed
//
// The publisher is nil-safe: without a NATS connection every emit is a
// no-op, so the daemon runs standalone with events disabled.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/logging"
	"github.com/fyrsmithlabs/personad/internal/pipeline"
)

// DefaultSubjectPrefix roots all run event subjects.
const DefaultSubjectPrefix = "persona.runs"

const (
	eventStarted   = "started"
	eventStage     = "stage"
	eventCompleted = "completed"
)

// StartedEvent announces a run entering the pipeline.
type StartedEvent struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Stages    []string  `json:"stages"`
	Timestamp time.Time `json:"timestamp"`
}

// StageEvent mirrors one orchestrator progress update.
type StageEvent struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// CompletedEvent closes out a run.
type CompletedEvent struct {
	RunID      string    `json:"run_id"`
	SessionID  string    `json:"session_id"`
	Success    bool      `json:"success"`
	DurationMS int64     `json:"duration_ms"`
	Confidence float64   `json:"confidence,omitempty"`
	Operations int       `json:"operations"`
	Errors     int       `json:"errors"`
	Timestamp  time.Time `json:"timestamp"`
}

// Options tunes the publisher.
type Options struct {
	// SubjectPrefix overrides DefaultSubjectPrefix.
	SubjectPrefix string

	// Logger receives publish failures. Defaults to a nop logger.
	Logger *logging.Logger
}

// Publisher emits run events on a NATS connection. A nil Publisher or a
// Publisher without a connection silently drops every event.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewPublisher wraps a NATS connection. nc may be nil.
func NewPublisher(nc *nats.Conn, opts Options) *Publisher {
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = DefaultSubjectPrefix
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Publisher{nc: nc, prefix: opts.SubjectPrefix, logger: opts.Logger}
}

// RunStarted emits the started event for a message about to execute.
func (p *Publisher) RunStarted(ctx context.Context, msg pipeline.Message, stages []string) {
	if p == nil || p.nc == nil {
		return
	}
	p.publish(ctx, msg, eventStarted, StartedEvent{
		RunID:     msg.ID,
		SessionID: msg.SessionID,
		UserID:    msg.UserID,
		Stages:    stages,
		Timestamp: time.Now(),
	})
}

// StageProgressed emits a stage event from an orchestrator progress update.
func (p *Publisher) StageProgressed(ctx context.Context, msg pipeline.Message, u pipeline.StageUpdate) {
	if p == nil || p.nc == nil {
		return
	}
	p.publish(ctx, msg, eventStage, StageEvent{
		RunID:     msg.ID,
		SessionID: msg.SessionID,
		Stage:     u.Stage,
		Status:    string(u.Status),
		Index:     u.Index,
		Total:     u.Total,
		Error:     u.Err,
		ElapsedMS: u.Elapsed.Milliseconds(),
		Timestamp: time.Now(),
	})
}

// RunCompleted emits the completed event for a finished run.
func (p *Publisher) RunCompleted(ctx context.Context, msg pipeline.Message, res *pipeline.Result) {
	if p == nil || p.nc == nil || res == nil {
		return
	}
	ev := CompletedEvent{
		RunID:      msg.ID,
		SessionID:  msg.SessionID,
		Success:    res.Success,
		DurationMS: res.Duration.Milliseconds(),
		Timestamp:  time.Now(),
	}
	if res.Context != nil {
		ev.Operations = len(res.Context.Operations)
		ev.Errors = len(res.Context.Errors)
		if res.Context.Persona != nil {
			ev.Confidence = res.Context.Persona.Confidence
		}
	}
	p.publish(ctx, msg, eventCompleted, ev)
}

// publish marshals and sends one event. Failures are logged, never
// returned: event loss must not fail a pipeline run.
func (p *Publisher) publish(ctx context.Context, msg pipeline.Message, event string, payload any) {
	subject := p.prefix + "." + subjectToken(msg.SessionID) + "." + subjectToken(msg.ID) + "." + event
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn(ctx, "run event marshal failed",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn(ctx, "run event publish failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// subjectToken makes an identifier safe to embed in a NATS subject.
func subjectToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		}
		return r
	}, s)
}
