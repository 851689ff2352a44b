// Package pipeline runs incoming messages through an ordered list of named
// stages. Each stage receives the accumulated Context and derives a new one;
// the orchestrator owns sequencing, per-stage timeouts, failure policy, and
// the execution trace.
//
// Stages must treat the Context they receive as read-only and return updates
// through the With* constructors. The orchestrator never adopts a result that
// arrives after a stage's deadline, so a well-behaved stage can never mutate
// a run it has already lost.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/personad/internal/analysis"
	"github.com/fyrsmithlabs/personad/internal/synthesis"
)

// Message is one unit of pipeline work.
type Message struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	SessionID  string            `json:"session_id"`
	UserID     string            `json:"user_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// NewMessage builds a Message with a fresh id and receipt timestamp.
func NewMessage(text, sessionID string) Message {
	return Message{
		ID:         uuid.NewString(),
		Text:       text,
		SessionID:  sessionID,
		ReceivedAt: time.Now(),
	}
}

// StageError records one stage failure. Recoverable mirrors the stage's
// Required flag: an optional stage's failure never threatens the run.
type StageError struct {
	Stage       string `json:"stage"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Context is the append-only record threaded through a run. Stages derive a
// new Context from the prior one; Operations and Errors grow by
// concatenation and are never overwritten.
type Context struct {
	Input      Message         `json:"input"`
	CreatedAt  time.Time       `json:"created_at"`
	SessionID  string          `json:"session_id"`
	UserID     string          `json:"user_id,omitempty"`
	Analyses   analysis.Bag    `json:"analyses,omitempty"`
	Persona    *synthesis.View `json:"persona,omitempty"`
	Operations []string        `json:"operations"`
	Errors     []StageError    `json:"errors"`
}

// NewContext builds the initial Context for a message.
func NewContext(msg Message) *Context {
	return &Context{
		Input:      msg,
		CreatedAt:  time.Now(),
		SessionID:  msg.SessionID,
		UserID:     msg.UserID,
		Operations: []string{},
		Errors:     []StageError{},
	}
}

// WithInput returns a copy of the Context carrying a rewritten message,
// re-deriving the session and user ids from it. The sanitize stage uses
// this to swap normalized text in for the raw input.
func (c *Context) WithInput(msg Message) *Context {
	next := *c
	next.Input = msg
	next.SessionID = msg.SessionID
	next.UserID = msg.UserID
	return &next
}

// WithAnalyses returns a copy of the Context carrying the fan-out results.
func (c *Context) WithAnalyses(bag analysis.Bag) *Context {
	next := *c
	next.Analyses = bag
	return &next
}

// WithPersona returns a copy of the Context carrying the synthesized view.
func (c *Context) WithPersona(view *synthesis.View) *Context {
	next := *c
	next.Persona = view
	return &next
}

// withOperation returns a copy with the stage name appended to Operations.
// Only the orchestrator appends here, and only after a stage succeeds.
func (c *Context) withOperation(stage string) *Context {
	next := *c
	next.Operations = append(append([]string{}, c.Operations...), stage)
	return &next
}

// withError returns a copy with the failure appended to Errors.
func (c *Context) withError(se StageError) *Context {
	next := *c
	next.Errors = append(append([]StageError{}, c.Errors...), se)
	return &next
}

// Slice projects the Context down to the read-only view handed to analysis
// branches.
func (c *Context) Slice() analysis.Slice {
	return analysis.Slice{
		Text:       c.Input.Text,
		SessionID:  c.SessionID,
		UserID:     c.UserID,
		ReceivedAt: c.Input.ReceivedAt,
		Metadata:   c.Input.Metadata,
	}
}

// StageFunc is the body of one stage. Returning (nil, nil) keeps the prior
// Context unchanged.
type StageFunc func(ctx context.Context, pc *Context) (*Context, error)

// Stage describes one named unit of pipeline work.
type Stage struct {
	// Name is unique within an orchestrator.
	Name string

	// Required stages gate overall success; optional stages may fail
	// without affecting it.
	Required bool

	// Timeout bounds one execution of Run. Zero means no deadline.
	Timeout time.Duration

	// Run executes the stage.
	Run StageFunc
}

// TraceEntry records one attempted stage. Stages skipped by an early abort
// never appear.
type TraceEntry struct {
	Stage   string    `json:"stage"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// Result is the outcome of one run. Execute always returns a complete
// Result, even when every stage fails.
type Result struct {
	Success  bool          `json:"success"`
	Context  *Context      `json:"context"`
	Trace    []TraceEntry  `json:"trace"`
	Duration time.Duration `json:"duration"`
}
