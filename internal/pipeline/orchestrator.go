package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/logging"
)

var tracer = otel.Tracer("personad.pipeline")

// StageStatus labels a stage transition in a progress update.
type StageStatus string

const (
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageUpdate reports one stage transition during a run.
type StageUpdate struct {
	Stage   string        `json:"stage"`
	Index   int           `json:"index"`
	Total   int           `json:"total"`
	Status  StageStatus   `json:"status"`
	Err     string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// ProgressFunc receives stage transitions as a run executes.
type ProgressFunc func(StageUpdate)

// Options tunes orchestrator behavior.
type Options struct {
	// ContinueOnError keeps the run going past a required-stage failure.
	// The run still reports Success=false.
	ContinueOnError bool

	// TraceEnabled collects a TraceEntry per attempted stage. When unset
	// the Result carries an empty trace.
	TraceEnabled bool

	// Progress, when set, receives one update per stage transition.
	Progress ProgressFunc

	// Logger receives run lifecycle events. Defaults to a nop logger.
	Logger *logging.Logger
}

// Orchestrator executes stages in a fixed order. It is immutable: WithStage
// and Reorder return a new Orchestrator, so a configured pipeline can be
// shared across goroutines and runs.
type Orchestrator struct {
	stages []Stage
	opts   Options
}

// New creates an empty orchestrator. Executing it succeeds vacuously.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Orchestrator{opts: opts}
}

// WithStage returns a copy of the orchestrator with the stage appended.
// The receiver is left unchanged.
func (o *Orchestrator) WithStage(st Stage) (*Orchestrator, error) {
	if st.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidStage)
	}
	if st.Run == nil {
		return nil, fmt.Errorf("%w: stage %q has no run function", ErrInvalidStage, st.Name)
	}
	for _, existing := range o.stages {
		if existing.Name == st.Name {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStage, st.Name)
		}
	}
	stages := make([]Stage, 0, len(o.stages)+1)
	stages = append(stages, o.stages...)
	stages = append(stages, st)
	return &Orchestrator{stages: stages, opts: o.opts}, nil
}

// Reorder returns a copy of the orchestrator whose stages execute in the
// given order. names must be an exact permutation of the configured stage
// names; otherwise ErrReorderInvalid is returned and the receiver is left
// unchanged.
func (o *Orchestrator) Reorder(names []string) (*Orchestrator, error) {
	if len(names) != len(o.stages) {
		return nil, fmt.Errorf("%w: got %d names for %d stages", ErrReorderInvalid, len(names), len(o.stages))
	}
	byName := make(map[string]Stage, len(o.stages))
	for _, st := range o.stages {
		byName[st.Name] = st
	}
	seen := make(map[string]bool, len(names))
	ordered := make([]Stage, 0, len(names))
	for _, name := range names {
		st, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown stage %q", ErrReorderInvalid, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate stage %q", ErrReorderInvalid, name)
		}
		seen[name] = true
		ordered = append(ordered, st)
	}
	return &Orchestrator{stages: ordered, opts: o.opts}, nil
}

// WithProgress returns a copy of the orchestrator that reports stage
// transitions to fn. Callers use it to attach per-run reporting to a
// shared pipeline.
func (o *Orchestrator) WithProgress(fn ProgressFunc) *Orchestrator {
	next := *o
	next.opts.Progress = fn
	return &next
}

// Stages lists the configured stage names in execution order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, len(o.stages))
	for i, st := range o.stages {
		names[i] = st.Name
	}
	return names
}

// Execute runs every configured stage against a fresh Context for msg. It
// never returns an error and never panics: stage faults, panics, and missed
// deadlines become StageErrors, plus trace entries when TraceEnabled is set,
// and the caller always gets a complete Result.
//
// A required stage's failure fails the run; unless ContinueOnError is set it
// also stops it, and the remaining stages neither run nor appear in the
// trace. Optional stage failures are recorded and skipped past. The run ctx
// is forwarded to stages for their own calls; the orchestrator itself reacts
// only to per-stage timeouts.
func (o *Orchestrator) Execute(ctx context.Context, msg Message) *Result {
	start := time.Now()
	pc := NewContext(msg)
	res := &Result{Success: true, Trace: []TraceEntry{}}

	ctx, span := tracer.Start(ctx, "pipeline.execute", oteltrace.WithAttributes(
		attribute.String("pipeline.message_id", msg.ID),
		attribute.String("pipeline.session_id", msg.SessionID),
		attribute.Int("pipeline.stages", len(o.stages)),
	))
	defer span.End()

	o.opts.Logger.Debug(ctx, "executing pipeline",
		zap.String("message_id", msg.ID),
		zap.String("session_id", msg.SessionID),
		zap.Int("stages", len(o.stages)))

	total := len(o.stages)
	for i, st := range o.stages {
		o.report(StageUpdate{Stage: st.Name, Index: i, Total: total, Status: StageRunning})
		o.opts.Logger.Trace(ctx, "stage starting", zap.String("stage", st.Name))

		stageStart := time.Now()
		next, err := o.runStage(ctx, st, pc)
		stageEnd := time.Now()
		elapsed := stageEnd.Sub(stageStart)

		entry := TraceEntry{Stage: st.Name, Start: stageStart, End: stageEnd, Success: err == nil}
		if err == nil {
			if o.opts.TraceEnabled {
				res.Trace = append(res.Trace, entry)
			}
			pc = next.withOperation(st.Name)
			o.opts.Logger.Trace(ctx, "stage completed",
				zap.String("stage", st.Name),
				zap.Duration("elapsed", elapsed))
			o.report(StageUpdate{Stage: st.Name, Index: i, Total: total, Status: StageSucceeded, Elapsed: elapsed})
			continue
		}

		entry.Error = err.Error()
		if o.opts.TraceEnabled {
			res.Trace = append(res.Trace, entry)
		}
		pc = pc.withError(StageError{Stage: st.Name, Message: err.Error(), Recoverable: !st.Required})
		o.opts.Logger.Warn(ctx, "stage failed",
			zap.String("stage", st.Name),
			zap.Bool("required", st.Required),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		o.report(StageUpdate{Stage: st.Name, Index: i, Total: total, Status: StageFailed, Err: err.Error(), Elapsed: elapsed})

		if !st.Required {
			continue
		}
		res.Success = false
		if o.opts.ContinueOnError {
			continue
		}
		o.opts.Logger.Warn(ctx, "aborting pipeline run",
			zap.String("stage", st.Name),
			zap.Int("skipped", total-i-1))
		break
	}

	res.Context = pc
	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Bool("pipeline.success", res.Success),
		attribute.Int("pipeline.errors", len(pc.Errors)),
	)
	o.opts.Logger.Debug(ctx, "pipeline run finished",
		zap.Bool("success", res.Success),
		zap.Duration("duration", res.Duration),
		zap.Int("operations", len(pc.Operations)),
		zap.Int("errors", len(pc.Errors)))
	return res
}

func (o *Orchestrator) runStage(ctx context.Context, st Stage, pc *Context) (*Context, error) {
	ctx, span := tracer.Start(ctx, "pipeline.stage", oteltrace.WithAttributes(
		attribute.String("stage.name", st.Name),
		attribute.Bool("stage.required", st.Required),
	))
	defer span.End()

	next, err := o.raceStage(ctx, st, pc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	return next, err
}

// raceStage runs the stage body, racing it against the stage deadline when
// one is configured. A result that lands after the deadline is dropped; the
// buffered channel lets the late goroutine finish without leaking.
func (o *Orchestrator) raceStage(ctx context.Context, st Stage, pc *Context) (*Context, error) {
	if st.Timeout <= 0 {
		return o.invoke(ctx, st, pc)
	}

	type settled struct {
		next *Context
		err  error
	}
	done := make(chan settled, 1)
	stageCtx, cancel := context.WithTimeout(ctx, st.Timeout)
	defer cancel()
	go func() {
		next, err := o.invoke(stageCtx, st, pc)
		done <- settled{next: next, err: err}
	}()

	timer := time.NewTimer(st.Timeout)
	defer timer.Stop()
	select {
	case s := <-done:
		// A stage that observed its deadline reports the same canonical
		// timeout as one that overran it.
		if s.err != nil && errors.Is(s.err, context.DeadlineExceeded) && stageCtx.Err() != nil {
			return nil, stageTimeout(st.Timeout)
		}
		return s.next, s.err
	case <-timer.C:
		return nil, stageTimeout(st.Timeout)
	}
}

// invoke runs the stage body with panic isolation. A (nil, nil) return keeps
// the prior Context.
func (o *Orchestrator) invoke(ctx context.Context, st Stage, pc *Context) (next *Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.opts.Logger.Error(ctx, "stage panicked",
				zap.String("stage", st.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
			next = nil
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()

	next, err = st.Run(ctx, pc)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = pc
	}
	return next, nil
}

func (o *Orchestrator) report(u StageUpdate) {
	if o.opts.Progress != nil {
		o.opts.Progress(u)
	}
}
