// Package processor assembles the message pipeline and runs it behind a
// stable service interface.
//
// A Processor owns the orchestrator (sanitize, analysis fan-out,
// synthesis, archive), the store collaborator, the event publisher, and
// the run bookkeeping behind the stats endpoint. Process mirrors the
// pipeline's contract upward: pipeline failures ride inside the Response,
// and an error comes back only for an invalid request or a closed service.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/analysis"
	"github.com/fyrsmithlabs/personad/internal/config"
	"github.com/fyrsmithlabs/personad/internal/events"
	"github.com/fyrsmithlabs/personad/internal/logging"
	"github.com/fyrsmithlabs/personad/internal/pipeline"
	"github.com/fyrsmithlabs/personad/internal/sanitize"
	"github.com/fyrsmithlabs/personad/internal/store"
	"github.com/fyrsmithlabs/personad/internal/synthesis"
)

const instrumentationName = "github.com/fyrsmithlabs/personad/internal/processor"

var tracer = otel.Tracer(instrumentationName)

var (
	// ErrClosed marks calls against a closed processor.
	ErrClosed = errors.New("processor closed")

	// ErrInvalidRequest marks a request that cannot become a pipeline run.
	ErrInvalidRequest = errors.New("invalid request")
)

// Pipeline stage names in execution order.
const (
	StageSanitize   = "sanitize"
	StageAnalyze    = "analyze"
	StageSynthesize = "synthesize"
	StageArchive    = "archive"
)

// Service is the stable entry point for message processing. Transports
// (HTTP, CLI) depend on it, not on the Processor.
type Service interface {
	Process(ctx context.Context, req Request) (*Response, error)
	Stats(ctx context.Context) (*Stats, error)
	Healthy(ctx context.Context) error
	Close() error
}

// Request is one message to process.
type Request struct {
	Text      string            `json:"text"`
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Trace includes the execution trace in the response.
	Trace bool `json:"trace,omitempty"`
}

// Response is the outcome of one run, shaped for transports. Success
// reflects the pipeline run; request-level problems surface as errors from
// Process instead.
type Response struct {
	RunID      string                `json:"run_id"`
	SessionID  string                `json:"session_id"`
	Success    bool                  `json:"success"`
	Persona    *synthesis.View       `json:"persona,omitempty"`
	Analyses   analysis.Bag          `json:"analyses,omitempty"`
	Operations []string              `json:"operations"`
	Errors     []pipeline.StageError `json:"errors"`
	Trace      []pipeline.TraceEntry `json:"trace,omitempty"`
	DurationMS int64                 `json:"duration_ms"`
}

// Dependencies carries the daemon-owned collaborators into New.
type Dependencies struct {
	// Store is required; the processor closes it on Close.
	Store store.Store

	// NATS is optional; nil disables run events.
	NATS *nats.Conn

	// Logger defaults to a nop logger.
	Logger *logging.Logger
}

// Processor implements Service over an assembled pipeline.
type Processor struct {
	orc       *pipeline.Orchestrator
	group     *analysis.Group
	synth     *synthesis.Synthesizer
	scrubber  *sanitize.Scrubber
	store     store.Store
	publisher *events.Publisher
	registry  *events.RunRegistry
	metrics   *Metrics
	logger    *logging.Logger

	otelRuns   metric.Int64Counter
	otelRunDur metric.Float64Histogram

	stageTimeout    time.Duration
	maxMessageBytes int

	ring       *runRing
	runsTotal  atomic.Int64
	runsFailed atomic.Int64
	closed     atomic.Bool
	startedAt  time.Time
}

var _ Service = (*Processor)(nil)

// New assembles a Processor from configuration and collaborators.
func New(cfg *config.Config, deps Dependencies) (*Processor, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if deps.Store == nil {
		return nil, errors.New("processor requires a store")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	vocab, err := cfg.BuildVocabulary()
	if err != nil {
		return nil, fmt.Errorf("building vocabulary: %w", err)
	}

	var scrubber *sanitize.Scrubber
	if cfg.Sanitize.Scrub {
		scrubber, err = sanitize.NewScrubber(sanitize.ScrubberOptions{
			AllowlistPath: cfg.Sanitize.AllowlistPath,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("building scrubber: %w", err)
		}
	}

	group, err := analysis.NewGroup([]analysis.Analyzer{
		analysis.NewIntentAnalyzer(),
		analysis.NewSessionAnalyzer(deps.Store, logger),
		analysis.NewMemoryAnalyzer(deps.Store),
		analysis.NewSocialAnalyzer(deps.Store, logger),
	}, analysis.GroupOptions{
		Timeout:       cfg.Analysis.Timeout,
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building analyzer group: %w", err)
	}

	p := &Processor{
		group: group,
		synth: synthesis.NewSynthesizer(deps.Store, synthesis.Options{
			Vocabulary: vocab,
			Tuning:     cfg.Synthesis.Values(),
			Logger:     logger,
		}),
		scrubber: scrubber,
		store:    deps.Store,
		publisher: events.NewPublisher(deps.NATS, events.Options{
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Logger:        logger,
		}),
		registry:        events.NewRunRegistry(0),
		metrics:         NewMetrics(),
		logger:          logger,
		stageTimeout:    cfg.Pipeline.StageTimeout,
		maxMessageBytes: cfg.Sanitize.MaxMessageBytes,
		ring:            newRunRing(DefaultRingSize),
		startedAt:       time.Now(),
	}
	p.initInstruments()

	orc := pipeline.New(pipeline.Options{
		ContinueOnError: cfg.Pipeline.ContinueOnError,
		TraceEnabled:    cfg.Pipeline.TraceEnabled,
		Logger:          logger,
	})
	for _, st := range []pipeline.Stage{
		p.sanitizeStage(),
		p.analyzeStage(),
		p.synthesizeStage(),
		p.archiveStage(),
	} {
		orc, err = orc.WithStage(st)
		if err != nil {
			return nil, fmt.Errorf("assembling pipeline: %w", err)
		}
	}
	p.orc = orc

	logger.Info(context.Background(), "processor assembled",
		zap.Strings("stages", orc.Stages()),
		zap.Bool("scrubbing", scrubber != nil),
		zap.Bool("events", deps.NATS != nil))
	return p, nil
}

func (p *Processor) initInstruments() {
	meter := otel.Meter(instrumentationName)
	var err error

	p.otelRuns, err = meter.Int64Counter(
		"personad.runs",
		metric.WithDescription("Pipeline runs labeled by outcome (success, failure)"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		p.logger.Warn(context.Background(), "failed to create runs counter", zap.Error(err))
	}

	p.otelRunDur, err = meter.Float64Histogram(
		"personad.run.duration",
		metric.WithDescription("End-to-end pipeline run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		p.logger.Warn(context.Background(), "failed to create run duration histogram", zap.Error(err))
	}
}

// Process runs one message through the pipeline. The returned Response is
// complete even when the run failed; an error means the request never
// became a run.
func (p *Processor) Process(ctx context.Context, req Request) (*Response, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	msg, err := p.buildMessage(req)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "processor.process", oteltrace.WithAttributes(
		attribute.String("run.id", msg.ID),
		attribute.String("run.session_id", msg.SessionID),
	))
	defer span.End()

	p.metrics.ActiveRuns.Inc()
	defer p.metrics.ActiveRuns.Dec()

	p.registry.Begin(msg)
	p.publisher.RunStarted(ctx, msg, p.orc.Stages())

	res := p.orc.WithProgress(p.progressHook(ctx, msg)).Execute(ctx, msg)

	p.settleRun(ctx, msg, res)
	span.SetAttributes(attribute.Bool("run.success", res.Success))

	resp := &Response{
		RunID:      msg.ID,
		SessionID:  msg.SessionID,
		Success:    res.Success,
		Persona:    res.Context.Persona,
		Analyses:   res.Context.Analyses,
		Operations: res.Context.Operations,
		Errors:     res.Context.Errors,
		DurationMS: res.Duration.Milliseconds(),
	}
	if req.Trace {
		resp.Trace = res.Trace
	}
	return resp, nil
}

// buildMessage validates the request and normalizes its identifiers.
func (p *Processor) buildMessage(req Request) (pipeline.Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return pipeline.Message{}, fmt.Errorf("%w: text is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return pipeline.Message{}, fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	}
	msg := pipeline.NewMessage(text, sanitize.Identifier(req.SessionID))
	if req.UserID != "" {
		msg.UserID = sanitize.Identifier(req.UserID)
	}
	msg.Metadata = req.Metadata
	return msg, nil
}

// progressHook fans stage transitions out to the registry, metrics, and
// the event publisher.
func (p *Processor) progressHook(ctx context.Context, msg pipeline.Message) pipeline.ProgressFunc {
	return func(u pipeline.StageUpdate) {
		switch u.Status {
		case pipeline.StageRunning:
			p.registry.Progress(msg.ID, u.Stage)
		case pipeline.StageSucceeded:
			p.metrics.RecordStage(u.Stage, u.Elapsed, "")
		case pipeline.StageFailed:
			p.metrics.RecordStage(u.Stage, u.Elapsed, u.Err)
		}
		p.publisher.StageProgressed(ctx, msg, u)
	}
}

// settleRun records the outcome everywhere it is observed.
func (p *Processor) settleRun(ctx context.Context, msg pipeline.Message, res *pipeline.Result) {
	p.runsTotal.Add(1)
	if !res.Success {
		p.runsFailed.Add(1)
	}
	p.metrics.RecordRun(res.Success, res.Duration)

	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	if p.otelRuns != nil {
		p.otelRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if p.otelRunDur != nil {
		p.otelRunDur.Record(ctx, res.Duration.Seconds())
	}

	summary := RunSummary{
		RunID:      msg.ID,
		SessionID:  msg.SessionID,
		Success:    res.Success,
		Errors:     len(res.Context.Errors),
		DurationMS: res.Duration.Milliseconds(),
		FinishedAt: time.Now(),
	}
	if res.Context.Persona != nil {
		summary.Confidence = res.Context.Persona.Confidence
	}
	for _, kind := range res.Context.Analyses.Present() {
		summary.Analyses++
		if r, ok := res.Context.Analyses.Get(kind); ok && r.Fallback {
			summary.Fallbacks++
		}
	}
	p.ring.add(summary)

	p.registry.Finish(msg.ID, res.Success)
	p.publisher.RunCompleted(ctx, msg, res)
}

// Stats aggregates processor activity for the stats endpoint.
func (p *Processor) Stats(_ context.Context) (*Stats, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	st := &Stats{
		RunsTotal:     p.runsTotal.Load(),
		RunsFailed:    p.runsFailed.Load(),
		ActiveRuns:    p.registry.Active(),
		UptimeSeconds: int64(time.Since(p.startedAt).Seconds()),
	}
	aggregate(st, p.ring.snapshot(), time.Now())
	return st, nil
}

// Healthy reports whether the processor can serve runs.
func (p *Processor) Healthy(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.store.Healthy(ctx)
}

// Reload applies the runtime-adjustable parts of a new configuration.
// Only synthesis tuning swaps in place; structural sections (server,
// store, pipeline shape) take effect on restart.
func (p *Processor) Reload(cfg *config.Config) {
	if cfg == nil || p.closed.Load() {
		return
	}
	p.synth.SetTuning(cfg.Synthesis.Values())
	p.logger.Info(context.Background(), "synthesis tuning reloaded")
}

// Close stops the processor and releases the store. Idempotent.
func (p *Processor) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.logger.Info(context.Background(), "processor closing")
	return p.store.Close()
}
