package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/logging"
)

var tracer = otel.Tracer("personad.analysis")

// ErrInvalidGroup indicates a Group could not be built from the given
// analyzers.
var ErrInvalidGroup = errors.New("invalid analyzer group")

// GroupOptions configures NewGroup.
type GroupOptions struct {
	// Timeout bounds each branch. Zero means no per-branch deadline.
	Timeout time.Duration

	// MaxConcurrent caps concurrently running branches. Zero means
	// unbounded.
	MaxConcurrent int

	// Logger for branch outcomes. Defaults to a no-op logger.
	Logger *logging.Logger
}

// Group fans a message slice out to every configured analyzer and joins on
// all of them. Analyze always returns a complete Bag: a branch that
// errors, panics, or misses its deadline settles with its kind's fallback
// result instead of propagating.
type Group struct {
	analyzers []Analyzer
	timeout   time.Duration
	sem       chan struct{}
	logger    *logging.Logger
}

// NewGroup validates the analyzer set and builds a Group. Analyzer kinds
// must be valid and unique; an empty set is allowed and yields empty Bags.
func NewGroup(analyzers []Analyzer, opts GroupOptions) (*Group, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	seen := make(map[Kind]bool, len(analyzers))
	for i, a := range analyzers {
		if a == nil {
			return nil, fmt.Errorf("%w: analyzer %d is nil", ErrInvalidGroup, i)
		}
		kind := a.Kind()
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidGroup, kind)
		}
		if seen[kind] {
			return nil, fmt.Errorf("%w: duplicate analyzer for kind %q", ErrInvalidGroup, kind)
		}
		seen[kind] = true
	}

	g := &Group{
		analyzers: append([]Analyzer(nil), analyzers...),
		timeout:   opts.Timeout,
		logger:    logger,
	}
	if opts.MaxConcurrent > 0 {
		g.sem = make(chan struct{}, opts.MaxConcurrent)
	}
	return g, nil
}

// Kinds lists the configured analyzer kinds in registration order.
func (g *Group) Kinds() []Kind {
	out := make([]Kind, len(g.analyzers))
	for i, a := range g.analyzers {
		out[i] = a.Kind()
	}
	return out
}

// Analyze runs every branch concurrently and waits for all of them to
// settle. The returned Bag has exactly one entry per configured analyzer;
// it never errors and never returns early.
func (g *Group) Analyze(ctx context.Context, s Slice) Bag {
	bag := make(Bag, len(g.analyzers))
	if len(g.analyzers) == 0 {
		return bag
	}

	results := make(chan *Result, len(g.analyzers))

	var wg sync.WaitGroup
	for _, a := range g.analyzers {
		wg.Add(1)
		go func(a Analyzer) {
			defer wg.Done()
			results <- g.runBranch(ctx, a, s)
		}(a)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		bag[res.Kind] = res
	}
	return bag
}

// runBranch executes one analyzer and always settles: a real result on
// success, the kind's fallback on error, panic, deadline, or a cancelled
// parent context.
func (g *Group) runBranch(ctx context.Context, a Analyzer, s Slice) *Result {
	kind := a.Kind()

	if g.sem != nil {
		select {
		case g.sem <- struct{}{}:
			defer func() { <-g.sem }()
		case <-ctx.Done():
			g.logger.Warn(ctx, "analysis branch skipped, context done",
				zap.String("kind", string(kind)))
			return Fallback(kind)
		}
	}

	branchCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		branchCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	branchCtx, span := tracer.Start(branchCtx, "analysis.run_branch")
	span.SetAttributes(attribute.String("analysis.kind", string(kind)))
	defer span.End()

	start := timeNow()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("analyzer panicked: %v", r)}
			}
		}()
		res, err := a.Analyze(branchCtx, s)
		done <- outcome{result: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-branchCtx.Done():
		// Late results are discarded; the inner goroutine drains into the
		// buffered channel and exits.
		out = outcome{err: fmt.Errorf("branch timed out: %w", branchCtx.Err())}
	}
	duration := time.Since(start)

	if out.err != nil || out.result == nil {
		if out.err == nil {
			out.err = errors.New("analyzer returned no result")
		}
		span.RecordError(out.err)
		span.SetStatus(otelcodes.Error, "fallback")
		g.logger.Warn(ctx, "analysis branch failed, using fallback",
			zap.String("kind", string(kind)),
			zap.Duration("duration", duration),
			zap.Error(out.err),
		)
		return Fallback(kind)
	}

	res := out.result
	res.Kind = kind
	res.Confidence = clamp01(res.Confidence)

	span.SetAttributes(attribute.Float64("analysis.confidence", res.Confidence))
	span.SetStatus(otelcodes.Ok, "success")
	g.logger.Debug(ctx, "analysis branch settled",
		zap.String("kind", string(kind)),
		zap.Float64("confidence", res.Confidence),
		zap.Duration("duration", duration),
	)
	return res
}
