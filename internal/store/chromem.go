package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/logging"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("personad.store.chromem")

// ChromemOptions configures the embedded chromem-go backend.
type ChromemOptions struct {
	// Path is the directory for persistent storage. Required.
	Path string

	// Compress enables gzip compression for persisted documents.
	Compress bool

	// VectorSize is the embedding dimension. DefaultVectorSize when zero.
	VectorSize int
}

// ChromemStore implements Store on chromem-go, an embeddable vector database
// with file persistence and no external service.
//
// Each record kind lives in its own collection. Documents carry the full
// record as JSON content plus flat metadata for key, session, user, and
// label filters, so reads never depend on embedding quality.
type ChromemStore struct {
	db     *chromem.DB
	opts   ChromemOptions
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool
}

// NewChromemStore opens (or creates) the embedded database at opts.Path and
// provisions one collection per record kind.
func NewChromemStore(opts ChromemOptions, logger *logging.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: chromem path is required", ErrInvalidConfig)
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = DefaultVectorSize
	}
	if opts.VectorSize < 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", opts.Path, err)
	}

	db, err := chromem.NewPersistentDB(opts.Path, opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	s := &ChromemStore{db: db, opts: opts, logger: logger}

	// Provision every kind up front so reads never race collection creation.
	// The embedding function must always be passed: chromem-go falls back to
	// its OpenAI embedder when given nil for a persisted collection.
	for _, kind := range Kinds() {
		if _, err := db.GetOrCreateCollection(chromemCollection(kind), nil, s.embeddingFunc()); err != nil {
			return nil, fmt.Errorf("creating collection for %s: %w", kind, err)
		}
	}

	logger.Info(context.Background(), "chromem store initialized",
		zap.String("path", opts.Path),
		zap.Bool("compress", opts.Compress),
		zap.Int("vector_size", opts.VectorSize),
	)

	return s, nil
}

// chromemCollection names the collection backing a record kind.
func chromemCollection(kind Kind) string {
	return "personad-" + string(kind)
}

// embeddingFunc adapts the deterministic embedding to chromem's interface.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return Embedding(text, s.opts.VectorSize), nil
	}
}

// Execute runs fn against a handle bound to this store.
func (s *ChromemStore) Execute(ctx context.Context, fn func(Handle) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	return fn(&chromemHandle{store: s})
}

// Healthy reports whether the database and its collections are usable.
func (s *ChromemStore) Healthy(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, kind := range Kinds() {
		if s.db.GetCollection(chromemCollection(kind), s.embeddingFunc()) == nil {
			return fmt.Errorf("%w: missing collection for %s", ErrUnavailable, kind)
		}
	}
	return nil
}

// Close marks the store closed. chromem persists synchronously per write, so
// there is nothing to flush.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *ChromemStore) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// query runs a filtered similarity query against one kind's collection.
// k <= 0 means "all documents in the collection".
func (s *ChromemStore) query(ctx context.Context, kind Kind, text string, k int, where map[string]string) ([]chromem.Result, error) {
	collection := s.db.GetCollection(chromemCollection(kind), s.embeddingFunc())
	if collection == nil {
		return nil, fmt.Errorf("%w: missing collection for %s", ErrUnavailable, kind)
	}

	// Cap k at collection size (chromem requires nResults <= doc count).
	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k <= 0 || k > count {
		k = count
	}

	results, err := collection.Query(ctx, text, k, where, nil)
	if err != nil {
		// chromem also rejects result sizes above the filtered document count.
		if strings.Contains(err.Error(), "nResults") {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: querying %s records: %v", ErrUnavailable, kind, err)
	}
	return results, nil
}

type chromemHandle struct {
	store *ChromemStore
}

func (h *chromemHandle) Get(ctx context.Context, kind Kind, key string) (*Record, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Get")
	defer span.End()

	span.SetAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("key", key),
	)

	if err := h.store.ready(); err != nil {
		return nil, err
	}

	results, err := h.store.query(ctx, kind, key, 1, map[string]string{fieldKey: key})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}

	rec, err := decodeChromemResult(results[0])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")
	return rec, nil
}

func (h *chromemHandle) Put(ctx context.Context, rec *Record) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Put")
	defer span.End()

	if err := rec.Validate(); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.String("kind", string(rec.Kind)),
		attribute.String("key", rec.Key),
	)

	if err := h.store.ready(); err != nil {
		return err
	}

	prior, err := h.Get(ctx, rec.Kind, rec.Key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	now := timeNow().UTC()
	rec.ID = recordID(rec.Kind, rec.Key)
	rec.UpdatedAt = now
	if prior != nil {
		rec.CreatedAt = prior.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	content, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encoding %s record: %w", rec.Kind, err)
	}

	collection := h.store.db.GetCollection(chromemCollection(rec.Kind), h.store.embeddingFunc())
	if collection == nil {
		err := fmt.Errorf("%w: missing collection for %s", ErrUnavailable, rec.Kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   string(content),
		Metadata:  chromemMetadata(rec),
		Embedding: Embedding(string(content), h.store.opts.VectorSize),
	}
	// Concurrency of 1: the embedding is already computed.
	if err := collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: storing %s record: %v", ErrUnavailable, rec.Kind, err)
	}

	span.SetStatus(codes.Ok, "success")
	h.store.logger.Debug(ctx, "stored record",
		zap.String("kind", string(rec.Kind)),
		zap.String("key", rec.Key),
	)
	return nil
}

func (h *chromemHandle) List(ctx context.Context, kind Kind, f Filter) ([]*Record, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.List")
	defer span.End()

	span.SetAttributes(
		attribute.String("kind", string(kind)),
		attribute.Int("limit", f.Limit),
	)

	if err := h.store.ready(); err != nil {
		return nil, err
	}

	results, err := h.store.query(ctx, kind, listProbe(kind, f), 0, chromemWhere(f))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	recs := make([]*Record, 0, len(results))
	for _, result := range results {
		rec, err := decodeChromemResult(result)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		recs = append(recs, rec)
	}

	sortRecords(recs)
	recs = capRecords(recs, f.Limit)

	span.SetAttributes(attribute.Int("results_count", len(recs)))
	span.SetStatus(codes.Ok, "success")
	return recs, nil
}

func (h *chromemHandle) Delete(ctx context.Context, kind Kind, key string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("key", key),
	)

	if err := h.store.ready(); err != nil {
		return err
	}

	collection := h.store.db.GetCollection(chromemCollection(kind), h.store.embeddingFunc())
	if collection == nil {
		err := fmt.Errorf("%w: missing collection for %s", ErrUnavailable, kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := collection.Delete(ctx, nil, nil, recordID(kind, key)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: deleting %s record: %v", ErrUnavailable, kind, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// chromemMetadata flattens the filterable record fields into chromem's
// string-map metadata.
func chromemMetadata(rec *Record) map[string]string {
	md := map[string]string{fieldKey: rec.Key}
	if rec.SessionID != "" {
		md[fieldSessionID] = rec.SessionID
	}
	if rec.UserID != "" {
		md[fieldUserID] = rec.UserID
	}
	for k, v := range rec.Labels {
		md[labelPrefix+k] = v
	}
	return md
}

// chromemWhere converts a Filter into chromem's equality filter map.
func chromemWhere(f Filter) map[string]string {
	where := make(map[string]string)
	if f.SessionID != "" {
		where[fieldSessionID] = f.SessionID
	}
	if f.UserID != "" {
		where[fieldUserID] = f.UserID
	}
	for k, v := range f.Labels {
		where[labelPrefix+k] = v
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

// decodeChromemResult recovers the record from the document content.
func decodeChromemResult(result chromem.Result) (*Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(result.Content), &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", result.ID, err)
	}
	return &rec, nil
}

var _ Store = (*ChromemStore)(nil)
var _ Handle = (*chromemHandle)(nil)
