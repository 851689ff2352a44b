package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/personad/internal/logging"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("personad.store.qdrant")

const (
	// qdrantMaxMessageSize bounds gRPC messages (large record batches).
	qdrantMaxMessageSize = 50 * 1024 * 1024

	// qdrantDialTimeout bounds the initial health check at construction.
	qdrantDialTimeout = 5 * time.Second

	// qdrantRequestTimeout bounds individual requests.
	qdrantRequestTimeout = 30 * time.Second

	// qdrantRetryAttempts is the retry budget for transient failures.
	qdrantRetryAttempts = 3
)

// QdrantOptions configures the Qdrant gRPC backend.
type QdrantOptions struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// APIKey is the optional API key for authentication.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// CollectionPrefix namespaces the per-kind collections.
	// Default: "personad"
	CollectionPrefix string

	// VectorSize is the embedding dimension. DefaultVectorSize when zero.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (o *QdrantOptions) ApplyDefaults() {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		o.Port = 6334
	}
	if o.CollectionPrefix == "" {
		o.CollectionPrefix = "personad"
	}
	if o.VectorSize == 0 {
		o.VectorSize = DefaultVectorSize
	}
}

// Validate validates the options.
func (o *QdrantOptions) Validate() error {
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d (must be 1-65535)", ErrInvalidConfig, o.Port)
	}
	if o.VectorSize < 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore implements Store against an external Qdrant server over gRPC.
//
// Point ids are UUIDv5 values derived from kind and key, so upserts by key
// replace in place. The full record travels as a JSON payload field; key,
// session, user, and labels are mirrored into flat payload fields for
// server-side Must filters.
type QdrantStore struct {
	client  *qdrant.Client
	opts    QdrantOptions
	logger  *logging.Logger
	retries int

	mu     sync.RWMutex
	closed bool
}

// NewQdrantStore connects to the server, health-checks it, and provisions
// one collection per record kind.
func NewQdrantStore(opts QdrantOptions, logger *logging.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	qdrantConfig := &qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		UseTLS: opts.UseTLS,
		APIKey: opts.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(qdrantMaxMessageSize),
				grpc.MaxCallSendMsgSize(qdrantMaxMessageSize),
			),
		},
	}
	// For non-TLS connections, explicitly set insecure credentials.
	if !opts.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, opts: opts, logger: logger, retries: qdrantRetryAttempts}

	ctx, cancel := context.WithTimeout(context.Background(), qdrantDialTimeout)
	defer cancel()

	logger.Info(ctx, "connecting to qdrant",
		zap.String("host", opts.Host),
		zap.Int("port", opts.Port),
	)

	if err := s.Healthy(ctx); err != nil {
		_ = client.Close()
		logger.Error(ctx, "qdrant health check failed",
			zap.String("host", opts.Host),
			zap.Int("port", opts.Port),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.ensureCollections(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info(ctx, "qdrant store initialized",
		zap.String("host", opts.Host),
		zap.Int("port", opts.Port),
		zap.String("collection_prefix", opts.CollectionPrefix),
	)

	return s, nil
}

// collection names the collection backing a record kind.
func (s *QdrantStore) collection(kind Kind) string {
	return s.opts.CollectionPrefix + "-" + string(kind)
}

// ensureCollections provisions every record kind, tolerating creation races.
func (s *QdrantStore) ensureCollections(ctx context.Context) error {
	for _, kind := range Kinds() {
		name := s.collection(kind)
		exists, err := s.collectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("checking collection %s: %w", name, err)
		}
		if exists {
			continue
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.opts.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == codes.AlreadyExists {
				continue
			}
			return fmt.Errorf("%w: creating collection %s: %v", ErrUnavailable, name, err)
		}
	}
	return nil
}

func (s *QdrantStore) collectionExists(ctx context.Context, name string) (bool, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return info != nil, nil
}

// Execute runs fn against a handle bound to this store.
func (s *QdrantStore) Execute(ctx context.Context, fn func(Handle) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	return fn(&qdrantHandle{store: s})
}

// Healthy performs a health check against the server.
func (s *QdrantStore) Healthy(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, qdrantRequestTimeout)
	defer cancel()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: health check failed: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the client connection. Close is idempotent.
func (s *QdrantStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *QdrantStore) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

type qdrantHandle struct {
	store *QdrantStore
}

func (h *qdrantHandle) Get(ctx context.Context, kind Kind, key string) (*Record, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Get")
	defer span.End()

	span.SetAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("key", key),
	)

	if err := h.store.ready(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, qdrantRequestTimeout)
	defer cancel()

	var points []*qdrant.RetrievedPoint
	err := h.store.retryOperation(ctx, func() error {
		result, err := h.store.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: h.store.collection(kind),
			Ids:            []*qdrant.PointId{qdrant.NewIDUUID(recordID(kind, key))},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = result
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("%w: reading %s record: %v", ErrUnavailable, kind, err)
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}

	rec, err := decodeQdrantPayload(points[0].Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(otelcodes.Ok, "success")
	return rec, nil
}

func (h *qdrantHandle) Put(ctx context.Context, rec *Record) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Put")
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
		span.SetStatus(otelcodes.Error, err.Error())
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

	ctx, cancel := context.WithTimeout(ctx, qdrantRequestTimeout)
	defer cancel()

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(rec.ID),
		Vectors: qdrant.NewVectors(Embedding(string(content), h.store.opts.VectorSize)...),
		Payload: qdrantPayload(rec, content),
	}
	err = h.store.retryOperation(ctx, func() error {
		_, err := h.store.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: h.store.collection(rec.Kind),
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("%w: storing %s record: %v", ErrUnavailable, rec.Kind, err)
	}

	span.SetStatus(otelcodes.Ok, "success")
	h.store.logger.Debug(ctx, "stored record",
		zap.String("kind", string(rec.Kind)),
		zap.String("key", rec.Key),
	)
	return nil
}

func (h *qdrantHandle) List(ctx context.Context, kind Kind, f Filter) ([]*Record, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.List")
	defer span.End()

	span.SetAttributes(
		attribute.String("kind", string(kind)),
		attribute.Int("limit", f.Limit),
	)

	if err := h.store.ready(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, qdrantRequestTimeout)
	defer cancel()

	fetch := f.Limit
	if fetch <= 0 {
		fetch = DefaultListLimit
	}

	var points []*qdrant.ScoredPoint
	err := h.store.retryOperation(ctx, func() error {
		result, err := h.store.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: h.store.collection(kind),
			Query:          qdrant.NewQuery(Embedding(listProbe(kind, f), h.store.opts.VectorSize)...),
			Limit:          qdrant.PtrOf(uint64(fetch)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         qdrantFilter(f),
		})
		if err != nil {
			return err
		}
		points = result
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("%w: listing %s records: %v", ErrUnavailable, kind, err)
	}

	recs := make([]*Record, 0, len(points))
	for _, point := range points {
		rec, err := decodeQdrantPayload(point.Payload)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}
		recs = append(recs, rec)
	}

	sortRecords(recs)
	recs = capRecords(recs, f.Limit)

	span.SetAttributes(attribute.Int("results_count", len(recs)))
	span.SetStatus(otelcodes.Ok, "success")
	return recs, nil
}

func (h *qdrantHandle) Delete(ctx context.Context, kind Kind, key string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("key", key),
	)

	if err := h.store.ready(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, qdrantRequestTimeout)
	defer cancel()

	err := h.store.retryOperation(ctx, func() error {
		_, err := h.store.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: h.store.collection(kind),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{
						Ids: []*qdrant.PointId{qdrant.NewIDUUID(recordID(kind, key))},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("%w: deleting %s record: %v", ErrUnavailable, kind, err)
	}

	span.SetStatus(otelcodes.Ok, "success")
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := time.Second
	startTime := timeNow()

	for attempt := 0; attempt <= s.retries; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				s.logger.Info(ctx, "operation recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(startTime)),
				)
			}
			return nil
		}

		lastErr = err

		if !isTransientError(err) {
			return err
		}

		if attempt == s.retries {
			break
		}

		s.logger.Debug(ctx, "retrying operation after transient error",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.retries),
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	s.logger.Warn(ctx, "operation failed after all retries exhausted",
		zap.Int("total_attempts", s.retries+1),
		zap.Duration("total_time", time.Since(startTime)),
		zap.Error(lastErr),
	)

	return fmt.Errorf("operation failed after %d retries: %w", s.retries, lastErr)
}

// isTransientError checks if an error is transient and should be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Unauthenticated, codes.AlreadyExists:
		return false
	default:
		return false
	}
}

// qdrantPayload mirrors the filterable record fields into flat payload
// values alongside the canonical record JSON.
func qdrantPayload(rec *Record, content []byte) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		fieldKey:       newQdrantString(rec.Key),
		fieldRecord:    newQdrantString(string(content)),
		fieldCreatedAt: {Kind: &qdrant.Value_IntegerValue{IntegerValue: rec.CreatedAt.UnixNano()}},
		fieldUpdatedAt: {Kind: &qdrant.Value_IntegerValue{IntegerValue: rec.UpdatedAt.UnixNano()}},
	}
	if rec.SessionID != "" {
		payload[fieldSessionID] = newQdrantString(rec.SessionID)
	}
	if rec.UserID != "" {
		payload[fieldUserID] = newQdrantString(rec.UserID)
	}
	for k, v := range rec.Labels {
		payload[labelPrefix+k] = newQdrantString(v)
	}
	return payload
}

func newQdrantString(v string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
}

// decodeQdrantPayload recovers the record from the point payload.
func decodeQdrantPayload(payload map[string]*qdrant.Value) (*Record, error) {
	raw := payload[fieldRecord].GetStringValue()
	if raw == "" {
		return nil, fmt.Errorf("%w: point payload missing record field", ErrUnavailable)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decoding record payload: %w", err)
	}
	return &rec, nil
}

// qdrantFilter converts a Filter into server-side Must conditions.
func qdrantFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.SessionID != "" {
		must = append(must, matchCondition(fieldSessionID, f.SessionID))
	}
	if f.UserID != "" {
		must = append(must, matchCondition(fieldUserID, f.UserID))
	}
	for k, v := range f.Labels {
		must = append(must, matchCondition(labelPrefix+k, v))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func matchCondition(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: field,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

var _ Store = (*QdrantStore)(nil)
var _ Handle = (*qdrantHandle)(nil)
