// Package store defines the durable record collaborator consumed by the
// persona pipeline.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when no record exists under a kind and key.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable indicates the backing engine failed or rejected an operation.
	ErrUnavailable = errors.New("store unavailable")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrInvalidRecord indicates a record missing required fields.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DefaultListLimit caps List results when the filter does not set a limit.
const DefaultListLimit = 100

// Kind partitions records into typed collections.
type Kind string

const (
	// KindTraitDefaults holds long-term trait defaults, one record per user and axis.
	KindTraitDefaults Kind = "trait-defaults"

	// KindInsight holds derived insight records appended after synthesis.
	KindInsight Kind = "insight"

	// KindRelationship holds per-user relationship profiles, one record per entity.
	KindRelationship Kind = "relationship"

	// KindSession holds rolling per-session conversation state.
	KindSession Kind = "session"
)

// Kinds returns every record kind a backend must provision.
func Kinds() []Kind {
	return []Kind{KindTraitDefaults, KindInsight, KindRelationship, KindSession}
}

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTraitDefaults, KindInsight, KindRelationship, KindSession:
		return true
	default:
		return false
	}
}

// Record is one durable fact about a user or session.
type Record struct {
	// ID is the engine identifier. Backends derive it from Kind and Key on
	// Put; caller-supplied values are overwritten.
	ID string `json:"id"`

	// Kind selects the collection the record lives in.
	Kind Kind `json:"kind"`

	// Key is the upsert key within the kind: a user id, a session id, or a
	// composite such as "user:axis".
	Key string `json:"key"`

	// SessionID scopes the record to a conversation session.
	SessionID string `json:"session_id,omitempty"`

	// UserID scopes the record to a user.
	UserID string `json:"user_id,omitempty"`

	// Labels hold flat string metadata used for equality filters.
	Labels map[string]string `json:"labels,omitempty"`

	// Data is the kind-specific JSON payload.
	Data []byte `json:"data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields every backend requires.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}
	if r.Key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidRecord)
	}
	return nil
}

// Filter narrows List results. The zero value matches every record of the kind.
type Filter struct {
	// SessionID, when set, matches records with the same session id.
	SessionID string

	// UserID, when set, matches records with the same user id.
	UserID string

	// Labels, when set, must all match the record's labels exactly.
	Labels map[string]string

	// Limit caps the number of returned records. Zero means DefaultListLimit.
	Limit int
}

// Matches reports whether the record satisfies every set condition.
func (f Filter) Matches(r *Record) bool {
	if r == nil {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	for k, v := range f.Labels {
		if r.Labels[k] != v {
			return false
		}
	}
	return true
}

// Handle is the per-call view of the store, valid only inside the Execute
// callback that produced it.
type Handle interface {
	// Get returns the record stored under kind and key.
	// Returns ErrNotFound when absent.
	Get(ctx context.Context, kind Kind, key string) (*Record, error)

	// Put inserts or replaces the record stored under its kind and key.
	// The record's ID is derived from kind and key; UpdatedAt is stamped by
	// the store and CreatedAt is preserved across replacements.
	Put(ctx context.Context, rec *Record) error

	// List returns records of one kind matching the filter, most recently
	// updated first.
	List(ctx context.Context, kind Kind, f Filter) ([]*Record, error)

	// Delete removes the record under kind and key. Deleting an absent
	// record is not an error.
	Delete(ctx context.Context, kind Kind, key string) error
}

// Store is the durable record collaborator. Pipeline stages and synthesis
// reach it only through Execute; each call is independently atomic from the
// caller's perspective and no locks are held across calls.
//
// Implementations:
//   - MemoryStore: mutex-guarded maps (default, tests and dev)
//   - ChromemStore: embedded chromem-go with on-disk persistence
//   - QdrantStore: external Qdrant server over gRPC
type Store interface {
	// Execute runs fn against a Handle. Backend failures inside fn surface
	// as the callback's error; Execute itself fails only when the store is
	// closed.
	Execute(ctx context.Context, fn func(Handle) error) error

	// Healthy reports whether the backing engine is reachable.
	Healthy(ctx context.Context) error

	// Close releases backend resources. Operations after Close return ErrClosed.
	Close() error
}

// Payload field names shared by the embedded backends.
const (
	fieldKey       = "key"
	fieldSessionID = "session_id"
	fieldUserID    = "user_id"
	fieldRecord    = "record"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
	labelPrefix    = "label."
)

// recordID derives the stable engine id for a kind and key. Qdrant point ids
// must be UUIDs or unsigned integers; chromem accepts any string, so both
// backends share the UUIDv5 form.
func recordID(kind Kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(kind)+"/"+key)).String()
}

// cloneRecord returns a deep copy so callers cannot alias stored state.
func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Labels != nil {
		cp.Labels = make(map[string]string, len(r.Labels))
		for k, v := range r.Labels {
			cp.Labels[k] = v
		}
	}
	if r.Data != nil {
		cp.Data = append([]byte(nil), r.Data...)
	}
	return &cp
}

// sortRecords orders records most recently updated first, breaking ties by
// key so listings are deterministic.
func sortRecords(recs []*Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].UpdatedAt.Equal(recs[j].UpdatedAt) {
			return recs[i].UpdatedAt.After(recs[j].UpdatedAt)
		}
		return recs[i].Key < recs[j].Key
	})
}

// capRecords applies the filter limit after sorting.
func capRecords(recs []*Record, limit int) []*Record {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
