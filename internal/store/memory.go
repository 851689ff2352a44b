package store

import (
	"context"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory Store.
//
// It backs tests and single-process development runs. Records live in
// per-kind maps keyed by record key; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Kind]map[string]*Record
	closed  bool
}

// NewMemoryStore creates an empty in-memory store with every kind provisioned.
func NewMemoryStore() *MemoryStore {
	records := make(map[Kind]map[string]*Record, len(Kinds()))
	for _, kind := range Kinds() {
		records[kind] = make(map[string]*Record)
	}
	return &MemoryStore{records: records}
}

// Execute runs fn against a handle bound to this store.
func (s *MemoryStore) Execute(ctx context.Context, fn func(Handle) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	return fn(&memoryHandle{store: s})
}

// Healthy reports whether the store accepts operations.
func (s *MemoryStore) Healthy(ctx context.Context) error {
	return s.ready()
}

// Close marks the store closed. Close is idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

type memoryHandle struct {
	store *MemoryStore
}

func (h *memoryHandle) Get(ctx context.Context, kind Kind, key string) (*Record, error) {
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()

	if h.store.closed {
		return nil, ErrClosed
	}
	rec, ok := h.store.records[kind][key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (h *memoryHandle) Put(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.store.closed {
		return ErrClosed
	}
	kinds := h.store.records[rec.Kind]
	if kinds == nil {
		kinds = make(map[string]*Record)
		h.store.records[rec.Kind] = kinds
	}

	now := timeNow().UTC()
	rec.ID = recordID(rec.Kind, rec.Key)
	rec.UpdatedAt = now
	if prior, ok := kinds[rec.Key]; ok {
		rec.CreatedAt = prior.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	kinds[rec.Key] = cloneRecord(rec)
	return nil
}

func (h *memoryHandle) List(ctx context.Context, kind Kind, f Filter) ([]*Record, error) {
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()

	if h.store.closed {
		return nil, ErrClosed
	}
	recs := make([]*Record, 0)
	for _, rec := range h.store.records[kind] {
		if f.Matches(rec) {
			recs = append(recs, cloneRecord(rec))
		}
	}
	sortRecords(recs)
	return capRecords(recs, f.Limit), nil
}

func (h *memoryHandle) Delete(ctx context.Context, kind Kind, key string) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.store.closed {
		return ErrClosed
	}
	delete(h.store.records[kind], key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ Handle = (*memoryHandle)(nil)
