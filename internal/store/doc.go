// Package store persists the durable persona records the pipeline reads and
// writes: long-term trait defaults, derived insights, relationship profiles,
// and rolling session state.
//
// Stages and synthesis never touch a backend directly. They receive a Store
// and run every operation inside an Execute callback:
//
//	err := st.Execute(ctx, func(h store.Handle) error {
//	    defaults, err := store.TraitDefaults(ctx, h, userID)
//	    if err != nil {
//	        return err
//	    }
//	    seed = defaults
//	    return nil
//	})
//
// Every call site treats store failures as recoverable and substitutes a
// documented default; nothing in the pipeline propagates a store error past
// the stage or synthesis body that saw it.
//
// # Records
//
// A Record is a kind, an upsert key, scoping ids, flat string labels for
// filtering, and a kind-specific JSON payload. The typed helpers
// (PutTraitDefault, AppendInsight, PutRelationship, PutSession and their
// readers) own the payload schemas; callers should not build Records by
// hand.
//
// # Backends
//
// Three backends implement Store, selected by store.backend:
//
//   - memory: mutex-guarded maps, nothing persisted. Default.
//   - chromem: embedded chromem-go database persisted under store.chromem.path.
//   - qdrant: external Qdrant server over gRPC with per-kind collections.
//
// The vector backends index records with a deterministic byte-pattern
// embedding (see Embedding), so no model or network is involved in storing
// or finding records.
package store
