package store

// DefaultVectorSize is the embedding dimension used when none is configured.
const DefaultVectorSize = 256

// Embedding derives a deterministic vector from text so the vector-backed
// engines can index records without a model or a network call.
//
// The vector is a byte-pattern fingerprint, not a semantic embedding:
// identical text always maps to the identical vector, which is all the
// record store needs for exact-key reads and filtered listings.
func Embedding(text string, size int) []float32 {
	if size <= 0 {
		size = DefaultVectorSize
	}
	vector := make([]float32, size)
	if text == "" {
		return vector
	}
	for i := range vector {
		vector[i] = float32(text[i%len(text)]) / 255.0
	}
	return vector
}

// listProbe picks a non-empty query text for a filtered listing. Membership
// comes from the backend filter; the probe only ranks results ahead of the
// recency sort.
func listProbe(kind Kind, f Filter) string {
	if f.UserID != "" {
		return f.UserID
	}
	if f.SessionID != "" {
		return f.SessionID
	}
	return string(kind)
}
