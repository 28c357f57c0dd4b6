package cache

import (
	"math"
	"sync"
)

// Index is an in-memory nearest-neighbor index over request embeddings.
// Lookups are a linear cosine scan; the live entry count is bounded by
// the cache size, which keeps brute force well inside the latency noise
// of the workers the cache fronts.
type Index struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{vecs: make(map[string][]float32)}
}

// Upsert stores the embedding for a fingerprint, replacing any previous one.
// Empty vectors are ignored.
func (ix *Index) Upsert(fingerprint string, vec []float32) {
	if fingerprint == "" || len(vec) == 0 {
		return
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vecs[fingerprint] = cp
}

// Remove drops a fingerprint from the index.
func (ix *Index) Remove(fingerprint string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.vecs, fingerprint)
}

// Clear drops every entry.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vecs = make(map[string][]float32)
}

// Len returns the number of indexed fingerprints.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vecs)
}

// Nearest returns the fingerprint whose embedding has the highest cosine
// similarity to vec. Entries with mismatched dimensions are skipped.
func (ix *Index) Nearest(vec []float32) (fingerprint string, similarity float64, ok bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	best := math.Inf(-1)
	for fp, v := range ix.vecs {
		sim, valid := cosine(vec, v)
		if !valid {
			continue
		}
		if sim > best {
			best = sim
			fingerprint = fp
		}
	}
	if fingerprint == "" {
		return "", 0, false
	}
	return fingerprint, best, true
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
