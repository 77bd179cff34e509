package semantic

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/WessleyAI/wessley-rag/engine/domain"
)

// MemoryStore is a volatile in-process Store. Queries are brute-force
// cosine scans, which is fine at demo scale.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dim     int
	records []Record
	index   map[string]int
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

var _ Store = (*MemoryStore)(nil)

// EnsureCollection drops any existing collection called name and creates an
// empty one with the given dimensionality.
func (m *MemoryStore) EnsureCollection(_ context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("semantic: create collection %s: %w", name,
			domain.NewValidationError("dimensions", fmt.Sprint(dim), domain.ErrInvalidConfiguration))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = &memCollection{dim: dim, index: make(map[string]int)}
	return nil
}

// DeleteCollection drops the collection if present.
func (m *MemoryStore) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

// Upsert inserts or replaces records by ID.
func (m *MemoryStore) Upsert(_ context.Context, name string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("semantic: upsert %s: %w", name, domain.ErrCollectionNotInitialized)
	}
	for _, r := range records {
		if len(r.Vector) != c.dim {
			return fmt.Errorf("semantic: upsert %s: %w: %w: got %d, want %d",
				name, domain.ErrRetrievalService, ErrDimensionMismatch, len(r.Vector), c.dim)
		}
	}
	for _, r := range records {
		r.Vector = slices.Clone(r.Vector)
		if i, exists := c.index[r.ID]; exists {
			c.records[i] = r
			continue
		}
		c.index[r.ID] = len(c.records)
		c.records = append(c.records, r)
	}
	return nil
}

// Query returns the k records most similar to vector, best first. Ties keep
// insertion order.
func (m *MemoryStore) Query(_ context.Context, name string, vector []float32, k int) ([]SearchResult, error) {
	if err := domain.ValidateK(k); err != nil {
		return nil, fmt.Errorf("semantic: query %s: %w", name, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("semantic: query %s: %w", name, domain.ErrCollectionNotInitialized)
	}
	if len(vector) != c.dim {
		return nil, fmt.Errorf("semantic: query %s: %w: %w: got %d, want %d",
			name, domain.ErrRetrievalService, ErrDimensionMismatch, len(vector), c.dim)
	}

	results := make([]SearchResult, len(c.records))
	for i, r := range c.records {
		results[i] = SearchResult{ID: r.ID, Score: Cosine(vector, r.Vector), Text: r.Text}
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return results[:min(k, len(results))], nil
}

// Count returns the number of records in the collection.
func (m *MemoryStore) Count(_ context.Context, name string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return 0, fmt.Errorf("semantic: count %s: %w", name, domain.ErrCollectionNotInitialized)
	}
	return uint64(len(c.records)), nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
