package semantic

import (
	"context"
	"errors"
)

// VectorName is the single named vector every record carries.
const VectorName = "default"

// PayloadText is the payload key holding the chunk text.
const PayloadText = "text"

// ErrDimensionMismatch is returned when a vector does not fit its collection.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is one indexed chunk. IDs are caller-supplied; reusing one
// overwrites the earlier record.
type Record struct {
	ID     string
	Vector []float32
	Text   string
}

// SearchResult represents a single vector search hit.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Text  string  `json:"text"`
}

// Store is implemented by every collection backend.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, name string, records []Record) error
	Query(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error)
	Count(ctx context.Context, name string) (uint64, error)
	DeleteCollection(ctx context.Context, name string) error
}
