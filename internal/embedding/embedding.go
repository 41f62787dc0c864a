package embedding

import (
	"context"
	"fmt"
)

// Embedder converts text into a numeric vector representation. The same
// embedder (by ModelID) must be used at index-build time and query time;
// mixing models silently degrades relevance, so the index records the
// ModelID it was built with and the retriever enforces it.
type Embedder interface {
	// ModelID identifies the embedding model, including anything that
	// changes the embedding space (for local models, the corpus vocabulary).
	ModelID() string
	// Dimension returns the vector dimensionality (0 until known).
	Dimension() int
	// Prepare gives corpus-local models a pass over the chunk texts before
	// embedding. Remote models treat it as a no-op.
	Prepare(corpus []string) error
	// Embed computes the vector for one text.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// UnavailableError indicates the embedding backend failed persistently
// (after bounded retries). Callers must surface it, never silently degrade
// to keyword search.
type UnavailableError struct {
	ModelID string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("embedding model %s unavailable: %v", e.ModelID, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// MismatchError indicates a query-time embedder differs from the one the
// index was built with.
type MismatchError struct {
	IndexModel string
	QueryModel string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("embedding model mismatch: index built with %s, query uses %s", e.IndexModel, e.QueryModel)
}
