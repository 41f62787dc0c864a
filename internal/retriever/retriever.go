package retriever

import (
	"context"
	"fmt"

	"github.com/jibzus/enterprise-spendguard/internal/embedding"
	"github.com/jibzus/enterprise-spendguard/internal/index"
)

// DefaultTopK matches the lookup tool's default result count.
const DefaultTopK = 3

// Retriever embeds queries and searches an index. The embedder must be the
// one the index was built with; a ModelID mismatch fails loudly instead of
// silently degrading relevance.
type Retriever struct {
	emb      embedding.Embedder
	minScore float64
}

// New creates a retriever. minScore is the similarity floor below which
// hits are discarded by Retrieve.
func New(emb embedding.Embedder, minScore float64) *Retriever {
	return &Retriever{emb: emb, minScore: minScore}
}

// Retrieve returns the top-k chunks for the query, filtered to hits at or
// above the configured similarity floor. A non-empty sectionFilter
// restricts results to that section's subtree.
func (r *Retriever) Retrieve(ctx context.Context, ix *index.Index, query string, k int, sectionFilter string) ([]index.Hit, error) {
	return r.retrieve(ctx, ix, query, k, sectionFilter, r.minScore)
}

// RetrieveAll is Retrieve without the similarity floor, for callers that
// want raw ranked results (e.g. the policy search endpoint).
func (r *Retriever) RetrieveAll(ctx context.Context, ix *index.Index, query string, k int, sectionFilter string) ([]index.Hit, error) {
	return r.retrieve(ctx, ix, query, k, sectionFilter, -2)
}

func (r *Retriever) retrieve(ctx context.Context, ix *index.Index, query string, k int, sectionFilter string, minScore float64) ([]index.Hit, error) {
	if ix == nil {
		return nil, fmt.Errorf("no index available")
	}
	if ix.ModelID() != r.emb.ModelID() {
		return nil, &embedding.MismatchError{IndexModel: ix.ModelID(), QueryModel: r.emb.ModelID()}
	}
	if k <= 0 {
		k = DefaultTopK
	}

	vec, err := r.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits := ix.Query(vec, k, sectionFilter)
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= minScore {
			out = append(out, h)
		}
	}
	return out, nil
}
