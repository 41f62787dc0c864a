package index

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jibzus/enterprise-spendguard/internal/chunker"
)

// Entry is one indexed chunk: its vector plus the metadata side-table
// (section path, page, kind) needed for filtering and citations.
type Entry struct {
	ChunkID     string
	SectionID   string
	SectionPath []string
	Page        int
	Kind        chunker.Kind
	Text        string
	Vector      []float64
}

// Hit is a query result: an entry and its cosine similarity in [-1, 1].
type Hit struct {
	Entry Entry
	Score float64
}

// Index is an immutable-after-build brute-force nearest-neighbor structure.
// Writes happen serially at corpus-load time; once a corpus version is
// published the index is only read, so concurrent queries need no locking.
type Index struct {
	modelID   string
	dimension int
	entries   []Entry
}

// New creates an empty index bound to the embedding model it will be built
// with.
func New(modelID string, dimension int) *Index {
	return &Index{modelID: modelID, dimension: dimension}
}

// ModelID returns the embedding model identifier this index was built with.
func (ix *Index) ModelID() string { return ix.modelID }

// Dimension returns the vector dimensionality.
func (ix *Index) Dimension() int { return ix.dimension }

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.entries) }

// Entries returns the indexed entries in insertion order.
func (ix *Index) Entries() []Entry { return ix.entries }

// Add appends an entry at build time.
func (ix *Index) Add(e Entry) error {
	if ix.dimension == 0 {
		ix.dimension = len(e.Vector)
	}
	if len(e.Vector) != ix.dimension {
		return fmt.Errorf("vector dimension mismatch: got %d, index has %d", len(e.Vector), ix.dimension)
	}
	ix.entries = append(ix.entries, e)
	return nil
}

// Query returns the top-k entries by cosine similarity, in descending score
// order with ties broken by ascending chunk ID for determinism. A non-empty
// sectionFilter restricts results to that section's subtree.
func (ix *Index) Query(vector []float64, k int, sectionFilter string) []Hit {
	if k <= 0 {
		k = 3
	}
	hits := make([]Hit, 0, len(ix.entries))
	for _, e := range ix.entries {
		if sectionFilter != "" && !inSubtree(e.SectionID, sectionFilter) {
			continue
		}
		hits = append(hits, Hit{Entry: e, Score: cosine(e.Vector, vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entry.ChunkID < hits[j].Entry.ChunkID
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// inSubtree reports whether sectionID equals the filter or is nested under
// it ("3.2" is in the subtree of "3").
func inSubtree(sectionID, filter string) bool {
	return sectionID == filter || strings.HasPrefix(sectionID, filter+".")
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
