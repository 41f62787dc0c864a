package corpus

import (
	"sync"
	"time"

	"github.com/jibzus/enterprise-spendguard/internal/embedding"
	"github.com/jibzus/enterprise-spendguard/internal/index"
	"github.com/jibzus/enterprise-spendguard/internal/policydoc"
)

// Version is the metadata of one loaded corpus.
type Version struct {
	ID          string    `json:"version"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename,omitempty"`
	ModelID     string    `json:"model_id"`
	ContentHash string    `json:"content_hash,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot is a fully built corpus version: the parsed document, its index,
// and the embedder the index was built with. It is immutable after Build and
// safe for concurrent readers. Doc is nil for versions restored from disk.
type Snapshot struct {
	Version  Version
	Doc      *policydoc.PolicyDocument
	Index    *index.Index
	Embedder embedding.Embedder
}

// Store holds the active corpus snapshot and the version history. Publishing
// swaps an atomic pointer: evaluations that captured the previous snapshot
// keep using it to completion, new evaluations see the new one.
type Store struct {
	mu       sync.RWMutex
	active   *Snapshot
	versions []Version
}

func NewStore() *Store {
	return &Store{}
}

// Active returns the current snapshot, or nil when no corpus is loaded.
func (s *Store) Active() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Publish makes snap the active corpus version.
func (s *Store) Publish(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = snap
	s.versions = append(s.versions, snap.Version)
}

// Versions returns the load history, newest first.
func (s *Store) Versions() []Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Version, len(s.versions))
	for i, v := range s.versions {
		out[len(s.versions)-1-i] = v
	}
	return out
}
