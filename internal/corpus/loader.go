package corpus

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jibzus/enterprise-spendguard/internal/chunker"
	"github.com/jibzus/enterprise-spendguard/internal/embedding"
	"github.com/jibzus/enterprise-spendguard/internal/index"
	"github.com/jibzus/enterprise-spendguard/internal/metrics"
	"github.com/jibzus/enterprise-spendguard/internal/policydoc"
)

// EmbedderFactory creates a fresh embedder for one corpus load. Corpus-local
// models (tfidf) derive their vocabulary from the load, so embedders are
// never shared across versions.
type EmbedderFactory func() (embedding.Embedder, error)

// Loader builds corpus snapshots: parse, chunk, embed, index, persist. It
// never touches the active snapshot; publication is the orchestrator's job.
type Loader struct {
	factory     EmbedderFactory
	chunkCfg    chunker.Config
	concurrency int
	snapshots   *index.SQLiteStore
	keep        int
	met         *metrics.Metrics
	log         *slog.Logger
}

// NewLoader creates a loader. snapshots may be nil for memory-only operation.
func NewLoader(factory EmbedderFactory, chunkCfg chunker.Config, concurrency int, snapshots *index.SQLiteStore, keep int, met *metrics.Metrics, log *slog.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Loader{
		factory:     factory,
		chunkCfg:    chunkCfg,
		concurrency: concurrency,
		snapshots:   snapshots,
		keep:        keep,
		met:         met,
		log:         log,
	}
}

// Build runs the full load pipeline for one document and returns an
// unpublished snapshot. Job phases track progress for pollers.
func (l *Loader) Build(ctx context.Context, job *Job) (*Snapshot, error) {
	log := l.log.With("job_id", job.ID, "filename", job.Filename)

	// Phase 1: Parse.
	job.SetStatus(StatusParsing, "parsing")
	ing, err := policydoc.ForFile(job.Filename)
	if err != nil {
		return nil, err
	}
	doc, err := ing.Ingest(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if job.Title != "" {
		doc.Title = job.Title
	}

	// Phase 2: Chunk.
	job.SetStatus(StatusChunking, "chunking")
	chunks := chunker.ChunkDocument(doc, l.chunkCfg)
	job.SetTotalChunks(len(chunks))
	log.Info("chunked document", "sections", len(doc.Sections), "chunks", len(chunks))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no indexable content in %s", job.Filename)
	}

	// Phase 3: Embed with bounded concurrency.
	job.SetStatus(StatusEmbedding, "embedding")
	emb, err := l.factory()
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if err := emb.Prepare(texts); err != nil {
		return nil, fmt.Errorf("prepare embedder: %w", err)
	}

	vectors, err := l.embedAll(ctx, emb, texts, job, log)
	if err != nil {
		return nil, err
	}

	// Phase 4: Index. Entries go in chunk order so rebuilds are identical.
	job.SetStatus(StatusIndexing, "indexing")
	ix := index.New(emb.ModelID(), emb.Dimension())
	for i, c := range chunks {
		err := ix.Add(index.Entry{
			ChunkID:     c.ID,
			SectionID:   c.SectionID,
			SectionPath: c.SectionPath,
			Page:        c.Page,
			Kind:        c.Kind,
			Text:        c.Text,
			Vector:      vectors[i],
		})
		if err != nil {
			return nil, fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}

	snap := &Snapshot{
		Version: Version{
			ID:          uuid.NewString(),
			Title:       doc.Title,
			Filename:    job.Filename,
			ModelID:     emb.ModelID(),
			ContentHash: ContentHashHex(job.FileData()),
			ChunkCount:  ix.Len(),
			CreatedAt:   time.Now().UTC(),
		},
		Doc:      doc,
		Index:    ix,
		Embedder: emb,
	}

	// Persistence failure keeps the in-memory snapshot usable.
	if l.snapshots != nil {
		err := l.snapshots.SaveSnapshot(ctx, index.Snapshot{
			Version:   snap.Version.ID,
			Title:     snap.Version.Title,
			ModelID:   snap.Version.ModelID,
			Dimension: ix.Dimension(),
			CreatedAt: snap.Version.CreatedAt,
			Entries:   ix.Entries(),
		})
		if err != nil {
			log.Error("snapshot persist failed", "error", err)
		} else if err := l.snapshots.Prune(ctx, l.keep); err != nil {
			log.Warn("snapshot prune failed", "error", err)
		}
	}

	log.Info("corpus built", "version", snap.Version.ID, "model", snap.Version.ModelID, "chunks", ix.Len())
	return snap, nil
}

// embedAll embeds every chunk text with bounded concurrency, retrying
// transient failures. One terminal failure fails the whole load: a partially
// embedded corpus would silently miss rules.
func (l *Loader) embedAll(ctx context.Context, emb embedding.Embedder, texts []string, job *Job, log *slog.Logger) ([][]float64, error) {
	type result struct {
		idx int
		vec []float64
		err error
	}
	results := make(chan result, len(texts))
	sem := make(chan struct{}, l.concurrency)

	for i, text := range texts {
		sem <- struct{}{}
		go func(i int, text string) {
			defer func() { <-sem }()
			var vec []float64
			var lastErr error
			for attempt := range MaxRetries {
				vec, lastErr = emb.Embed(ctx, text)
				if lastErr == nil || !IsRetryable(lastErr) {
					break
				}
				l.met.EmbeddingRetriesTotal.Inc()
				log.Warn("retryable embedding error", "chunk", i, "attempt", attempt, "error", lastErr)
				select {
				case <-time.After(Backoff(attempt)):
				case <-ctx.Done():
					results <- result{idx: i, err: ctx.Err()}
					return
				}
			}
			results <- result{idx: i, vec: vec, err: lastErr}
		}(i, text)
	}

	vectors := make([][]float64, len(texts))
	var firstErr error
	for range texts {
		r := <-results
		job.IncrChunksEmbedded()
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("embed chunk %d: %w", r.idx, r.err)
			}
			continue
		}
		vectors[r.idx] = r.vec
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// Restore rebuilds the newest persisted snapshot and publishes it, so a
// restart comes back with the last corpus without re-uploading. A missing or
// irreproducible snapshot is not fatal; the caller starts with no corpus.
func Restore(ctx context.Context, snapshots *index.SQLiteStore, factory EmbedderFactory, store *Store, log *slog.Logger) error {
	snap, err := snapshots.LoadLatest(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	emb, err := factory()
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	texts := make([]string, len(snap.Entries))
	for i, e := range snap.Entries {
		texts[i] = e.Text
	}
	if err := emb.Prepare(texts); err != nil {
		return fmt.Errorf("prepare embedder: %w", err)
	}
	if emb.ModelID() != snap.ModelID {
		return fmt.Errorf("snapshot %s was built with model %s, configured embedder is %s", snap.Version, snap.ModelID, emb.ModelID())
	}

	ix := index.New(snap.ModelID, snap.Dimension)
	for _, e := range snap.Entries {
		if err := ix.Add(e); err != nil {
			return fmt.Errorf("restore chunk %s: %w", e.ChunkID, err)
		}
	}

	store.Publish(&Snapshot{
		Version: Version{
			ID:         snap.Version,
			Title:      snap.Title,
			ModelID:    snap.ModelID,
			ChunkCount: ix.Len(),
			CreatedAt:  snap.CreatedAt,
		},
		Index:    ix,
		Embedder: emb,
	})
	log.Info("corpus restored", "version", snap.Version, "chunks", ix.Len())
	return nil
}
