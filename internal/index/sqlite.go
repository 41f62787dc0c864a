package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jibzus/enterprise-spendguard/internal/chunker"
	_ "modernc.org/sqlite" // SQLite driver
)

// Snapshot bundles everything needed to persist and restore one corpus
// version's index.
type Snapshot struct {
	Version   string
	Title     string
	ModelID   string
	Dimension int
	CreatedAt time.Time
	Entries   []Entry
}

const schema = `
CREATE TABLE IF NOT EXISTS corpus_versions (
    version     TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    model_id    TEXT NOT NULL,
    dimension   INTEGER NOT NULL,
    chunk_count INTEGER NOT NULL,
    created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
    version      TEXT NOT NULL,
    chunk_id     TEXT NOT NULL,
    section_id   TEXT NOT NULL,
    section_path TEXT NOT NULL,
    page         INTEGER NOT NULL,
    kind         TEXT NOT NULL,
    body         TEXT NOT NULL,
    vector       TEXT NOT NULL,
    PRIMARY KEY (version, chunk_id),
    FOREIGN KEY (version) REFERENCES corpus_versions(version) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chunks_section ON chunks(version, section_id);
`

// SQLiteStore persists corpus snapshots so an index survives restarts.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (creating if needed) the snapshot database at path,
// enabling WAL mode for concurrent readers.
func OpenSQLite(path string, log *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Info("snapshot store opened", "path", path)
	return &SQLiteStore{db: db, log: log}, nil
}

// SaveSnapshot writes one corpus version and all its chunks in a single
// transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO corpus_versions (version, title, model_id, dimension, chunk_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.Version, snap.Title, snap.ModelID, snap.Dimension, len(snap.Entries), snap.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (version, chunk_id, section_id, section_path, page, kind, body, vector) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range snap.Entries {
		path, err := json.Marshal(e.SectionPath)
		if err != nil {
			return fmt.Errorf("marshal section path: %w", err)
		}
		vec, err := json.Marshal(e.Vector)
		if err != nil {
			return fmt.Errorf("marshal vector: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, snap.Version, e.ChunkID, e.SectionID, string(path), e.Page, string(e.Kind), e.Text, string(vec)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", e.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Info("snapshot saved", "version", snap.Version, "chunks", len(snap.Entries))
	return nil
}

// LoadLatest restores the most recently created snapshot, or returns
// sql.ErrNoRows when none exists.
func (s *SQLiteStore) LoadLatest(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	row := s.db.QueryRowContext(ctx,
		`SELECT version, title, model_id, dimension, created_at FROM corpus_versions ORDER BY created_at DESC, version DESC LIMIT 1`)
	if err := row.Scan(&snap.Version, &snap.Title, &snap.ModelID, &snap.Dimension, &snap.CreatedAt); err != nil {
		return Snapshot{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, section_id, section_path, page, kind, body, vector FROM chunks WHERE version = ? ORDER BY chunk_id`,
		snap.Version)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var path, kind, vec string
		if err := rows.Scan(&e.ChunkID, &e.SectionID, &path, &e.Page, &kind, &e.Text, &vec); err != nil {
			return Snapshot{}, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(path), &e.SectionPath); err != nil {
			return Snapshot{}, fmt.Errorf("unmarshal section path: %w", err)
		}
		if err := json.Unmarshal([]byte(vec), &e.Vector); err != nil {
			return Snapshot{}, fmt.Errorf("unmarshal vector: %w", err)
		}
		e.Kind = kindFromString(kind)
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Prune deletes all snapshots except the newest keep versions.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM chunks WHERE version NOT IN (
			SELECT version FROM corpus_versions ORDER BY created_at DESC, version DESC LIMIT ?
		);
		`, keep)
	if err != nil {
		return fmt.Errorf("prune chunks: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM corpus_versions WHERE version NOT IN (
			SELECT version FROM corpus_versions ORDER BY created_at DESC, version DESC LIMIT ?
		);
		`, keep)
	if err != nil {
		return fmt.Errorf("prune versions: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func kindFromString(s string) chunker.Kind {
	if s == string(chunker.KindTable) {
		return chunker.KindTable
	}
	return chunker.KindProse
}
