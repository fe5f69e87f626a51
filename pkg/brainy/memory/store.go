// Package memory – store.go implements the SQLite-backed document store with
// in-process vector search (cosine similarity). Embeddings are stored as
// JSON-encoded float32 arrays alongside each document, which avoids any
// external vector index while still providing semantic retrieval. When no
// embedder is configured, queries fall back to keyword matching.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// ErrStoreUnavailable is returned by Save before a collection is initialized.
var ErrStoreUnavailable = errors.New("memory store unavailable: collection not initialized")

// Record is a single stored memory.
type Record struct {
	ID        string
	Text      string
	Source    string
	Timestamp time.Time
}

// Store provides persistent memory storage with semantic retrieval.
// Records are only ever appended; nothing mutates or deletes existing rows.
type Store struct {
	db       *sql.DB
	embedder EmbeddingProvider
	logger   *slog.Logger

	// collection is the active collection name, set by EnsureCollection.
	mu         sync.RWMutex
	collection string

	// vectorCache holds all document embeddings of the active collection
	// in memory for fast cosine search.
	vectorCacheMu sync.RWMutex
	vectorCache   []vectorCacheEntry
}

type vectorCacheEntry struct {
	docID     string
	text      string
	embedding []float32
}

// Open opens or creates the SQLite memory database.
func Open(dbPath string, embedder EmbeddingProvider, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		embedder = NoneEmbedder{}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		logger:   logger.With("component", "memory"),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS collections (
			name       TEXT PRIMARY KEY,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS documents (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			doc_id     TEXT UNIQUE NOT NULL,
			text       TEXT NOT NULL,
			source     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			embedding  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_documents_collection
			ON documents(collection);
	`
	_, err := s.db.Exec(schema)
	return err
}

// EnsureCollection creates the collection if needed and makes it the active
// one. Loads the collection's embeddings into the vector cache.
func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name) VALUES (?)", name)
	if err != nil {
		return fmt.Errorf("ensure collection %q: %w", name, err)
	}

	s.mu.Lock()
	s.collection = name
	s.mu.Unlock()

	if err := s.refreshVectorCache(ctx, name); err != nil {
		s.logger.Warn("failed to load vector cache", "collection", name, "error", err)
	}

	s.logger.Info("memory collection ready", "collection", name)
	return nil
}

// activeCollection returns the active collection name, or "" if none.
func (s *Store) activeCollection() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

// Save appends a new record to the active collection and returns its id.
// The id is time-based with a random suffix so collisions are negligible.
// Returns ErrStoreUnavailable before EnsureCollection has run.
func (s *Store) Save(ctx context.Context, text, source string) (string, error) {
	collection := s.activeCollection()
	if collection == "" {
		return "", ErrStoreUnavailable
	}

	docID := fmt.Sprintf("doc_%d_%s", time.Now().UnixMilli(), uuid.New().String()[:8])
	timestamp := time.Now().UTC().Format(time.RFC3339)

	// Embed the document. A failed embedding is not fatal: the record is
	// stored without a vector and keyword search still finds it.
	var embeddingJSON sql.NullString
	var embedding []float32
	if s.embedder.Name() != "none" {
		vecs, err := s.embedder.Embed(ctx, []string{text})
		if err != nil {
			s.logger.Warn("embedding failed, saving without vector", "error", err)
		} else if len(vecs) == 1 && len(vecs[0]) > 0 {
			embedding = vecs[0]
			if data, err := json.Marshal(embedding); err == nil {
				embeddingJSON = sql.NullString{String: string(data), Valid: true}
			}
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc_id, text, source, created_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`, collection, docID, text, source, timestamp, embeddingJSON)
	if err != nil {
		return "", fmt.Errorf("save document: %w", err)
	}

	if embedding != nil {
		s.vectorCacheMu.Lock()
		s.vectorCache = append(s.vectorCache, vectorCacheEntry{
			docID:     docID,
			text:      text,
			embedding: embedding,
		})
		s.vectorCacheMu.Unlock()
	}

	s.logger.Info("saved to memory", "id", docID, "source", source)
	return docID, nil
}

// Query returns the texts of the topK most relevant records, most relevant
// first. Any failure degrades to an empty result; the caller falls back to
// answering without memory context.
func (s *Store) Query(ctx context.Context, text string, topK int) []string {
	if s.activeCollection() == "" {
		s.logger.Warn("memory query before collection initialized")
		return nil
	}
	if topK <= 0 {
		topK = 3
	}

	if s.embedder.Name() != "none" {
		results, err := s.vectorSearch(ctx, text, topK)
		if err != nil {
			s.logger.Warn("vector search failed, falling back to keyword search", "error", err)
		} else if len(results) > 0 {
			return results
		}
	}

	return s.keywordSearch(ctx, text, topK)
}

// vectorSearch embeds the query and ranks the cached vectors by cosine
// similarity.
func (s *Store) vectorSearch(ctx context.Context, text string, topK int) ([]string, error) {
	var query []float32
	if qe, ok := s.embedder.(QueryEmbedder); ok {
		v, err := qe.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		query = v
	} else {
		vecs, err := s.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 1 {
			query = vecs[0]
		}
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}

	s.vectorCacheMu.RLock()
	defer s.vectorCacheMu.RUnlock()

	type scored struct {
		text  string
		score float64
	}
	hits := make([]scored, 0, len(s.vectorCache))
	for _, entry := range s.vectorCache {
		score := cosineSimilarity(query, entry.embedding)
		if score > 0 {
			hits = append(hits, scored{text: entry.text, score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]string, len(hits))
	for i, h := range hits {
		results[i] = h.text
	}
	return results, nil
}

// keywordSearch matches documents containing any query term, newest first.
func (s *Store) keywordSearch(ctx context.Context, text string, topK int) []string {
	terms := queryTerms(text)
	if len(terms) == 0 {
		return nil
	}

	conditions := make([]string, len(terms))
	args := []any{s.activeCollection()}
	for i, term := range terms {
		conditions[i] = "text LIKE ?"
		args = append(args, "%"+term+"%")
	}
	args = append(args, topK)

	q := fmt.Sprintf(`
		SELECT text FROM documents
		WHERE collection = ? AND (%s)
		ORDER BY created_at DESC
		LIMIT ?
	`, strings.Join(conditions, " OR "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logger.Warn("keyword search failed", "error", err)
		return nil
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err == nil {
			results = append(results, t)
		}
	}
	return results
}

// queryTerms extracts search terms from the query text, skipping short words
// (articles, pronouns, interrogatives carry no retrieval signal).
func queryTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var terms []string
	for _, f := range fields {
		if len(f) > 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// refreshVectorCache loads all embeddings of a collection into memory.
func (s *Store) refreshVectorCache(ctx context.Context, collection string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, text, embedding FROM documents
		WHERE collection = ? AND embedding IS NOT NULL
	`, collection)
	if err != nil {
		return err
	}
	defer rows.Close()

	var cache []vectorCacheEntry
	for rows.Next() {
		var docID, text, embeddingJSON string
		if err := rows.Scan(&docID, &text, &embeddingJSON); err != nil {
			continue
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			continue
		}
		cache = append(cache, vectorCacheEntry{docID: docID, text: text, embedding: embedding})
	}

	s.vectorCacheMu.Lock()
	s.vectorCache = cache
	s.vectorCacheMu.Unlock()

	s.logger.Debug("vector cache loaded", "collection", collection, "entries", len(cache))
	return nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
