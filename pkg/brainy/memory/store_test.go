package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

// stubEmbedder returns fixed vectors per text so similarity ranking is
// deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }
func (s *stubEmbedder) Name() string    { return "stub" }

func openTestStore(t *testing.T, embedder EmbeddingProvider) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memory.db")
	s, err := Open(dbPath, embedder, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveRequiresCollection(t *testing.T) {
	s := openTestStore(t, nil)

	if _, err := s.Save(context.Background(), "orphan note", "test"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestSaveAndKeywordQuery(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "memory"); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}

	id, err := s.Save(ctx, "Calculus assignment due Friday", "whatsapp")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(id, "doc_") {
		t.Errorf("id = %q, want doc_ prefix", id)
	}

	if _, err := s.Save(ctx, "Buy milk on the way home", "whatsapp"); err != nil {
		t.Fatalf("save: %v", err)
	}

	results := s.Query(ctx, "when is the calculus assignment due?", 3)
	if len(results) != 1 || results[0] != "Calculus assignment due Friday" {
		t.Errorf("results = %v", results)
	}
}

func TestQueryBeforeCollectionReturnsEmpty(t *testing.T) {
	s := openTestStore(t, nil)

	if results := s.Query(context.Background(), "anything at all", 3); results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

func TestQueryShortTermsOnlyReturnsEmpty(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, "memory"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, "a note", "test"); err != nil {
		t.Fatal(err)
	}

	// Every word is too short to carry retrieval signal.
	if results := s.Query(ctx, "is it me", 3); len(results) != 0 {
		t.Errorf("results = %v, want none", results)
	}
}

func TestVectorQueryRanksBySimilarity(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"the library closes at nine": {1, 0, 0},
		"physics exam next week":     {0, 1, 0},
		"when does the library close": {0.9, 0.1, 0},
	}}
	s := openTestStore(t, embedder)
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "memory"); err != nil {
		t.Fatal(err)
	}
	for _, text := range []string{"the library closes at nine", "physics exam next week"} {
		if _, err := s.Save(ctx, text, "test"); err != nil {
			t.Fatal(err)
		}
	}

	results := s.Query(ctx, "when does the library close", 1)
	if len(results) != 1 || results[0] != "the library closes at nine" {
		t.Errorf("results = %v, want the library note first", results)
	}
}

// queryStub distinguishes query embeddings from document embeddings.
type queryStub struct {
	stubEmbedder
	queryVec []float32
}

func (q *queryStub) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return q.queryVec, nil
}

func TestVectorQueryPrefersQueryEmbedding(t *testing.T) {
	embedder := &queryStub{
		stubEmbedder: stubEmbedder{vectors: map[string][]float32{
			"the library closes at nine": {1, 0, 0},
			"physics exam next week":     {0, 1, 0},
			// The document embedding of the query text points at the wrong
			// note; only the dedicated query embedding finds the right one.
			"when does the library close": {0, 1, 0},
		}},
		queryVec: []float32{1, 0, 0},
	}
	s := openTestStore(t, embedder)
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "memory"); err != nil {
		t.Fatal(err)
	}
	for _, text := range []string{"the library closes at nine", "physics exam next week"} {
		if _, err := s.Save(ctx, text, "test"); err != nil {
			t.Fatal(err)
		}
	}

	results := s.Query(ctx, "when does the library close", 1)
	if len(results) != 1 || results[0] != "the library closes at nine" {
		t.Errorf("results = %v, want the library note first", results)
	}
}

func TestVectorQueryFallsBackToKeywords(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{}}
	s := openTestStore(t, embedder)
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "memory"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, "physics study group tonight", "test"); err != nil {
		t.Fatal(err)
	}

	// Embedding the query now fails; keyword search still finds the note.
	embedder.err = errors.New("embedding service down")
	results := s.Query(ctx, "where is the physics group?", 3)
	if len(results) != 1 || results[0] != "physics study group tonight" {
		t.Errorf("results = %v", results)
	}
}

func TestSaveSurvivesEmbeddingFailure(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("quota exceeded")}
	s := openTestStore(t, embedder)
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, "memory"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, "remember the deadline", "test"); err != nil {
		t.Errorf("save must succeed without a vector, got %v", err)
	}
}

func TestVectorCacheSurvivesReopen(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"note one": {1, 0, 0},
	}}
	dbPath := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	s, err := Open(dbPath, embedder, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureCollection(ctx, "memory"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, "note one", "test"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(dbPath, embedder, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if err := s2.EnsureCollection(ctx, "memory"); err != nil {
		t.Fatal(err)
	}

	results := s2.Query(ctx, "note one", 1)
	if len(results) != 1 || results[0] != "note one" {
		t.Errorf("results after reopen = %v", results)
	}
}

func TestQueryTerms(t *testing.T) {
	terms := queryTerms("When is the Calculus assignment due?")
	want := []string{"when", "calculus", "assignment"}
	if fmt.Sprint(terms) != fmt.Sprint(want) {
		t.Errorf("terms = %v, want %v", terms, want)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors = %v, want 1", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %v, want 0", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}
	if got := cosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors = %v, want 0", got)
	}
}
