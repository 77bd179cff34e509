package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"unicode"

	"github.com/WessleyAI/wessley-rag/engine/domain"
	"github.com/WessleyAI/wessley-rag/engine/semantic"
)

// --- Mocks ---

// vocabEmbedder gives every distinct word its own dimension and counts
// occurrences, so texts sharing words are similar.
type vocabEmbedder struct {
	dim    int
	vocab  map[string]int
	failOn map[string]error
	calls  []string
}

func newVocabEmbedder() *vocabEmbedder {
	return &vocabEmbedder{dim: 64, vocab: map[string]int{}, failOn: map[string]error{}}
}

func (e *vocabEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls = append(e.calls, text)
	if err, ok := e.failOn[text]; ok {
		return nil, err
	}
	v := make([]float32, e.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		idx, ok := e.vocab[w]
		if !ok {
			idx = len(e.vocab) % e.dim
			e.vocab[w] = idx
		}
		v[idx]++
	}
	return v, nil
}

func (e *vocabEmbedder) Dimensions() int { return e.dim }

type mockStore struct {
	*semantic.MemoryStore
	ensureErr error
	upsertErr error
	ensured   []string
	upserts   int
}

func newMockStore() *mockStore { return &mockStore{MemoryStore: semantic.NewMemory()} }

func (m *mockStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	m.ensured = append(m.ensured, name)
	if m.ensureErr != nil {
		return m.ensureErr
	}
	return m.MemoryStore.EnsureCollection(ctx, name, dim)
}

func (m *mockStore) Upsert(ctx context.Context, name string, records []semantic.Record) error {
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	return m.MemoryStore.Upsert(ctx, name, records)
}

func testConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.ChunkSize = 20
	cfg.Overlap = 5
	cfg.CollectionName = "docs"
	return cfg
}

func textDoc(name, body string) domain.Document {
	return domain.Document{Name: name, MediaType: domain.MediaTypeText, Data: []byte(body)}
}

type progressLog struct{ calls [][2]int }

func (p *progressLog) record(cur, total int) { p.calls = append(p.calls, [2]int{cur, total}) }

// --- Tests ---

func TestRun_SingleDocument(t *testing.T) {
	emb := newVocabEmbedder()
	store := newMockStore()
	p := New(testConfig(), Deps{Embedder: emb, Store: store})

	var prog progressLog
	rep, err := p.Run(context.Background(), []domain.Document{textDoc("a.txt", "The sky is blue. Grass is green.")}, prog.record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Documents != 1 || rep.Extracted != 1 || rep.Chunks != 3 || rep.Embedded != 3 || rep.Stored != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Err() != nil {
		t.Fatalf("unexpected failures: %v", rep.Err())
	}
	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if fmt.Sprint(prog.calls) != fmt.Sprint(want) {
		t.Fatalf("progress = %v, want %v", prog.calls, want)
	}
	if got := strings.Join(emb.calls, "|"); got != "The sky is blue. Gra|. Grass is green.|n." {
		t.Fatalf("embedded in wrong order: %q", got)
	}
	n, err := store.Count(context.Background(), "docs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}

func TestRun_IdenticalDocumentsStoreBoth(t *testing.T) {
	store := newMockStore()
	p := New(testConfig(), Deps{Embedder: newVocabEmbedder(), Store: store})

	body := "The sky is blue. Grass is green."
	rep, err := p.Run(context.Background(), []domain.Document{textDoc("a.txt", body), textDoc("b.txt", body)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Stored != 6 {
		t.Fatalf("stored = %d, want 6", rep.Stored)
	}
	if n, _ := store.Count(context.Background(), "docs"); n != 6 {
		t.Fatalf("count = %d, want 6", n)
	}
	if store.upserts != 1 {
		t.Fatalf("upserts = %d, want a single batch", store.upserts)
	}
}

func TestRun_RecordIDs(t *testing.T) {
	store := newMockStore()
	next := 0
	p := New(testConfig(), Deps{
		Embedder: newVocabEmbedder(),
		Store:    store,
		NewID: func() string {
			next++
			return fmt.Sprintf("id-%d", next)
		},
	})
	if _, err := p.Run(context.Background(), []domain.Document{textDoc("a.txt", "short text")}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := store.Query(context.Background(), "docs", make([]float32, 64), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 1 || res[0].ID != "id-1" || res[0].Text != "short text" {
		t.Fatalf("unexpected record: %+v", res)
	}
}

func TestRun_ExtractionFailureSkipsDocument(t *testing.T) {
	store := newMockStore()
	p := New(testConfig(), Deps{Embedder: newVocabEmbedder(), Store: store})

	docs := []domain.Document{
		{Name: "bad.txt", MediaType: domain.MediaTypeText, Data: []byte{'o', 'k', 0xff}},
		textDoc("good.txt", "short text"),
	}
	rep, err := p.Run(context.Background(), docs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Extracted != 1 || rep.Stored != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(rep.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(rep.Failures))
	}
	f := rep.Failures[0]
	if f.Document != "bad.txt" || f.Stage != StageExtract || f.Chunk != -1 {
		t.Fatalf("unexpected failure: %+v", f)
	}
	if !errors.Is(rep.Err(), domain.ErrExtraction) || !errors.Is(rep.Err(), domain.ErrDecoding) {
		t.Fatalf("expected extraction/decoding error, got %v", rep.Err())
	}
}

func TestRun_EmbeddingFailureStillReportsProgress(t *testing.T) {
	emb := newVocabEmbedder()
	emb.failOn[". Grass is green."] = fmt.Errorf("embed: %w: quota", domain.ErrEmbeddingService)
	store := newMockStore()
	p := New(testConfig(), Deps{Embedder: emb, Store: store})

	var prog progressLog
	rep, err := p.Run(context.Background(), []domain.Document{textDoc("a.txt", "The sky is blue. Grass is green.")}, prog.record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prog.calls) != 3 {
		t.Fatalf("progress calls = %d, want 3", len(prog.calls))
	}
	if rep.Chunks != 3 || rep.Embedded != 2 || rep.Stored != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Stage != StageEmbed || rep.Failures[0].Chunk != 1 {
		t.Fatalf("unexpected failures: %+v", rep.Failures)
	}
	if !errors.Is(rep.Err(), domain.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", rep.Err())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	emb := newVocabEmbedder()
	store := newMockStore()
	cfg := testConfig()
	cfg.Overlap = cfg.ChunkSize
	p := New(cfg, Deps{Embedder: emb, Store: store})

	_, err := p.Run(context.Background(), []domain.Document{textDoc("a.txt", "text")}, nil)
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "chunk_size" {
		t.Fatalf("expected chunk_size validation error, got %v", err)
	}
	if len(emb.calls) != 0 || len(store.ensured) != 0 {
		t.Fatal("no external calls expected")
	}
}

func TestRun_EnsureCollectionError(t *testing.T) {
	emb := newVocabEmbedder()
	store := newMockStore()
	store.ensureErr = fmt.Errorf("semantic: %w", domain.ErrRetrievalService)
	p := New(testConfig(), Deps{Embedder: emb, Store: store})

	_, err := p.Run(context.Background(), []domain.Document{textDoc("a.txt", "text")}, nil)
	if !errors.Is(err, domain.ErrRetrievalService) {
		t.Fatalf("expected ErrRetrievalService, got %v", err)
	}
	if len(emb.calls) != 0 {
		t.Fatal("embedder should not be called")
	}
}

func TestRun_UpsertCollectionMissingAborts(t *testing.T) {
	store := newMockStore()
	store.upsertErr = fmt.Errorf("semantic: %w", domain.ErrCollectionNotInitialized)
	p := New(testConfig(), Deps{Embedder: newVocabEmbedder(), Store: store})

	_, err := p.Run(context.Background(), []domain.Document{textDoc("a.txt", "text")}, nil)
	if !errors.Is(err, domain.ErrCollectionNotInitialized) {
		t.Fatalf("expected ErrCollectionNotInitialized, got %v", err)
	}
}

func TestRun_UpsertFailureReported(t *testing.T) {
	store := newMockStore()
	store.upsertErr = fmt.Errorf("semantic: %w", domain.ErrRetrievalService)
	p := New(testConfig(), Deps{Embedder: newVocabEmbedder(), Store: store})

	rep, err := p.Run(context.Background(), []domain.Document{textDoc("a.txt", "text")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Stored != 0 || len(rep.Failures) != 1 || rep.Failures[0].Stage != StageStore {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestRun_ReplacesPreviousBatch(t *testing.T) {
	store := newMockStore()
	p := New(testConfig(), Deps{Embedder: newVocabEmbedder(), Store: store})
	ctx := context.Background()

	if _, err := p.Run(ctx, []domain.Document{textDoc("a.txt", "The sky is blue. Grass is green.")}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Run(ctx, []domain.Document{textDoc("b.txt", "short")}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := store.Count(ctx, "docs"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestRun_NoDocuments(t *testing.T) {
	store := newMockStore()
	p := New(testConfig(), Deps{Embedder: newVocabEmbedder(), Store: store})

	rep, err := p.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Stored != 0 || store.upserts != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if n, err := store.Count(context.Background(), "docs"); err != nil || n != 0 {
		t.Fatalf("expected empty collection, got %d, %v", n, err)
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(testConfig(), Deps{Embedder: newVocabEmbedder(), Store: newMockStore()})

	_, err := p.Run(ctx, []domain.Document{textDoc("a.txt", "text")}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_LogsStages(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	p := New(testConfig(), Deps{Embedder: newVocabEmbedder(), Store: newMockStore(), Logger: log})

	if _, err := p.Run(context.Background(), []domain.Document{textDoc("a.txt", "text")}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"stage.enter", "stage.exit", "stage=extract", "stage=chunk", "ingest: success"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q", want)
		}
	}
}

func TestFailure_Error(t *testing.T) {
	f := Failure{Document: "a.txt", Stage: StageEmbed, Chunk: 2, Err: errors.New("boom")}
	if got := f.Error(); got != "ingest: embed: a.txt chunk 2: boom" {
		t.Fatalf("unexpected message: %q", got)
	}
	f.Chunk = -1
	if got := f.Error(); got != "ingest: embed: a.txt: boom" {
		t.Fatalf("unexpected message: %q", got)
	}
}
