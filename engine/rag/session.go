package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/WessleyAI/wessley-rag/engine/domain"
	"github.com/WessleyAI/wessley-rag/engine/embed"
	"github.com/WessleyAI/wessley-rag/engine/generate"
	"github.com/WessleyAI/wessley-rag/engine/ingest"
	"github.com/WessleyAI/wessley-rag/engine/rewrite"
	"github.com/WessleyAI/wessley-rag/engine/semantic"
	"github.com/WessleyAI/wessley-rag/pkg/metrics"
	"github.com/WessleyAI/wessley-rag/pkg/resilience"
)

// ErrSessionClosed is returned by every operation on a session that was
// closed or replaced by Reconfigure.
var ErrSessionClosed = errors.New("rag: session closed")

// SessionDeps are the long-lived clients a session is built from. They
// outlive any single session and are shared across Reconfigure.
type SessionDeps struct {
	Embeddings embed.API
	Chat       generate.Backend
	Store      semantic.Store
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Observer   Observer

	EmbedBreaker *resilience.Breaker
	ChatBreaker  *resilience.Breaker
	Limiter      *resilience.Limiter
}

// Session is one configured document Q&A context: a config, a collection
// and the pipelines over it.
type Session struct {
	mu       sync.RWMutex
	cfg      domain.Config
	deps     SessionDeps
	store    semantic.Store
	pipeline *ingest.Pipeline
	service  *Service
	closed   bool
}

// NewSession validates cfg and wires the pipelines.
func NewSession(cfg domain.Config, deps SessionDeps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rag: new session: %w", err)
	}
	if deps.Store == nil {
		deps.Store = semantic.NewMemory()
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	embedder := embed.New(deps.Embeddings, cfg.EmbeddingModel,
		embed.WithBreaker(deps.EmbedBreaker), embed.WithLimiter(deps.Limiter))
	generator := generate.New(deps.Chat, cfg.ModelName,
		generate.WithBreaker(deps.ChatBreaker), generate.WithLimiter(deps.Limiter))
	rewriter := rewrite.New(deps.Chat, cfg.ModelName,
		rewrite.WithLogger(log),
		rewrite.WithFallbackHook(func(error) { deps.Metrics.RewriteFallback() }))

	return &Session{
		cfg:   cfg,
		deps:  deps,
		store: deps.Store,
		pipeline: ingest.New(cfg, ingest.Deps{
			Embedder: embedder,
			Store:    deps.Store,
			Logger:   log,
			Metrics:  deps.Metrics,
		}),
		service: New(Options{Collection: cfg.CollectionName, K: cfg.K}, Deps{
			Rewriter:  rewriter,
			Embedder:  embedder,
			Retriever: deps.Store,
			Generator: generator,
			Logger:    log,
			Metrics:   deps.Metrics,
			Observer:  deps.Observer,
		}),
	}, nil
}

// Config returns the session's configuration.
func (s *Session) Config() domain.Config { return s.cfg }

// Ingest replaces the session's collection with docs.
func (s *Session) Ingest(ctx context.Context, docs []domain.Document, progress ingest.Progress) (ingest.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ingest.Report{}, ErrSessionClosed
	}
	return s.pipeline.Run(ctx, docs, progress)
}

// Query answers question from the indexed documents.
func (s *Session) Query(ctx context.Context, question string) (*Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.service.Query(ctx, question)
}

// QueryStream retrieves under the read lock and returns the streamed
// answer. Generation does not touch the store and runs unlocked.
func (s *Session) QueryStream(ctx context.Context, question string) (*Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.service.QueryStream(ctx, question)
}

// HasDocuments reports whether the session's collection holds any chunks.
func (s *Session) HasDocuments(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	if errors.Is(err, domain.ErrCollectionNotInitialized) {
		return false, nil
	}
	return n > 0, err
}

// Count returns the number of chunks in the session's collection.
func (s *Session) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrSessionClosed
	}
	return s.store.Count(ctx, s.cfg.CollectionName)
}

// Reconfigure returns a session for cfg over the same clients and store,
// and closes the receiver. An invalid cfg leaves the receiver usable.
func (s *Session) Reconfigure(cfg domain.Config) (*Session, error) {
	next, err := NewSession(cfg, s.deps)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.closed = true
	return next, nil
}

// Close invalidates the session. The collection is left in place.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
