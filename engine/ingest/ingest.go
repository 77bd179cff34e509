// Package ingest provides the ingestion pipeline that turns uploaded
// documents into indexed chunks: extraction, chunking, embedding and storage.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/wessley-rag/engine/chunker"
	"github.com/WessleyAI/wessley-rag/engine/domain"
	"github.com/WessleyAI/wessley-rag/engine/extract"
	"github.com/WessleyAI/wessley-rag/engine/semantic"
	"github.com/WessleyAI/wessley-rag/pkg/fn"
	"github.com/WessleyAI/wessley-rag/pkg/metrics"
)

// Embedder maps text to a vector of a fixed dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Store is the part of the vector store ingestion writes to.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, name string, records []semantic.Record) error
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Embedder Embedder
	Store    Store
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// NewID generates record ids. Defaults to random UUIDs.
	NewID func() string
}

// --- Pipeline Stages ---

// extractDoc pulls plain text out of a document.
var extractDoc = fn.Lift(func(_ context.Context, doc domain.Document) (extracted, error) {
	text, err := extract.Extract(doc)
	return extracted{doc: doc, text: text}, err
})

// newChunkDoc creates a chunking stage with the given window.
func newChunkDoc(size, overlap int) fn.Stage[extracted, chunked] {
	return fn.Lift(func(_ context.Context, e extracted) (chunked, error) {
		seq, err := chunker.Chunks(e.text, size, overlap)
		if err != nil {
			return chunked{}, err
		}
		return chunked{doc: e.doc, chunks: seq.Collect()}, nil
	})
}

// LoggedTap returns a stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// stageError tags a stage failure with the stage name.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func tagged[In, Out any](name string, s fn.Stage[In, Out]) fn.Stage[In, Out] {
	return fn.MapErr(s, func(err error) error { return &stageError{stage: name, err: err} })
}

// Pipeline indexes batches of documents into one collection.
type Pipeline struct {
	cfg     domain.Config
	deps    Deps
	log     *slog.Logger
	prepare fn.Stage[domain.Document, chunked]
}

// New constructs the ingestion pipeline. The config is validated on Run.
func New(cfg domain.Config, deps Deps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.NewString() }
	}

	// Compose: Extract → Chunk with logging taps between stages.
	extractStage := fn.Then(LoggedTap[domain.Document](StageExtract, log), tagged(StageExtract, extractDoc))
	chunkStage := fn.Then(extractStage, fn.Then(LoggedTap[extracted](StageChunk, log), tagged(StageChunk, newChunkDoc(cfg.ChunkSize, cfg.Overlap))))

	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		prepare: fn.TracedStage("ingest.prepare", fn.Guard(chunkStage)),
	}
}

// Run indexes docs, replacing whatever the collection held before.
// Per-document and per-chunk failures are collected in the Report; the
// returned error is reserved for failures that abort the whole batch.
func (p *Pipeline) Run(ctx context.Context, docs []domain.Document, progress Progress) (Report, error) {
	rep := Report{Documents: len(docs)}
	if err := p.cfg.Validate(); err != nil {
		return rep, fmt.Errorf("ingest: %w", err)
	}

	var queue []pending
	for _, doc := range docs {
		start := time.Now()
		r := p.prepare(ctx, doc)
		p.deps.Metrics.ObserveStage("ingest", "prepare", time.Since(start))
		c, err := r.Unwrap()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rep, fmt.Errorf("ingest: %w", ctxErr)
			}
			rep.Failures = append(rep.Failures, p.fail(doc.Name, failedStage(err), -1, err))
			p.deps.Metrics.DocumentIngested(false)
			continue
		}
		rep.Extracted++
		p.deps.Metrics.DocumentIngested(true)
		for _, ch := range c.chunks {
			queue = append(queue, pending{doc: doc.Name, chunk: ch})
		}
	}
	rep.Chunks = len(queue)

	if err := p.deps.Store.EnsureCollection(ctx, p.cfg.CollectionName, p.deps.Embedder.Dimensions()); err != nil {
		return rep, fmt.Errorf("ingest: reset collection %s: %w", p.cfg.CollectionName, err)
	}

	records := make([]semantic.Record, 0, len(queue))
	embedStart := time.Now()
	for i, item := range queue {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("ingest: %w", err)
		}
		vec, err := p.deps.Embedder.Embed(ctx, item.chunk.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rep, fmt.Errorf("ingest: %w", ctxErr)
			}
			rep.Failures = append(rep.Failures, p.fail(item.doc, StageEmbed, item.chunk.Index, err))
		} else {
			records = append(records, semantic.Record{ID: p.deps.NewID(), Vector: vec, Text: item.chunk.Text})
		}
		if progress != nil {
			progress(i+1, len(queue))
		}
	}
	rep.Embedded = len(records)
	p.deps.Metrics.ObserveStage("ingest", StageEmbed, time.Since(embedStart))

	if len(records) == 0 {
		p.log.Info("ingest: nothing to store", "documents", rep.Documents, "failures", len(rep.Failures))
		return rep, nil
	}

	storeStart := time.Now()
	err := p.deps.Store.Upsert(ctx, p.cfg.CollectionName, records)
	p.deps.Metrics.ObserveStage("ingest", StageStore, time.Since(storeStart))
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotInitialized) {
			return rep, fmt.Errorf("ingest: %w", err)
		}
		rep.Failures = append(rep.Failures, p.fail(p.cfg.CollectionName, StageStore, -1, err))
		return rep, nil
	}
	rep.Stored = len(records)
	p.deps.Metrics.ChunksStored(rep.Stored)

	p.log.Info("ingest: success",
		"collection", p.cfg.CollectionName,
		"documents", rep.Documents,
		"chunks", rep.Chunks,
		"stored", rep.Stored,
		"failures", len(rep.Failures),
	)
	return rep, nil
}

func (p *Pipeline) fail(doc, stage string, chunk int, err error) Failure {
	p.log.Warn("ingest: failed", "stage", stage, "document", doc, "chunk", chunk, "err", err)
	p.deps.Metrics.StageFailed(stage)
	var se *stageError
	if errors.As(err, &se) {
		err = se.err
	}
	return Failure{Document: doc, Stage: stage, Chunk: chunk, Err: err}
}

func failedStage(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return StageExtract
}
