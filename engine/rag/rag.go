// Package rag orchestrates the Retrieval-Augmented Generation pipeline.
// It accepts a user question, rewrites it for retrieval, embeds it, searches
// the session's collection, builds a prompt from the hits and asks the chat
// model for the answer, whole or streamed.
package rag

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-rag/engine/domain"
	"github.com/WessleyAI/wessley-rag/engine/prompt"
	"github.com/WessleyAI/wessley-rag/engine/semantic"
	"github.com/WessleyAI/wessley-rag/pkg/fn"
	"github.com/WessleyAI/wessley-rag/pkg/metrics"
)

// Rewriter rephrases a question for retrieval. It never fails.
type Rewriter interface {
	Rewrite(ctx context.Context, query string) string
}

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever abstracts vector search over a named collection.
type Retriever interface {
	Query(ctx context.Context, collection string, vector []float32, k int) ([]semantic.SearchResult, error)
}

// Generator produces the answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Options configures retrieval.
type Options struct {
	Collection string
	K          int
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Rewriter  Rewriter
	Embedder  Embedder
	Retriever Retriever
	Generator Generator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Observer  Observer
}

// Service is the RAG orchestration service.
type Service struct {
	opts     Options
	deps     Deps
	logger   *slog.Logger
	retrieve fn.Stage[query, query]
	answer   fn.Stage[query, query]
}

// Answer represents the structured response from the RAG pipeline.
type Answer struct {
	Question  string   `json:"question"`
	Rewritten string   `json:"rewritten"`
	Text      string   `json:"text"`
	Sources   []Source `json:"sources"`
}

// Source is a retrieved chunk backing the answer.
type Source struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Stream is an answer still being generated. Sources are final; Fragments
// yields the answer text and can be consumed once.
type Stream struct {
	Question  string
	Rewritten string
	Sources   []Source
	Fragments iter.Seq2[string, error]
}

// query is the value threaded through the stages.
type query struct {
	question  string
	rewritten string
	vector    []float32
	sources   []Source
	prompt    string
	text      string
}

// New creates a new RAG Service.
func New(opts Options, deps Deps) *Service {
	s := &Service{opts: opts, deps: deps, logger: deps.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	// Rewriting → Embedding → Retrieving → Assembling, then Generating.
	s.retrieve = fn.Then(s.stage(StateRewriting, s.rewriteStage),
		fn.Then(s.stage(StateEmbedding, s.embedStage),
			fn.Then(s.stage(StateRetrieving, s.retrieveStage),
				s.stage(StateAssembling, s.assembleStage))))
	s.answer = fn.Then(s.retrieve, s.stage(StateGenerating, s.generateStage))
	return s
}

// stage wraps f with observer notification, a span, latency metrics and
// error tagging.
func (s *Service) stage(st State, f fn.Stage[query, query]) fn.Stage[query, query] {
	notify := fn.TapStage(func(context.Context, query) { s.observe(st) })
	traced := fn.TracedStage("rag."+st.String(), fn.Guard(fn.Then(notify, f)))
	observed := fn.Observe(traced, func(_ context.Context, d time.Duration, err error) {
		s.deps.Metrics.ObserveStage("query", st.String(), d)
		if err != nil {
			s.deps.Metrics.StageFailed(st.String())
		}
	})
	return fn.MapErr(observed, func(err error) error { return &StageError{Stage: st, Err: err} })
}

func (s *Service) observe(st State) {
	if s.deps.Observer != nil {
		s.deps.Observer(st)
	}
}

func (s *Service) rewriteStage(ctx context.Context, q query) fn.Result[query] {
	q.rewritten = s.deps.Rewriter.Rewrite(ctx, q.question)
	return fn.Ok(q)
}

func (s *Service) embedStage(ctx context.Context, q query) fn.Result[query] {
	vec, err := s.deps.Embedder.Embed(ctx, q.rewritten)
	if err != nil {
		return fn.Err[query](err)
	}
	q.vector = vec
	return fn.Ok(q)
}

func (s *Service) retrieveStage(ctx context.Context, q query) fn.Result[query] {
	results, err := s.deps.Retriever.Query(ctx, s.opts.Collection, q.vector, s.opts.K)
	if err != nil {
		return fn.Err[query](err)
	}
	q.sources = fn.Map(results, func(r semantic.SearchResult) Source {
		return Source{ID: r.ID, Text: r.Text, Score: r.Score}
	})
	s.logger.Info("rag semantic search done", "results", len(results))
	return fn.Ok(q)
}

func (s *Service) assembleStage(_ context.Context, q query) fn.Result[query] {
	q.prompt = prompt.Assemble(q.question, texts(q.sources))
	return fn.Ok(q)
}

func (s *Service) generateStage(ctx context.Context, q query) fn.Result[query] {
	text, err := s.deps.Generator.Generate(ctx, q.prompt)
	if err != nil {
		return fn.Err[query](err)
	}
	q.text = text
	return fn.Ok(q)
}

func texts(sources []Source) []string {
	return fn.Map(sources, func(s Source) string { return s.Text })
}

// run executes stage and reports the terminal state.
func (s *Service) run(ctx context.Context, stage fn.Stage[query, query], question string) (query, error) {
	if err := domain.ValidateQuestion(question); err != nil {
		return query{}, fmt.Errorf("rag: %w", err)
	}
	q, err := stage(ctx, query{question: question}).Unwrap()
	if err != nil {
		s.observe(StateFailed)
		return query{}, err
	}
	return q, nil
}

// Query runs the full RAG pipeline for a user question.
func (s *Service) Query(ctx context.Context, question string) (*Answer, error) {
	s.logger.Info("rag query start", "question_len", len(question))
	q, err := s.run(ctx, s.answer, question)
	s.deps.Metrics.QueryCompleted(err)
	if err != nil {
		s.logger.Warn("rag query failed", "err", err)
		return nil, err
	}
	s.observe(StateDone)
	return &Answer{Question: q.question, Rewritten: q.rewritten, Text: q.text, Sources: q.sources}, nil
}

// QueryStream runs the pipeline up to prompt assembly and returns the
// retrieved sources with a lazy sequence of answer fragments. Generation
// starts when Fragments is ranged over; an interruption is yielded as a
// *StageError for StateGenerating after the fragments already produced.
func (s *Service) QueryStream(ctx context.Context, question string) (*Stream, error) {
	s.logger.Info("rag stream start", "question_len", len(question))
	q, err := s.run(ctx, s.retrieve, question)
	if err != nil {
		s.deps.Metrics.QueryCompleted(err)
		s.logger.Warn("rag stream failed", "err", err)
		return nil, err
	}

	upstream := s.deps.Generator.Stream(ctx, q.prompt)
	fragments := func(yield func(string, error) bool) {
		s.observe(StateGenerating)
		start := time.Now()
		var failed error
		defer func() {
			s.deps.Metrics.ObserveStage("query", StateGenerating.String(), time.Since(start))
			s.deps.Metrics.QueryCompleted(failed)
		}()
		for frag, err := range upstream {
			if err != nil {
				failed = &StageError{Stage: StateGenerating, Err: err}
				s.deps.Metrics.StageFailed(StateGenerating.String())
				s.observe(StateFailed)
				yield("", failed)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		s.observe(StateDone)
	}

	return &Stream{Question: q.question, Rewritten: q.rewritten, Sources: q.sources, Fragments: fragments}, nil
}
