// Package rewrite rephrases user questions to improve retrieval.
package rewrite

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/WessleyAI/wessley-rag/engine/generate"
)

// Instruction is the system message sent with every rewrite request.
const Instruction = "You improve retrieval accuracy by rewriting the user's query. Reply with the rewritten query only."

var errEmptyRewrite = errors.New("rewrite: empty response")

// Completer is the part of a generation backend the rewriter needs.
type Completer interface {
	Complete(ctx context.Context, req generate.Request) (generate.Response, error)
}

// Rewriter asks a chat model to rewrite queries. It never fails: on any
// problem the original query is used.
type Rewriter struct {
	llm        Completer
	model      string
	logger     *slog.Logger
	onFallback func(error)
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l *slog.Logger) Option { return func(r *Rewriter) { r.logger = l } }

// WithFallbackHook is called with the cause every time the original query
// is used instead of a rewrite.
func WithFallbackHook(f func(error)) Option { return func(r *Rewriter) { r.onFallback = f } }

// New creates a Rewriter using model.
func New(llm Completer, model string, opts ...Option) *Rewriter {
	r := &Rewriter{llm: llm, model: model, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Rewrite returns an improved version of query, or query itself when the
// model fails or answers with nothing.
func (r *Rewriter) Rewrite(ctx context.Context, query string) string {
	resp, err := r.llm.Complete(ctx, generate.Request{Model: r.model, System: Instruction, Prompt: query})
	if err != nil {
		return r.fallback(query, err)
	}
	out := strings.TrimSpace(generate.Normalize(resp))
	if out == "" {
		return r.fallback(query, errEmptyRewrite)
	}
	return out
}

func (r *Rewriter) fallback(query string, cause error) string {
	r.logger.Warn("rewrite failed, using original query", "err", cause)
	if r.onFallback != nil {
		r.onFallback(cause)
	}
	return query
}
