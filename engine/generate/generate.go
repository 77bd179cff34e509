// Package generate turns an assembled prompt into an answer, either whole
// or as a lazy sequence of text fragments.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/WessleyAI/wessley-rag/engine/domain"
	"github.com/WessleyAI/wessley-rag/pkg/resilience"
)

// ErrStreamConsumed is yielded when a fragment sequence is ranged over a
// second time.
var ErrStreamConsumed = errors.New("generate: stream already consumed")

// Client generates answers with a fixed model.
type Client struct {
	backend Backend
	model   string
	system  string
	breaker *resilience.Breaker
	limiter *resilience.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithSystem sets a system instruction sent with every prompt.
func WithSystem(s string) Option { return func(c *Client) { c.system = s } }

// WithBreaker fails calls fast while the service keeps erroring.
func WithBreaker(b *resilience.Breaker) Option { return func(c *Client) { c.breaker = b } }

// WithLimiter throttles outgoing calls.
func WithLimiter(l *resilience.Limiter) Option { return func(c *Client) { c.limiter = l } }

// New creates a Client for model.
func New(b Backend, model string, opts ...Option) *Client {
	c := &Client{backend: b, model: model}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the configured chat model.
func (c *Client) Model() string { return c.model }

func (c *Client) request(prompt string) Request {
	return Request{Model: c.model, System: c.system, Prompt: prompt}
}

func serviceErr(err error) error {
	if errors.Is(err, domain.ErrGenerationService) {
		return err
	}
	return fmt.Errorf("generate: %w: %w", domain.ErrGenerationService, err)
}

// Generate returns the complete answer for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", serviceErr(err)
	}
	resp, err := resilience.Do(c.breaker, ctx, func(ctx context.Context) (Response, error) {
		return c.backend.Complete(ctx, c.request(prompt))
	})
	if err != nil {
		return "", serviceErr(err)
	}
	return Normalize(resp), nil
}

// Stream returns the answer for prompt as a sequence of non-empty
// fragments. The upstream request is made when iteration starts. A failure
// is yielded once as the final element. The sequence can be ranged over
// only once; stopping early closes the upstream stream.
func (c *Client) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}
		if err := c.limiter.Wait(ctx); err != nil {
			yield("", serviceErr(err))
			return
		}
		r, err := resilience.Do(c.breaker, ctx, func(ctx context.Context) (DeltaReader, error) {
			return c.backend.Stream(ctx, c.request(prompt))
		})
		if err != nil {
			yield("", serviceErr(err))
			return
		}
		defer r.Close()

		for {
			delta, err := r.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", serviceErr(err))
				return
			}
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// Collect drains a fragment sequence into one string. It returns the text
// gathered before the first error together with that error.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for frag, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}
