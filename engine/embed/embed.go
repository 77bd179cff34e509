// Package embed maps text to vectors through an OpenAI-compatible
// embeddings endpoint.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/WessleyAI/wessley-rag/engine/domain"
	"github.com/WessleyAI/wessley-rag/pkg/resilience"
)

// DefaultDimensions is used for models the catalog does not know.
const DefaultDimensions = 1536

// VectorSize returns the embedding dimensionality of model.
//
//	text-embedding-3-large             3072
//	text-embedding-3-small, ada-002    1536
//	anything else                      1536
func VectorSize(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "large"):
		return 3072
	case strings.Contains(m, "small"), strings.Contains(m, "ada"):
		return 1536
	default:
		return DefaultDimensions
	}
}

// API is the part of *openai.Client the embedder uses.
type API interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Client embeds one text per call. It neither retries nor caches.
type Client struct {
	api     API
	model   string
	breaker *resilience.Breaker
	limiter *resilience.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBreaker fails calls fast while the service keeps erroring.
func WithBreaker(b *resilience.Breaker) Option { return func(c *Client) { c.breaker = b } }

// WithLimiter throttles outgoing calls.
func WithLimiter(l *resilience.Limiter) Option { return func(c *Client) { c.limiter = l } }

// New creates a Client for model.
func New(api API, model string, opts ...Option) *Client {
	c := &Client{api: api, model: model}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the configured embedding model.
func (c *Client) Model() string { return c.model }

// Dimensions returns the vector size produced by the configured model.
func (c *Client) Dimensions() int { return VectorSize(c.model) }

var errEmptyEmbedding = errors.New("empty embedding in response")

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingService, err)
	}
	vec, err := resilience.Do(c.breaker, ctx, func(ctx context.Context) ([]float32, error) {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.model),
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, errEmptyEmbedding
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingService, err)
	}
	return vec, nil
}
