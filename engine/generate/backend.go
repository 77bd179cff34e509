package generate

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// Request is a single-turn generation request.
type Request struct {
	Model  string
	System string
	Prompt string
}

// DeltaReader yields incremental text. Recv returns io.EOF once the
// response is complete. An empty delta is legal and carries no text.
type DeltaReader interface {
	Recv() (string, error)
	Close() error
}

// Backend is a text generation service.
type Backend interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) (DeltaReader, error)
}

// ChatAPI is the part of *openai.Client the OpenAI backend uses.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// OpenAI is a Backend over the chat completions API.
type OpenAI struct {
	api ChatAPI
}

var _ Backend = (*OpenAI)(nil)

// NewOpenAI wraps an OpenAI-compatible chat client.
func NewOpenAI(api ChatAPI) *OpenAI {
	return &OpenAI{api: api}
}

var errNoChoices = errors.New("no choices in response")

func chatRequest(req Request, stream bool) openai.ChatCompletionRequest {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	return openai.ChatCompletionRequest{Model: req.Model, Messages: msgs, Stream: stream}
}

// Complete sends one chat completion request.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := o.api.CreateChatCompletion(ctx, chatRequest(req, false))
	if err != nil {
		return Response{}, fmt.Errorf("generate: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("generate: chat completion: %w", errNoChoices)
	}
	msg := resp.Choices[0].Message
	if len(msg.MultiContent) > 0 {
		blocks := make([]Block, len(msg.MultiContent))
		for i, p := range msg.MultiContent {
			blocks[i] = Block{Type: string(p.Type), Text: p.Text}
		}
		return Response{Kind: KindBlocks, Blocks: blocks, Raw: resp}, nil
	}
	return Response{Kind: KindContent, Content: msg.Content, Raw: resp}, nil
}

// Stream opens a streamed chat completion.
func (o *OpenAI) Stream(ctx context.Context, req Request) (DeltaReader, error) {
	s, err := o.api.CreateChatCompletionStream(ctx, chatRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("generate: open stream: %w", err)
	}
	return &openAIDeltas{stream: s}, nil
}

type openAIDeltas struct {
	stream *openai.ChatCompletionStream
}

func (d *openAIDeltas) Recv() (string, error) {
	resp, err := d.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (d *openAIDeltas) Close() error {
	return d.stream.Close()
}
