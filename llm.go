package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/retry"
	"github.com/sashabaranov/go-openai"

	"github.com/issuekit/triage/vecstore"
)

// Completer produces a single completion for a prompt. Implementations own
// their transport-level retry policy.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// OpenAIEmbedder implements Embedder on the OpenAI embeddings API.
type OpenAIEmbedder struct {
	Client *openai.Client
	Model  openai.EmbeddingModel
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := e.Model
	if model == "" {
		model = openai.SmallEmbedding3
	}

	resp, err := e.Client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      model,
		Dimensions: vecstore.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(resp.Data))
	}
	embedding := resp.Data[0].Embedding
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	return embedding, nil
}

// OpenAICompleter implements Completer on the chat completions API,
// retrying 5xx and 429 responses with backoff.
type OpenAICompleter struct {
	Log         *slog.Logger
	Client      *openai.Client
	Temperature float32
}

func (c *OpenAICompleter) Complete(ctx context.Context, model, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: c.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	ret := retry.New(time.Second, time.Second*10)
	for {
		resp, err := c.Client.CreateChatCompletion(ctx, req)
		if err != nil {
			var aiErr *openai.APIError
			if errors.As(err, &aiErr) {
				if (aiErr.HTTPStatusCode >= 500 || aiErr.HTTPStatusCode == 429) && ret.Wait(ctx) {
					c.Log.Warn("retrying AI call", "error", err)
					continue
				}
			}
			return "", fmt.Errorf("create chat completion: %w", err)
		}
		if len(resp.Choices) != 1 {
			return "", fmt.Errorf("expected one choice")
		}
		return resp.Choices[0].Message.Content, nil
	}
}
