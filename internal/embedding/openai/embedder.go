package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/Coykto/debug-mcp/internal/embedding"
)

// DefaultModel is used when no model is configured.
const DefaultModel = string(openai.SmallEmbedding3)

type openAIEmbedder struct {
	options embedding.Options
	client  *openai.Client
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.options.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(rsp.Data) != len(texts) {
		return nil, embedding.ErrEmptyResponse
	}

	out := make([][]float32, len(texts))
	for _, d := range rsp.Data {
		if d.Index < 0 || d.Index >= len(out) || len(d.Embedding) == 0 {
			return nil, embedding.ErrEmptyResponse
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func NewEmbedder(opts ...embedding.Option) embedding.Embedder {
	options := embedding.NewOptions(DefaultModel, opts...)

	return &openAIEmbedder{
		options: options,
		client:  openai.NewClient(options.ApiKey),
	}
}

// NewEmbedderWithConfig is NewEmbedder against a custom client
// configuration, such as a different base URL.
func NewEmbedderWithConfig(cfg openai.ClientConfig, opts ...embedding.Option) embedding.Embedder {
	options := embedding.NewOptions(DefaultModel, opts...)

	return &openAIEmbedder{
		options: options,
		client:  openai.NewClientWithConfig(cfg),
	}
}
