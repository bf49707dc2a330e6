package google

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"

	"github.com/Coykto/debug-mcp/internal/embedding"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-004"

// Embedder embeds texts with the Gemini API. Close releases the client.
type Embedder struct {
	options embedding.Options
	client  *genai.Client
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := e.client.EmbeddingModel(e.options.Model)
	batch := model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	rsp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("google embeddings: %w", err)
	}

	if rsp == nil || len(rsp.Embeddings) != len(texts) {
		return nil, embedding.ErrEmptyResponse
	}

	out := make([][]float32, len(texts))
	for i, emb := range rsp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, embedding.ErrEmptyResponse
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}

func NewEmbedder(ctx context.Context, opts ...embedding.Option) (*Embedder, error) {
	options := embedding.NewOptions(DefaultModel, opts...)

	client, err := genai.NewClient(ctx, genaiopt.WithAPIKey(options.ApiKey))
	if err != nil {
		return nil, fmt.Errorf("google embeddings client: %w", err)
	}

	return &Embedder{options: options, client: client}, nil
}
