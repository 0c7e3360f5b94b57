package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/resilience"
)

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

var _ ports.Embedder = (*Embedder)(nil)

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(e.client.cfg.EmbedModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.client.cfg.Dimensions > 0 {
		req.Dimensions = e.client.cfg.Dimensions
	}

	resp, err := resilience.Call(ctx, e.client.executor, OpEmbed, func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return e.client.api.CreateEmbeddings(ctx, req)
	}, classifyOpenAIError)
	if err != nil {
		return nil, embedError(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
