package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/resilience"
)

// Executor operation names.
const (
	OpGenerate = "ollama.generate"
	OpEmbed    = "ollama.embed"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds a client for an Ollama server. executor may be nil, in which
// case every call is attempted once.
func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Ping reports whether the server answers its model listing.
func (c *Client) Ping(ctx context.Context) bool {
	return c.roundTrip(ctx, http.MethodGet, "/api/tags", nil, nil, "ping") == nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

var _ ports.TextGenerator = (*Generator)(nil)

// Complete runs a non-streaming chat completion. Failures are returned as
// *domain.GenerationError so the caller can pick a fallback.
func (g *Generator) Complete(ctx context.Context, system, user string, opts ports.CompletionOptions) (string, error) {
	req := buildChatRequest(g.client.genModel, system, user, opts)

	resp, err := resilience.Call(ctx, g.client.executor, OpGenerate, func(ctx context.Context) (chatResponse, error) {
		var out chatResponse
		err := g.client.postJSON(ctx, "/api/chat", req, &out, "generate")
		return out, err
	}, classifyOllamaError)
	if err != nil {
		return "", generationError(err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

var _ ports.Embedder = (*Embedder)(nil)

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	type embedResponse struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	response, err := resilience.Call(ctx, e.client.executor, OpEmbed, func(ctx context.Context) (embedResponse, error) {
		var out embedResponse
		err := e.client.postJSON(ctx, "/api/embed", request, &out, "embed")
		return out, err
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding result")
	}
	return response.Embeddings[0], nil
}
