package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/resilience"
)

// Executor operation names.
const (
	OpChat  = "openai.chat"
	OpEmbed = "openai.embed"
)

// Config holds the settings of an OpenAI-compatible endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	EmbedModel  string
	Dimensions  int
	Temperature float32
}

type Client struct {
	api      *openai.Client
	cfg      Config
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:      openai.NewClientWithConfig(clientCfg),
		cfg:      cfg,
		executor: executor,
	}
}

// Ping lists models, which costs no tokens.
func (c *Client) Ping(ctx context.Context) bool {
	_, err := c.api.ListModels(ctx)
	return err == nil
}

func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if class, ok := resilience.ClassifyTransportError(err); ok {
		return class
	}
	if code, ok := statusCode(err); ok {
		return resilience.ClassifyHTTPStatus(code)
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func generationError(err error) error {
	code, _ := statusCode(err)
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.NewGenerationError(domain.GenerationAuth, err)
	case code == http.StatusTooManyRequests:
		return domain.NewGenerationError(domain.GenerationRateLimit, err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewGenerationError(domain.GenerationTimeout, err)
	default:
		return domain.NewGenerationError(domain.GenerationOther, err)
	}
}

func embedError(err error) error {
	if classifyOpenAIError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "openai embed", err)
	}
	return fmt.Errorf("openai embed: %w", err)
}
