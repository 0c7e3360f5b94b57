package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
	"github.com/kirillkom/loan-rag-assistant/internal/infrastructure/resilience"
)

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

var _ ports.TextGenerator = (*Generator)(nil)

func (g *Generator) Complete(ctx context.Context, system, user string, opts ports.CompletionOptions) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if s := strings.TrimSpace(system); s != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	req := openai.ChatCompletionRequest{
		Model:       g.client.cfg.ChatModel,
		Messages:    messages,
		Temperature: g.client.cfg.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	resp, err := resilience.Call(ctx, g.client.executor, OpChat, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return g.client.api.CreateChatCompletion(ctx, req)
	}, classifyOpenAIError)
	if err != nil {
		return "", generationError(err)
	}
	if len(resp.Choices) == 0 {
		return "", generationError(fmt.Errorf("openai chat: response has no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
