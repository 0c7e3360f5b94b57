package ollama

import (
	"strings"

	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func buildChatRequest(model, system, user string, opts ports.CompletionOptions) chatRequest {
	messages := make([]chatMessage, 0, 2)
	if s := strings.TrimSpace(system); s != "" {
		messages = append(messages, chatMessage{Role: "system", Content: s})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	req := chatRequest{Model: model, Messages: messages, Stream: false}
	if opts.MaxTokens > 0 {
		req.Options = map[string]any{"num_predict": opts.MaxTokens}
	}
	return req
}
