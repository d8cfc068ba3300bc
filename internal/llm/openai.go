package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/max-hertz-coder/RiverAI/internal/models"
)

// OpenAI implements Completer over the Chat Completions API. Multiple API
// keys are rotated round-robin across calls to spread rate limits; one
// client is built per key at startup.
type OpenAI struct {
	clients []openai.Client
	next    atomic.Uint64
}

// NewOpenAI builds the completer. At least one API key is required.
func NewOpenAI(keys []string, baseURL string) (*OpenAI, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one OpenAI API key required")
	}
	clients := make([]openai.Client, 0, len(keys))
	for _, key := range keys {
		opts := []option.RequestOption{option.WithAPIKey(key)}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		clients = append(clients, openai.NewClient(opts...))
	}
	return &OpenAI{clients: clients}, nil
}

// rotate returns the index of the client to use for the next call.
func (o *OpenAI) rotate() int {
	n := o.next.Add(1) - 1
	return int(n % uint64(len(o.clients)))
}

// Complete sends the conversation to the Chat Completions API and returns
// the assistant text.
func (o *OpenAI) Complete(ctx context.Context, turns []models.Turn, model string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case models.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}

	client := o.clients[o.rotate()]
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
