package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"memchat/chat"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

var ErrEmptyCompletion = errors.New("completion returned no choices")

type CompletionRequest struct {
	Model       string
	Messages    []chat.OutboundMessage
	Temperature float64
	MaxTokens   int64
}

// OpenAICompleter streams chat completions from any OpenAI compatible endpoint.
type OpenAICompleter struct {
	client *openai.Client
}

func NewOpenAICompleter(baseURL, apiKey string) *OpenAICompleter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAICompleter{client: openai.NewClient(opts...)}
}

func messageParams(messages []chat.OutboundMessage) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case chat.RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}
	return params
}

// Stream sends the request and calls onDelta for every content fragment. It
// returns the accumulated reply.
func (o *OpenAICompleter) Stream(ctx context.Context, req CompletionRequest, onDelta func(string) error) (string, error) {
	if req.Temperature == 0 {
		req.Temperature = DefaultTemperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	params := openai.ChatCompletionNewParams{
		Messages:    openai.F(messageParams(req.Messages)),
		Model:       openai.F(openai.ChatModel(req.Model)),
		Temperature: openai.F(req.Temperature),
		MaxTokens:   openai.F(req.MaxTokens),
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
				return "", err
			}
		}
		if _, ok := acc.JustFinishedContent(); ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("completion stream failed: %w", err)
	}
	if len(acc.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return acc.Choices[0].Message.Content, nil
}
