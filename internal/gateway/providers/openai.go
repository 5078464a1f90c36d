package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
// With a custom BaseURL the same provider serves any server speaking the
// /chat/completions SSE protocol.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAIProvider streams chat completions from an OpenAI-compatible API.
// Safe for concurrent use; every Stream call owns its own SSE stream and
// goroutine.
type OpenAIProvider struct {
	client *openai.Client
	tag    string
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates the provider. An empty BaseURL targets the
// public OpenAI API.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), tag: "openai"}
}

// Name returns the provider tag.
func (p *OpenAIProvider) Name() string {
	return p.tag
}

// Stream sends a streaming chat completion request.
func (p *OpenAIProvider) Stream(ctx context.Context, req *Request) (<-chan *models.StreamChunk, error) {
	if req == nil || strings.TrimSpace(req.Model) == "" {
		return nil, NewError(p.tag, "", errors.New("model is required"))
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: float32(req.Temperature),
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		providerErr := NewError(p.tag, req.Model, err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			providerErr = providerErr.WithStatus(apiErr.HTTPStatusCode)
		}
		return nil, providerErr
	}

	chunks := make(chan *models.StreamChunk)
	go p.processStream(ctx, stream, chunks, req.Model)
	return chunks, nil
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- *models.StreamChunk, model string) {
	defer close(out)
	defer stream.Close()

	usage := &models.TokenUsage{Model: model}
	for {
		if ctx.Err() != nil {
			send(ctx, out, &models.StreamChunk{Error: ctx.Err(), Done: true})
			return
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				send(ctx, out, &models.StreamChunk{Done: true, Usage: usage})
				return
			}
			send(ctx, out, &models.StreamChunk{Error: NewError(p.tag, model, err), Done: true})
			return
		}

		if response.Usage != nil {
			usage.PromptTokens = response.Usage.PromptTokens
			usage.CompletionTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		if choice.FinishReason != "" {
			usage.FinishReason = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			if !send(ctx, out, &models.StreamChunk{Text: choice.Delta.Content}) {
				return
			}
		}
	}
}
